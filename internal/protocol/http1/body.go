package http1

import (
	"io"

	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/preview/http"
	"github.com/indigo-web/preview/http/status"
)

// bodyDrainer reads request bodies off the stream and throws them away. Static
// files don't need them, but the connection must stay aligned on request
// boundaries.
type bodyDrainer struct {
	maxDrain int64
	settings chunkedbody.Settings
	parser   *chunkedbody.Parser
	chunked  bool
	trailer  bool
	left     int64
	drained  int64
}

func newBodyDrainer(maxDrain int64) bodyDrainer {
	return bodyDrainer{
		maxDrain: maxDrain,
		settings: chunkedbody.DefaultSettings(),
	}
}

// Init prepares the drainer for the body of the request.
func (b *bodyDrainer) Init(request *http.Request) error {
	b.chunked = request.Chunked
	b.trailer = request.HasTrailer
	b.drained = 0
	b.left = 0

	if b.chunked {
		b.parser = chunkedbody.NewParser(b.settings)
		return nil
	}

	if request.ContentLength > b.maxDrain {
		return status.ErrBodyTooLarge
	}

	b.left = max(request.ContentLength, 0)

	return nil
}

// Drain consumes as much of the body from data as there is, returning the number
// of consumed bytes. done is set once the whole body is gone.
func (b *bodyDrainer) Drain(data []byte) (n int, done bool, err error) {
	if b.chunked {
		return b.drainChunked(data)
	}

	if int64(len(data)) >= b.left {
		n = int(b.left)
		b.left = 0
		return n, true, nil
	}

	b.left -= int64(len(data))

	return len(data), false, nil
}

func (b *bodyDrainer) drainChunked(data []byte) (n int, done bool, err error) {
	for rest := data; len(rest) > 0; {
		chunk, extra, err := b.parser.Parse(rest, b.trailer)
		switch err {
		case nil:
		case io.EOF:
			return len(data) - len(extra), true, nil
		default:
			return 0, false, status.ErrBadChunk
		}

		if b.drained += int64(len(chunk)); b.drained > b.maxDrain {
			return 0, false, status.ErrBodyTooLarge
		}

		rest = extra
	}

	return len(data), false, nil
}
