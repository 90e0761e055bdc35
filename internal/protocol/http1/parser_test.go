package http1

import (
	"strings"
	"testing"

	"github.com/indigo-web/preview/config"
	"github.com/indigo-web/preview/http"
	"github.com/indigo-web/preview/http/proto"
	"github.com/indigo-web/preview/http/status"
	"github.com/stretchr/testify/require"
)

func newTestParser() (*Parser, *http.Request) {
	request := http.NewRequest()
	return NewParser(request, config.Default().Headers), request
}

// feedPartially feeds the data by n bytes at once.
func feedPartially(p *Parser, data string, n int) (done bool, extra []byte, err error) {
	for len(data) > 0 {
		part := data[:min(n, len(data))]
		data = data[len(part):]

		if done, extra, err = p.Parse([]byte(part)); done || err != nil {
			return done, append(extra, data...), err
		}
	}

	return done, extra, err
}

func TestParser(t *testing.T) {
	t.Run("simple GET", func(t *testing.T) {
		parser, request := newTestParser()
		done, extra, err := parser.Parse([]byte("GET / HTTP/1.1\r\nHost: localhost\r\n\r\n"))
		require.NoError(t, err)
		require.True(t, done)
		require.Empty(t, extra)
		require.Equal(t, "GET", request.Method)
		require.Equal(t, "/", request.URI)
		require.Equal(t, "/", request.Path)
		require.Equal(t, proto.HTTP11, request.Proto)
		host, found := request.Headers.Get("host")
		require.True(t, found)
		require.Equal(t, "localhost", host)
		require.True(t, request.KeepAlive())
	})

	t.Run("bare LF", func(t *testing.T) {
		parser, request := newTestParser()
		done, _, err := parser.Parse([]byte("GET /a HTTP/1.0\nConnection: keep-alive\n\n"))
		require.NoError(t, err)
		require.True(t, done)
		require.Equal(t, proto.HTTP10, request.Proto)
		require.True(t, request.KeepAlive())
	})

	t.Run("byte by byte", func(t *testing.T) {
		const raw = "HEAD /docs/page.html?x=1#top HTTP/1.1\r\nA: b\r\nConnection: close\r\n\r\nGET / HTTP/1.1\r\n\r\n"
		for _, n := range []int{1, 2, 5, 13} {
			parser, request := newTestParser()
			done, extra, err := feedPartially(parser, raw, n)
			require.NoError(t, err)
			require.True(t, done)
			require.Equal(t, "GET / HTTP/1.1\r\n\r\n", string(extra))
			require.Equal(t, "HEAD", request.Method)
			require.True(t, request.IsHead())
			require.Equal(t, "/docs/page.html?x=1#top", request.URI)
			require.Equal(t, "/docs/page.html", request.Path)
			require.Equal(t, "x=1", request.Query)
			require.False(t, request.KeepAlive())
		}
	})

	t.Run("pipelined", func(t *testing.T) {
		parser, request := newTestParser()
		done, extra, err := parser.Parse([]byte("GET /1 HTTP/1.1\r\n\r\nGET /2 HTTP/1.1\r\n\r\n"))
		require.NoError(t, err)
		require.True(t, done)
		require.Equal(t, "/1", request.Path)

		request.Reset()
		done, extra, err = parser.Parse(extra)
		require.NoError(t, err)
		require.True(t, done)
		require.Empty(t, extra)
		require.Equal(t, "/2", request.Path)
	})

	t.Run("leading empty lines", func(t *testing.T) {
		parser, request := newTestParser()
		done, _, err := parser.Parse([]byte("\r\n\r\nGET /x HTTP/1.1\r\n\r\n"))
		require.NoError(t, err)
		require.True(t, done)
		require.Equal(t, "/x", request.Path)
	})

	t.Run("percent-encoded path", func(t *testing.T) {
		parser, request := newTestParser()
		_, _, err := parser.Parse([]byte("GET /hello%20world.txt HTTP/1.1\r\n\r\n"))
		require.NoError(t, err)
		require.Equal(t, "/hello world.txt", request.Path)
		require.Equal(t, "/hello%20world.txt", request.URI)
	})

	t.Run("absolute form", func(t *testing.T) {
		parser, request := newTestParser()
		_, _, err := parser.Parse([]byte("GET http://localhost:8000/a/b.css HTTP/1.1\r\n\r\n"))
		require.NoError(t, err)
		require.Equal(t, "/a/b.css", request.Path)
	})

	t.Run("content length", func(t *testing.T) {
		parser, request := newTestParser()
		done, extra, err := parser.Parse([]byte("POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"))
		require.NoError(t, err)
		require.True(t, done)
		require.Equal(t, "hello", string(extra))
		require.Equal(t, int64(5), request.ContentLength)
		require.True(t, request.HasBody())
	})

	t.Run("chunked with trailer", func(t *testing.T) {
		parser, request := newTestParser()
		_, _, err := parser.Parse([]byte("POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\nTrailer: X\r\n\r\n"))
		require.NoError(t, err)
		require.True(t, request.Chunked)
		require.True(t, request.HasTrailer)
		require.True(t, request.HasBody())
	})

	t.Run("expect continue", func(t *testing.T) {
		parser, request := newTestParser()
		_, _, err := parser.Parse([]byte("PUT / HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 1\r\n\r\n"))
		require.NoError(t, err)
		require.True(t, request.Continue)
	})

	t.Run("connection tokens", func(t *testing.T) {
		parser, request := newTestParser()
		_, _, err := parser.Parse([]byte("GET / HTTP/1.1\r\nConnection: Upgrade, Close\r\n\r\n"))
		require.NoError(t, err)
		require.True(t, request.ConnectionClose)
		require.False(t, request.KeepAlive())
	})
}

func TestParserErrors(t *testing.T) {
	for _, tc := range []struct {
		Name    string
		Request string
		Err     error
	}{
		{"no target", "GET\r\n\r\n", status.ErrBadRequest},
		{"bad method", "G(T / HTTP/1.1\r\n\r\n", status.ErrBadRequest},
		{"space in target", "GET /a b HTTP/1.1\r\n\r\n", status.ErrBadRequest},
		{"unknown protocol", "GET / SPDY/3\r\n\r\n", status.ErrBadRequest},
		{"unsupported version", "GET / HTTP/2.0\r\n\r\n", status.ErrHTTPVersionNotSupported},
		{"bad escape", "GET /%zz HTTP/1.1\r\n\r\n", status.ErrURIDecoding},
		{"truncated escape", "GET /%2 HTTP/1.1\r\n\r\n", status.ErrURIDecoding},
		{"no colon", "GET / HTTP/1.1\r\nHost\r\n\r\n", status.ErrBadRequest},
		{"space before colon", "GET / HTTP/1.1\r\nHost : x\r\n\r\n", status.ErrBadRequest},
		{"obs-fold", "GET / HTTP/1.1\r\nA: b\r\n c\r\n\r\n", status.ErrBadRequest},
		{"negative length", "POST / HTTP/1.1\r\nContent-Length: -1\r\n\r\n", status.ErrBadContentLength},
		{"overflowing length", "POST / HTTP/1.1\r\nContent-Length: 99999999999999999999\r\n\r\n", status.ErrBadContentLength},
		{"conflicting lengths", "POST / HTTP/1.1\r\nContent-Length: 1\r\nContent-Length: 2\r\n\r\n", status.ErrBadContentLength},
		{"gzip", "POST / HTTP/1.1\r\nTransfer-Encoding: gzip, chunked\r\n\r\n", status.ErrUnsupportedEncoding},
		{"chunked twice", "POST / HTTP/1.1\r\nTransfer-Encoding: chunked, chunked\r\n\r\n", status.ErrBadRequest},
		{"both framings", "POST / HTTP/1.1\r\nContent-Length: 1\r\nTransfer-Encoding: chunked\r\n\r\n", status.ErrBadRequest},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			parser, _ := newTestParser()
			_, _, err := parser.Parse([]byte(tc.Request))
			require.ErrorIs(t, err, tc.Err)
		})
	}
}

func TestParserLimits(t *testing.T) {
	t.Run("request line", func(t *testing.T) {
		cfg := config.Default().Headers
		parser := NewParser(http.NewRequest(), cfg)
		target := "/" + strings.Repeat("a", cfg.MaxRequestLineSize)
		_, _, err := feedPartially(parser, "GET "+target+" HTTP/1.1\r\n\r\n", 1024)
		require.ErrorIs(t, err, status.ErrURITooLong)
		require.Equal(t, status.RequestURITooLong, status.CodeOf(err))
	})

	t.Run("header size", func(t *testing.T) {
		cfg := config.Default().Headers
		parser := NewParser(http.NewRequest(), cfg)
		header := "X: " + strings.Repeat("a", cfg.MaxSize) + "\r\n"
		_, _, err := feedPartially(parser, "GET / HTTP/1.1\r\n"+header+"\r\n", 1024)
		require.ErrorIs(t, err, status.ErrHeaderFieldsTooLarge)
	})

	t.Run("headers number", func(t *testing.T) {
		cfg := config.Default().Headers
		cfg.MaxNumber = 3
		parser := NewParser(http.NewRequest(), cfg)
		_, _, err := parser.Parse([]byte("GET / HTTP/1.1\r\nA: 1\r\nB: 2\r\nC: 3\r\nD: 4\r\n\r\n"))
		require.ErrorIs(t, err, status.ErrTooManyHeaders)
		require.Equal(t, status.RequestHeaderFieldsTooLarge, status.CodeOf(err))
	})
}
