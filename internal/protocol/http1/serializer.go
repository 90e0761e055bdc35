package http1

import (
	"strconv"

	"github.com/indigo-web/preview/http"
	"github.com/indigo-web/preview/http/mime"
	"github.com/indigo-web/preview/http/proto"
	"github.com/indigo-web/preview/http/status"
)

// KeepAlive returns the Connection header value the response must carry, given
// whether the connection stays open and the protocol of the request. HTTP/1.0
// needs to be told about persistence, HTTP/1.1 about its absence. In the other
// two cases the protocol default is already right and nothing is set.
func KeepAlive(keepAlive bool, protocol proto.Proto) (value string, set bool) {
	switch {
	case keepAlive && protocol == proto.HTTP10:
		return "keep-alive", true
	case !keepAlive && protocol != proto.HTTP10:
		return "close", true
	default:
		return "", false
	}
}

// FileHead fills the response head for a file of the given size and type.
func FileHead(
	response *http.Response, keepAlive bool, protocol proto.Proto, size int64, contentType mime.MIME,
) *http.Response {
	response.Code = status.OK
	response.ContentLength = size
	response.ContentType = contentType
	applyKeepAlive(response, keepAlive, protocol)

	return response
}

// applyKeepAlive adds the Connection header unless one was set explicitly.
func applyKeepAlive(response *http.Response, keepAlive bool, protocol proto.Proto) {
	if _, explicit := response.Connection(); explicit {
		return
	}

	if value, set := KeepAlive(keepAlive, protocol); set {
		response.Header("Connection", value)
	}
}

const continueResponse = "HTTP/1.1 100 Continue\r\n\r\n"

type serializer struct {
	buff []byte
}

func newSerializer(buff []byte) serializer {
	return serializer{buff: buff}
}

// Render returns the serialized head, followed by the diagnostic body if withBody
// is set. The returned slice is valid until the next call.
func (s *serializer) Render(protocol proto.Proto, response *http.Response, withBody bool) []byte {
	s.buff = s.buff[:0]
	s.appendProtocol(protocol)
	s.buff = append(s.buff, status.Line(response.Code)...)
	s.crlf()
	s.appendContentLength(response.ContentLength)
	s.appendKnownHeader("Content-Type: ", response.ContentType)

	for _, header := range response.Headers {
		s.appendHeader(header)
	}

	s.crlf()

	if withBody {
		s.buff = append(s.buff, response.Body...)
	}

	return s.buff
}

func (s *serializer) appendProtocol(protocol proto.Proto) {
	if protocol == proto.Unknown {
		// in case the request line was malformed, parser had no chance of reaching
		// the protocol and thereby resulting in the unknown one.
		protocol = proto.HTTP11
	}

	s.buff = append(s.buff, protocol.String()...)
}

// appendHeader writes a complete header field line.
func (s *serializer) appendHeader(header http.Header) {
	s.buff = append(s.buff, header.Key...)
	s.buff = append(s.buff, ':', ' ')
	s.buff = append(s.buff, header.Value...)
	s.crlf()
}

// appendKnownHeader differs from appendHeader only by the fact that the key is known to already
// have a colon and a space included.
func (s *serializer) appendKnownHeader(key, value string) {
	s.buff = append(s.buff, key...)
	s.buff = append(s.buff, value...)
	s.crlf()
}

func (s *serializer) appendContentLength(value int64) {
	s.buff = append(s.buff, "Content-Length: "...)
	s.buff = strconv.AppendInt(s.buff, value, 10)
	s.crlf()
}

const crlf = "\r\n"

func (s *serializer) crlf() {
	s.buff = append(s.buff, crlf...)
}
