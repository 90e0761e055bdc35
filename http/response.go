package http

import (
	"github.com/indigo-web/preview/http/mime"
	"github.com/indigo-web/preview/http/status"
	"github.com/indigo-web/utils/strcomp"
)

// Response is the head of a response. Content-Length and Content-Type are always
// emitted, therefore they are kept apart from the rest of the headers.
type Response struct {
	Code          status.Code
	ContentLength int64
	ContentType   mime.MIME
	Headers       Headers
	// Body is used for short diagnostic bodies only. File contents are streamed
	// separately.
	Body []byte
}

// NewResponse returns a new instance of the Response object with status code set to 200 OK.
func NewResponse() *Response {
	return &Response{
		Code:        status.OK,
		ContentType: mime.OctetStream,
	}
}

// Header appends a header field.
func (r *Response) Header(key, value string) *Response {
	r.Headers.Add(key, value)
	return r
}

// Connection returns the value of the explicitly set Connection header, if any.
func (r *Response) Connection() (string, bool) {
	return r.Headers.Get("Connection")
}

// Error fills the response with a diagnostic text body.
func (r *Response) Error(code status.Code, text string) *Response {
	r.Code = code
	r.ContentType = mime.PlainUTF8
	r.Body = append(r.Body[:0], text...)
	r.ContentLength = int64(len(r.Body))
	return r
}

// Closes reports whether the response announces closing the connection.
func (r *Response) Closes() bool {
	value, found := r.Connection()
	return found && strcomp.EqualFold(value, "close")
}

// Reset clears the response for reuse.
func (r *Response) Reset() {
	r.Code = status.OK
	r.ContentLength = 0
	r.ContentType = mime.OctetStream
	r.Headers.Clear()
	r.Body = r.Body[:0]
}
