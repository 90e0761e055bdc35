package http

import "github.com/indigo-web/preview/http/proto"

// Request is the decoded request head. The body is never kept: it is read off
// the connection and discarded.
type Request struct {
	// Method is taken as is. Every method is served the same way, except HEAD,
	// whose responses carry no body.
	Method string
	// URI is the raw request target.
	URI string
	// Path is the percent-decoded part of the target before the query.
	Path  string
	Query string
	Proto proto.Proto
	// Headers keeps all the header fields, including those parsed into
	// dedicated fields below.
	Headers Headers
	// ContentLength is -1 unless the header was present.
	ContentLength int64
	Chunked       bool
	HasTrailer    bool
	// ConnectionClose and ConnectionKeepAlive reflect tokens of the Connection header.
	ConnectionClose     bool
	ConnectionKeepAlive bool
	// Continue is set when the client awaits 100 Continue before sending the body.
	Continue bool
}

func NewRequest() *Request {
	return &Request{
		Headers:       make(Headers, 0, 10),
		ContentLength: -1,
	}
}

// KeepAlive reports whether the client expects the connection to stay open after
// the response. HTTP/1.1 is persistent unless told otherwise, HTTP/1.0 is not
// unless asked to be.
func (r *Request) KeepAlive() bool {
	switch {
	case r.ConnectionClose:
		return false
	case r.ConnectionKeepAlive:
		return true
	default:
		return r.Proto.DefaultKeepAlive()
	}
}

// HasBody reports whether any body bytes follow the head.
func (r *Request) HasBody() bool {
	return r.Chunked || r.ContentLength > 0
}

// IsHead reports whether the response must not carry a body.
func (r *Request) IsHead() bool {
	return r.Method == "HEAD"
}

// Reset prepares the request for the next one on the same connection.
func (r *Request) Reset() {
	r.Method, r.URI, r.Path, r.Query = "", "", "", ""
	r.Proto = proto.Unknown
	r.Headers.Clear()
	r.ContentLength = -1
	r.Chunked = false
	r.HasTrailer = false
	r.ConnectionClose = false
	r.ConnectionKeepAlive = false
	r.Continue = false
}
