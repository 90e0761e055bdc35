package status

import "errors"

type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

// CodeOf returns the status code the error should be answered with. Errors,
// which are not HTTPError, are answered as internal ones.
func CodeOf(err error) Code {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}

	return InternalServerError
}

// Failure categories of a single request. Every one of them is scoped to the
// connection it happened on and never affects the others.
var (
	// ErrPathRejected is returned for request URIs trying to escape the served root.
	ErrPathRejected = NewError(Forbidden, "path rejected")
	// ErrNotFound means that the resolved file doesn't exist.
	ErrNotFound = NewError(NotFound, "not found")
	// ErrIOFailure covers the file being present but not openable or readable. It
	// is reported to the client as 404 as well, only the body differs.
	ErrIOFailure = NewError(NotFound, "i/o failure")
	// ErrInternal is an unexpected failure inside the server itself.
	ErrInternal = NewError(InternalServerError, "internal error")
	// ErrProtocolViolation tears the connection down without any response.
	ErrProtocolViolation = errors.New("protocol violation")
)

var (
	ErrBadRequest              = NewError(BadRequest, "bad request")
	ErrURIDecoding             = NewError(BadRequest, "invalid urlencoded sequence")
	ErrBadContentLength        = NewError(BadRequest, "bad Content-Length value")
	ErrBadChunk                = NewError(BadRequest, "malformed chunk-encoded data")
	ErrBodyTooLarge            = NewError(RequestEntityTooLarge, "request body is too large")
	ErrURITooLong              = NewError(RequestURITooLong, "request URI too long")
	ErrHeaderFieldsTooLarge    = NewError(RequestHeaderFieldsTooLarge, "too large headers section")
	ErrTooManyHeaders          = NewError(RequestHeaderFieldsTooLarge, "too many headers")
	ErrUnsupportedEncoding     = NewError(NotImplemented, "transfer coding is not supported")
	ErrHTTPVersionNotSupported = NewError(HTTPVersionNotSupported, "HTTP version not supported")
)
