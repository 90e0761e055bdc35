package status

import "strconv"

type (
	Code   uint16
	Status string
)

// The subset of IANA-registered codes the preview server is able to emit.
// See: https://www.iana.org/assignments/http-status-codes/http-status-codes.xhtml
const (
	Continue Code = 100 // RFC 9110, 15.2.1

	OK Code = 200 // RFC 9110, 15.3.1

	BadRequest                  Code = 400 // RFC 9110, 15.5.1
	Forbidden                   Code = 403 // RFC 9110, 15.5.4
	NotFound                    Code = 404 // RFC 9110, 15.5.5
	RequestEntityTooLarge       Code = 413 // RFC 9110, 15.5.14
	RequestURITooLong           Code = 414 // RFC 9110, 15.5.15
	RequestHeaderFieldsTooLarge Code = 431 // RFC 6585, 5

	InternalServerError     Code = 500 // RFC 9110, 15.6.1
	NotImplemented          Code = 501 // RFC 9110, 15.6.2
	HTTPVersionNotSupported Code = 505 // RFC 9110, 15.6.6
)

// KnownCodes lists every code above, mostly for tests.
var KnownCodes = []Code{
	Continue, OK, BadRequest, Forbidden, NotFound, RequestEntityTooLarge, RequestURITooLong,
	RequestHeaderFieldsTooLarge, InternalServerError, NotImplemented, HTTPVersionNotSupported,
}

// Text returns a text for the HTTP status code. It returns the empty
// string if the code is unknown.
func Text(code Code) Status {
	switch code {
	case Continue:
		return "Continue"
	case OK:
		return "OK"
	case BadRequest:
		return "Bad Request"
	case Forbidden:
		return "Forbidden"
	case NotFound:
		return "Not Found"
	case RequestEntityTooLarge:
		return "Request Entity Too Large"
	case RequestURITooLong:
		return "Request URI Too Long"
	case RequestHeaderFieldsTooLarge:
		return "Request Header Fields Too Large"
	case InternalServerError:
		return "Internal Server Error"
	case NotImplemented:
		return "Not Implemented"
	case HTTPVersionNotSupported:
		return "HTTP Version Not Supported"
	default:
		return ""
	}
}

// Line renders the status line tail, e.g. "404 Not Found". Unknown codes are
// rendered with a bare number.
func Line(code Code) string {
	text := Text(code)
	if len(text) == 0 {
		return strconv.Itoa(int(code))
	}

	return strconv.Itoa(int(code)) + " " + string(text)
}
