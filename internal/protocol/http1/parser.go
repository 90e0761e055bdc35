package http1

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/indigo-web/preview/config"
	"github.com/indigo-web/preview/http"
	"github.com/indigo-web/preview/http/proto"
	"github.com/indigo-web/preview/http/status"
	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
)

// Parser is a stream-based http request head parser. It modifies the request
// object by pointer and copies everything it keeps, so the fed data may be
// reused by the caller right after Parse returns. Body must be processed
// separately, the bytes following the head are returned as an extra.
type Parser struct {
	request       *http.Request
	cfg           config.Headers
	line          []byte
	headersSize   int
	headersNumber int
	state         parserState
}

func NewParser(request *http.Request, cfg config.Headers) *Parser {
	return &Parser{
		request: request,
		cfg:     cfg,
		line:    make([]byte, 0, 256),
		state:   eRequestLine,
	}
}

// Parse feeds the data into the parser. Once the head is complete, done is true and
// extra holds the rest of the data.
func (p *Parser) Parse(data []byte) (done bool, extra []byte, err error) {
	switch p.state {
	case eRequestLine:
		goto requestLine
	case eHeaderLine:
		goto headerLine
	default:
		panic(fmt.Sprintf("BUG: unexpected state: %v", p.state))
	}

requestLine:
	{
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if len(p.line)+len(data) > p.cfg.MaxRequestLineSize {
				return false, nil, status.ErrURITooLong
			}

			p.line = append(p.line, data...)
			return false, nil, nil
		}

		line := data[:lf]
		if len(p.line) > 0 {
			p.line = append(p.line, line...)
			line = p.line
		}

		if len(line) > p.cfg.MaxRequestLineSize {
			return false, nil, status.ErrURITooLong
		}

		data = data[lf+1:]
		line = stripCR(line)
		if len(line) == 0 {
			// empty lines preceding the request line are ignored
			p.line = p.line[:0]
			goto requestLine
		}

		if err = p.parseRequestLine(line); err != nil {
			return false, nil, err
		}

		p.line = p.line[:0]
		p.state = eHeaderLine
		goto headerLine
	}

headerLine:
	{
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if p.headersSize+len(p.line)+len(data) > p.cfg.MaxSize {
				return false, nil, status.ErrHeaderFieldsTooLarge
			}

			p.line = append(p.line, data...)
			return false, nil, nil
		}

		line := data[:lf]
		if len(p.line) > 0 {
			p.line = append(p.line, line...)
			line = p.line
		}

		if p.headersSize += len(line) + 1; p.headersSize > p.cfg.MaxSize {
			return false, nil, status.ErrHeaderFieldsTooLarge
		}

		data = data[lf+1:]
		line = stripCR(line)
		if len(line) == 0 {
			p.Reset()
			return true, data, p.validate()
		}

		if err = p.parseHeader(line); err != nil {
			return false, nil, err
		}

		p.line = p.line[:0]
		goto headerLine
	}
}

// Reset prepares the parser for the next request. The request itself isn't reset.
func (p *Parser) Reset() {
	p.line = p.line[:0]
	p.headersSize = 0
	p.headersNumber = 0
	p.state = eRequestLine
}

func (p *Parser) parseRequestLine(line []byte) error {
	sp := bytes.IndexByte(line, ' ')
	if sp <= 0 {
		return status.ErrBadRequest
	}

	method, rest := line[:sp], line[sp+1:]
	sp = bytes.LastIndexByte(rest, ' ')
	if sp <= 0 {
		return status.ErrBadRequest
	}

	target, rawProto := rest[:sp], rest[sp+1:]
	if bytes.IndexByte(target, ' ') != -1 || !isToken(method) {
		return status.ErrBadRequest
	}

	p.request.Proto = proto.FromBytes(rawProto)
	if p.request.Proto == proto.Unknown {
		if bytes.HasPrefix(rawProto, []byte("HTTP/")) {
			return status.ErrHTTPVersionNotSupported
		}

		return status.ErrBadRequest
	}

	p.request.Method = string(method)
	p.request.URI = string(target)

	if hash := bytes.IndexByte(target, '#'); hash != -1 {
		target = target[:hash]
	}

	if query := bytes.IndexByte(target, '?'); query != -1 {
		p.request.Query = string(target[query+1:])
		target = target[:query]
	}

	path, err := uriDecode(stripAuthority(target), nil)
	if err != nil {
		return err
	}

	p.request.Path = string(path)

	return nil
}

func (p *Parser) parseHeader(line []byte) error {
	if line[0] == ' ' || line[0] == '\t' {
		// obsolete line folding
		return status.ErrBadRequest
	}

	colon := bytes.IndexByte(line, ':')
	if colon <= 0 || isOWS(line[colon-1]) {
		return status.ErrBadRequest
	}

	if p.headersNumber++; p.headersNumber > p.cfg.MaxNumber {
		return status.ErrTooManyHeaders
	}

	key := string(line[:colon])
	value := strings.Trim(uf.B2S(line[colon+1:]), " \t")
	p.request.Headers.Add(key, strings.Clone(value))
	value = p.request.Headers[len(p.request.Headers)-1].Value

	switch {
	case strcomp.EqualFold(key, "content-length"):
		length, ok := parseContentLength(value)
		if !ok || (p.request.ContentLength != -1 && p.request.ContentLength != length) {
			return status.ErrBadContentLength
		}

		p.request.ContentLength = length
	case strcomp.EqualFold(key, "transfer-encoding"):
		return p.parseTransferEncoding(value)
	case strcomp.EqualFold(key, "connection"):
		for _, token := range strings.Split(value, ",") {
			switch token = strings.TrimSpace(token); {
			case strcomp.EqualFold(token, "close"):
				p.request.ConnectionClose = true
			case strcomp.EqualFold(token, "keep-alive"):
				p.request.ConnectionKeepAlive = true
			}
		}
	case strcomp.EqualFold(key, "expect"):
		p.request.Continue = strcomp.EqualFold(value, "100-continue")
	case strcomp.EqualFold(key, "trailer"):
		p.request.HasTrailer = true
	}

	return nil
}

func (p *Parser) parseTransferEncoding(value string) error {
	for _, token := range strings.Split(value, ",") {
		switch token = strings.TrimSpace(token); {
		case len(token) == 0:
		case strcomp.EqualFold(token, "chunked"):
			if p.request.Chunked {
				return status.ErrBadRequest
			}

			p.request.Chunked = true
		default:
			// the only coding which is able to frame the message is chunked, everything
			// else would require decoding a body nobody needs.
			return status.ErrUnsupportedEncoding
		}
	}

	return nil
}

func (p *Parser) validate() error {
	if p.request.Chunked && p.request.ContentLength != -1 {
		// both framings at once is the classic request smuggling vector
		return status.ErrBadRequest
	}

	return nil
}

func parseContentLength(value string) (length int64, ok bool) {
	if len(value) == 0 {
		return 0, false
	}

	for i := 0; i < len(value); i++ {
		char := value[i]
		if char < '0' || char > '9' {
			return 0, false
		}

		if length > (math.MaxInt64-int64(char-'0'))/10 {
			return 0, false
		}

		length = length*10 + int64(char-'0')
	}

	return length, true
}

// stripAuthority turns an absolute-form target into the origin-form one.
func stripAuthority(target []byte) []byte {
	for _, scheme := range [...]string{"http://", "https://"} {
		if len(target) >= len(scheme) && strcomp.EqualFold(uf.B2S(target[:len(scheme)]), scheme) {
			rest := target[len(scheme):]
			if slash := bytes.IndexByte(rest, '/'); slash != -1 {
				return rest[slash:]
			}

			return []byte("/")
		}
	}

	return target
}

func uriDecode(src, buff []byte) ([]byte, error) {
	for {
		separator := bytes.IndexByte(src, '%')
		if separator == -1 {
			if len(buff) == 0 {
				return src, nil
			}

			return append(buff, src...), nil
		}

		if len(src[separator+1:]) < 2 || !ishex(src[separator+1]) || !ishex(src[separator+2]) {
			return nil, status.ErrURIDecoding
		}

		buff = append(buff, src[:separator]...)
		buff = append(buff, (unhex(src[separator+1])<<4)|unhex(src[separator+2]))
		src = src[separator+3:]
	}
}

func ishex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func isToken(b []byte) bool {
	for _, c := range b {
		if c <= ' ' || c >= 0x7f || strings.IndexByte(`"(),/:;<=>?@[\]{}`, c) != -1 {
			return false
		}
	}

	return len(b) > 0
}

func isOWS(c byte) bool {
	return c == ' ' || c == '\t'
}

func stripCR(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\r' {
		return b[:len(b)-1]
	}

	return b
}
