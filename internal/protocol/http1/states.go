package http1

type parserState uint8

const (
	eRequestLine parserState = iota + 1
	eHeaderLine
)
