package transport

import "net"

// Conn is an accepted connection as seen by its Session. Peek, Discard, Write and
// Close may be called only from the connection's own event context: while inside
// a Session callback, or inside a function passed to Wake or AsyncWrite. The rest
// is safe to call from any goroutine.
type Conn interface {
	// Peek returns all the buffered inbound bytes. They stay buffered until
	// discarded and are valid until the next Discard or until the current
	// callback returns.
	Peek() []byte
	Discard(n int)
	// Write sends the data, which is free for reuse once Write returns.
	Write(b []byte) error
	// AsyncWrite sends the data from the connection's event context and calls done
	// there afterwards. b must stay untouched until then. If the connection is
	// already gone, done may never be called.
	AsyncWrite(b []byte, done func(err error)) error
	// Wake runs fn in the connection's event context. fn is silently dropped if the
	// connection closes in between.
	Wake(fn func()) error
	Close() error
	RemoteAddr() net.Addr
}

// Session drives the protocol of a single connection. All the callbacks are
// invoked from the connection's event context.
type Session interface {
	// OnTraffic is called when new inbound bytes are available.
	OnTraffic()
	// OnHalfClose is called when the peer won't send anything anymore, but the
	// connection is still writable.
	OnHalfClose()
	// OnClose is called exactly once, after the connection was closed for any reason.
	OnClose(err error)
}

// Spawner attaches a new Session to every accepted connection.
type Spawner func(conn Conn) Session

type Transport interface {
	// Bind prepares the listening address. A transport may report bind failures
	// either here or from Listen.
	Bind(addr string) error
	// Addr returns the address Bind actually bound, with the port resolved.
	Addr() string
	// Listen accepts connections until the transport is closed. ready is called
	// once the transport actually accepts.
	Listen(spawn Spawner, ready func()) error
	// Stop stops accepting new connections, leaving the open ones untouched.
	Stop()
	// Close closes every connection and makes Listen return.
	Close()
	// Wait blocks until Listen returned and all the connections are done.
	Wait()
}
