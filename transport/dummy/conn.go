package dummy

import (
	"net"
	"sync"
	"time"

	"github.com/indigo-web/preview/transport"
)

type task struct {
	fn func()
	// final tasks are run even after the connection was closed
	final bool
}

// Conn is an in-memory transport.Conn. The test goroutine plays the role of the
// event loop: it feeds inbound data and runs the queued tasks via Run.
type Conn struct {
	session  transport.Session
	inbound  []byte
	written  []byte
	mu       sync.Mutex
	queue    []task
	notify   chan struct{}
	closed   bool
	// WriteErr, if set, fails every following write.
	WriteErr error
}

func NewConn() *Conn {
	return &Conn{notify: make(chan struct{}, 1)}
}

// Attach binds the session to the connection.
func (c *Conn) Attach(session transport.Session) *Conn {
	c.session = session
	return c
}

// Feed appends inbound data and notifies the session as a transport would.
func (c *Conn) Feed(data string) {
	c.inbound = append(c.inbound, data...)
	c.session.OnTraffic()
}

// HalfClose notifies the session that the peer won't send anything anymore.
func (c *Conn) HalfClose() {
	c.session.OnHalfClose()
}

// Run executes queued tasks until cond returns true. It reports false if that
// didn't happen within the timeout.
func (c *Conn) Run(timeout time.Duration, cond func() bool) bool {
	deadline := time.After(timeout)
	poll := time.NewTicker(time.Millisecond)
	defer poll.Stop()

	for !cond() {
		c.mu.Lock()
		queue := c.queue
		c.queue = nil
		c.mu.Unlock()

		if len(queue) == 0 {
			select {
			case <-c.notify:
				continue
			case <-poll.C:
				// cond may depend on things happening outside of the queue
				continue
			case <-deadline:
				return false
			}
		}

		for _, t := range queue {
			if c.Closed() && !t.final {
				continue
			}

			t.fn()
		}
	}

	return true
}

// Flush runs queued tasks until none are left. It doesn't wait for tasks which
// might be scheduled from other goroutines later.
func (c *Conn) Flush() {
	for {
		c.mu.Lock()
		queue := c.queue
		c.queue = nil
		c.mu.Unlock()

		if len(queue) == 0 {
			return
		}

		for _, t := range queue {
			if c.Closed() && !t.final {
				continue
			}

			t.fn()
		}
	}
}

// Output returns everything written so far.
func (c *Conn) Output() string {
	return string(c.written)
}

// Buffered returns the inbound bytes not yet discarded by the session.
func (c *Conn) Buffered() int {
	return len(c.inbound)
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func (c *Conn) Peek() []byte {
	return c.inbound
}

func (c *Conn) Discard(n int) {
	c.inbound = c.inbound[n:]
}

func (c *Conn) Write(b []byte) error {
	if c.Closed() {
		return net.ErrClosed
	}

	if c.WriteErr != nil {
		return c.WriteErr
	}

	c.written = append(c.written, b...)
	return nil
}

func (c *Conn) AsyncWrite(b []byte, done func(err error)) error {
	return c.Wake(func() {
		done(c.Write(b))
	})
}

func (c *Conn) Wake(fn func()) error {
	return c.enqueue(task{fn: fn}, false)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return net.ErrClosed
	}

	c.closed = true
	c.mu.Unlock()

	return c.enqueue(task{fn: func() { c.session.OnClose(nil) }, final: true}, true)
}

func (c *Conn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv6loopback, Port: 54321}
}

func (c *Conn) enqueue(t task, force bool) error {
	c.mu.Lock()
	if c.closed && !force {
		c.mu.Unlock()
		return net.ErrClosed
	}

	c.queue = append(c.queue, t)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}

	return nil
}
