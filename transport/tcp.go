package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/indigo-web/preview/config"
	"github.com/indigo-web/preview/internal/timer"
)

// TCP serves every connection by its own goroutine, which plays the role of the
// connection's event context. Unlike EventLoop, it reports the peer's EOF as a
// half-close.
type TCP struct {
	cfg     config.NET
	l       *net.TCPListener
	wg      sync.WaitGroup
	stop    atomic.Bool
	mu      sync.Mutex
	conns   map[*tcpConn]struct{}
	closing bool
}

var _ Transport = new(TCP)

func NewTCP(cfg config.NET) *TCP {
	return &TCP{
		cfg:   cfg,
		conns: make(map[*tcpConn]struct{}),
	}
}

func (t *TCP) Bind(addr string) error {
	tcpaddr, err := net.ResolveTCPAddr(t.cfg.Network, addr)
	if err != nil {
		return err
	}

	t.l, err = net.ListenTCP(t.cfg.Network, tcpaddr)
	return err
}

func (t *TCP) Addr() string {
	return t.l.Addr().String()
}

func (t *TCP) Listen(spawn Spawner, ready func()) error {
	t.wg.Add(1)
	defer t.wg.Done()

	ready()

	for !t.stop.Load() {
		err := t.l.SetDeadline(timer.Now().Add(t.cfg.AcceptLoopInterruptPeriod))
		if err != nil {
			if t.stop.Load() {
				return nil
			}

			return err
		}

		conn, err := t.l.AcceptTCP()
		if err != nil {
			switch {
			case errors.Is(err, os.ErrDeadlineExceeded):
				continue
			case t.stop.Load(), errors.Is(err, net.ErrClosed):
				return nil
			default:
				return err
			}
		}

		if t.stop.Load() {
			_ = conn.Close()
			return nil
		}

		t.serve(conn, spawn)
	}

	return nil
}

func (t *TCP) serve(conn *net.TCPConn, spawn Spawner) {
	_ = conn.SetNoDelay(true)
	c := newTCPConn(conn, t.cfg.MaxPipelineBuffer)

	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}

	t.conns[c] = struct{}{}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()

		c.run(spawn(c), make([]byte, t.cfg.ReadBufferSize))

		t.mu.Lock()
		delete(t.conns, c)
		t.mu.Unlock()
	}()
}

// Stop makes the accept loop return within NET.AcceptLoopInterruptPeriod.
func (t *TCP) Stop() {
	t.stop.Store(true)
}

func (t *TCP) Close() {
	t.Stop()
	if t.l != nil {
		_ = t.l.Close()
	}

	t.mu.Lock()
	t.closing = true
	for conn := range t.conns {
		_ = conn.Close()
	}
	t.mu.Unlock()
}

func (t *TCP) Wait() {
	t.wg.Wait()
}

type readResult struct {
	n   int
	err error
}

// tcpConn implements Conn over a blocking socket. A reader goroutine hands the
// read bytes over to the owner goroutine, then waits to be resumed, so the
// inbound buffer stays bounded while a response is in flight.
type tcpConn struct {
	conn        *net.TCPConn
	session     Session
	maxInbound  int
	inbound     []byte
	reads       chan readResult
	resume      chan struct{}
	done        chan struct{}
	notify      chan struct{}
	mu          sync.Mutex
	tasks       []func()
	closed      bool
	closeReason error
}

func newTCPConn(conn *net.TCPConn, maxInbound int) *tcpConn {
	return &tcpConn{
		conn:       conn,
		maxInbound: maxInbound,
		reads:      make(chan readResult),
		resume:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		notify:     make(chan struct{}, 1),
	}
}

func (c *tcpConn) run(session Session, buff []byte) {
	c.session = session
	go c.read(buff)

	reading, paused := true, false

	for !c.isClosed() {
		select {
		case r := <-c.reads:
			c.inbound = append(c.inbound, buff[:r.n]...)

			switch {
			case r.err == nil:
				if len(c.inbound) < c.maxInbound {
					c.resume <- struct{}{}
				} else {
					paused = true
				}

				c.session.OnTraffic()
			case errors.Is(r.err, io.EOF):
				reading = false
				if r.n > 0 {
					c.session.OnTraffic()
				}

				if !c.isClosed() {
					c.session.OnHalfClose()
				}
			default:
				reading = false
				c.closeReason = r.err
				_ = c.Close()
			}
		case <-c.notify:
			c.runTasks()
		}

		if reading && paused && len(c.inbound) < c.maxInbound {
			paused = false
			c.resume <- struct{}{}
		}
	}

	close(c.done)
	c.session.OnClose(c.closeReason)
}

func (c *tcpConn) read(buff []byte) {
	for {
		n, err := c.conn.Read(buff)
		select {
		case c.reads <- readResult{n: n, err: err}:
		case <-c.done:
			return
		}

		if err != nil {
			return
		}

		select {
		case <-c.resume:
		case <-c.done:
			return
		}
	}
}

func (c *tcpConn) runTasks() {
	c.mu.Lock()
	tasks := c.tasks
	c.tasks = nil
	c.mu.Unlock()

	for _, task := range tasks {
		if c.isClosed() {
			return
		}

		task()
	}
}

func (c *tcpConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func (c *tcpConn) enqueue(task func()) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return net.ErrClosed
	}

	c.tasks = append(c.tasks, task)
	c.mu.Unlock()
	c.wakeup()

	return nil
}

func (c *tcpConn) wakeup() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *tcpConn) Peek() []byte {
	return c.inbound
}

func (c *tcpConn) Discard(n int) {
	if n >= len(c.inbound) {
		c.inbound = c.inbound[:0]
		return
	}

	c.inbound = c.inbound[n:]
}

func (c *tcpConn) Write(b []byte) error {
	_, err := c.conn.Write(b)
	return err
}

func (c *tcpConn) AsyncWrite(b []byte, done func(err error)) error {
	return c.enqueue(func() {
		done(c.Write(b))
	})
}

func (c *tcpConn) Wake(fn func()) error {
	return c.enqueue(fn)
}

func (c *tcpConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return net.ErrClosed
	}

	c.closed = true
	c.tasks = nil
	c.mu.Unlock()
	c.wakeup()

	return c.conn.Close()
}

func (c *tcpConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
