package transport

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/indigo-web/preview/config"
	"github.com/panjf2000/gnet/v2"
	"github.com/panjf2000/gnet/v2/pkg/logging"
)

// EventLoop multiplexes connections over a fixed number of gnet event loops.
// gnet closes the connection as soon as the peer's EOF is read, so a half-close
// is never reported: it aborts the response in flight instead.
type EventLoop struct {
	gnet.BuiltinEventEngine

	cfg      config.NET
	logger   logging.Logger
	addr     string
	spawn    Spawner
	ready    func()
	engine   gnet.Engine
	booted   atomic.Bool
	refusing atomic.Bool
	done     chan struct{}
}

var _ Transport = new(EventLoop)

func NewEventLoop(cfg config.NET, logger logging.Logger) *EventLoop {
	return &EventLoop{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Bind checks that the address is free. gnet binds by itself once running, so a
// failure there is reported by Listen instead.
func (e *EventLoop) Bind(addr string) error {
	l, err := net.Listen(e.cfg.Network, addr)
	if err != nil {
		return err
	}

	e.addr = l.Addr().String()
	return l.Close()
}

func (e *EventLoop) Addr() string {
	return e.addr
}

func (e *EventLoop) Listen(spawn Spawner, ready func()) error {
	defer close(e.done)

	e.spawn, e.ready = spawn, ready
	options := []gnet.Option{
		gnet.WithMulticore(true),
		gnet.WithNumEventLoop(e.cfg.EventLoops),
		gnet.WithReadBufferCap(e.cfg.ReadBufferSize),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
	}

	if e.logger != nil {
		options = append(options, gnet.WithLogger(e.logger))
	}

	return gnet.Run(e, e.cfg.Network+"://"+e.addr, options...)
}

func (e *EventLoop) Stop() {
	e.refusing.Store(true)
}

func (e *EventLoop) Close() {
	e.Stop()
	if e.booted.Load() {
		_ = e.engine.Stop(context.Background())
	}
}

func (e *EventLoop) Wait() {
	if e.booted.Load() {
		<-e.done
	}
}

func (e *EventLoop) OnBoot(eng gnet.Engine) gnet.Action {
	e.engine = eng
	e.booted.Store(true)
	e.ready()

	return gnet.None
}

func (e *EventLoop) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	if e.refusing.Load() {
		return nil, gnet.Close
	}

	conn := &loopConn{conn: c}
	conn.session = e.spawn(conn)
	c.SetContext(conn)

	return nil, gnet.None
}

func (e *EventLoop) OnTraffic(c gnet.Conn) gnet.Action {
	if conn, ok := c.Context().(*loopConn); ok {
		conn.session.OnTraffic()
		return gnet.None
	}

	return gnet.Close
}

func (e *EventLoop) OnClose(c gnet.Conn, err error) gnet.Action {
	if conn, ok := c.Context().(*loopConn); ok {
		conn.closed.Store(true)
		conn.session.OnClose(err)
	}

	return gnet.None
}

// flushPollInterval is how often a connection with unflushed outbound data is
// checked again before its AsyncWrite is reported done.
const flushPollInterval = time.Millisecond

// loopConn adapts gnet.Conn. Callbacks of AsyncWrite and Wake are run by gnet on
// the connection's event loop.
type loopConn struct {
	conn    gnet.Conn
	session Session
	closed  atomic.Bool
}

func (l *loopConn) Peek() []byte {
	b, _ := l.conn.Peek(-1)
	return b
}

func (l *loopConn) Discard(n int) {
	_, _ = l.conn.Discard(n)
}

func (l *loopConn) Write(b []byte) error {
	_, err := l.conn.Write(b)
	return err
}

func (l *loopConn) AsyncWrite(b []byte, done func(err error)) error {
	if l.closed.Load() {
		return net.ErrClosed
	}

	return l.conn.AsyncWrite(b, func(_ gnet.Conn, err error) error {
		if err != nil {
			done(err)
			return nil
		}

		l.whenFlushed(done)
		return nil
	})
}

// whenFlushed calls done once gnet's outbound buffer is empty. gnet accepts any
// amount of data and keeps what the socket didn't take, so the write isn't done
// until the buffer is flushed. Runs on the event loop.
func (l *loopConn) whenFlushed(done func(err error)) {
	if l.conn.OutboundBuffered() == 0 {
		done(nil)
		return
	}

	time.AfterFunc(flushPollInterval, func() {
		_ = l.Wake(func() { l.whenFlushed(done) })
	})
}

func (l *loopConn) Wake(fn func()) error {
	if l.closed.Load() {
		return net.ErrClosed
	}

	return l.conn.Wake(func(_ gnet.Conn, err error) error {
		if err == nil && !l.closed.Load() {
			fn()
		}

		return nil
	})
}

func (l *loopConn) Close() error {
	return l.conn.Close()
}

func (l *loopConn) RemoteAddr() net.Addr {
	return l.conn.RemoteAddr()
}
