// Package preview is a local preview server for generated static sites. It
// serves files from a directory over HTTP/1.x on the loopback interface.
package preview

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/indigo-web/preview/config"
	"github.com/indigo-web/preview/http/mime"
	"github.com/indigo-web/preview/internal/logging"
	"github.com/indigo-web/preview/internal/pathlib"
	"github.com/indigo-web/preview/internal/protocol/http1"
	"github.com/indigo-web/preview/internal/stream"
	"github.com/indigo-web/preview/transport"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
)

// App serves a single directory. It can be started only once.
type App struct {
	cfg     *config.Config
	log     zerolog.Logger
	hooks   hooks
	tracker *inflight

	mu        sync.Mutex
	transport transport.Transport
	pool      *ants.Pool
	queue     *stream.Queue
	addr      string
	stopped   chan struct{}
	listenErr error
	shutdown  bool
}

type hooks struct {
	OnStart, OnStop func()
}

// New returns a new App instance. A nil config means the defaults.
func New(cfg *config.Config, log zerolog.Logger) *App {
	if cfg == nil {
		cfg = config.Default()
	}

	return &App{
		cfg:     cfg,
		log:     log,
		tracker: new(inflight),
	}
}

// NotifyOnStart calls the callback at the moment, when the server is accepting
// connections.
func (a *App) NotifyOnStart(cb func()) *App {
	a.hooks.OnStart = cb
	return a
}

// NotifyOnStop calls the callback at the moment, when the server is down. It's
// guaranteed, that at the moment as the callback is called, the server isn't able
// to accept any new connections and all the clients are already disconnected.
func (a *App) NotifyOnStop(cb func()) *App {
	a.hooks.OnStop = cb
	return a
}

// Start binds the loopback address at the port and serves the root directory.
// It returns as soon as the server accepts connections. Port 0 picks a free one,
// see Addr.
func (a *App) Start(port uint16, root string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.transport != nil || a.shutdown {
		return ErrAlreadyStarted
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrOutputDirNotFound, root)
	}

	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrOutputDirNotFound, root)
	}

	registry, err := a.registry()
	if err != nil {
		return err
	}

	pool, err := ants.NewPool(
		a.cfg.Files.Workers,
		ants.WithPanicHandler(func(p any) {
			a.log.Error().Interface("panic", p).Msg("file worker panicked")
		}),
		ants.WithLogger(logging.Printf{Log: a.log, Level: zerolog.WarnLevel}),
	)
	if err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}

	tr := a.newTransport()
	addr := net.JoinHostPort(a.cfg.NET.Host, strconv.Itoa(int(port)))
	if err = tr.Bind(addr); err != nil {
		pool.Release()
		return &BindError{Addr: addr, Err: err}
	}

	queue := stream.NewQueue(pool, a.cfg.Files.Queue)
	env := &http1.Env{
		Config:   a.cfg,
		Resolver: pathlib.NewResolver(root, a.cfg.Files.Index),
		Registry: registry,
		Pool:     queue,
		Opener:   stream.OSOpener{Root: root, Confine: a.cfg.Files.ConfineSymlinks},
		Tracker:  a.tracker,
		Log:      a.log,
	}
	spawn := func(conn transport.Conn) transport.Session {
		return http1.NewSession(env, conn)
	}

	ready, stopped := make(chan struct{}), make(chan struct{})
	go func() {
		a.listenErr = tr.Listen(spawn, func() { close(ready) })
		close(stopped)
	}()

	select {
	case <-ready:
	case <-stopped:
		queue.Close()
		pool.Release()
		return &BindError{Addr: addr, Err: a.listenErr}
	}

	a.transport, a.pool, a.queue, a.stopped = tr, pool, queue, stopped
	a.addr = tr.Addr()
	a.log.Info().
		Str("addr", a.addr).
		Str("root", root).
		Str("engine", a.cfg.NET.Engine).
		Int("loops", a.cfg.NET.EventLoops).
		Int("workers", a.cfg.Files.Workers).
		Int("queue", a.cfg.Files.Queue).
		Int("mime_types", registry.Len()).
		Msg("server listening")
	callIfNotNil(a.hooks.OnStart)

	return nil
}

func (a *App) registry() (mime.Registry, error) {
	registry := mime.Default()
	if len(a.cfg.Files.MIMEOverrides) == 0 {
		return registry, nil
	}

	overrides, err := mime.LoadOverrides(a.cfg.Files.MIMEOverrides)
	if err != nil {
		return registry, fmt.Errorf("mime overrides: %w", err)
	}

	return registry.With(overrides), nil
}

func (a *App) newTransport() transport.Transport {
	switch a.cfg.NET.Engine {
	case config.EngineEventLoop:
		return transport.NewEventLoop(a.cfg.NET, logging.Gnet{
			Log: a.log.With().Str("component", "gnet").Logger(),
		})
	default:
		return transport.NewTCP(a.cfg.NET)
	}
}

// Addr returns the address the server listens at, or an empty string if it
// isn't started.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.addr
}

// URL returns the address as a http URL.
func (a *App) URL() string {
	return "http://" + a.Addr()
}

// Wait blocks until the server is shut down.
func (a *App) Wait() error {
	a.mu.Lock()
	tr, stopped := a.transport, a.stopped
	a.mu.Unlock()

	if stopped == nil {
		return ErrNotStarted
	}

	<-stopped
	tr.Wait()

	return a.listenErr
}

// Shutdown stops accepting connections and waits for the responses in flight,
// but no longer than the configured shutdown timeout or the ctx deadline,
// whichever comes first. The connections are closed and the worker pool is
// released in any case.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	tr, queue, pool, already := a.transport, a.queue, a.pool, a.shutdown
	a.shutdown = tr != nil
	a.mu.Unlock()

	switch {
	case tr == nil:
		return ErrNotStarted
	case already:
		tr.Wait()
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Shutdown.Timeout)
	defer cancel()

	a.log.Info().Int("in_flight", a.tracker.Len()).Msg("shutting down")
	tr.Stop()

	drainErr := a.tracker.Drain(ctx)
	if drainErr != nil {
		a.log.Warn().Int("in_flight", a.tracker.Len()).Msg("shutdown timeout exceeded, dropping responses")
	}

	tr.Close()
	tr.Wait()
	<-a.stopped
	queue.Close()

	if err := pool.ReleaseTimeout(releaseBudget(ctx)); err != nil {
		a.log.Warn().Err(err).Msg("file workers didn't stop in time")
	}

	a.log.Info().Msg("server stopped")
	callIfNotNil(a.hooks.OnStop)

	if drainErr != nil {
		return fmt.Errorf("shutdown: %w", drainErr)
	}

	if a.listenErr != nil && !errors.Is(a.listenErr, net.ErrClosed) {
		return a.listenErr
	}

	return nil
}

// releaseBudget returns the time left before the ctx deadline. The workers get at
// least a moment even if the deadline is already exceeded, as the files they hold
// must be closed anyway.
func releaseBudget(ctx context.Context) time.Duration {
	const minimal = 100 * time.Millisecond

	deadline, ok := ctx.Deadline()
	if !ok {
		return minimal
	}

	return max(time.Until(deadline), minimal)
}

func callIfNotNil(f func()) {
	if f != nil {
		f()
	}
}
