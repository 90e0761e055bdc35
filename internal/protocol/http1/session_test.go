package http1

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dchest/uniuri"
	"github.com/indigo-web/preview/config"
	"github.com/indigo-web/preview/http/mime"
	"github.com/indigo-web/preview/internal/pathlib"
	"github.com/indigo-web/preview/internal/stream"
	"github.com/indigo-web/preview/transport/dummy"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type inlinePool struct{}

func (inlinePool) Submit(task func()) error {
	task()
	return nil
}

type refusingPool struct{}

func (refusingPool) Submit(func()) error {
	return ants.ErrPoolClosed
}

type tracker struct {
	started, finished atomic.Int32
	draining          atomic.Bool
}

func (t *tracker) ResponseStarted()  { t.started.Add(1) }
func (t *tracker) ResponseFinished() { t.finished.Add(1) }
func (t *tracker) Draining() bool    { return t.draining.Load() }

type countingFile struct {
	stream.File
	closes *atomic.Int32
}

func (c countingFile) Close() error {
	c.closes.Add(1)
	return c.File.Close()
}

type countingOpener struct {
	stream.OSOpener
	opens, closes atomic.Int32
}

func (c *countingOpener) Open(path string) (stream.File, error) {
	file, err := c.OSOpener.Open(path)
	if err != nil {
		return nil, err
	}

	c.opens.Add(1)
	return countingFile{File: file, closes: &c.closes}, nil
}

type fixture struct {
	root    string
	cfg     *config.Config
	tracker *tracker
	opener  *countingOpener
	env     *Env
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cfg := config.Default()
	f := &fixture{
		root:    root,
		cfg:     cfg,
		tracker: new(tracker),
		opener:  &countingOpener{OSOpener: stream.OSOpener{Root: root}},
	}
	f.env = &Env{
		Config:   cfg,
		Resolver: pathlib.NewResolver(root, cfg.Files.Index),
		Registry: mime.Default(),
		Pool:     inlinePool{},
		Opener:   f.opener,
		Tracker:  f.tracker,
		Log:      zerolog.Nop(),
	}

	return f
}

func (f *fixture) connect() (*dummy.Conn, *Session) {
	conn := dummy.NewConn()
	session := NewSession(f.env, conn)
	conn.Attach(session)

	return conn, session
}

func (f *fixture) requireBalanced(t *testing.T) {
	require.Equal(t, f.tracker.started.Load(), f.tracker.finished.Load())
	require.Equal(t, f.opener.opens.Load(), f.opener.closes.Load())
}

func TestSessionServesFiles(t *testing.T) {
	t.Run("index", func(t *testing.T) {
		f := newFixture(t, map[string]string{"index.html": "<h1>hi</h1>"})
		conn, session := f.connect()
		conn.Feed("GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")
		conn.Flush()

		require.Equal(t,
			"HTTP/1.1 200 OK\r\nContent-Length: 11\r\nContent-Type: text/html\r\n\r\n<h1>hi</h1>",
			conn.Output(),
		)
		require.False(t, conn.Closed())
		require.Equal(t, Idle, session.State())
		require.Equal(t, int32(1), f.tracker.finished.Load())
		f.requireBalanced(t)
	})

	t.Run("dotless path is a directory", func(t *testing.T) {
		f := newFixture(t, map[string]string{"docs/index.html": "docs"})
		conn, _ := f.connect()
		conn.Feed("GET /docs HTTP/1.1\r\n\r\n")
		conn.Flush()

		require.True(t, strings.HasSuffix(conn.Output(), "\r\n\r\ndocs"))
	})

	t.Run("multiple chunks", func(t *testing.T) {
		content := uniuri.NewLen(1000)
		f := newFixture(t, map[string]string{"big.css": content})
		f.cfg.Files.ChunkSize = 64
		conn, _ := f.connect()
		conn.Feed("GET /big.css HTTP/1.1\r\n\r\n")
		conn.Flush()

		require.Equal(t,
			"HTTP/1.1 200 OK\r\nContent-Length: 1000\r\nContent-Type: text/css\r\n\r\n"+content,
			conn.Output(),
		)
		f.requireBalanced(t)
	})

	t.Run("empty file", func(t *testing.T) {
		f := newFixture(t, map[string]string{"empty.html": ""})
		conn, _ := f.connect()
		conn.Feed("GET /empty.html HTTP/1.1\r\n\r\n")
		conn.Flush()

		require.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\nContent-Type: text/html\r\n\r\n", conn.Output())
		f.requireBalanced(t)
	})

	t.Run("HEAD", func(t *testing.T) {
		f := newFixture(t, map[string]string{"a.html": "hello"})
		conn, _ := f.connect()
		conn.Feed("HEAD /a.html HTTP/1.1\r\n\r\n")
		conn.Flush()

		require.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\nContent-Type: text/html\r\n\r\n", conn.Output())
		f.requireBalanced(t)
	})

	t.Run("unknown extension", func(t *testing.T) {
		f := newFixture(t, map[string]string{"blob.qwerty": "x"})
		conn, _ := f.connect()
		conn.Feed("GET /blob.qwerty HTTP/1.1\r\n\r\n")
		conn.Flush()

		require.Contains(t, conn.Output(), "Content-Type: application/octet-stream\r\n")
	})

	t.Run("percent-encoded name", func(t *testing.T) {
		f := newFixture(t, map[string]string{"my page.html": "spaced"})
		conn, _ := f.connect()
		conn.Feed("GET /my%20page.html HTTP/1.1\r\n\r\n")
		conn.Flush()

		require.True(t, strings.HasSuffix(conn.Output(), "spaced"))
	})
}

func TestSessionErrors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		f := newFixture(t, nil)
		conn, _ := f.connect()
		conn.Feed("GET /missing.html HTTP/1.1\r\n\r\n")
		conn.Flush()

		require.Equal(t,
			"HTTP/1.1 404 Not Found\r\nContent-Length: 24\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nnot found: /missing.html",
			conn.Output(),
		)
		require.False(t, conn.Closed())
		f.requireBalanced(t)
	})

	t.Run("path traversal", func(t *testing.T) {
		f := newFixture(t, nil)
		conn, _ := f.connect()
		conn.Feed("GET /../etc/passwd HTTP/1.1\r\n\r\n")
		conn.Flush()

		require.True(t, strings.HasPrefix(conn.Output(), "HTTP/1.1 403 Forbidden\r\n"))
		require.True(t, strings.HasSuffix(conn.Output(), "forbidden: /../etc/passwd"))
		require.Zero(t, f.opener.opens.Load())
		f.requireBalanced(t)
	})

	t.Run("dots in query or fragment", func(t *testing.T) {
		for _, target := range []string{"/index.html?v=1..2", "/index.html#..", "/?next=../../etc/passwd"} {
			f := newFixture(t, map[string]string{"index.html": "x"})
			conn, _ := f.connect()
			conn.Feed("GET " + target + " HTTP/1.1\r\n\r\n")
			conn.Flush()

			require.True(t, strings.HasPrefix(conn.Output(), "HTTP/1.1 403 Forbidden\r\n"), target)
			require.True(t, strings.HasSuffix(conn.Output(), "forbidden: "+target), target)
			require.Zero(t, f.opener.opens.Load())
			f.requireBalanced(t)
		}
	})

	t.Run("directory with a dot", func(t *testing.T) {
		f := newFixture(t, map[string]string{"v1.2/index.html": "x"})
		conn, _ := f.connect()
		conn.Feed("GET /v1.2 HTTP/1.1\r\n\r\n")
		conn.Flush()

		require.True(t, strings.HasPrefix(conn.Output(), "HTTP/1.1 404 Not Found\r\n"))
		require.Contains(t, conn.Output(), "cannot read /v1.2: is a directory")
		f.requireBalanced(t)
	})

	t.Run("HEAD of a missing file", func(t *testing.T) {
		f := newFixture(t, nil)
		conn, _ := f.connect()
		conn.Feed("HEAD /missing.html HTTP/1.1\r\n\r\n")
		conn.Flush()

		require.Equal(t,
			"HTTP/1.1 404 Not Found\r\nContent-Length: 24\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
			conn.Output(),
		)
	})

	t.Run("pool refuses", func(t *testing.T) {
		f := newFixture(t, map[string]string{"index.html": "x"})
		f.env.Pool = refusingPool{}
		conn, _ := f.connect()
		conn.Feed("GET / HTTP/1.1\r\n\r\n")
		conn.Flush()

		require.True(t, strings.HasPrefix(conn.Output(), "HTTP/1.1 500 Internal Server Error\r\n"))
		require.Contains(t, conn.Output(), "internal error: worker pool: ")
		f.requireBalanced(t)
	})

	t.Run("queue closed", func(t *testing.T) {
		f := newFixture(t, map[string]string{"index.html": "x"})
		queue := stream.NewQueue(inlinePool{}, 1)
		queue.Close()
		f.env.Pool = queue
		conn, _ := f.connect()
		conn.Feed("GET / HTTP/1.1\r\n\r\n")
		conn.Flush()

		require.True(t, strings.HasPrefix(conn.Output(), "HTTP/1.1 500 Internal Server Error\r\n"))
		require.True(t, strings.HasSuffix(conn.Output(), "internal error: worker pool: file task queue is closed"))
		require.False(t, conn.Closed())
		f.requireBalanced(t)
	})

	t.Run("malformed request", func(t *testing.T) {
		f := newFixture(t, nil)
		conn, _ := f.connect()
		conn.Feed("GET / HTTP/1.1\r\nbroken header\r\n\r\n")
		conn.Flush()

		require.True(t, strings.HasPrefix(conn.Output(), "HTTP/1.1 400 Bad Request\r\n"))
		require.Contains(t, conn.Output(), "Connection: close\r\n")
		require.True(t, conn.Closed())
	})

	t.Run("unsupported version", func(t *testing.T) {
		f := newFixture(t, nil)
		conn, _ := f.connect()
		conn.Feed("GET / HTTP/3.0\r\n\r\n")
		conn.Flush()

		require.True(t, strings.HasPrefix(conn.Output(), "HTTP/1.1 505 HTTP Version Not Supported\r\n"))
		require.True(t, conn.Closed())
	})

	t.Run("body too large", func(t *testing.T) {
		f := newFixture(t, nil)
		f.cfg.Body.MaxDrain = 10
		conn, _ := f.connect()
		conn.Feed("POST / HTTP/1.1\r\nContent-Length: 11\r\n\r\n")
		conn.Flush()

		require.True(t, strings.HasPrefix(conn.Output(), "HTTP/1.1 413 Request Entity Too Large\r\n"))
		require.True(t, conn.Closed())
	})
}

func TestSessionConnection(t *testing.T) {
	files := map[string]string{"a.html": "A", "b.html": "B"}

	t.Run("pipelining", func(t *testing.T) {
		f := newFixture(t, files)
		conn, session := f.connect()
		conn.Feed("GET /a.html HTTP/1.1\r\n\r\nGET /b.html HTTP/1.1\r\n\r\n")

		// the second request is held until the first response is done
		require.Equal(t, SendingResponse, session.State())
		require.NotZero(t, conn.Buffered())

		conn.Flush()
		require.Zero(t, conn.Buffered())
		require.Equal(t,
			"HTTP/1.1 200 OK\r\nContent-Length: 1\r\nContent-Type: text/html\r\n\r\nA"+
				"HTTP/1.1 200 OK\r\nContent-Length: 1\r\nContent-Type: text/html\r\n\r\nB",
			conn.Output(),
		)
		require.Equal(t, int32(2), f.tracker.finished.Load())
		f.requireBalanced(t)
	})

	t.Run("HTTP/1.0", func(t *testing.T) {
		f := newFixture(t, files)
		conn, _ := f.connect()
		conn.Feed("GET /a.html HTTP/1.0\r\n\r\n")
		conn.Flush()

		require.Equal(t, "HTTP/1.0 200 OK\r\nContent-Length: 1\r\nContent-Type: text/html\r\n\r\nA", conn.Output())
		require.True(t, conn.Closed())
	})

	t.Run("HTTP/1.0 keep-alive", func(t *testing.T) {
		f := newFixture(t, files)
		conn, _ := f.connect()
		conn.Feed("GET /a.html HTTP/1.0\r\nConnection: keep-alive\r\n\r\n")
		conn.Flush()

		require.Contains(t, conn.Output(), "Connection: keep-alive\r\n")
		require.False(t, conn.Closed())
	})

	t.Run("HTTP/1.1 close", func(t *testing.T) {
		f := newFixture(t, files)
		conn, _ := f.connect()
		conn.Feed("GET /a.html HTTP/1.1\r\nConnection: close\r\n\r\nGET /b.html HTTP/1.1\r\n\r\n")
		conn.Flush()

		require.Equal(t, 1, strings.Count(conn.Output(), "HTTP/1.1 200 OK"))
		require.Contains(t, conn.Output(), "Connection: close\r\n")
		require.True(t, conn.Closed())
	})

	t.Run("draining", func(t *testing.T) {
		f := newFixture(t, files)
		f.tracker.draining.Store(true)
		conn, _ := f.connect()
		conn.Feed("GET /a.html HTTP/1.1\r\n\r\n")
		conn.Flush()

		require.Contains(t, conn.Output(), "Connection: close\r\n")
		require.True(t, conn.Closed())
	})

	t.Run("body is drained", func(t *testing.T) {
		f := newFixture(t, files)
		conn, _ := f.connect()
		conn.Feed("POST /a.html HTTP/1.1\r\nContent-Length: 5\r\n\r\nhel")
		conn.Feed("loGET /b.html HTTP/1.1\r\n\r\n")
		conn.Flush()

		require.True(t, strings.HasSuffix(conn.Output(), "\r\n\r\nB"))
		require.Equal(t, 2, strings.Count(conn.Output(), "200 OK"))
	})

	t.Run("chunked body is drained", func(t *testing.T) {
		f := newFixture(t, files)
		conn, _ := f.connect()
		conn.Feed("POST /a.html HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nabc\r\n0\r\n\r\n")
		conn.Flush()

		require.True(t, strings.HasSuffix(conn.Output(), "\r\n\r\nA"))
		require.False(t, conn.Closed())
	})

	t.Run("100-continue", func(t *testing.T) {
		f := newFixture(t, files)
		conn, _ := f.connect()
		conn.Feed("PUT /a.html HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 2\r\n\r\n")
		require.Equal(t, "HTTP/1.1 100 Continue\r\n\r\n", conn.Output())

		conn.Feed("ok")
		conn.Flush()
		require.True(t, strings.HasPrefix(conn.Output(), "HTTP/1.1 100 Continue\r\n\r\nHTTP/1.1 200 OK\r\n"))
	})

	t.Run("half-close while idle", func(t *testing.T) {
		f := newFixture(t, files)
		conn, _ := f.connect()
		conn.HalfClose()
		conn.Flush()

		require.True(t, conn.Closed())
		require.Empty(t, conn.Output())
	})

	t.Run("half-close while sending", func(t *testing.T) {
		f := newFixture(t, files)
		conn, session := f.connect()
		conn.Feed("GET /a.html HTTP/1.1\r\n\r\n")
		require.Equal(t, SendingResponse, session.State())

		conn.HalfClose()
		require.False(t, conn.Closed())

		conn.Flush()
		require.True(t, strings.HasSuffix(conn.Output(), "\r\n\r\nA"))
		require.True(t, conn.Closed())
		f.requireBalanced(t)
	})

	t.Run("closed mid-response", func(t *testing.T) {
		f := newFixture(t, map[string]string{"big.html": uniuri.NewLen(4096)})
		f.cfg.Files.ChunkSize = 128
		conn, _ := f.connect()
		conn.Feed("GET /big.html HTTP/1.1\r\n\r\n")
		require.NoError(t, conn.Close())
		conn.Flush()

		require.Empty(t, conn.Output())
		require.Equal(t, int32(1), f.opener.opens.Load())
		f.requireBalanced(t)
	})
}

func TestSessionOnAnts(t *testing.T) {
	pool, err := ants.NewPool(4)
	require.NoError(t, err)
	defer pool.Release()

	content := uniuri.NewLen(10_000)
	f := newFixture(t, map[string]string{"index.html": content})
	queue := stream.NewQueue(pool, f.cfg.Files.Queue)
	defer queue.Close()
	f.env.Pool = queue
	f.cfg.Files.ChunkSize = 1000
	conn, _ := f.connect()
	conn.Feed("GET / HTTP/1.1\r\n\r\nGET /index.html HTTP/1.1\r\n\r\n")

	require.True(t, conn.Run(5*time.Second, func() bool {
		return f.tracker.finished.Load() == 2
	}))

	head := "HTTP/1.1 200 OK\r\nContent-Length: 10000\r\nContent-Type: text/html\r\n\r\n"
	require.Equal(t, head+content+head+content, conn.Output())
	require.True(t, conn.Run(5*time.Second, func() bool {
		return f.opener.closes.Load() == 2
	}))
}
