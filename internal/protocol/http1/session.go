package http1

import (
	"errors"
	"io/fs"
	"sync"
	"time"

	"github.com/indigo-web/preview/config"
	"github.com/indigo-web/preview/http"
	"github.com/indigo-web/preview/http/mime"
	"github.com/indigo-web/preview/http/proto"
	"github.com/indigo-web/preview/http/status"
	"github.com/indigo-web/preview/internal/pathlib"
	"github.com/indigo-web/preview/internal/stream"
	"github.com/indigo-web/preview/transport"
	"github.com/rs/zerolog"
)

// Tracker counts responses in flight across all the connections and tells
// whether the server is draining them before shutting down.
type Tracker interface {
	ResponseStarted()
	ResponseFinished()
	Draining() bool
}

// Env is shared by all the sessions of a server and is never modified.
type Env struct {
	Config   *config.Config
	Resolver *pathlib.Resolver
	Registry mime.Registry
	Pool     stream.Pool
	Opener   stream.Opener
	Tracker  Tracker
	Log      zerolog.Logger
}

// Session serves static files over a single HTTP/1.x connection. Every method
// except the ones explicitly marked otherwise runs in the connection's event
// context; blocking file operations are submitted to the pool and their results
// come back via the transport.
type Session struct {
	env        *Env
	conn       transport.Conn
	log        zerolog.Logger
	machine    Machine
	parser     *Parser
	body       bodyDrainer
	request    *http.Request
	response   *http.Response
	serializer serializer
	handoff    handoff
	stream     *stream.Stream
	path       string
	started    time.Time
	sent       int64
	keepAlive  bool
	inflight   bool
	halfClosed bool
	closed     bool
	traffic    bool
}

var _ transport.Session = new(Session)

func NewSession(env *Env, conn transport.Conn) *Session {
	request := http.NewRequest()

	return &Session{
		env:        env,
		conn:       conn,
		log:        env.Log.With().Stringer("remote", conn.RemoteAddr()).Logger(),
		parser:     NewParser(request, env.Config.Headers),
		body:       newBodyDrainer(env.Config.Body.MaxDrain),
		request:    request,
		response:   http.NewResponse(),
		serializer: newSerializer(make([]byte, 0, 1024)),
	}
}

// State returns the current state of the connection.
func (s *Session) State() State {
	return s.machine.State()
}

func (s *Session) OnTraffic() {
	if s.traffic {
		return
	}

	s.traffic = true
	defer func() {
		s.traffic = false
	}()

	for !s.closed {
		data := s.conn.Peek()
		if len(data) == 0 {
			return
		}

		state := s.machine.State()
		var err error

		switch state {
		case Idle:
			err = s.onHead(data)
		case AwaitingBody:
			err = s.onBody(data)
		case SendingResponse:
			// pipelined requests wait until the current response is done
			return
		}

		if err != nil {
			s.fail(err)
			return
		}

		if s.machine.State() == state && len(s.conn.Peek()) == len(data) {
			return
		}
	}
}

func (s *Session) OnHalfClose() {
	s.halfClosed = true

	switch s.machine.State() {
	case Idle, AwaitingBody:
		s.close()
	case SendingResponse:
		// the connection is closed as soon as the response is done
	}
}

func (s *Session) OnClose(err error) {
	s.closed = true

	if st := s.handoff.close(); st != nil {
		st.Release()
	}

	if s.stream != nil {
		s.stream.Release()
		s.stream = nil
	}

	if s.inflight {
		s.inflight = false
		s.env.Tracker.ResponseFinished()
	}

	s.log.Trace().Err(err).Stringer("state", s.machine.State()).Msg("connection closed")
}

func (s *Session) onHead(data []byte) error {
	done, extra, err := s.parser.Parse(data)
	s.conn.Discard(len(data) - len(extra))
	if err != nil || !done {
		return err
	}

	if err = s.machine.Fire(RequestReceived); err != nil {
		return err
	}

	if err = s.body.Init(s.request); err != nil {
		return err
	}

	if !s.request.HasBody() {
		return s.requestComplete()
	}

	if s.request.Continue && s.request.Proto == proto.HTTP11 && len(extra) == 0 {
		return s.conn.Write([]byte(continueResponse))
	}

	return nil
}

func (s *Session) onBody(data []byte) error {
	n, done, err := s.body.Drain(data)
	s.conn.Discard(n)
	if err != nil || !done {
		return err
	}

	return s.requestComplete()
}

func (s *Session) requestComplete() error {
	if err := s.machine.Fire(RequestComplete); err != nil {
		return err
	}

	s.inflight = true
	s.env.Tracker.ResponseStarted()
	s.started = time.Now()
	s.sent = 0
	s.keepAlive = s.request.KeepAlive() && !s.env.Tracker.Draining()
	if s.request.KeepAlive() && !s.keepAlive {
		s.response.Header("Connection", "close")
	}

	if pathlib.Rejected(s.request.URI) {
		s.respondError(status.ErrPathRejected)
		return nil
	}

	path, err := s.env.Resolver.Resolve(s.request.Path)
	if err != nil {
		s.respondError(err)
		return nil
	}

	s.path = path
	stream.Open(s.env.Pool, s.env.Opener, path, s.env.Config.Files.ChunkSize, s.opened)

	return nil
}

// opened runs on a worker.
func (s *Session) opened(st *stream.Stream, err error) {
	if st != nil && !s.handoff.put(st) {
		// workers must not block on the pool they run on
		go st.Release()
		return
	}

	if werr := s.conn.Wake(func() { s.onOpen(err) }); werr != nil {
		if st = s.handoff.take(); st != nil {
			go st.Release()
		}
	}
}

func (s *Session) onOpen(err error) {
	st := s.handoff.take()
	if s.closed {
		if st != nil {
			st.Release()
		}

		return
	}

	if err != nil {
		s.respondError(err)
		return
	}

	s.stream = st
	contentType := s.env.Registry.ForPath(s.path, s.env.Config.Files.FallbackType)
	head := FileHead(s.response, s.keepAlive, s.request.Proto, st.Size(), contentType)
	if err = s.conn.Write(s.serializer.Render(s.request.Proto, head, false)); err != nil {
		s.close()
		return
	}

	s.pump()
}

// pump requests the next chunk, unless everything was already sent. A chunk is
// read only after the previous one was written.
func (s *Session) pump() {
	st := s.stream
	if st.Remaining() == 0 || s.request.IsHead() {
		s.finishStream()
		return
	}

	st.Next(func(chunk []byte, err error) {
		if err != nil {
			_ = s.conn.Wake(func() { s.chunkFailed(err) })
			return
		}

		// the connection is gone if this fails, and OnClose releases the stream
		_ = s.conn.AsyncWrite(chunk, func(err error) { s.written(len(chunk), err) })
	})
}

func (s *Session) written(n int, err error) {
	if s.closed {
		return
	}

	if err != nil {
		s.log.Debug().Err(err).Str("path", s.path).Msg("client went away mid-response")
		s.close()
		return
	}

	s.sent += int64(n)
	s.pump()
}

func (s *Session) chunkFailed(err error) {
	if s.closed {
		return
	}

	// the head is already sent, so there's no way to tell the client
	s.log.Warn().Err(err).Str("path", s.path).Int64("sent", s.sent).Msg("reading file failed")
	s.close()
}

func (s *Session) finishStream() {
	s.stream.Release()
	s.stream = nil
	s.finishResponse()
}

func (s *Session) respondError(err error) {
	code := status.CodeOf(err)
	s.response.Error(code, s.diagnostic(err))
	applyKeepAlive(s.response, s.keepAlive, s.request.Proto)

	withBody := !s.request.IsHead()
	if werr := s.conn.Write(s.serializer.Render(s.request.Proto, s.response, withBody)); werr != nil {
		s.close()
		return
	}

	if withBody {
		s.sent = s.response.ContentLength
	}

	event := s.log.Debug()
	if code == status.InternalServerError || errors.Is(err, status.ErrIOFailure) {
		event = s.log.Warn()
	}

	event.Err(err).Str("uri", s.request.URI).Msg("request failed")
	s.finishResponse()
}

func (s *Session) diagnostic(err error) string {
	cause := err
	var fileErr *stream.Error
	if errors.As(err, &fileErr) {
		cause = fileErr.Err
	}

	var pathErr *fs.PathError
	if errors.As(cause, &pathErr) {
		cause = pathErr.Err
	}

	switch {
	case errors.Is(err, status.ErrPathRejected):
		return "forbidden: " + s.request.URI
	case errors.Is(err, status.ErrNotFound):
		return "not found: " + s.request.URI
	case errors.Is(err, status.ErrIOFailure):
		return "cannot read " + s.request.URI + ": " + cause.Error()
	case cause != err:
		return "internal error: " + cause.Error()
	default:
		return "internal error: " + err.Error()
	}
}

func (s *Session) finishResponse() {
	s.log.Debug().
		Str("method", s.request.Method).
		Str("uri", s.request.URI).
		Uint16("status", uint16(s.response.Code)).
		Int64("bytes", s.sent).
		Bool("keep_alive", s.keepAlive).
		Dur("took", time.Since(s.started)).
		Msg("served")

	if s.inflight {
		s.inflight = false
		s.env.Tracker.ResponseFinished()
	}

	if err := s.machine.Fire(ResponseComplete); err != nil {
		s.fail(err)
		return
	}

	closeAfter := !s.keepAlive || s.halfClosed || s.env.Tracker.Draining()
	s.request.Reset()
	s.response.Reset()
	s.path = ""

	if closeAfter {
		s.close()
		return
	}

	// the inbound buffer may already hold the next pipelined request
	s.OnTraffic()
}

// fail handles errors the current request cannot be answered normally after.
// Malformed requests get an error response, everything else just tears the
// connection down.
func (s *Session) fail(err error) {
	var httpErr status.HTTPError
	if !errors.As(err, &httpErr) {
		level := zerolog.DebugLevel
		if errors.Is(err, status.ErrProtocolViolation) {
			level = zerolog.WarnLevel
		}

		s.log.WithLevel(level).Err(err).Stringer("state", s.machine.State()).Msg("closing connection")
		s.close()
		return
	}

	s.log.Debug().Err(err).Msg("malformed request")
	s.response.Reset()
	s.response.Error(httpErr.Code, httpErr.Message)
	s.response.Header("Connection", "close")
	_ = s.conn.Write(s.serializer.Render(s.request.Proto, s.response, !s.request.IsHead()))
	s.close()
}

func (s *Session) close() {
	if s.closed {
		return
	}

	s.closed = true
	_ = s.conn.Close()
}

// handoff passes a stream opened on a worker over to the event context. A stream
// not taken over by the time the connection closes is released by the closing side.
type handoff struct {
	mu     sync.Mutex
	stream *stream.Stream
	gone   bool
}

func (h *handoff) put(st *stream.Stream) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.gone {
		return false
	}

	h.stream = st
	return true
}

func (h *handoff) take() *stream.Stream {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.stream
	h.stream = nil
	return st
}

func (h *handoff) close() *stream.Stream {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.gone = true
	st := h.stream
	h.stream = nil
	return st
}
