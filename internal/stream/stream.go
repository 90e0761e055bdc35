package stream

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"sync/atomic"

	"github.com/indigo-web/preview/http/status"
)

// Pool runs blocking tasks away from the event loops.
type Pool interface {
	Submit(task func()) error
}

// File is the part of *os.File the stream needs.
type File interface {
	io.Reader
	io.Closer
	Stat() (fs.FileInfo, error)
}

type Opener interface {
	Open(path string) (File, error)
}

// Error describes why a file cannot be served. Kind is one of status.ErrNotFound,
// status.ErrIOFailure, status.ErrPathRejected or status.ErrInternal.
type Error struct {
	Kind error
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newError(path string, err error) *Error {
	kind := status.ErrIOFailure
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, errNotDir):
		kind = status.ErrNotFound
	case errors.Is(err, status.ErrPathRejected):
		kind = status.ErrPathRejected
	}

	return &Error{Kind: kind, Path: path, Err: err}
}

var (
	errIsDir    = errors.New("is a directory")
	errReleased = errors.New("stream is released")
)

// Stream is an open file sent in fixed-size chunks. A file of N bytes takes
// exactly ceil(N/chunk) chunks. At most one chunk is in flight at a time: the next
// one must not be requested before the previous one was fully consumed, as all of
// them share the same buffer.
type Stream struct {
	pool   Pool
	mu     sync.Mutex
	file   File
	path   string
	size   int64
	read   atomic.Int64
	buff   []byte
	closed bool
}

// Open opens the file and stats it on the pool. done is called from the worker, or
// from the caller's goroutine if the pool refused the task.
func Open(pool Pool, opener Opener, path string, chunkSize int, done func(*Stream, error)) {
	err := pool.Submit(func() {
		file, err := opener.Open(path)
		if err != nil {
			done(nil, newError(path, err))
			return
		}

		info, err := file.Stat()
		if err == nil && info.IsDir() {
			err = errIsDir
		}

		if err != nil {
			_ = file.Close()
			done(nil, newError(path, err))
			return
		}

		done(&Stream{
			pool: pool,
			file: file,
			path: path,
			size: info.Size(),
			buff: make([]byte, min(int64(chunkSize), max(info.Size(), 1))),
		}, nil)
	})

	if err != nil {
		done(nil, &Error{Kind: status.ErrInternal, Path: path, Err: fmt.Errorf("worker pool: %w", err)})
	}
}

// Size is the length the file had when it was opened. Exactly that many bytes are
// going to be sent.
func (s *Stream) Size() int64 {
	return s.size
}

// Remaining returns the number of bytes not yet read.
func (s *Stream) Remaining() int64 {
	return s.size - s.read.Load()
}

// Chunks returns the number of chunks the whole file is sent in.
func (s *Stream) Chunks() int64 {
	chunk := int64(len(s.buff))
	return (s.size + chunk - 1) / chunk
}

// Next reads the next chunk on the pool and passes it to deliver, which is called
// from the worker. The chunk is valid until the following call to Next. A file
// shrunk after opening is reported as an i/o failure.
func (s *Stream) Next(deliver func(chunk []byte, err error)) {
	err := s.pool.Submit(func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			deliver(nil, errReleased)
			return
		}

		n := min(int64(len(s.buff)), s.Remaining())
		_, err := io.ReadFull(s.file, s.buff[:n])
		if err != nil {
			s.mu.Unlock()
			deliver(nil, &Error{Kind: status.ErrIOFailure, Path: s.path, Err: err})
			return
		}

		s.read.Add(n)
		s.mu.Unlock()
		deliver(s.buff[:n], nil)
	})

	if err != nil {
		deliver(nil, &Error{Kind: status.ErrInternal, Path: s.path, Err: fmt.Errorf("worker pool: %w", err)})
	}
}

// Release closes the file on the pool. It may be called any number of times from
// any goroutine, the file is closed only once. If the pool doesn't accept tasks
// anymore, the file is closed by a separate goroutine.
func (s *Stream) Release() {
	if err := s.pool.Submit(s.close); err != nil {
		go s.close()
	}
}

func (s *Stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		_ = s.file.Close()
	}
}
