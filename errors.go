package preview

import (
	"errors"

	"golang.org/x/sys/unix"
)

var (
	// ErrOutputDirNotFound is returned by Start if the directory to serve doesn't
	// exist. It must be generated before the server is started.
	ErrOutputDirNotFound = errors.New("output directory not found")
	ErrNotStarted        = errors.New("server is not started")
	ErrAlreadyStarted    = errors.New("server is already started")
)

// BindError means that the listening socket couldn't be set up.
type BindError struct {
	Addr string
	Err  error
}

func (b *BindError) Error() string {
	if b.InUse() {
		return "bind " + b.Addr + ": another preview session is likely already running on this port"
	}

	return "bind " + b.Addr + ": " + b.Err.Error()
}

func (b *BindError) Unwrap() error {
	return b.Err
}

// InUse reports whether the address is held by another socket.
func (b *BindError) InUse() bool {
	return errors.Is(b.Err, unix.EADDRINUSE)
}
