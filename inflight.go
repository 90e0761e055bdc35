package preview

import (
	"context"
	"sync"
	"sync/atomic"
)

// inflight counts responses in flight over all the connections.
type inflight struct {
	draining atomic.Bool
	mu       sync.Mutex
	count    int
	zero     chan struct{}
}

func (i *inflight) ResponseStarted() {
	i.mu.Lock()
	i.count++
	i.mu.Unlock()
}

func (i *inflight) ResponseFinished() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.count--; i.count == 0 && i.zero != nil {
		close(i.zero)
		i.zero = nil
	}
}

func (i *inflight) Draining() bool {
	return i.draining.Load()
}

func (i *inflight) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.count
}

// Drain marks the server as draining and waits until no response is in flight.
func (i *inflight) Drain(ctx context.Context) error {
	i.draining.Store(true)

	i.mu.Lock()
	if i.count == 0 {
		i.mu.Unlock()
		return nil
	}

	if i.zero == nil {
		i.zero = make(chan struct{})
	}

	zero := i.zero
	i.mu.Unlock()

	select {
	case <-zero:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
