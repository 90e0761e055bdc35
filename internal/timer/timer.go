// Package timer provides a coarse wall clock for deadlines which are set often
// but don't need to be precise.
package timer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Resolution is the frequency at which the clock is updated.
const Resolution = 100 * time.Millisecond

var (
	millis atomic.Int64
	start  sync.Once
)

// Now returns the current time, lagging behind by at most Resolution. The clock
// starts ticking on the first call.
func Now() time.Time {
	start.Do(tick)
	return time.UnixMilli(millis.Load())
}

func tick() {
	millis.Store(time.Now().UnixMilli())

	go func() {
		for now := range time.Tick(Resolution) {
			millis.Store(now.UnixMilli())
		}
	}()
}
