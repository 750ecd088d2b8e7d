package misc

import (
	"sync"
	"sync/atomic"
)

// A sync.Once variant which can be inspected while its function runs and
// reset once it has finished. Used to keep Start and Stop from overlapping.
//
// A CheckableOnce must not be copied after first use.
type CheckableOnce struct {
	done atomic.Bool
	m    sync.Mutex
}

// Call f if and only if Do has not completed for this instance. Concurrent
// callers block until the winning call to f returns.
func (co *CheckableOnce) Do(f func()) {
	if co.done.Load() {
		return
	}

	co.m.Lock()
	defer co.m.Unlock()

	if !co.done.Load() {
		defer co.done.Store(true)
		f()
	}
}

// True if Do() was called and finished executing. False if Do()
// has not been called. Blocks if Do() is currently executing.
func (co *CheckableOnce) Done() bool {
	co.m.Lock()
	defer co.m.Unlock()

	return co.done.Load()
}

// True if Do() is currently in progress. False otherwise.
func (co *CheckableOnce) Doing() bool {
	var locked bool
	if locked = co.m.TryLock(); locked {
		defer co.m.Unlock()
	}
	return !locked
}

// Make the instance usable again. Blocks while Do() is executing.
func (co *CheckableOnce) Reset() {
	co.m.Lock()
	defer co.m.Unlock()

	co.done.Store(false)
}
