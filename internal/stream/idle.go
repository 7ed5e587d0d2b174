package stream

import (
	"sync"
	"time"
)

// idleWatchdog 在 timeout 内没有 reset 时调用 fire；timeout 为 0 时不做任何事。
type idleWatchdog struct {
	mu      sync.Mutex
	timeout time.Duration
	timer   *time.Timer
	stopped bool
}

func newIdleWatchdog(timeout time.Duration, fire func()) *idleWatchdog {
	w := &idleWatchdog{timeout: timeout}
	if timeout > 0 {
		w.timer = time.AfterFunc(timeout, fire)
	}
	return w
}

func (w *idleWatchdog) reset() {
	if w == nil || w.timer == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.timer.Reset(w.timeout)
	}
}

func (w *idleWatchdog) stop() {
	if w == nil || w.timer == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.timer.Stop()
}
