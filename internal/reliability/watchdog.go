package reliability

import (
	"context"
	"io"
	"sync"
	"time"
)

// watchdog guards a streaming body. The first-byte timer runs from the start of the
// response until the first non-empty read; the idle timer is armed on every non-empty
// read. Either one cancels the attempt context with its own cause.
type watchdog struct {
	body   io.Reader
	idle   time.Duration
	cancel context.CancelCauseFunc

	mu        sync.Mutex
	firstByte *time.Timer
	idleTimer *time.Timer
	seen      bool
	stopped   bool
}

func newWatchdog(body io.Reader, firstByte, idle time.Duration, cancel context.CancelCauseFunc) *watchdog {
	w := &watchdog{body: body, idle: idle, cancel: cancel}
	if firstByte > 0 {
		w.firstByte = time.AfterFunc(firstByte, func() { cancel(ErrFirstByteTimeout) })
	}
	return w
}

func (w *watchdog) Read(p []byte) (int, error) {
	n, err := w.body.Read(p)
	if n > 0 {
		w.touch()
	}
	return n, err
}

func (w *watchdog) touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if !w.seen {
		w.seen = true
		if w.firstByte != nil {
			w.firstByte.Stop()
		}
	}
	if w.idle <= 0 {
		return
	}
	if w.idleTimer == nil {
		w.idleTimer = time.AfterFunc(w.idle, func() { w.cancel(ErrIdleTimeout) })
		return
	}
	w.idleTimer.Reset(w.idle)
}

// stop disarms both timers. Safe to call more than once.
func (w *watchdog) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.firstByte != nil {
		w.firstByte.Stop()
	}
	if w.idleTimer != nil {
		w.idleTimer.Stop()
	}
}
