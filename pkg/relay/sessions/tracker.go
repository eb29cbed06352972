// Package sessions tracks the live calls of one process so shutdown can end
// them gracefully before the server goes away.
package sessions

import (
	"context"
	"sync"
)

// Handle is how the tracker reaches one live call. EndSession asks the
// provider to hang up (graceful); Cancel tears the transport down (abrupt).
type Handle struct {
	Cancel     func()
	EndSession func(handoffData string) error
}

// Tracker is a concurrency-safe registry of live calls keyed by connection ID.
type Tracker struct {
	mu    sync.Mutex
	calls map[string]*trackedCall
	wg    sync.WaitGroup
}

type trackedCall struct {
	handle Handle
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{calls: make(map[string]*trackedCall)}
}

// Register adds a call and returns its unregister func. Registering the same
// ID again replaces the old entry and releases it.
func (t *Tracker) Register(id string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}

	entry := &trackedCall{handle: h}

	t.mu.Lock()
	if t.calls == nil {
		t.calls = make(map[string]*trackedCall)
	}
	old := t.calls[id]
	t.calls[id] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.release(id, old)
	}

	return func() { t.release(id, entry) }
}

func (t *Tracker) release(id string, entry *trackedCall) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.calls != nil && t.calls[id] == entry {
			delete(t.calls, id)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

// Count returns the number of live calls.
func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// EndAll sends an end-session message to every live call and reports how many
// were reached. Calls stay registered until their transports observe the
// provider hanging up.
func (t *Tracker) EndAll(handoffData string) (sent int) {
	if t == nil {
		return 0
	}

	var ends []func(string) error
	t.mu.Lock()
	for _, entry := range t.calls {
		if entry == nil || entry.handle.EndSession == nil {
			continue
		}
		ends = append(ends, entry.handle.EndSession)
	}
	t.mu.Unlock()

	for _, end := range ends {
		if err := end(handoffData); err == nil {
			sent++
		}
	}
	return sent
}

// CancelAll abruptly tears down every live call.
func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.calls {
		if entry == nil || entry.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, entry.handle.Cancel)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every call has unregistered or ctx expires; it reports
// whether the tracker drained in time.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
