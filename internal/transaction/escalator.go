package transaction

import (
	"sync"
	"time"
)

// Escalator holds transactions in pending_confirmation and auto-resolves
// them after the confirmation timeout. One cancellable timer per
// transaction ID; the timer firing and an explicit confirmation race
// through the same atomic status transition, so exactly one wins.
type Escalator struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	timeout time.Duration
	expire  func(transactionID string)
}

func NewEscalator(timeout time.Duration, expire func(transactionID string)) *Escalator {
	return &Escalator{
		timers:  make(map[string]*time.Timer),
		timeout: timeout,
		expire:  expire,
	}
}

// Schedule arms the timeout for a transaction. The wait runs on its own
// timer, never blocking the request path.
func (e *Escalator) Schedule(transactionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.timers[transactionID]; ok {
		t.Stop()
	}

	e.timers[transactionID] = time.AfterFunc(e.timeout, func() {
		e.mu.Lock()
		delete(e.timers, transactionID)
		e.mu.Unlock()

		e.expire(transactionID)
	})
}

// Cancel stops the timer after a terminal transition won the race. A timer
// that already fired is a no-op here; its expiry path is rejected by the
// status check instead.
func (e *Escalator) Cancel(transactionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.timers[transactionID]; ok {
		t.Stop()
		delete(e.timers, transactionID)
	}
}

// Pending reports how many confirmations are currently armed.
func (e *Escalator) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}
