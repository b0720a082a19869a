package mcp

import (
	"fmt"
	"log/slog"
	"sync"
)

// correlatorResult is what a pending request's sink receives: exactly one
// of a response Message or a terminal error.
type correlatorResult struct {
	msg Message
	err error
}

type correlatorEntry struct {
	sink chan correlatorResult
	once sync.Once
}

func (e *correlatorEntry) fire(res correlatorResult) {
	e.once.Do(func() { e.sink <- res })
}

// Correlator matches outstanding requests to their responses by id
// (spec.md §4.3). Its lock is only ever held for map bookkeeping, never
// across a channel send or receive, so a slow or stuck caller can't stall
// another request's registration or completion.
type Correlator struct {
	mu       sync.Mutex
	inflight map[string]*correlatorEntry
	logger   *slog.Logger
}

// NewCorrelator returns an empty Correlator.
func NewCorrelator(logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{inflight: make(map[string]*correlatorEntry), logger: logger}
}

func correlatorKey(id RequestID) string {
	if id.isString {
		return "s:" + id.str
	}
	return fmt.Sprintf("n:%d", id.num)
}

// Register records id as outstanding and returns the channel its eventual
// result will arrive on. The channel receives exactly one value.
func (c *Correlator) Register(id RequestID) <-chan correlatorResult {
	entry := &correlatorEntry{sink: make(chan correlatorResult, 1)}

	c.mu.Lock()
	c.inflight[correlatorKey(id)] = entry
	c.mu.Unlock()

	return entry.sink
}

// Deliver matches an inbound response to its pending request and fires the
// sink. A response whose id has no matching entry — already cancelled,
// already delivered, or never registered — is discarded with a diagnostic;
// it is never an error to the caller.
func (c *Correlator) Deliver(msg Message) {
	key := correlatorKey(msg.ID)

	c.mu.Lock()
	entry, ok := c.inflight[key]
	if ok {
		delete(c.inflight, key)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("discarding response for unknown or already-resolved request",
			slog.String("id", msg.ID.String()))
		return
	}
	entry.fire(correlatorResult{msg: msg})
}

// Cancel removes id's entry, if still pending, and fires it with a
// KindCancelled error. Cancel always wins over a late-arriving response:
// once called, a subsequent Deliver for the same id finds no entry and
// discards the response.
func (c *Correlator) Cancel(id RequestID, cause error) bool {
	key := correlatorKey(id)

	c.mu.Lock()
	entry, ok := c.inflight[key]
	if ok {
		delete(c.inflight, key)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	entry.fire(correlatorResult{err: newError(KindCancelled, "cancel", cause)})
	return true
}

// Shutdown fires every remaining entry with a KindTransportClosed error and
// empties the map. Called once the transport's reader loop ends. IsRetryable
// reports false for KindTransportClosed, so DoWithRetry does not reissue
// these requests.
func (c *Correlator) Shutdown() {
	c.mu.Lock()
	remaining := c.inflight
	c.inflight = make(map[string]*correlatorEntry)
	c.mu.Unlock()

	for _, entry := range remaining {
		entry.fire(correlatorResult{err: newError(KindTransportClosed, "shutdown", nil)})
	}
}
