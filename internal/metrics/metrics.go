// Package metrics holds the engine's read-only outcome counters:
// handover results, setup retries, and permanent failures. Each
// Engine owns exactly one Counters instance; there is no package-level
// mutable state.
package metrics

import "sync/atomic"

// Counters is a set of monotonic, concurrency-safe counters. The zero
// value is ready to use, and a nil *Counters absorbs every increment
// as a no-op so callers that don't care about metrics can omit wiring
// without a nil check at every call site.
type Counters struct {
	handoversSucceeded int64
	handoversFallback  int64
	setupRetries       int64
	permanentFailures  int64
}

func (c *Counters) IncHandoverSucceeded() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.handoversSucceeded, 1)
}

func (c *Counters) IncHandoverFallback() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.handoversFallback, 1)
}

func (c *Counters) IncSetupRetry() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.setupRetries, 1)
}

func (c *Counters) IncPermanentFailure() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.permanentFailures, 1)
}

// Snapshot is a point-in-time read of every counter, safe to marshal.
type Snapshot struct {
	HandoversSucceeded int64 `json:"handovers_succeeded"`
	HandoversFallback  int64 `json:"handovers_fallback"`
	SetupRetries       int64 `json:"setup_retries"`
	PermanentFailures  int64 `json:"permanent_failures"`
}

func (c *Counters) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		HandoversSucceeded: atomic.LoadInt64(&c.handoversSucceeded),
		HandoversFallback:  atomic.LoadInt64(&c.handoversFallback),
		SetupRetries:       atomic.LoadInt64(&c.setupRetries),
		PermanentFailures:  atomic.LoadInt64(&c.permanentFailures),
	}
}
