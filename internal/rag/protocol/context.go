package protocol

import (
	"context"
	"sync/atomic"
	"time"
)

// RequestContext carries per-request identity and a set-once cancellation
// flag, observable without blocking. It is created on request admission
// and discarded when the orchestration task terminates; never shared
// across requests.
type RequestContext struct {
	RequestID string
	TraceID   string
	StartedAt time.Time
	Metadata  map[string]any

	cancelled atomic.Bool
}

// NewRequestContext returns a RequestContext admitted now.
func NewRequestContext(requestID, traceID string, metadata map[string]any) *RequestContext {
	return &RequestContext{
		RequestID: requestID,
		TraceID:   traceID,
		StartedAt: time.Now(),
		Metadata:  metadata,
	}
}

// Cancel sets the cancellation flag. Idempotent.
func (c *RequestContext) Cancel() {
	c.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called. Non-blocking.
func (c *RequestContext) Cancelled() bool {
	return c.cancelled.Load()
}

// CancelledErr returns ErrCancelled if the flag is set, else nil. Suspension
// points call this (or check ctx.Err()) between awaits.
func (c *RequestContext) CancelledErr(ctx context.Context) error {
	if c.Cancelled() {
		return ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return ErrCancelled
	}
	return nil
}
