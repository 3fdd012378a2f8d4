package protocol

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
)

// Call is a request awaiting exactly one settlement. It is created when the
// request is submitted, lives in the offline queue and/or the request
// registry, and is settled by whichever of response, error, timeout or
// cancellation wins its settled flag.
type Call struct {
	ID        string
	Method    string
	CreatedAt time.Time

	settled atomic.Bool
	done    chan models.CallResult

	mu       sync.Mutex
	result   models.CallResult
	onSettle []func(*Call, models.CallResult)
}

// NewCall creates an unsettled call
func NewCall(id, method string) *Call {
	return &Call{
		ID:        id,
		Method:    method,
		CreatedAt: time.Now(),
		done:      make(chan models.CallResult, 1),
	}
}

// OnSettle registers fn to run once the call settles. If the call has
// already settled, fn runs immediately.
func (c *Call) OnSettle(fn func(*Call, models.CallResult)) {
	c.mu.Lock()
	if c.settled.Load() {
		result := c.result
		c.mu.Unlock()
		fn(c, result)
		return
	}
	c.onSettle = append(c.onSettle, fn)
	c.mu.Unlock()
}

// settle delivers r if the call has not settled yet. It reports whether this
// invocation was the one that settled the call.
func (c *Call) settle(r models.CallResult) bool {
	c.mu.Lock()
	if !c.settled.CompareAndSwap(false, true) {
		c.mu.Unlock()
		return false
	}
	c.result = r
	hooks := c.onSettle
	c.onSettle = nil
	c.mu.Unlock()

	c.done <- r
	for _, fn := range hooks {
		fn(c, r)
	}
	return true
}

// Settled reports whether the call has reached its terminal outcome
func (c *Call) Settled() bool {
	return c.settled.Load()
}

// Done returns a channel that receives the settlement exactly once
func (c *Call) Done() <-chan models.CallResult {
	return c.done
}

// Wait blocks until the call settles or ctx is done. A context error leaves
// the call unsettled; the caller decides how to abandon it.
func (c *Call) Wait(ctx context.Context) (models.CallResult, error) {
	select {
	case r := <-c.done:
		return r, nil
	case <-ctx.Done():
		return models.CallResult{}, ctx.Err()
	}
}
