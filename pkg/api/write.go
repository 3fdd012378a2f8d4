package api

import (
	"context"

	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
	"github.com/jowharshamshiri/GoZaparoo/pkg/protocol"
)

// Write asks the device to write params.Text to the next presented tag. The
// call holds the client's single pending-write slot until it settles;
// CancelWrite aborts it.
func (c *Client) Write(ctx context.Context, params models.WriteParams) (Reply[struct{}], error) {
	return invokeVoid(ctx, c, "Write", models.MethodWrite, params, c.trackWrite)
}

func (c *Client) trackWrite(call *protocol.Call) {
	c.writeMu.Lock()
	c.writeID = call.ID
	c.writeMu.Unlock()

	call.OnSettle(func(call *protocol.Call, _ models.CallResult) {
		c.writeMu.Lock()
		if c.writeID == call.ID {
			c.writeID = ""
		}
		c.writeMu.Unlock()
	})
}

// CancelWrite settles the pending write with the cancellation sentinel and
// asks the device to abort it. It reports whether a write was pending. A
// failure to reach the device is logged only.
func (c *Client) CancelWrite() bool {
	c.writeMu.Lock()
	id := c.writeID
	c.writeID = ""
	c.writeMu.Unlock()

	if id == "" {
		return false
	}

	c.mu.Lock()
	cancelled := c.registry.CancelOne(id) || c.queue.Remove(id, nil)
	c.mu.Unlock()

	if !cancelled {
		return false
	}

	call, err := c.Submit(models.MethodReadersWriteCancel, nil)
	if err != nil {
		c.logger.Warn("failed to notify device of write cancel", "error", err)
		return true
	}
	call.OnSettle(func(_ *protocol.Call, r models.CallResult) {
		if r.Status == models.StatusError {
			c.logger.Warn("failed to notify device of write cancel", "error", r.Err)
		}
	})
	return true
}
