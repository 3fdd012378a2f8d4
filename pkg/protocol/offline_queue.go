package protocol

import (
	"errors"
	"sync"

	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
)

type queuedCall struct {
	call    *Call
	payload []byte
}

// OfflineQueue buffers calls submitted while no connection is open. Entries
// leave the queue in submission order, each exactly once.
type OfflineQueue struct {
	mu       sync.Mutex
	entries  []queuedCall
	capacity int
}

// NewOfflineQueue creates a queue holding at most capacity calls; zero means
// unbounded.
func NewOfflineQueue(capacity int) *OfflineQueue {
	return &OfflineQueue{capacity: capacity}
}

// Enqueue appends call with its encoded envelope
func (q *OfflineQueue) Enqueue(call *Call, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.entries) >= q.capacity {
		return models.ErrQueueFull
	}
	q.entries = append(q.entries, queuedCall{call: call, payload: payload})
	return nil
}

func (q *OfflineQueue) pop() (queuedCall, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return queuedCall{}, false
	}
	head := q.entries[0]
	q.entries[0] = queuedCall{}
	q.entries = q.entries[1:]
	return head, true
}

func (q *OfflineQueue) pushFront(e queuedCall) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append([]queuedCall{e}, q.entries...)
}

// Flush drains the queue in FIFO order. Each entry is registered with
// registry before send is invoked with its payload. When send fails, that
// entry alone is rejected with a TransportSendError, the remaining entries
// stay queued, and the send error is returned. Flush returns the number of
// entries sent.
func (q *OfflineQueue) Flush(registry *RequestRegistry, send func([]byte) error) (int, error) {
	sent := 0
	for {
		entry, ok := q.pop()
		if !ok {
			return sent, nil
		}
		if entry.call.Settled() {
			continue
		}

		if err := registry.Register(entry.call); err != nil {
			if errors.Is(err, models.ErrTooManyPending) {
				q.pushFront(entry)
				return sent, err
			}
			entry.call.settle(models.Failed(err))
			continue
		}

		if err := send(entry.payload); err != nil {
			registry.Reject(entry.call.ID, &models.TransportSendError{Cause: err})
			return sent, err
		}
		sent++
	}
}

// Clear settles every queued call with the cancellation sentinel and
// returns how many were cancelled
func (q *OfflineQueue) Clear() int {
	q.mu.Lock()
	entries := q.entries
	q.entries = nil
	q.mu.Unlock()

	count := 0
	for _, e := range entries {
		if e.call.settle(models.Cancelled()) {
			count++
		}
	}
	return count
}

// FailAll settles every queued call with err and returns how many failed
func (q *OfflineQueue) FailAll(err error) int {
	q.mu.Lock()
	entries := q.entries
	q.entries = nil
	q.mu.Unlock()

	count := 0
	for _, e := range entries {
		if e.call.settle(models.Failed(err)) {
			count++
		}
	}
	return count
}

// Remove drops id from the queue and settles it with err. It reports false
// if id was not queued.
func (q *OfflineQueue) Remove(id string, err error) bool {
	q.mu.Lock()
	var removed *Call
	for i, e := range q.entries {
		if e.call.ID == id {
			removed = e.call
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	if removed == nil {
		return false
	}
	if err == nil {
		return removed.settle(models.Cancelled())
	}
	return removed.settle(models.Failed(err))
}

// Contains reports whether id is queued
func (q *OfflineQueue) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.call.ID == id {
			return true
		}
	}
	return false
}

// Len returns the number of queued calls
func (q *OfflineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// IDs returns queued call ids in submission order
func (q *OfflineQueue) IDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]string, len(q.entries))
	for i, e := range q.entries {
		ids[i] = e.call.ID
	}
	return ids
}
