package protocol

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
)

// DefaultRequestTimeout is how long a sent call waits for its response
const DefaultRequestTimeout = 10 * time.Second

// RegistryConfig configures the request registry
type RegistryConfig struct {
	MaxPending int
	Timeout    time.Duration
}

// DefaultRegistryConfig returns the default registry configuration
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		MaxPending: 1000,
		Timeout:    DefaultRequestTimeout,
	}
}

// RequestRegistry tracks sent calls by id until they settle
type RequestRegistry struct {
	calls    map[string]*Call
	mutex    sync.Mutex
	timeouts *TimeoutManager
	config   RegistryConfig
}

// NewRequestRegistry creates an empty registry
func NewRequestRegistry(config ...RegistryConfig) *RequestRegistry {
	cfg := DefaultRegistryConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultRegistryConfig().MaxPending
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}

	return &RequestRegistry{
		calls:    make(map[string]*Call),
		timeouts: NewTimeoutManager(),
		config:   cfg,
	}
}

// Register tracks call and arms its timeout
func (r *RequestRegistry) Register(call *Call) error {
	return r.RegisterWithTimeout(call, r.config.Timeout)
}

// RegisterWithTimeout tracks call with a specific timeout
func (r *RequestRegistry) RegisterWithTimeout(call *Call, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = r.config.Timeout
	}

	r.mutex.Lock()
	if len(r.calls) >= r.config.MaxPending {
		r.mutex.Unlock()
		return fmt.Errorf("%w: maximum %d", models.ErrTooManyPending, r.config.MaxPending)
	}
	if _, exists := r.calls[call.ID]; exists {
		r.mutex.Unlock()
		return fmt.Errorf("%w: %s", models.ErrDuplicateID, call.ID)
	}
	r.calls[call.ID] = call

	id := call.ID
	r.timeouts.RegisterTimeout(id, timeout, func() {
		if c := r.take(id); c != nil {
			c.settle(models.Failed(&models.TimeoutError{ID: id, Method: c.Method, Timeout: timeout}))
		}
	})
	r.mutex.Unlock()
	return nil
}

// take removes id from the registry and disarms its timer
func (r *RequestRegistry) take(id string) *Call {
	r.mutex.Lock()
	call, exists := r.calls[id]
	if exists {
		delete(r.calls, id)
	}
	r.mutex.Unlock()

	if !exists {
		return nil
	}
	r.timeouts.CancelTimeout(id)
	return call
}

// Resolve settles id with result. It reports false for unknown ids, which
// covers responses that arrive after a timeout or cancellation.
func (r *RequestRegistry) Resolve(id string, result json.RawMessage) bool {
	call := r.take(id)
	if call == nil {
		return false
	}
	return call.settle(models.OK(result))
}

// Reject settles id with err
func (r *RequestRegistry) Reject(id string, err error) bool {
	call := r.take(id)
	if call == nil {
		return false
	}
	return call.settle(models.Failed(err))
}

// CancelOne settles id with the cancellation sentinel
func (r *RequestRegistry) CancelOne(id string) bool {
	call := r.take(id)
	if call == nil {
		return false
	}
	return call.settle(models.Cancelled())
}

// CancelAll settles every tracked call with the cancellation sentinel and
// returns how many were cancelled
func (r *RequestRegistry) CancelAll() int {
	r.mutex.Lock()
	calls := r.calls
	r.calls = make(map[string]*Call)
	r.mutex.Unlock()

	count := 0
	for id, call := range calls {
		r.timeouts.CancelTimeout(id)
		if call.settle(models.Cancelled()) {
			count++
		}
	}
	return count
}

// Len returns the number of tracked calls
func (r *RequestRegistry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.calls)
}

// IDs returns the ids of all tracked calls
func (r *RequestRegistry) IDs() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ids := make([]string, 0, len(r.calls))
	for id := range r.calls {
		ids = append(ids, id)
	}
	return ids
}

// IsTracking checks if id is awaiting a response
func (r *RequestRegistry) IsTracking(id string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, exists := r.calls[id]
	return exists
}

// RegistryStatistics holds statistics about tracked calls
type RegistryStatistics struct {
	PendingCount int               `json:"pendingCount"`
	AverageAge   float64           `json:"averageAge"`
	Oldest       *CallInfo         `json:"oldest,omitempty"`
	Timeouts     TimeoutStatistics `json:"timeouts"`
}

// CallInfo identifies a tracked call and its age in seconds
type CallInfo struct {
	ID     string  `json:"id"`
	Method string  `json:"method"`
	Age    float64 `json:"age"`
}

// Statistics returns statistics about tracked calls
func (r *RequestRegistry) Statistics() RegistryStatistics {
	r.mutex.Lock()
	now := time.Now()
	stats := RegistryStatistics{PendingCount: len(r.calls)}
	total := 0.0
	for id, call := range r.calls {
		age := now.Sub(call.CreatedAt).Seconds()
		total += age
		if stats.Oldest == nil || age > stats.Oldest.Age {
			stats.Oldest = &CallInfo{ID: id, Method: call.Method, Age: age}
		}
	}
	if len(r.calls) > 0 {
		stats.AverageAge = total / float64(len(r.calls))
	}
	r.mutex.Unlock()

	stats.Timeouts = r.timeouts.Statistics()
	return stats
}

// Close cancels everything still tracked and disarms all timers
func (r *RequestRegistry) Close() {
	r.CancelAll()
	r.timeouts.Close()
}
