package protocol

import (
	"sync"
	"time"
)

// TimeoutManager arms one timer per request id
type TimeoutManager struct {
	timeouts map[string]*timeoutEntry
	mutex    sync.Mutex
	stats    timeoutStats
}

type timeoutEntry struct {
	timer    *time.Timer
	callback func()
}

type timeoutStats struct {
	totalRegistered int64
	totalCancelled  int64
	totalExpired    int64
	totalDuration   time.Duration
	maxDuration     time.Duration
	minDuration     time.Duration
}

// TimeoutStatistics is a snapshot of timeout activity
type TimeoutStatistics struct {
	ActiveTimeouts  int           `json:"active_timeouts"`
	TotalRegistered int64         `json:"total_registered"`
	TotalCancelled  int64         `json:"total_cancelled"`
	TotalExpired    int64         `json:"total_expired"`
	AverageTimeout  time.Duration `json:"average_timeout"`
	LongestTimeout  time.Duration `json:"longest_timeout"`
	ShortestTimeout time.Duration `json:"shortest_timeout"`
}

// NewTimeoutManager creates a new timeout manager
func NewTimeoutManager() *TimeoutManager {
	return &TimeoutManager{
		timeouts: make(map[string]*timeoutEntry),
	}
}

// RegisterTimeout runs callback after timeout unless CancelTimeout is called
// first. Registering an id twice replaces the earlier timer.
func (tm *TimeoutManager) RegisterTimeout(id string, timeout time.Duration, callback func()) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	if existing, exists := tm.timeouts[id]; exists {
		existing.timer.Stop()
		tm.stats.totalCancelled++
	}

	tm.stats.totalRegistered++
	tm.stats.totalDuration += timeout
	if timeout > tm.stats.maxDuration {
		tm.stats.maxDuration = timeout
	}
	if tm.stats.minDuration == 0 || timeout < tm.stats.minDuration {
		tm.stats.minDuration = timeout
	}

	entry := &timeoutEntry{callback: callback}
	entry.timer = time.AfterFunc(timeout, func() { tm.fire(id, entry) })
	tm.timeouts[id] = entry
}

func (tm *TimeoutManager) fire(id string, entry *timeoutEntry) {
	tm.mutex.Lock()
	current, exists := tm.timeouts[id]
	if !exists || current != entry {
		tm.mutex.Unlock()
		return
	}
	delete(tm.timeouts, id)
	tm.stats.totalExpired++
	tm.mutex.Unlock()

	if entry.callback != nil {
		entry.callback()
	}
}

// CancelTimeout disarms the timer for id. It reports whether a timer was
// still armed.
func (tm *TimeoutManager) CancelTimeout(id string) bool {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	if entry, exists := tm.timeouts[id]; exists {
		entry.timer.Stop()
		delete(tm.timeouts, id)
		tm.stats.totalCancelled++
		return true
	}

	return false
}

// Close disarms every timer
func (tm *TimeoutManager) Close() {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	for id, entry := range tm.timeouts {
		entry.timer.Stop()
		delete(tm.timeouts, id)
		tm.stats.totalCancelled++
	}
}

// ActiveTimeouts returns the number of armed timers
func (tm *TimeoutManager) ActiveTimeouts() int {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	return len(tm.timeouts)
}

// Statistics returns timeout metrics
func (tm *TimeoutManager) Statistics() TimeoutStatistics {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	var averageTimeout time.Duration
	if tm.stats.totalRegistered > 0 {
		averageTimeout = tm.stats.totalDuration / time.Duration(tm.stats.totalRegistered)
	}

	return TimeoutStatistics{
		ActiveTimeouts:  len(tm.timeouts),
		TotalRegistered: tm.stats.totalRegistered,
		TotalCancelled:  tm.stats.totalCancelled,
		TotalExpired:    tm.stats.totalExpired,
		AverageTimeout:  averageTimeout,
		LongestTimeout:  tm.stats.maxDuration,
		ShortestTimeout: tm.stats.minDuration,
	}
}
