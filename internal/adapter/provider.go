package adapter

import (
	"sync"
	"time"

	"github.com/slot-automator/internal/circuitbreaker"
)

// EndpointHealth represents the health status of an upstream endpoint
type EndpointHealth struct {
	Name             string        `json:"name"`
	URL              string        `json:"url"`
	TotalRequests    int64         `json:"totalRequests"`
	SuccessfulReqs   int64         `json:"successfulRequests"`
	FailedReqs       int64         `json:"failedRequests"`
	SuccessRate      float64       `json:"successRate"`
	AverageLatency   time.Duration `json:"averageLatency"`
	LastSuccess      time.Time     `json:"lastSuccess"`
	LastFailure      time.Time     `json:"lastFailure"`
	LastError        string        `json:"lastError,omitempty"`
	ConsecutiveFails int           `json:"consecutiveFails"`
	IsHealthy        bool          `json:"isHealthy"`

	Breaker *circuitbreaker.Stats `json:"breaker,omitempty"`
}

// HealthTracker records request outcomes for one endpoint.
// It only observes; callers never retry or fail over based on it.
type HealthTracker struct {
	mu sync.RWMutex

	name string
	url  string

	totalRequests    int64
	successfulReqs   int64
	failedReqs       int64
	totalLatency     time.Duration
	lastSuccess      time.Time
	lastFailure      time.Time
	lastError        string
	consecutiveFails int

	maxConsecutiveFails int
	minSuccessRate      float64
}

// NewHealthTracker creates a tracker for the endpoint at url
func NewHealthTracker(name, url string) *HealthTracker {
	return &HealthTracker{
		name:                name,
		url:                 url,
		maxConsecutiveFails: 5,
		minSuccessRate:      0.5,
	}
}

// RecordSuccess records a successful request
func (h *HealthTracker) RecordSuccess(duration time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalRequests++
	h.successfulReqs++
	h.totalLatency += duration
	h.lastSuccess = time.Now()
	h.consecutiveFails = 0
}

// RecordFailure records a failed request
func (h *HealthTracker) RecordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalRequests++
	h.failedReqs++
	h.lastFailure = time.Now()
	h.consecutiveFails++
	if err != nil {
		h.lastError = err.Error()
	}
}

// Observe records the outcome of a request that started at start
func (h *HealthTracker) Observe(start time.Time, err error) {
	if err != nil {
		h.RecordFailure(err)
		return
	}
	h.RecordSuccess(time.Since(start))
}

// GetHealth returns a snapshot of the endpoint statistics
func (h *HealthTracker) GetHealth() *EndpointHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var successRate float64
	if h.totalRequests > 0 {
		successRate = float64(h.successfulReqs) / float64(h.totalRequests)
	}

	var avgLatency time.Duration
	if h.successfulReqs > 0 {
		avgLatency = h.totalLatency / time.Duration(h.successfulReqs)
	}

	return &EndpointHealth{
		Name:             h.name,
		URL:              h.url,
		TotalRequests:    h.totalRequests,
		SuccessfulReqs:   h.successfulReqs,
		FailedReqs:       h.failedReqs,
		SuccessRate:      successRate,
		AverageLatency:   avgLatency,
		LastSuccess:      h.lastSuccess,
		LastFailure:      h.lastFailure,
		LastError:        h.lastError,
		ConsecutiveFails: h.consecutiveFails,
		IsHealthy:        h.isHealthyLocked(),
	}
}

// IsHealthy returns true if the endpoint is considered healthy
func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.isHealthyLocked()
}

// isHealthyLocked must be called with the lock held
func (h *HealthTracker) isHealthyLocked() bool {
	if h.consecutiveFails >= h.maxConsecutiveFails {
		return false
	}

	// success rate only counts once there is enough data
	if h.totalRequests >= 10 {
		if float64(h.successfulReqs)/float64(h.totalRequests) < h.minSuccessRate {
			return false
		}
	}

	return true
}
