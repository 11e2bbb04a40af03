package scheduler

import (
	"sync"
	"time"
)

type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

// StepHealth is a point-in-time view of one step's failure record.
type StepHealth struct {
	Name                string       `json:"name"`
	Status              HealthStatus `json:"status"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	LastError           string       `json:"lastError,omitempty"`
	LastFailure         time.Time    `json:"lastFailure,omitempty"`
	Runs                int64        `json:"runs"`
}

// stepHealth tracks consecutive failures of a single step. A recovered
// panic counts as a failure.
type stepHealth struct {
	mu          sync.Mutex
	failures    int
	lastErr     string
	lastFailure time.Time
	runs        int64
}

func (h *stepHealth) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs++
	h.failures = 0
}

func (h *stepHealth) recordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs++
	h.failures++
	h.lastErr = err.Error()
	h.lastFailure = time.Now()
}

func (h *stepHealth) snapshot(name string, threshold int) StepHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	status := StatusHealthy
	switch {
	case h.failures >= threshold:
		status = StatusFailed
	case h.failures > 0:
		status = StatusDegraded
	}
	return StepHealth{
		Name:                name,
		Status:              status,
		ConsecutiveFailures: h.failures,
		LastError:           h.lastErr,
		LastFailure:         h.lastFailure,
		Runs:                h.runs,
	}
}
