package utils

import (
	"sync"
	"time"
)

// Metrics holds in-process application counters
type Metrics struct {
	mu sync.RWMutex

	// Requests
	TotalRequests   int64
	FailedRequests  int64
	RequestLatency  time.Duration
	AverageLatency  time.Duration
	LastRequestTime time.Time

	// Underwriting
	Decisions        map[string]int64 // by resulting status
	Reevaluations    int64
	LastDecisionTime time.Time

	// Verification
	OTPIssued   int64
	OTPOutcomes map[string]int64 // verified, mismatch, expired, throttled

	// Collaborators
	CollaboratorFailures map[string]int64

	// Errors
	ErrorCount    int64
	LastErrorTime time.Time
	ErrorTypes    map[string]int64
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// NewMetrics returns a zeroed Metrics
func NewMetrics() *Metrics {
	return &Metrics{
		Decisions:            make(map[string]int64),
		OTPOutcomes:          make(map[string]int64),
		CollaboratorFailures: make(map[string]int64),
		ErrorTypes:           make(map[string]int64),
	}
}

// GetMetrics returns the process-wide Metrics
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics()
	})
	return metrics
}

// RecordRequest records one handled HTTP request
func (m *Metrics) RecordRequest(duration time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.RequestLatency += duration
	m.AverageLatency = m.RequestLatency / time.Duration(m.TotalRequests)
	m.LastRequestTime = time.Now()
	if failed {
		m.FailedRequests++
	}
}

// RecordDecision counts a first-pass decision or a re-evaluation outcome
func (m *Metrics) RecordDecision(status string, reevaluation bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Decisions[status]++
	if reevaluation {
		m.Reevaluations++
	}
	m.LastDecisionTime = time.Now()
}

// RecordOTPIssued counts a delivered challenge
func (m *Metrics) RecordOTPIssued() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OTPIssued++
}

// RecordOTPOutcome counts a verification attempt by outcome
func (m *Metrics) RecordOTPOutcome(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OTPOutcomes[outcome]++
}

// RecordCollaboratorFailure counts a failed call to an external service
func (m *Metrics) RecordCollaboratorFailure(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CollaboratorFailures[name]++
	m.recordError(err)
}

// RecordError records an error by its message
func (m *Metrics) RecordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordError(err)
}

func (m *Metrics) recordError(err error) {
	m.ErrorCount++
	m.LastErrorTime = time.Now()

	errorType := "unknown"
	if err != nil {
		errorType = err.Error()
	}
	m.ErrorTypes[errorType]++
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// GetMetricsSnapshot returns a copy of the current counters
func (m *Metrics) GetMetricsSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"total_requests":        m.TotalRequests,
		"failed_requests":       m.FailedRequests,
		"average_latency_ms":    m.AverageLatency.Milliseconds(),
		"decisions":             copyCounts(m.Decisions),
		"reevaluations":         m.Reevaluations,
		"otp_issued":            m.OTPIssued,
		"otp_outcomes":          copyCounts(m.OTPOutcomes),
		"collaborator_failures": copyCounts(m.CollaboratorFailures),
		"error_count":           m.ErrorCount,
		"last_error_time":       m.LastErrorTime,
		"error_types":           copyCounts(m.ErrorTypes),
	}
}

// ResetMetrics zeroes every counter
func (m *Metrics) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests = 0
	m.FailedRequests = 0
	m.RequestLatency = 0
	m.AverageLatency = 0
	m.Decisions = make(map[string]int64)
	m.Reevaluations = 0
	m.OTPIssued = 0
	m.OTPOutcomes = make(map[string]int64)
	m.CollaboratorFailures = make(map[string]int64)
	m.ErrorCount = 0
	m.ErrorTypes = make(map[string]int64)
}
