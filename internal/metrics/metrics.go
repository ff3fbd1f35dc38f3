package metrics

import (
	"sync"
)

// Metrics tracks export pipeline counters
type Metrics struct {
	mu sync.RWMutex

	submittedExports int64
	completedExports int64
	failedExports    int64
	retriedExports   int64
	rowsExported     int64
	surveysSubmitted int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncrementSubmittedExports increments the submitted exports counter
func (m *Metrics) IncrementSubmittedExports() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submittedExports++
}

// IncrementCompletedExports increments the completed exports counter
func (m *Metrics) IncrementCompletedExports() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completedExports++
}

// IncrementFailedExports increments the failed exports counter
func (m *Metrics) IncrementFailedExports() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedExports++
}

// IncrementRetriedExports increments the retried exports counter
func (m *Metrics) IncrementRetriedExports() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retriedExports++
}

// AddRowsExported adds to the total rows exported counter
func (m *Metrics) AddRowsExported(rows int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rowsExported += rows
}

// IncrementSurveysSubmitted increments the surveys submitted counter
func (m *Metrics) IncrementSurveysSubmitted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surveysSubmitted++
}

// GetSnapshot returns a snapshot of all metrics
func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int64{
		"submitted_exports": m.submittedExports,
		"completed_exports": m.completedExports,
		"failed_exports":    m.failedExports,
		"retried_exports":   m.retriedExports,
		"rows_exported":     m.rowsExported,
		"surveys_submitted": m.surveysSubmitted,
	}
}
