package types

import (
	"sync"
	"time"
)

// StageOutcome records what a single stage produced for diagnostics.
type StageOutcome struct {
	Status   StageStatus `json:"status"`
	Count    int         `json:"count"`
	CacheHit bool        `json:"cache_hit,omitempty"`
}

// ExecutionContext tracks one request's journey through the pipeline. It is
// created per request and discarded when the call returns; it is never
// persisted. Stage-internal goroutines may record errors concurrently, so
// mutation goes through the mutex.
type ExecutionContext struct {
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	StartTime time.Time `json:"start_time"`

	mu           sync.Mutex
	stageResults map[Stage]StageOutcome
	timings      map[Stage]time.Duration
	errors       []StageError
}

// NewExecutionContext creates a fresh context for one request.
func NewExecutionContext(requestID, userID string) *ExecutionContext {
	return &ExecutionContext{
		RequestID:    requestID,
		UserID:       userID,
		StartTime:    time.Now(),
		stageResults: make(map[Stage]StageOutcome),
		timings:      make(map[Stage]time.Duration),
	}
}

// RecordOutcome stores a stage's result summary.
func (ec *ExecutionContext) RecordOutcome(stage Stage, outcome StageOutcome) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.stageResults[stage] = outcome
}

// RecordTiming stores a stage's wall-clock latency.
func (ec *ExecutionContext) RecordTiming(stage Stage, d time.Duration) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.timings[stage] = d
}

// RecordError appends to the error trail with an explicit impact tag.
func (ec *ExecutionContext) RecordError(stage Stage, err error, impact Impact) {
	if err == nil {
		return
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.errors = append(ec.errors, StageError{
		Stage:     stage,
		Message:   err.Error(),
		Impact:    impact,
		Timestamp: time.Now(),
	})
}

// Errors returns a copy of the error trail.
func (ec *ExecutionContext) Errors() []StageError {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make([]StageError, len(ec.errors))
	copy(out, ec.errors)
	return out
}

// Timings returns a copy of the per-stage latencies.
func (ec *ExecutionContext) Timings() map[Stage]time.Duration {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make(map[Stage]time.Duration, len(ec.timings))
	for k, v := range ec.timings {
		out[k] = v
	}
	return out
}

// Outcomes returns a copy of the per-stage result summaries.
func (ec *ExecutionContext) Outcomes() map[Stage]StageOutcome {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make(map[Stage]StageOutcome, len(ec.stageResults))
	for k, v := range ec.stageResults {
		out[k] = v
	}
	return out
}

// Elapsed reports wall-clock time since the request started.
func (ec *ExecutionContext) Elapsed() time.Duration {
	return time.Since(ec.StartTime)
}
