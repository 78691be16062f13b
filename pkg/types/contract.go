package types

import "time"

// RetrievalRequest is the pipeline's input contract, as received from the
// chat layer.
type RetrievalRequest struct {
	UserID         string          `json:"user_id"`
	ConversationID string          `json:"conversation_id,omitempty"`
	KeyPhrases     []string        `json:"key_phrases_for_retrieval"`
	Scenario       Scenario        `json:"retrieval_scenario,omitempty"`
	Parameters     *UserParameters `json:"user_parameters,omitempty"`
}

// ScoringDetails exposes how the final ranking was produced, for
// diagnostics and for UIs that explain why a memory surfaced.
type ScoringDetails struct {
	Weights        RetrievalWeights `json:"weights"`
	SeedCount      int              `json:"seed_count"`
	CandidateCount int              `json:"candidate_count"`
	Scored         []ScoredEntity   `json:"scored"`
}

// PerformanceMetadata reports per-stage latency and result counts.
type PerformanceMetadata struct {
	TotalExecutionTimeMs int64                  `json:"total_execution_time_ms"`
	StageTimingsMs       map[Stage]int64        `json:"stage_timings_ms"`
	ResultCounts         map[Stage]int          `json:"result_counts"`
	StageOutcomes        map[Stage]StageOutcome `json:"stage_outcomes,omitempty"`
}

// RetrievalResult is the pipeline's output contract. A degraded run still
// returns hydrated records plus an error trail; a fatal run returns empty
// lists, a fatal-impact error entry and a human-readable summary.
type RetrievalResult struct {
	MemoryUnits []RetrievedRecord   `json:"retrieved_memory_units"`
	Concepts    []RetrievedRecord   `json:"retrieved_concepts"`
	Artifacts   []RetrievedRecord   `json:"retrieved_artifacts"`
	Summary     string              `json:"retrieval_summary"`
	Scoring     ScoringDetails      `json:"scoring_details"`
	Errors      []StageError        `json:"errors"`
	Performance PerformanceMetadata `json:"performance_metadata"`
}

// Failed reports whether the run ended on the fatal path.
func (r *RetrievalResult) Failed() bool {
	for _, e := range r.Errors {
		if e.Impact == ImpactFatal {
			return true
		}
	}
	return false
}

// TotalRecords counts hydrated records across all three lists.
func (r *RetrievalResult) TotalRecords() int {
	return len(r.MemoryUnits) + len(r.Concepts) + len(r.Artifacts)
}

// BuildPerformance assembles the performance block from an execution
// context once the pipeline finishes.
func BuildPerformance(ec *ExecutionContext) PerformanceMetadata {
	timings := ec.Timings()
	outcomes := ec.Outcomes()
	perf := PerformanceMetadata{
		TotalExecutionTimeMs: ec.Elapsed().Milliseconds(),
		StageTimingsMs:       make(map[Stage]int64, len(timings)),
		ResultCounts:         make(map[Stage]int, len(outcomes)),
		StageOutcomes:        outcomes,
	}
	for stage, d := range timings {
		perf.StageTimingsMs[stage] = d.Milliseconds()
	}
	for stage, o := range outcomes {
		perf.ResultCounts[stage] = o.Count
	}
	return perf
}

// Age returns the entity age used for recency scoring: time since
// LastModified, or since CreatedAt when LastModified is unset.
func (m EntityMetadata) Age(now time.Time) time.Duration {
	ref := m.LastModified
	if ref.IsZero() {
		ref = m.CreatedAt
	}
	if ref.IsZero() || ref.After(now) {
		return 0
	}
	return now.Sub(ref)
}
