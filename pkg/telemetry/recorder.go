package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/recallai/recall/pkg/types"
)

// RetrievalRecord is one completed pipeline run as stored in Parquet.
type RetrievalRecord struct {
	RequestID      string    `parquet:"request_id"`
	UserID         string    `parquet:"user_id"`
	Scenario       string    `parquet:"scenario"`
	Timestamp      time.Time `parquet:"timestamp"`
	TotalMs        int64     `parquet:"total_ms"`
	GroundingMs    int64     `parquet:"grounding_ms"`
	TraversalMs    int64     `parquet:"traversal_ms"`
	MetadataMs     int64     `parquet:"metadata_ms"`
	ScoringMs      int64     `parquet:"scoring_ms"`
	HydrationMs    int64     `parquet:"hydration_ms"`
	SeedCount      int       `parquet:"seed_count"`
	CandidateCount int       `parquet:"candidate_count"`
	ResultCount    int       `parquet:"result_count"`
	DegradedStages int       `parquet:"degraded_stages"`
	Fatal          bool      `parquet:"fatal"`
	CacheHit       bool      `parquet:"cache_hit"`
}

// Recorder batches retrieval records into Parquet files. A nil Recorder is
// valid and records nothing.
type Recorder struct {
	outputDir string
	mu        sync.Mutex
	buffer    []RetrievalRecord
	batchSize int
}

// NewRecorder creates a Recorder writing under outputDir.
func NewRecorder(outputDir string) (*Recorder, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}
	return &Recorder{
		outputDir: outputDir,
		batchSize: 200,
		buffer:    make([]RetrievalRecord, 0, 200),
	}, nil
}

// Record buffers one pipeline run, assembled from the result and its
// execution context.
func (r *Recorder) Record(ec *types.ExecutionContext, scenario types.Scenario, result *types.RetrievalResult, cacheHit bool) {
	if r == nil {
		return
	}

	timings := result.Performance.StageTimingsMs
	degraded := 0
	for _, e := range result.Errors {
		if e.Impact == types.ImpactDegraded {
			degraded++
		}
	}

	rec := RetrievalRecord{
		RequestID:      ec.RequestID,
		UserID:         ec.UserID,
		Scenario:       string(scenario),
		Timestamp:      time.Now().UTC(),
		TotalMs:        result.Performance.TotalExecutionTimeMs,
		GroundingMs:    timings[types.StageGrounding],
		TraversalMs:    timings[types.StageTraversal],
		MetadataMs:     timings[types.StageMetadata],
		ScoringMs:      timings[types.StageScoring],
		HydrationMs:    timings[types.StageHydration],
		SeedCount:      result.Scoring.SeedCount,
		CandidateCount: result.Scoring.CandidateCount,
		ResultCount:    result.TotalRecords(),
		DegradedStages: degraded,
		Fatal:          result.Failed(),
		CacheHit:       cacheHit,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = append(r.buffer, rec)
	if len(r.buffer) >= r.batchSize {
		r.flush()
	}
}

// Flush writes any buffered records out. Call on shutdown.
func (r *Recorder) Flush() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flush()
}

// flush writes the current buffer; caller must hold the lock.
func (r *Recorder) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	filename := fmt.Sprintf("retrievals_%s_%d.parquet", time.Now().Format("20060102_150405"), time.Now().UnixNano())
	path := filepath.Join(r.outputDir, filename)

	if err := parquet.WriteFile(path, r.buffer); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write retrieval telemetry: %v\n", err)
		return err
	}
	r.buffer = r.buffer[:0]
	return nil
}
