package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallai/recall/pkg/params"
	"github.com/recallai/recall/pkg/store"
	"github.com/recallai/recall/pkg/types"
)

func TestNewOrchestratorRequiresStages(t *testing.T) {
	_, err := NewOrchestrator(Deps{})
	require.Error(t, err)

	var cfgErr *types.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRetrieveRequiresUser(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.Retrieve(context.Background(), types.RetrievalRequest{})

	var valErr *types.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "user_id", valErr.Field)
}

func TestEmptyInputBoundary(t *testing.T) {
	h := newHarness(t)

	result, err := h.orch.Retrieve(context.Background(), types.RetrievalRequest{
		UserID:     "u1",
		KeyPhrases: []string{},
	})
	require.NoError(t, err)

	assert.Empty(t, result.MemoryUnits)
	assert.Empty(t, result.Concepts)
	assert.Empty(t, result.Artifacts)
	assert.Empty(t, result.Errors, "empty input is not a failure")
	assert.False(t, result.Failed())
	assert.Zero(t, h.embedder.calls)
	assert.Zero(t, h.graph.callCount(), "no seeds means no graph call")
	assert.NotEmpty(t, result.Summary)
}

func TestEndToEndSeedOutranksNeighbor(t *testing.T) {
	h := newHarness(t)
	now := time.Now()

	// One seed at similarity 0.82, two hop-1 neighbors discovered by
	// traversal, all with identical metadata.
	h.index.hits = []store.VectorHit{seedHit("seed", types.EntityTypeMemoryUnit, 0.18)}
	h.graph.rows = []map[string]any{
		graphRow("n1", types.EntityTypeMemoryUnit),
		graphRow("n2", types.EntityTypeConcept),
	}
	h.relational.addEntity("seed", types.EntityTypeMemoryUnit, 0.5, now)
	h.relational.addEntity("n1", types.EntityTypeMemoryUnit, 0.5, now)
	h.relational.addEntity("n2", types.EntityTypeConcept, 0.5, now)

	result, err := h.orch.Retrieve(context.Background(), types.RetrievalRequest{
		UserID:     "u1",
		KeyPhrases: []string{"skiing"},
	})
	require.NoError(t, err)
	assert.False(t, result.Failed())

	require.Equal(t, 1, result.Scoring.SeedCount)
	require.Equal(t, 3, result.Scoring.CandidateCount)
	require.NotEmpty(t, result.Scoring.Scored)

	scored := result.Scoring.Scored
	assert.Equal(t, "seed", scored[0].ID, "the seed must outrank otherwise-equal hop-1 candidates")
	for i := 1; i < len(scored); i++ {
		assert.GreaterOrEqual(t, scored[i-1].FinalScore, scored[i].FinalScore, "scored list must be sorted descending")
	}

	assert.Equal(t, 2, len(result.MemoryUnits))
	assert.Equal(t, 1, len(result.Concepts))
	assert.Contains(t, result.Summary, "memory unit")
}

func TestTopNBoundary(t *testing.T) {
	h := newHarness(t)
	now := time.Now()

	rows := make([]map[string]any, 0, 49)
	h.index.hits = []store.VectorHit{seedHit("e00", types.EntityTypeMemoryUnit, 0.1)}
	h.relational.addEntity("e00", types.EntityTypeMemoryUnit, 0.5, now)
	for i := 1; i < 50; i++ {
		id := "e" + string(rune('0'+i/10)) + string(rune('0'+i%10))
		rows = append(rows, graphRow(id, types.EntityTypeMemoryUnit))
		h.relational.addEntity(id, types.EntityTypeMemoryUnit, 0.5, now)
	}
	h.graph.rows = rows

	p := types.UserParameters{TopNCandidatesForHydration: 5}
	result, err := h.orch.Retrieve(context.Background(), types.RetrievalRequest{
		UserID:     "u1",
		KeyPhrases: []string{"anything"},
		Parameters: &p,
	})
	require.NoError(t, err)

	assert.Equal(t, 50, result.Scoring.CandidateCount)
	assert.LessOrEqual(t, len(result.Scoring.Scored), 5)
	assert.LessOrEqual(t, result.TotalRecords(), 5)
}

func TestDegradationGraphFailureStillHydrates(t *testing.T) {
	h := newHarness(t)
	now := time.Now()
	h.index.hits = []store.VectorHit{seedHit("seed", types.EntityTypeMemoryUnit, 0.2)}
	h.graph.err = errors.New("neo4j unavailable")
	h.relational.addEntity("seed", types.EntityTypeMemoryUnit, 0.7, now)

	result, err := h.orch.Retrieve(context.Background(), types.RetrievalRequest{
		UserID:     "u1",
		KeyPhrases: []string{"skiing"},
	})
	require.NoError(t, err)

	assert.False(t, result.Failed())
	require.Len(t, result.MemoryUnits, 1, "pipeline must still hydrate the seed")
	assert.Equal(t, "seed", result.MemoryUnits[0].ID)

	require.NotEmpty(t, result.Errors)
	assert.Equal(t, types.StageTraversal, result.Errors[0].Stage)
	assert.Equal(t, types.ImpactDegraded, result.Errors[0].Impact)
}

func TestStageDeadlineBoundsSlowEmbedding(t *testing.T) {
	h := newHarness(t)
	h.embedder.waitCtx = true

	// The per-call embedding timeout is deliberately generous, so only the
	// stage deadline can release the blocked call.
	p := params.Defaults()
	p.Timeouts.Stage = 75 * time.Millisecond
	p.Timeouts.Embedding = 10 * time.Second

	start := time.Now()
	result, err := h.orch.Retrieve(context.Background(), types.RetrievalRequest{
		UserID:     "u1",
		KeyPhrases: []string{"skiing"},
		Parameters: &p,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "stage deadline must bound the blocked embedding call")

	assert.False(t, result.Failed())
	assert.Empty(t, result.MemoryUnits)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, types.StageGrounding, result.Errors[0].Stage)
	assert.Equal(t, types.ImpactDegraded, result.Errors[0].Impact)
}

func TestFatalHydrationFailure(t *testing.T) {
	h := newHarness(t)
	h.index.hits = []store.VectorHit{seedHit("seed", types.EntityTypeMemoryUnit, 0.2)}
	h.relational.contentErr = errors.New("postgres down")

	result, err := h.orch.Retrieve(context.Background(), types.RetrievalRequest{
		UserID:     "u1",
		KeyPhrases: []string{"skiing"},
	})
	require.Error(t, err)
	require.NotNil(t, result, "fatal path still returns a structured result")

	assert.True(t, result.Failed())
	assert.Empty(t, result.MemoryUnits)
	assert.Empty(t, result.Concepts)
	assert.Empty(t, result.Artifacts)
	assert.Contains(t, result.Summary, "retrieval failed")

	var fatal *types.FatalPipelineError
	assert.ErrorAs(t, err, &fatal)
}

func TestIdempotenceUnderCache(t *testing.T) {
	h := newHarness(t)
	// Fixed UTC instant: time.Now() carries a monotonic reading and the
	// Local location, which the cache's JSON round-trip strips, so the
	// DeepEqual comparison below needs a serialization-stable timestamp.
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	h.index.hits = []store.VectorHit{seedHit("seed", types.EntityTypeMemoryUnit, 0.2)}
	h.graph.rows = []map[string]any{graphRow("n1", types.EntityTypeConcept)}
	h.relational.addEntity("seed", types.EntityTypeMemoryUnit, 0.7, now)
	h.relational.addEntity("n1", types.EntityTypeConcept, 0.4, now)

	req := types.RetrievalRequest{UserID: "u1", KeyPhrases: []string{"skiing"}}

	first, err := h.orch.Retrieve(context.Background(), req)
	require.NoError(t, err)
	graphCallsAfterFirst := h.graph.callCount()
	embedsAfterFirst := h.embedder.calls

	second, err := h.orch.Retrieve(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.MemoryUnits, second.MemoryUnits)
	assert.Equal(t, first.Concepts, second.Concepts)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, graphCallsAfterFirst, h.graph.callCount(), "second call must be a full-result cache hit")
	assert.Equal(t, embedsAfterFirst, h.embedder.calls)
}

func TestDegradedResultIsNotCached(t *testing.T) {
	h := newHarness(t)
	now := time.Now()
	h.index.hits = []store.VectorHit{seedHit("seed", types.EntityTypeMemoryUnit, 0.2)}
	h.graph.err = errors.New("neo4j unavailable")
	h.relational.addEntity("seed", types.EntityTypeMemoryUnit, 0.7, now)

	req := types.RetrievalRequest{UserID: "u1", KeyPhrases: []string{"skiing"}}

	first, err := h.orch.Retrieve(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, first.Errors)

	// Candidate cache was skipped for the degraded traversal, so the
	// graph recovers on the next call and its result flows through.
	h.graph.err = nil
	h.graph.rows = []map[string]any{graphRow("n1", types.EntityTypeConcept)}
	h.relational.addEntity("n1", types.EntityTypeConcept, 0.4, now)

	second, err := h.orch.Retrieve(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, second.Errors)
	assert.Equal(t, 2, second.Scoring.CandidateCount, "recovered graph results must not be masked by a cached degraded run")
}

func TestScenarioFallback(t *testing.T) {
	h := newHarness(t)

	result, err := h.orch.Retrieve(context.Background(), types.RetrievalRequest{
		UserID:     "u1",
		KeyPhrases: nil,
		Scenario:   "no-such-scenario",
	})
	require.NoError(t, err)
	assert.Contains(t, result.Summary, string(types.ScenarioNeighborhood), "unknown scenarios fall back to neighborhood")
}

func TestPerformanceMetadataPopulated(t *testing.T) {
	h := newHarness(t)
	h.index.hits = []store.VectorHit{seedHit("seed", types.EntityTypeMemoryUnit, 0.2)}
	h.relational.addEntity("seed", types.EntityTypeMemoryUnit, 0.7, time.Now())

	result, err := h.orch.Retrieve(context.Background(), types.RetrievalRequest{
		UserID:     "u1",
		KeyPhrases: []string{"skiing"},
	})
	require.NoError(t, err)

	for _, stage := range []types.Stage{
		types.StageNormalize,
		types.StageGrounding,
		types.StageTraversal,
		types.StageMetadata,
		types.StageScoring,
		types.StageHydration,
	} {
		assert.Contains(t, result.Performance.StageTimingsMs, stage)
		assert.Contains(t, result.Performance.ResultCounts, stage)
	}
	assert.GreaterOrEqual(t, result.Performance.TotalExecutionTimeMs, int64(0))
}
