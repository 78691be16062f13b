package score

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallai/recall/pkg/types"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedScorer() *Scorer {
	return NewScorerAt(func() time.Time { return testNow })
}

func canonicalWeights() types.RetrievalWeights {
	return types.RetrievalWeights{Alpha: 0.5, Beta: 0.3, Gamma: 0.2}
}

func seedCandidate(id string, similarity float64) types.CandidateEntity {
	return types.CandidateEntity{
		ID: id, Type: types.EntityTypeMemoryUnit,
		WasSeed: true, HopDistance: 0, Similarity: similarity,
	}
}

func hopCandidate(id string, hop int) types.CandidateEntity {
	return types.CandidateEntity{
		ID: id, Type: types.EntityTypeMemoryUnit,
		WasSeed: false, HopDistance: hop,
	}
}

func metaFor(ids []string, importance float64, age time.Duration) map[string]types.EntityMetadata {
	m := make(map[string]types.EntityMetadata, len(ids))
	for _, id := range ids {
		m[id] = types.EntityMetadata{
			ID: id, Type: types.EntityTypeMemoryUnit,
			Importance:   importance,
			CreatedAt:    testNow.Add(-age - 24*time.Hour),
			LastModified: testNow.Add(-age),
		}
	}
	return m
}

func TestScoreSeedOutranksEqualNeighbor(t *testing.T) {
	candidates := []types.CandidateEntity{
		hopCandidate("mu-2", 1),
		seedCandidate("mu-1", 0.82),
		hopCandidate("mu-3", 1),
	}
	meta := metaFor([]string{"mu-1", "mu-2", "mu-3"}, 0.6, 48*time.Hour)

	scored := fixedScorer().Score(candidates, meta, canonicalWeights(), 0.05, 0.85, 10)
	require.Len(t, scored, 3)

	assert.Equal(t, "mu-1", scored[0].ID, "seed with similarity 0.82 must outrank hop-1 neighbors")
	for i := 1; i < len(scored); i++ {
		assert.GreaterOrEqual(t, scored[i-1].FinalScore, scored[i].FinalScore, "output must be sorted descending")
	}
	assert.InDelta(t, 0.82, scored[0].Breakdown.Semantic, 1e-9)
	assert.InDelta(t, 0.4, scored[1].Breakdown.Semantic, 1e-9, "hop-1 semantic falloff")
}

func TestScoreWithinToleranceProducesUnitRange(t *testing.T) {
	weightTriples := []types.RetrievalWeights{
		{Alpha: 0.5, Beta: 0.3, Gamma: 0.2},
		{Alpha: 1, Beta: 0, Gamma: 0},
		{Alpha: 0.34, Beta: 0.33, Gamma: 0.33},
		{Alpha: 0.2, Beta: 0.2, Gamma: 0.605}, // at tolerance edge
	}

	candidates := []types.CandidateEntity{
		seedCandidate("mu-1", 0.95),
		hopCandidate("mu-2", 1),
		hopCandidate("mu-3", 3),
	}
	meta := metaFor([]string{"mu-1", "mu-2"}, 0.9, time.Hour)

	for _, w := range weightTriples {
		t.Run(fmt.Sprintf("%v", w), func(t *testing.T) {
			for _, s := range fixedScorer().Score(candidates, meta, w, 0.05, 0.85, 10) {
				assert.GreaterOrEqual(t, s.FinalScore, 0.0)
				assert.LessOrEqual(t, s.FinalScore, 1.0+types.WeightSumTolerance)
			}
		})
	}
}

func TestScoreOutOfToleranceStillRuns(t *testing.T) {
	// The scorer must not enforce the persist-time tolerance.
	w := types.RetrievalWeights{Alpha: 2, Beta: 2, Gamma: 2}
	scored := fixedScorer().Score([]types.CandidateEntity{seedCandidate("mu-1", 0.5)}, nil, w, 0.05, 0.85, 10)
	require.Len(t, scored, 1)
	assert.Greater(t, scored[0].FinalScore, 1.0)
}

func TestScoreMissingMetadataUsesNeutralDefaults(t *testing.T) {
	scored := fixedScorer().Score([]types.CandidateEntity{seedCandidate("mu-1", 0.8)}, nil, canonicalWeights(), 0.05, 0.85, 10)
	require.Len(t, scored, 1)
	assert.Equal(t, 0.5, scored[0].Breakdown.Recency)
	assert.Equal(t, 0.5, scored[0].Breakdown.Importance)
}

func TestScoreRecencyDecay(t *testing.T) {
	fresh := metaFor([]string{"mu-1"}, 0.5, 0)
	old := metaFor([]string{"mu-1"}, 0.5, 100*24*time.Hour)

	freshScore := fixedScorer().Score([]types.CandidateEntity{seedCandidate("mu-1", 0.8)}, fresh, canonicalWeights(), 0.1, 0.85, 10)
	oldScore := fixedScorer().Score([]types.CandidateEntity{seedCandidate("mu-1", 0.8)}, old, canonicalWeights(), 0.1, 0.85, 10)

	assert.InDelta(t, 1.0, freshScore[0].Breakdown.Recency, 1e-6)
	assert.InDelta(t, math.Exp(-0.1*100), oldScore[0].Breakdown.Recency, 1e-6)
	assert.Greater(t, freshScore[0].FinalScore, oldScore[0].FinalScore)
}

func TestScoreDedupAndTruncation(t *testing.T) {
	candidates := make([]types.CandidateEntity, 0, 52)
	for i := 0; i < 50; i++ {
		candidates = append(candidates, seedCandidate(fmt.Sprintf("mu-%d", i), 0.5+float64(i)/200))
	}
	// Duplicates of the first two ids.
	candidates = append(candidates, seedCandidate("mu-0", 0.99), seedCandidate("mu-1", 0.99))

	scored := fixedScorer().Score(candidates, nil, canonicalWeights(), 0.05, 0.85, 5)
	require.Len(t, scored, 5)

	seen := make(map[string]struct{})
	for _, s := range scored {
		_, dup := seen[s.ID]
		assert.False(t, dup, "id %s appears twice", s.ID)
		seen[s.ID] = struct{}{}
	}
}

func TestScoreTieBreaksByHopThenImportance(t *testing.T) {
	// Equal final scores: alpha=0 so semantic does not matter; identical
	// recency and importance inputs.
	w := types.RetrievalWeights{Alpha: 0, Beta: 0.5, Gamma: 0.5}
	meta := metaFor([]string{"near", "far"}, 0.6, time.Hour)

	scored := fixedScorer().Score([]types.CandidateEntity{
		hopCandidate("far", 3),
		hopCandidate("near", 1),
	}, meta, w, 0.05, 0.85, 10)

	require.Len(t, scored, 2)
	assert.Equal(t, "near", scored[0].ID, "ties break by ascending hop distance")
}

func TestScoreDiversityDownranksNearDuplicates(t *testing.T) {
	// a and b have nearly identical score profiles; c scores far lower
	// but is diverse in every dimension.
	candidates := []types.CandidateEntity{
		seedCandidate("mu-a", 0.9),
		seedCandidate("mu-b", 0.89),
		seedCandidate("mu-c", 0.5),
	}
	meta := map[string]types.EntityMetadata{
		"mu-a": {ID: "mu-a", Type: types.EntityTypeMemoryUnit, Importance: 0.9, LastModified: testNow},
		"mu-b": {ID: "mu-b", Type: types.EntityTypeMemoryUnit, Importance: 0.9, LastModified: testNow},
		"mu-c": {ID: "mu-c", Type: types.EntityTypeMemoryUnit, Importance: 0.2, LastModified: testNow.Add(-100 * 24 * time.Hour)},
	}

	scored := fixedScorer().Score(candidates, meta, canonicalWeights(), 0.05, 0.85, 10)
	require.Len(t, scored, 3)
	assert.Equal(t, "mu-a", scored[0].ID)
	assert.Equal(t, "mu-c", scored[1].ID, "diverse entity must outrank the near-duplicate of the leader")
	assert.Equal(t, "mu-b", scored[2].ID)
	assert.Greater(t, scored[2].FinalScore, scored[1].FinalScore, "suppression reorders without touching scores")
}

func TestScoreDiversityZeroThresholdDisables(t *testing.T) {
	candidates := []types.CandidateEntity{
		seedCandidate("mu-a", 0.9),
		seedCandidate("mu-b", 0.89),
		seedCandidate("mu-c", 0.5),
	}
	meta := map[string]types.EntityMetadata{
		"mu-a": {ID: "mu-a", Type: types.EntityTypeMemoryUnit, Importance: 0.9, LastModified: testNow},
		"mu-b": {ID: "mu-b", Type: types.EntityTypeMemoryUnit, Importance: 0.9, LastModified: testNow},
		"mu-c": {ID: "mu-c", Type: types.EntityTypeMemoryUnit, Importance: 0.2, LastModified: testNow.Add(-100 * 24 * time.Hour)},
	}

	scored := fixedScorer().Score(candidates, meta, canonicalWeights(), 0.05, 0, 10)
	require.Len(t, scored, 3)
	assert.Equal(t, "mu-a", scored[0].ID)
	assert.Equal(t, "mu-b", scored[1].ID, "near-duplicate keeps its score rank when suppression is off")
	assert.Equal(t, "mu-c", scored[2].ID)
}

func TestScoreDiversitySparesDifferentTypes(t *testing.T) {
	// c-b matches mu-a's profile exactly but is a concept; beneath them a
	// diverse memory unit would overtake c-b if it were wrongly demoted.
	concept := types.CandidateEntity{
		ID: "c-b", Type: types.EntityTypeConcept,
		WasSeed: true, Similarity: 0.9,
	}
	candidates := []types.CandidateEntity{
		seedCandidate("mu-a", 0.9),
		concept,
		seedCandidate("mu-c", 0.5),
	}
	meta := map[string]types.EntityMetadata{
		"mu-a": {ID: "mu-a", Type: types.EntityTypeMemoryUnit, Importance: 0.9, LastModified: testNow},
		"c-b":  {ID: "c-b", Type: types.EntityTypeConcept, Importance: 0.9, LastModified: testNow},
		"mu-c": {ID: "mu-c", Type: types.EntityTypeMemoryUnit, Importance: 0.2, LastModified: testNow.Add(-100 * 24 * time.Hour)},
	}

	scored := fixedScorer().Score(candidates, meta, canonicalWeights(), 0.05, 0.85, 10)
	require.Len(t, scored, 3)
	assert.Equal(t, "mu-a", scored[0].ID)
	assert.Equal(t, "c-b", scored[1].ID, "entities of different types are never near-duplicates")
	assert.Equal(t, "mu-c", scored[2].ID)
}

func TestNeutralFallback(t *testing.T) {
	candidates := make([]types.CandidateEntity, 30)
	for i := range candidates {
		candidates[i] = hopCandidate(fmt.Sprintf("mu-%d", i), 1)
	}

	out := NeutralFallback(candidates)
	require.Len(t, out, 10)
	for _, s := range out {
		assert.Equal(t, 0.5, s.FinalScore)
		assert.Equal(t, types.ScoreBreakdown{Semantic: 0.5, Recency: 0.5, Importance: 0.5}, s.Breakdown)
	}

	assert.Empty(t, NeutralFallback(nil))
}
