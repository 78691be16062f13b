// Package score ranks candidate entities. The final score is a weighted
// blend of semantic similarity, recency decay, and stored importance;
// weights come from the user's retrieval parameters.
package score

import (
	"math"
	"sort"
	"time"

	"github.com/recallai/recall/pkg/types"
)

// neutralScore is used for every dimension when metadata is missing or the
// scorer falls back after a failure.
const neutralScore = 0.5

// hopFalloffBase scales the semantic score derived from hop distance for
// candidates that were not seeds: 0.8/(1+hop), so a hop-1 neighbor scores
// 0.4 and the value decreases monotonically with distance.
const hopFalloffBase = 0.8

// fallbackCandidates bounds the degraded result when scoring itself fails.
const fallbackCandidates = 10

// Scorer computes weighted final scores. The clock is injectable for
// deterministic recency tests.
type Scorer struct {
	now func() time.Time
}

// NewScorer creates a scorer using the wall clock.
func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// NewScorerAt creates a scorer with a fixed clock.
func NewScorerAt(now func() time.Time) *Scorer {
	return &Scorer{now: now}
}

// Score ranks the candidates and returns at most topN scored entities,
// sorted descending by final score. Ties break by ascending hop distance,
// then descending raw importance. Candidates are deduplicated by id, first
// occurrence winning. Near-duplicates, same-type entities whose score
// profile sits within diversityThreshold of an already-ranked one, are
// down-ranked behind the diverse results before the top-N cut; a zero
// threshold disables the suppression. Out-of-tolerance weights are not
// rejected here; they simply produce a differently-weighted score.
func (s *Scorer) Score(
	candidates []types.CandidateEntity,
	metadata map[string]types.EntityMetadata,
	weights types.RetrievalWeights,
	decayRate float64,
	diversityThreshold float64,
	topN int,
) []types.ScoredEntity {
	if len(candidates) == 0 || topN <= 0 {
		return []types.ScoredEntity{}
	}

	now := s.now()
	seen := make(map[string]struct{}, len(candidates))
	scored := make([]types.ScoredEntity, 0, len(candidates))
	rawImportance := make(map[string]float64, len(candidates))

	for _, c := range candidates {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}

		meta, hasMeta := metadata[c.ID]

		semantic := semanticScore(c)
		recency := neutralScore
		importance := neutralScore
		if hasMeta {
			recency = recencyScore(meta, decayRate, now)
			importance = clamp01(meta.Importance)
			rawImportance[c.ID] = meta.Importance
		} else {
			rawImportance[c.ID] = neutralScore
		}

		scored = append(scored, types.ScoredEntity{
			ID:          c.ID,
			Type:        c.Type,
			FinalScore:  weights.Alpha*semantic + weights.Beta*recency + weights.Gamma*importance,
			Breakdown:   types.ScoreBreakdown{Semantic: semantic, Recency: recency, Importance: importance},
			WasSeed:     c.WasSeed,
			HopDistance: c.HopDistance,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].FinalScore != scored[j].FinalScore {
			return scored[i].FinalScore > scored[j].FinalScore
		}
		if scored[i].HopDistance != scored[j].HopDistance {
			return scored[i].HopDistance < scored[j].HopDistance
		}
		return rawImportance[scored[i].ID] > rawImportance[scored[j].ID]
	})

	scored = diversitySuppress(scored, diversityThreshold)

	if len(scored) > topN {
		scored = scored[:topN]
	}
	return scored
}

// diversitySuppress down-ranks near-duplicates. Walking the ranked list,
// an entity whose score profile sits within the threshold of an
// already-kept entity of the same type moves behind the diverse results
// instead of crowding them out of the top-N. Nothing is dropped.
func diversitySuppress(scored []types.ScoredEntity, threshold float64) []types.ScoredEntity {
	if threshold <= 0 || len(scored) < 2 {
		return scored
	}

	kept := make([]types.ScoredEntity, 0, len(scored))
	var demoted []types.ScoredEntity
	for _, s := range scored {
		redundant := false
		for _, k := range kept {
			if k.Type == s.Type && profileSimilarity(k.Breakdown, s.Breakdown) > threshold {
				redundant = true
				break
			}
		}
		if redundant {
			demoted = append(demoted, s)
		} else {
			kept = append(kept, s)
		}
	}
	return append(kept, demoted...)
}

// profileSimilarity compares two score breakdowns as three-dimensional
// profiles: one minus the mean absolute per-dimension difference.
func profileSimilarity(a, b types.ScoreBreakdown) float64 {
	diff := math.Abs(a.Semantic-b.Semantic) +
		math.Abs(a.Recency-b.Recency) +
		math.Abs(a.Importance-b.Importance)
	return 1 - diff/3
}

// NeutralFallback produces the degraded result used when scoring fails:
// the first few raw candidates, each assigned a neutral score in every
// dimension, so hydration still has something to work with.
func NeutralFallback(candidates []types.CandidateEntity) []types.ScoredEntity {
	n := min(len(candidates), fallbackCandidates)
	out := make([]types.ScoredEntity, 0, n)
	seen := make(map[string]struct{}, n)

	for _, c := range candidates {
		if len(out) >= n {
			break
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, types.ScoredEntity{
			ID:          c.ID,
			Type:        c.Type,
			FinalScore:  neutralScore,
			Breakdown:   types.ScoreBreakdown{Semantic: neutralScore, Recency: neutralScore, Importance: neutralScore},
			WasSeed:     c.WasSeed,
			HopDistance: c.HopDistance,
		})
	}
	return out
}

// semanticScore is the candidate's similarity when it was a seed, otherwise
// a value derived from hop distance - never an arbitrary default.
func semanticScore(c types.CandidateEntity) float64 {
	if c.WasSeed {
		return clamp01(c.Similarity)
	}
	return hopFalloffBase / (1.0 + float64(c.HopDistance))
}

// recencyScore applies exponential decay to the entity's age in days.
func recencyScore(meta types.EntityMetadata, decayRate float64, now time.Time) float64 {
	ageDays := meta.Age(now).Hours() / 24
	return clamp01(math.Exp(-decayRate * ageDays))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
