package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/recallai/recall/pkg/cache"
	"github.com/recallai/recall/pkg/embedder"
	"github.com/recallai/recall/pkg/store"
	"github.com/recallai/recall/pkg/types"
	"github.com/recallai/recall/pkg/utils"
)

// minSeedSimilarity filters out near-noise vector matches.
const minSeedSimilarity = 0.1

// GroundingStage embeds each normalized phrase and queries the vector
// index for seed entities. Phrases are independent, so they embed and
// query concurrently behind a fan-out limit.
type GroundingStage struct {
	embedder embedder.Client
	index    store.VectorIndex
	cache    *cache.Layer
	logger   *slog.Logger
}

func NewGroundingStage(emb embedder.Client, index store.VectorIndex, cacheLayer *cache.Layer, logger *slog.Logger) *GroundingStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroundingStage{embedder: emb, index: index, cache: cacheLayer, logger: logger}
}

// Run grounds the phrases into a deduplicated seed set. Per-phrase
// failures are logged and skipped; when every phrase fails the stage
// degrades to an empty seed set. It is never fatal.
func (s *GroundingStage) Run(ctx context.Context, userID string, phrases []string, p types.UserParameters) types.StageResult[[]types.SeedEntity] {
	if len(phrases) == 0 {
		return types.Ok([]types.SeedEntity{})
	}

	tasks := make([]func() ([]types.SeedEntity, error), len(phrases))
	for i, phrase := range phrases {
		tasks[i] = func() ([]types.SeedEntity, error) {
			return s.groundPhrase(ctx, userID, phrase, p)
		}
	}

	results, errs := utils.ExecuteWithResults(ctx, p.PhraseFanOut, tasks...)

	var firstErr error
	failed := 0
	seen := make(map[string]struct{})
	seeds := make([]types.SeedEntity, 0)
	for i, phraseSeeds := range results {
		if errs[i] != nil {
			failed++
			if firstErr == nil {
				firstErr = errs[i]
			}
			s.logger.Warn("phrase grounding failed, skipping phrase",
				"user_id", userID, "phrase", phrases[i], "error", errs[i])
			continue
		}
		for _, seed := range phraseSeeds {
			if _, dup := seen[seed.ID]; dup {
				continue
			}
			seen[seed.ID] = struct{}{}
			seeds = append(seeds, seed)
		}
	}

	if failed == len(phrases) {
		return types.Degraded([]types.SeedEntity{},
			fmt.Errorf("all %d phrases failed grounding: %w", failed, firstErr))
	}
	if failed > 0 {
		return types.Degraded(seeds,
			fmt.Errorf("%d of %d phrases failed grounding: %w", failed, len(phrases), firstErr))
	}
	return types.Ok(seeds)
}

func (s *GroundingStage) groundPhrase(ctx context.Context, userID, phrase string, p types.UserParameters) ([]types.SeedEntity, error) {
	if cached, ok := s.cache.GetSeeds(ctx, userID, phrase); ok {
		return cached, nil
	}

	vector, err := s.embedPhrase(ctx, phrase, p.Timeouts.Embedding)
	if err != nil {
		return nil, &types.TransientStoreError{Store: "embedding", Op: "embed", Err: err}
	}

	hits, err := s.queryIndex(ctx, vector, userID, p)
	if err != nil {
		return nil, err
	}

	seeds := make([]types.SeedEntity, 0, len(hits))
	for _, hit := range hits {
		similarity := 1 - hit.Distance
		if similarity <= minSeedSimilarity {
			continue
		}
		seeds = append(seeds, types.SeedEntity{
			ID:         hit.ID,
			Type:       hit.Type,
			Similarity: similarity,
		})
	}

	s.cache.SetSeeds(ctx, userID, phrase, seeds, p.SeedTTL)
	return seeds, nil
}

func (s *GroundingStage) embedPhrase(ctx context.Context, phrase string, timeout time.Duration) ([]float32, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.embedder.EmbedSingle(ctx, phrase)
}

func (s *GroundingStage) queryIndex(ctx context.Context, vector []float32, userID string, p types.UserParameters) ([]store.VectorHit, error) {
	if timeout := p.Timeouts.VectorQuery; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	filter := store.VectorFilter{
		UserID:      userID,
		EntityTypes: []types.EntityType{types.EntityTypeMemoryUnit, types.EntityTypeConcept},
		Status:      "active",
	}
	return s.index.QueryNearest(ctx, vector, filter, p.ResultsPerPhrase)
}
