package pipeline

import (
	"context"
	"log/slog"

	"github.com/recallai/recall/pkg/cache"
	"github.com/recallai/recall/pkg/graphquery"
	"github.com/recallai/recall/pkg/store"
	"github.com/recallai/recall/pkg/types"
)

// TraversalStage expands the seed set into a candidate set by walking
// the graph with a scenario template. On any traversal failure it
// degrades to the seeds themselves as candidates rather than failing
// the pipeline.
type TraversalStage struct {
	graph   store.GraphStore
	builder *graphquery.Builder
	cache   *cache.Layer
	logger  *slog.Logger
}

func NewTraversalStage(graph store.GraphStore, builder *graphquery.Builder, cacheLayer *cache.Layer, logger *slog.Logger) *TraversalStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &TraversalStage{graph: graph, builder: builder, cache: cacheLayer, logger: logger}
}

// Run expands seeds into candidates. An empty seed set skips the graph
// entirely: no store call, no cache touch.
func (s *TraversalStage) Run(ctx context.Context, userID string, scenario types.Scenario, seeds []types.SeedEntity, p types.UserParameters) types.StageResult[[]types.CandidateEntity] {
	if len(seeds) == 0 {
		return types.Ok([]types.CandidateEntity{})
	}

	seedIDs := make([]string, len(seeds))
	for i, seed := range seeds {
		seedIDs[i] = seed.ID
	}

	if cached, ok := s.cache.GetCandidates(ctx, userID, scenario, seedIDs); ok {
		return types.Ok(cached)
	}

	candidates, err := s.traverse(ctx, userID, scenario, seeds, p)
	if err != nil {
		s.logger.Warn("graph traversal failed, degrading to seeds as candidates",
			"user_id", userID, "scenario", scenario, "seed_count", len(seeds), "error", err)
		return types.Degraded(seedsAsCandidates(seeds), err)
	}

	s.cache.SetCandidates(ctx, userID, scenario, seedIDs, candidates, p.CandidateTTL)
	return types.Ok(candidates)
}

func (s *TraversalStage) traverse(ctx context.Context, userID string, scenario types.Scenario, seeds []types.SeedEntity, p types.UserParameters) ([]types.CandidateEntity, error) {
	query, err := s.builder.Build(scenario, seeds, userID, p.MaxGraphHops, p.MaxResultLimit)
	if err != nil {
		return nil, err
	}

	if timeout := p.Timeouts.GraphQuery; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rows, err := s.graph.Run(ctx, query.Text, query.Params)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(rows)+len(seeds))
	candidates := make([]types.CandidateEntity, 0, len(rows)+len(seeds))

	// Seeds are always candidates, whether or not the traversal
	// returned them.
	for _, seed := range seeds {
		seen[seed.ID] = struct{}{}
		candidates = append(candidates, types.CandidateEntity{
			ID:         seed.ID,
			Type:       seed.Type,
			WasSeed:    true,
			Similarity: seed.Similarity,
		})
	}

	for _, row := range rows {
		id, ok := row["id"].(string)
		if !ok || id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		entityType := types.EntityTypeMemoryUnit
		if raw, ok := row["type"].(string); ok && raw != "" {
			entityType = types.EntityType(raw)
		}
		candidates = append(candidates, types.CandidateEntity{
			ID:          id,
			Type:        entityType,
			HopDistance: 1,
		})
	}

	return candidates, nil
}

func seedsAsCandidates(seeds []types.SeedEntity) []types.CandidateEntity {
	seen := make(map[string]struct{}, len(seeds))
	out := make([]types.CandidateEntity, 0, len(seeds))
	for _, seed := range seeds {
		if _, dup := seen[seed.ID]; dup {
			continue
		}
		seen[seed.ID] = struct{}{}
		out = append(out, types.CandidateEntity{
			ID:         seed.ID,
			Type:       seed.Type,
			WasSeed:    true,
			Similarity: seed.Similarity,
		})
	}
	return out
}
