package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/recallai/recall/pkg/store"
	"github.com/recallai/recall/pkg/types"
	"github.com/recallai/recall/pkg/utils"
)

// MetadataHydrator batch-fetches lightweight metadata for candidates,
// one fetch per entity type. Buckets are disjoint so they run
// concurrently. A candidate with no metadata row is not dropped; the
// scorer applies neutral defaults for it.
type MetadataHydrator struct {
	relational store.RelationalStore
	logger     *slog.Logger
}

func NewMetadataHydrator(relational store.RelationalStore, logger *slog.Logger) *MetadataHydrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataHydrator{relational: relational, logger: logger}
}

// Run returns an id-keyed metadata map for the candidates. Bucket
// failures degrade to a partial or empty map; the stage never aborts
// the pipeline.
func (h *MetadataHydrator) Run(ctx context.Context, userID string, candidates []types.CandidateEntity, p types.UserParameters) types.StageResult[map[string]types.EntityMetadata] {
	if len(candidates) == 0 {
		return types.Ok(map[string]types.EntityMetadata{})
	}

	buckets := make(map[types.EntityType][]string)
	for _, c := range candidates {
		buckets[c.Type] = append(buckets[c.Type], c.ID)
	}

	merged := make(map[string]types.EntityMetadata, len(candidates))
	var mu sync.Mutex

	fetchCtx := ctx
	if timeout := p.Timeouts.MetadataFetch; timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tasks := make([]func() error, 0, len(buckets))
	bucketTypes := make([]types.EntityType, 0, len(buckets))
	for entityType, ids := range buckets {
		bucketTypes = append(bucketTypes, entityType)
		tasks = append(tasks, func() error {
			rows, err := h.relational.FetchMetadata(fetchCtx, ids, entityType, userID)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, row := range rows {
				merged[row.ID] = row
			}
			mu.Unlock()
			return nil
		})
	}

	errs := utils.NewConcurrentExecutor(len(tasks)).Execute(ctx, tasks...)

	var firstErr error
	failed := 0
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		if firstErr == nil {
			firstErr = err
		}
		h.logger.Warn("metadata bucket fetch failed, scoring with neutral defaults",
			"user_id", userID, "entity_type", bucketTypes[i], "error", err)
	}

	if failed > 0 {
		return types.Degraded(merged,
			fmt.Errorf("%d of %d metadata buckets failed: %w", failed, len(buckets), firstErr))
	}
	return types.Ok(merged)
}
