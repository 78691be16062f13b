package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/recallai/recall/pkg/store"
	"github.com/recallai/recall/pkg/types"
	"github.com/recallai/recall/pkg/utils"
)

// HydratedContent is the stage-6 output: full records per entity type,
// each carrying the score that ranked it, in descending score order.
type HydratedContent struct {
	MemoryUnits []types.RetrievedRecord
	Concepts    []types.RetrievedRecord
	Artifacts   []types.RetrievedRecord
}

// Total counts hydrated records across the three lists.
func (h HydratedContent) Total() int {
	return len(h.MemoryUnits) + len(h.Concepts) + len(h.Artifacts)
}

// ContentHydrator fetches full content for the scored top-N. Unlike
// every earlier stage its failure is fatal: scored references without
// content are of no value to the downstream consumer.
type ContentHydrator struct {
	relational store.RelationalStore
	logger     *slog.Logger
}

func NewContentHydrator(relational store.RelationalStore, logger *slog.Logger) *ContentHydrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentHydrator{relational: relational, logger: logger}
}

func (h *ContentHydrator) Run(ctx context.Context, userID string, scored []types.ScoredEntity, p types.UserParameters) types.StageResult[HydratedContent] {
	if len(scored) == 0 {
		return types.Ok(HydratedContent{})
	}

	buckets := make(map[types.EntityType][]string)
	for _, entity := range scored {
		buckets[entity.Type] = append(buckets[entity.Type], entity.ID)
	}

	fetchCtx := ctx
	if timeout := p.Timeouts.ContentFetch; timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	records := make(map[string]store.ContentRecord, len(scored))
	var mu sync.Mutex

	tasks := make([]func() error, 0, len(buckets))
	for entityType, ids := range buckets {
		tasks = append(tasks, func() error {
			rows, err := h.relational.FetchContent(fetchCtx, ids, entityType, userID)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, row := range rows {
				records[row.ID] = row
			}
			mu.Unlock()
			return nil
		})
	}

	for _, err := range utils.NewConcurrentExecutor(len(tasks)).Execute(ctx, tasks...) {
		if err != nil {
			return types.Fatal[HydratedContent](&types.FatalPipelineError{
				Stage:   types.StageHydration,
				Summary: "content fetch failed; scored references have no usable content",
				Err:     err,
			})
		}
	}

	// Walk the scored list in rank order so each per-type list stays
	// sorted descending by final score.
	var content HydratedContent
	for _, entity := range scored {
		record, ok := records[entity.ID]
		if !ok {
			// Scored but gone from the store; dropped, not fatal.
			h.logger.Warn("scored entity has no content row, dropping",
				"user_id", userID, "entity_id", entity.ID, "entity_type", entity.Type)
			continue
		}

		hydrated := types.RetrievedRecord{
			ID:           record.ID,
			Type:         record.Type,
			Title:        record.Title,
			Content:      record.Content,
			Importance:   record.Importance,
			CreatedAt:    record.CreatedAt,
			LastModified: record.LastModified,
			FinalScore:   entity.FinalScore,
			Breakdown:    entity.Breakdown,
		}

		switch record.Type {
		case types.EntityTypeConcept:
			content.Concepts = append(content.Concepts, hydrated)
		case types.EntityTypeArtifact:
			content.Artifacts = append(content.Artifacts, hydrated)
		default:
			content.MemoryUnits = append(content.MemoryUnits, hydrated)
		}
	}

	return types.Ok(content)
}
