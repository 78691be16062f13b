// Package pipeline implements the six-stage hybrid retrieval pipeline:
// key-phrase normalization, semantic grounding against the vector index,
// graph traversal, metadata hydration, weighted scoring, and content
// hydration, sequenced by an orchestrator that applies caching and the
// degrade/fatal policy per stage.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/recallai/recall/pkg/cache"
	"github.com/recallai/recall/pkg/normalize"
	"github.com/recallai/recall/pkg/params"
	"github.com/recallai/recall/pkg/telemetry"
	"github.com/recallai/recall/pkg/types"
)

// Deps are the orchestrator's collaborators. Cache, resolver and
// recorder are optional; the five stages are required.
type Deps struct {
	Grounding *GroundingStage
	Traversal *TraversalStage
	Metadata  *MetadataHydrator
	Scoring   *ScoringStage
	Hydrator  *ContentHydrator

	Cache    *cache.Layer
	Resolver *params.Resolver
	Recorder *telemetry.Recorder
	Logger   *slog.Logger
}

// Orchestrator runs one retrieval end to end: execution context, cache
// check, stages 1→6, cache write. Degraded-impact stage errors are
// recorded and execution continues; a fatal-impact error short-circuits
// to a structured failure result.
type Orchestrator struct {
	grounding *GroundingStage
	traversal *TraversalStage
	metadata  *MetadataHydrator
	scoring   *ScoringStage
	hydrator  *ContentHydrator

	cache    *cache.Layer
	resolver *params.Resolver
	recorder *telemetry.Recorder
	logger   *slog.Logger
}

// NewOrchestrator validates the dependency set and builds the
// orchestrator. Missing stages are a configuration error.
func NewOrchestrator(deps Deps) (*Orchestrator, error) {
	missing := ""
	switch {
	case deps.Grounding == nil:
		missing = "grounding stage"
	case deps.Traversal == nil:
		missing = "traversal stage"
	case deps.Metadata == nil:
		missing = "metadata hydrator"
	case deps.Scoring == nil:
		missing = "scoring stage"
	case deps.Hydrator == nil:
		missing = "content hydrator"
	}
	if missing != "" {
		return nil, &types.ConfigurationError{Component: "orchestrator", Reason: missing + " is required"}
	}

	resolver := deps.Resolver
	if resolver == nil {
		resolver = params.NewResolver(nil, deps.Logger)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		grounding: deps.Grounding,
		traversal: deps.Traversal,
		metadata:  deps.Metadata,
		scoring:   deps.Scoring,
		hydrator:  deps.Hydrator,
		cache:     deps.Cache,
		resolver:  resolver,
		recorder:  deps.Recorder,
		logger:    logger,
	}, nil
}

// Retrieve runs the pipeline for one request. The returned result is
// always non-nil; on the fatal path it carries empty hydrated lists, a
// fatal-impact error entry and a failure summary, and the returned
// error is non-nil.
func (o *Orchestrator) Retrieve(ctx context.Context, req types.RetrievalRequest) (*types.RetrievalResult, error) {
	if req.UserID == "" {
		return nil, &types.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}

	effective := o.resolver.Resolve(ctx, req.UserID, "")
	if req.Parameters != nil {
		effective = params.Merge(effective, *req.Parameters)
	}
	scenario := types.ParseScenario(string(req.Scenario))

	ec := types.NewExecutionContext(uuid.NewString(), req.UserID)
	logger := o.logger.With("request_id", ec.RequestID, "user_id", req.UserID, "scenario", scenario)

	if effective.MaxRetrievalTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, effective.MaxRetrievalTime)
		defer cancel()
	}

	// Stage 1: normalize. Never fails; the safe variant falls back to a
	// best-effort filter.
	start := time.Now()
	phrases := normalize.PhrasesSafe(req.KeyPhrases)
	ec.RecordTiming(types.StageNormalize, time.Since(start))
	ec.RecordOutcome(types.StageNormalize, types.StageOutcome{Status: types.StatusOk, Count: len(phrases)})

	fullKey := cache.FullResultKey(req.UserID, req.ConversationID, scenario, phrases, effective.Weights)
	if cached, ok := o.cache.GetFullResult(ctx, fullKey); ok {
		logger.Info("full-result cache hit", "records", cached.TotalRecords())
		ec.RecordOutcome(types.StageOrchestrator, types.StageOutcome{Status: types.StatusOk, Count: cached.TotalRecords(), CacheHit: true})
		o.recorder.Record(ec, scenario, cached, true)
		return cached, nil
	}

	// Stage 2: semantic grounding. Each store-bound stage runs under its
	// own wall-clock deadline layered on the overall one; on expiry the
	// stage's degrade path takes over.
	start = time.Now()
	stageCtx, cancel := stageContext(ctx, effective)
	seedResult := o.grounding.Run(stageCtx, req.UserID, phrases, effective)
	cancel()
	recordStage(ec, types.StageGrounding, time.Since(start), seedResult.Status, len(seedResult.Value), seedResult.Err)
	seeds := seedResult.Value

	// Stage 3: graph traversal.
	start = time.Now()
	stageCtx, cancel = stageContext(ctx, effective)
	candidateResult := o.traversal.Run(stageCtx, req.UserID, scenario, seeds, effective)
	cancel()
	recordStage(ec, types.StageTraversal, time.Since(start), candidateResult.Status, len(candidateResult.Value), candidateResult.Err)
	candidates := candidateResult.Value

	// Stage 4: metadata hydration.
	start = time.Now()
	stageCtx, cancel = stageContext(ctx, effective)
	metadataResult := o.metadata.Run(stageCtx, req.UserID, candidates, effective)
	cancel()
	recordStage(ec, types.StageMetadata, time.Since(start), metadataResult.Status, len(metadataResult.Value), metadataResult.Err)

	// Stage 5: scoring.
	start = time.Now()
	scoredResult := o.scoring.Run(candidates, metadataResult.Value, effective)
	recordStage(ec, types.StageScoring, time.Since(start), scoredResult.Status, len(scoredResult.Value), scoredResult.Err)
	scored := scoredResult.Value

	// Stage 6: content hydration. The one stage whose failure is fatal.
	start = time.Now()
	stageCtx, cancel = stageContext(ctx, effective)
	contentResult := o.hydrator.Run(stageCtx, req.UserID, scored, effective)
	cancel()
	recordStage(ec, types.StageHydration, time.Since(start), contentResult.Status, contentResult.Value.Total(), contentResult.Err)
	if contentResult.Status == types.StatusFatal {
		logger.Error("retrieval failed at content hydration", "error", contentResult.Err)
		result := o.fatalResult(ec, effective, len(seeds), len(candidates), contentResult.Err)
		o.recorder.Record(ec, scenario, result, false)
		return result, contentResult.Err
	}

	result := &types.RetrievalResult{
		MemoryUnits: emptyIfNil(contentResult.Value.MemoryUnits),
		Concepts:    emptyIfNil(contentResult.Value.Concepts),
		Artifacts:   emptyIfNil(contentResult.Value.Artifacts),
		Summary:     buildSummary(scenario, len(phrases), contentResult.Value),
		Scoring: types.ScoringDetails{
			Weights:        effective.Weights,
			SeedCount:      len(seeds),
			CandidateCount: len(candidates),
			Scored:         scored,
		},
		Errors:      ec.Errors(),
		Performance: types.BuildPerformance(ec),
	}

	// Only a clean run is cached; a degraded result would otherwise be
	// served for the whole TTL after the stores recover.
	if len(result.Errors) == 0 {
		o.cache.SetFullResult(ctx, fullKey, result, effective.FullResultTTL)
	}

	logger.Info("retrieval complete",
		"records", result.TotalRecords(),
		"seeds", len(seeds),
		"candidates", len(candidates),
		"degraded_errors", len(result.Errors),
		"elapsed_ms", ec.Elapsed().Milliseconds())
	o.recorder.Record(ec, scenario, result, false)
	return result, nil
}

func (o *Orchestrator) fatalResult(ec *types.ExecutionContext, p types.UserParameters, seedCount, candidateCount int, cause error) *types.RetrievalResult {
	return &types.RetrievalResult{
		MemoryUnits: []types.RetrievedRecord{},
		Concepts:    []types.RetrievedRecord{},
		Artifacts:   []types.RetrievedRecord{},
		Summary:     fmt.Sprintf("retrieval failed: %v", cause),
		Scoring: types.ScoringDetails{
			Weights:        p.Weights,
			SeedCount:      seedCount,
			CandidateCount: candidateCount,
		},
		Errors:      ec.Errors(),
		Performance: types.BuildPerformance(ec),
	}
}

// stageContext layers the per-stage wall-clock deadline on top of the
// request context. A zero Stage timeout leaves the context untouched.
func stageContext(ctx context.Context, p types.UserParameters) (context.Context, context.CancelFunc) {
	if p.Timeouts.Stage <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.Timeouts.Stage)
}

func recordStage(ec *types.ExecutionContext, stage types.Stage, elapsed time.Duration, status types.StageStatus, count int, err error) {
	ec.RecordTiming(stage, elapsed)
	ec.RecordOutcome(stage, types.StageOutcome{Status: status, Count: count})
	if err == nil {
		return
	}
	impact := types.ImpactDegraded
	if status == types.StatusFatal {
		impact = types.ImpactFatal
	}
	ec.RecordError(stage, err, impact)
}

func buildSummary(scenario types.Scenario, phraseCount int, content HydratedContent) string {
	if content.Total() == 0 {
		return fmt.Sprintf("no memories matched the %d key phrase(s) for the %s scenario", phraseCount, scenario)
	}

	parts := make([]string, 0, 3)
	if n := len(content.MemoryUnits); n > 0 {
		parts = append(parts, fmt.Sprintf("%d memory unit(s)", n))
	}
	if n := len(content.Concepts); n > 0 {
		parts = append(parts, fmt.Sprintf("%d concept(s)", n))
	}
	if n := len(content.Artifacts); n > 0 {
		parts = append(parts, fmt.Sprintf("%d artifact(s)", n))
	}
	return fmt.Sprintf("retrieved %s via the %s scenario from %d key phrase(s)",
		strings.Join(parts, ", "), scenario, phraseCount)
}

func emptyIfNil(records []types.RetrievedRecord) []types.RetrievedRecord {
	if records == nil {
		return []types.RetrievedRecord{}
	}
	return records
}
