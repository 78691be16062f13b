package pipeline

import (
	"log/slog"

	"github.com/recallai/recall/pkg/score"
	"github.com/recallai/recall/pkg/types"
	"github.com/recallai/recall/pkg/utils"
)

// ScoringStage ranks candidates and selects the top-N for hydration.
// A scoring failure degrades to the first few raw candidates at a
// neutral score, so the pipeline can still hydrate something.
type ScoringStage struct {
	scorer *score.Scorer
	logger *slog.Logger
}

func NewScoringStage(scorer *score.Scorer, logger *slog.Logger) *ScoringStage {
	if scorer == nil {
		scorer = score.NewScorer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScoringStage{scorer: scorer, logger: logger}
}

func (s *ScoringStage) Run(candidates []types.CandidateEntity, metadata map[string]types.EntityMetadata, p types.UserParameters) (result types.StageResult[[]types.ScoredEntity]) {
	defer utils.RecoverWithCallback(func(err error) {
		s.logger.Error("scoring panicked, falling back to neutral scores", "error", err)
		result = types.Degraded(score.NeutralFallback(candidates), err)
	})

	scored := s.scorer.Score(candidates, metadata, p.Weights, p.RecencyDecayRate, p.DiversityThreshold, p.TopNCandidatesForHydration)
	return types.Ok(scored)
}
