package types

import (
	"fmt"
	"math"
	"time"
)

// WeightSumTolerance is how far alpha+beta+gamma may drift from 1.0 before
// a weight triple is rejected at the parameter-edit boundary. The scorer
// itself never enforces this; out-of-tolerance weights simply produce a
// differently-weighted score.
const WeightSumTolerance = 0.01

// RetrievalWeights are the scoring coefficients: alpha weights semantic
// similarity, beta weights recency, gamma weights stored importance.
type RetrievalWeights struct {
	Alpha float64 `json:"alpha" mapstructure:"alpha" yaml:"alpha"`
	Beta  float64 `json:"beta" mapstructure:"beta" yaml:"beta"`
	Gamma float64 `json:"gamma" mapstructure:"gamma" yaml:"gamma"`
}

// Validate checks the triple against the persist-time rules: every weight
// in [0,1] and the sum within tolerance of 1.0.
func (w RetrievalWeights) Validate() error {
	for name, v := range map[string]float64{"alpha": w.Alpha, "beta": w.Beta, "gamma": w.Gamma} {
		if v < 0 || v > 1 {
			return &ValidationError{Field: "weights." + name, Reason: fmt.Sprintf("must be in [0,1], got %v", v)}
		}
	}
	if sum := w.Alpha + w.Beta + w.Gamma; math.Abs(sum-1.0) > WeightSumTolerance {
		return &ValidationError{Field: "weights", Reason: fmt.Sprintf("must sum to 1.0 within %v, got %v", WeightSumTolerance, sum)}
	}
	return nil
}

// StageTimeouts bounds each class of external call plus the wall-clock
// budget of a whole stage.
type StageTimeouts struct {
	Embedding     time.Duration `json:"embedding" mapstructure:"embedding" yaml:"embedding"`
	VectorQuery   time.Duration `json:"vector_query" mapstructure:"vector_query" yaml:"vector_query"`
	GraphQuery    time.Duration `json:"graph_query" mapstructure:"graph_query" yaml:"graph_query"`
	MetadataFetch time.Duration `json:"metadata_fetch" mapstructure:"metadata_fetch" yaml:"metadata_fetch"`
	ContentFetch  time.Duration `json:"content_fetch" mapstructure:"content_fetch" yaml:"content_fetch"`
	Stage         time.Duration `json:"stage" mapstructure:"stage" yaml:"stage"`
}

// UserParameters bundles every per-user tunable the pipeline consults.
type UserParameters struct {
	// Version identifies which defaults revision these parameters derive
	// from, so persisted overrides can be migrated when defaults change.
	Version string `json:"version" mapstructure:"version" yaml:"version"`

	ResultsPerPhrase           int     `json:"results_per_phrase" mapstructure:"results_per_phrase" yaml:"results_per_phrase"`
	MaxGraphHops               int     `json:"max_graph_hops" mapstructure:"max_graph_hops" yaml:"max_graph_hops"`
	MaxResultLimit             int     `json:"max_result_limit" mapstructure:"max_result_limit" yaml:"max_result_limit"`
	TopNCandidatesForHydration int     `json:"top_n_candidates_for_hydration" mapstructure:"top_n_candidates_for_hydration" yaml:"top_n_candidates_for_hydration"`
	RecencyDecayRate           float64 `json:"recency_decay_rate" mapstructure:"recency_decay_rate" yaml:"recency_decay_rate"`
	DiversityThreshold         float64 `json:"diversity_threshold" mapstructure:"diversity_threshold" yaml:"diversity_threshold"`

	// PhraseFanOut caps how many phrases embed-and-query concurrently in
	// the grounding stage.
	PhraseFanOut int `json:"phrase_fan_out" mapstructure:"phrase_fan_out" yaml:"phrase_fan_out"`

	Weights  RetrievalWeights `json:"weights" mapstructure:"weights" yaml:"weights"`
	Timeouts StageTimeouts    `json:"timeouts" mapstructure:"timeouts" yaml:"timeouts"`

	// MaxRetrievalTime bounds the whole pipeline; when it expires the
	// context handed to every store call is cancelled.
	MaxRetrievalTime time.Duration `json:"max_retrieval_time" mapstructure:"max_retrieval_time" yaml:"max_retrieval_time"`

	// CacheTTLs for the three cache tiers.
	FullResultTTL time.Duration `json:"full_result_ttl" mapstructure:"full_result_ttl" yaml:"full_result_ttl"`
	SeedTTL       time.Duration `json:"seed_ttl" mapstructure:"seed_ttl" yaml:"seed_ttl"`
	CandidateTTL  time.Duration `json:"candidate_ttl" mapstructure:"candidate_ttl" yaml:"candidate_ttl"`
}

// Validate applies the parameter-edit boundary rules. Retrieval itself
// never calls this; a request carrying odd parameters still runs.
func (p *UserParameters) Validate() error {
	if p.ResultsPerPhrase < 1 || p.ResultsPerPhrase > 100 {
		return &ValidationError{Field: "results_per_phrase", Reason: fmt.Sprintf("must be in [1,100], got %d", p.ResultsPerPhrase)}
	}
	if p.MaxGraphHops < 1 || p.MaxGraphHops > 10 {
		return &ValidationError{Field: "max_graph_hops", Reason: fmt.Sprintf("must be in [1,10], got %d", p.MaxGraphHops)}
	}
	if p.MaxResultLimit < 1 || p.MaxResultLimit > 1000 {
		return &ValidationError{Field: "max_result_limit", Reason: fmt.Sprintf("must be in [1,1000], got %d", p.MaxResultLimit)}
	}
	if p.TopNCandidatesForHydration < 1 || p.TopNCandidatesForHydration > p.MaxResultLimit {
		return &ValidationError{Field: "top_n_candidates_for_hydration", Reason: fmt.Sprintf("must be in [1,max_result_limit], got %d", p.TopNCandidatesForHydration)}
	}
	if p.RecencyDecayRate < 0 {
		return &ValidationError{Field: "recency_decay_rate", Reason: "must be non-negative"}
	}
	return p.Weights.Validate()
}
