// Package params resolves the per-user tunables the retrieval pipeline
// runs with: versioned defaults, optional named presets, and persisted
// per-user overrides.
package params

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/recallai/recall/pkg/store"
	"github.com/recallai/recall/pkg/types"
)

// DefaultsVersion identifies the current defaults revision. Persisted
// overrides carry the version they were derived from; older overrides
// have their unset fields backfilled from the current defaults.
const DefaultsVersion = "2026-08"

// Defaults returns the current default parameter set. The returned value
// always passes Validate.
func Defaults() types.UserParameters {
	return types.UserParameters{
		Version:                    DefaultsVersion,
		ResultsPerPhrase:           5,
		MaxGraphHops:               2,
		MaxResultLimit:             50,
		TopNCandidatesForHydration: 10,
		RecencyDecayRate:           0.05,
		DiversityThreshold:         0.85,
		PhraseFanOut:               8,
		Weights: types.RetrievalWeights{
			Alpha: 0.5,
			Beta:  0.3,
			Gamma: 0.2,
		},
		Timeouts: types.StageTimeouts{
			Embedding:     5 * time.Second,
			VectorQuery:   3 * time.Second,
			GraphQuery:    5 * time.Second,
			MetadataFetch: 3 * time.Second,
			ContentFetch:  5 * time.Second,
			Stage:         10 * time.Second,
		},
		MaxRetrievalTime: 30 * time.Second,
		FullResultTTL:    5 * time.Minute,
		SeedTTL:          time.Hour,
		CandidateTTL:     30 * time.Minute,
	}
}

// Resolver produces the effective parameters for a user: defaults,
// overlaid with an optional preset, overlaid with the user's stored
// overrides. Resolution is tolerant: a failing store or an invalid
// stored override logs a warning and falls back, so a retrieval never
// dies on parameter lookup.
type Resolver struct {
	store   store.RelationalStore
	presets map[string]types.UserParameters
	logger  *slog.Logger
}

// NewResolver builds a resolver. The store may be nil, in which case no
// per-user overrides are consulted.
func NewResolver(relational store.RelationalStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:   relational,
		presets: make(map[string]types.UserParameters),
		logger:  logger,
	}
}

// LoadPresets reads every *.yaml file in dir as a named preset; the
// preset name is the file name without extension. Presets are partial:
// unset fields inherit from the defaults. An invalid preset is a
// configuration error, caught at startup rather than per request.
func (r *Resolver) LoadPresets(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return &types.ConfigurationError{Component: "params", Reason: fmt.Sprintf("reading preset dir %s: %v", dir, err)}
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return &types.ConfigurationError{Component: "params", Reason: fmt.Sprintf("reading preset %s: %v", name, err)}
		}

		var preset types.UserParameters
		if err := yaml.Unmarshal(raw, &preset); err != nil {
			return &types.ConfigurationError{Component: "params", Reason: fmt.Sprintf("parsing preset %s: %v", name, err)}
		}

		merged := Merge(Defaults(), preset)
		if err := merged.Validate(); err != nil {
			return &types.ConfigurationError{Component: "params", Reason: fmt.Sprintf("preset %s invalid: %v", name, err)}
		}

		presetName := strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
		r.presets[presetName] = merged
	}
	return nil
}

// PresetNames lists the loaded presets, sorted.
func (r *Resolver) PresetNames() []string {
	names := make([]string, 0, len(r.presets))
	for name := range r.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the effective parameters for a user. preset may be
// empty; an unknown preset name logs a warning and is ignored.
func (r *Resolver) Resolve(ctx context.Context, userID, preset string) types.UserParameters {
	effective := Defaults()

	if preset != "" {
		if p, ok := r.presets[preset]; ok {
			effective = p
		} else {
			r.logger.Warn("unknown parameter preset, using defaults", "preset", preset, "user_id", userID)
		}
	}

	if r.store == nil || userID == "" {
		return effective
	}

	stored, err := r.store.FetchParameters(ctx, userID)
	if err != nil {
		r.logger.Warn("parameter override fetch failed, using defaults", "user_id", userID, "error", err)
		return effective
	}
	if stored == nil {
		return effective
	}

	merged := Merge(effective, *stored)
	if err := merged.Validate(); err != nil {
		r.logger.Warn("stored parameter overrides invalid, using defaults", "user_id", userID, "error", err)
		return effective
	}
	return merged
}

// Update validates and persists a user's parameter overrides. This is
// the edit boundary: invalid parameters are rejected here with a
// ValidationError and never reach the store.
func (r *Resolver) Update(ctx context.Context, userID string, p types.UserParameters) error {
	if userID == "" {
		return &types.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if r.store == nil {
		return &types.ConfigurationError{Component: "params", Reason: "no relational store configured for parameter overrides"}
	}

	merged := Merge(Defaults(), p)
	if err := merged.Validate(); err != nil {
		return err
	}
	merged.Version = DefaultsVersion

	return r.store.SaveParameters(ctx, userID, &merged)
}

// Merge overlays non-zero fields of override onto base. Weights and
// timeouts are overlaid as whole groups when any of their fields is set,
// so a partial triple never silently mixes with defaults.
func Merge(base, override types.UserParameters) types.UserParameters {
	out := base

	if override.Version != "" {
		out.Version = override.Version
	}
	if override.ResultsPerPhrase != 0 {
		out.ResultsPerPhrase = override.ResultsPerPhrase
	}
	if override.MaxGraphHops != 0 {
		out.MaxGraphHops = override.MaxGraphHops
	}
	if override.MaxResultLimit != 0 {
		out.MaxResultLimit = override.MaxResultLimit
	}
	if override.TopNCandidatesForHydration != 0 {
		out.TopNCandidatesForHydration = override.TopNCandidatesForHydration
	}
	if override.RecencyDecayRate != 0 {
		out.RecencyDecayRate = override.RecencyDecayRate
	}
	if override.DiversityThreshold != 0 {
		out.DiversityThreshold = override.DiversityThreshold
	}
	if override.PhraseFanOut != 0 {
		out.PhraseFanOut = override.PhraseFanOut
	}

	if override.Weights != (types.RetrievalWeights{}) {
		out.Weights = override.Weights
	}
	if override.Timeouts != (types.StageTimeouts{}) {
		out.Timeouts = override.Timeouts
	}

	if override.MaxRetrievalTime != 0 {
		out.MaxRetrievalTime = override.MaxRetrievalTime
	}
	if override.FullResultTTL != 0 {
		out.FullResultTTL = override.FullResultTTL
	}
	if override.SeedTTL != 0 {
		out.SeedTTL = override.SeedTTL
	}
	if override.CandidateTTL != 0 {
		out.CandidateTTL = override.CandidateTTL
	}

	return out
}
