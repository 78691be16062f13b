package types

import (
	"fmt"
	"time"
)

// Stage names the pipeline stages for timings, counts and error records.
type Stage string

const (
	StageNormalize    Stage = "normalize"
	StageGrounding    Stage = "grounding"
	StageTraversal    Stage = "traversal"
	StageMetadata     Stage = "metadata"
	StageScoring      Stage = "scoring"
	StageHydration    Stage = "hydration"
	StageOrchestrator Stage = "orchestrator"
)

// Impact tags how a recorded error affected the request.
type Impact string

const (
	ImpactDegraded Impact = "degraded"
	ImpactFatal    Impact = "fatal"
)

// StageError is one entry in a request's error trail.
type StageError struct {
	Stage     Stage     `json:"stage"`
	Message   string    `json:"error"`
	Impact    Impact    `json:"impact"`
	Timestamp time.Time `json:"timestamp"`
}

// ConfigurationError reports an invalid query template or malformed default
// parameters. It is fatal at construction time and prevents the pipeline
// from starting.
type ConfigurationError struct {
	Component string
	Reason    string
	Err       error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error in %s: %s: %v", e.Component, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ValidationError reports user-supplied parameters outside their allowed
// range. It is rejected at the parameter-edit boundary, never at retrieval
// time.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Reason)
}

// TransientStoreError wraps a single failed store call. Stages decide
// whether it degrades or, for content hydration, turns fatal.
type TransientStoreError struct {
	Store string
	Op    string
	Err   error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Store, e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// FatalPipelineError is surfaced to the caller when hydration fails or an
// orchestrator-level error escapes every degrade path. It carries whatever
// partial diagnostic context was collected before the failure.
type FatalPipelineError struct {
	Stage   Stage
	Summary string
	Err     error
}

func (e *FatalPipelineError) Error() string {
	return fmt.Sprintf("pipeline failed at %s stage: %s: %v", e.Stage, e.Summary, e.Err)
}

func (e *FatalPipelineError) Unwrap() error { return e.Err }
