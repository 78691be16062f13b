package types

// StageStatus tags a stage's outcome. Stages return a tagged result rather
// than letting errors cross stage boundaries; the orchestrator switches on
// the tag to decide continue, fall back, or abort.
type StageStatus int

const (
	StatusOk StageStatus = iota
	StatusDegraded
	StatusFatal
)

// StageResult is the tagged outcome of one stage. A degraded result still
// carries a usable (possibly reduced) value; a fatal result carries none.
type StageResult[T any] struct {
	Status StageStatus
	Value  T
	Err    error
}

// Ok wraps a fully successful stage value.
func Ok[T any](value T) StageResult[T] {
	return StageResult[T]{Status: StatusOk, Value: value}
}

// Degraded wraps a reduced-but-usable value with the error that caused the
// reduction.
func Degraded[T any](value T, err error) StageResult[T] {
	return StageResult[T]{Status: StatusDegraded, Value: value, Err: err}
}

// Fatal wraps an unrecoverable stage failure.
func Fatal[T any](err error) StageResult[T] {
	return StageResult[T]{Status: StatusFatal, Err: err}
}
