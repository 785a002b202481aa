package types

// Status is how a stage finished.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFatal    Status = "fatal"
)

// Outcome is what every stage returns to the pipeline driver. A degraded
// outcome still carries a usable Value (the fallback) and the Err that caused
// the fallback; a fatal outcome carries only Err.
type Outcome[T any] struct {
	Value  T
	Status Status
	Err    error
}

// OK wraps a primary result.
func OK[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v, Status: StatusOK}
}

// Degraded wraps a fallback result and the reason for it.
func Degraded[T any](v T, err error) Outcome[T] {
	return Outcome[T]{Value: v, Status: StatusDegraded, Err: err}
}

// Fatal wraps a failure with no usable result.
func Fatal[T any](err error) Outcome[T] {
	return Outcome[T]{Status: StatusFatal, Err: err}
}

// IsFatal reports whether the stage produced no usable value.
func (o Outcome[T]) IsFatal() bool { return o.Status == StatusFatal }

// IsDegraded reports whether the value is a fallback.
func (o Outcome[T]) IsDegraded() bool { return o.Status == StatusDegraded }
