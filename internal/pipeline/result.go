package pipeline

import "moex-bond-screener/internal/bond"

// Result is the outcome of one enrichment stage: a value, a filter reason, or
// an error. Exactly one of the three is meaningful.
type Result[T any] struct {
	Value  T
	Reason bond.FilterReason
	Err    error
}

// Ok wraps a successful stage value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Dropped marks the identifier as filtered out by a business rule.
func Dropped[T any](reason bond.FilterReason) Result[T] {
	return Result[T]{Reason: reason}
}

// Failed marks the identifier as failed for this cycle.
func Failed[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

func (r Result[T]) IsOk() bool      { return r.Err == nil && !r.Reason.Filtered() }
func (r Result[T]) IsDropped() bool { return r.Err == nil && r.Reason.Filtered() }
func (r Result[T]) IsFailed() bool  { return r.Err != nil }

// carry converts a non-ok result into another stage's result type.
func carry[U, T any](r Result[T]) Result[U] {
	return Result[U]{Reason: r.Reason, Err: r.Err}
}
