// Package outcome models the result of a network-backed stage.
//
// A stage either fully succeeds, succeeds through a local fallback, or fails.
// Callers read Status to tell a primary success from a degraded one, which the
// audit trail records separately.
package outcome

import "fmt"

// Status classifies how a stage produced its value.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// Result is the value of a stage plus how it was obtained.
// Err is set only for StatusFailed; Reason explains a degraded or failed result.
type Result[T any] struct {
	Value  T
	Status Status
	Reason string
	Err    error
}

// Ok wraps a value produced by the primary path.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v, Status: StatusOK}
}

// Degraded wraps a value produced by a local fallback.
func Degraded[T any](v T, reason string) Result[T] {
	return Result[T]{Value: v, Status: StatusDegraded, Reason: reason}
}

// Failed records a stage failure. The zero value of T is carried.
func Failed[T any](err error) Result[T] {
	r := Result[T]{Status: StatusFailed, Err: err}
	if err != nil {
		r.Reason = err.Error()
	}
	return r
}

func (r Result[T]) IsOK() bool       { return r.Status == StatusOK }
func (r Result[T]) IsDegraded() bool { return r.Status == StatusDegraded }
func (r Result[T]) IsFailed() bool   { return r.Status == StatusFailed }

// Usable reports whether Value may be consumed (ok or degraded).
func (r Result[T]) Usable() bool {
	return r.Status == StatusOK || r.Status == StatusDegraded
}

func (r Result[T]) String() string {
	if r.Reason == "" {
		return string(r.Status)
	}
	return fmt.Sprintf("%s (%s)", r.Status, r.Reason)
}
