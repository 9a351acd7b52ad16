package broker

import (
	"errors"
	"fmt"
)

// CallError classifies a failed broker or data-provider call so callers can
// branch explicitly instead of treating every failure the same way.
// Transient failures (network, rate limits, 5xx) mean "no data this cycle";
// permanent failures (bad credentials, unknown instrument) will not heal on
// retry.
type CallError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *CallError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Op, kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Transient wraps err as a transient call failure.
func Transient(op string, err error) error {
	return &CallError{Op: op, Transient: true, Err: err}
}

// Permanent wraps err as a permanent call failure.
func Permanent(op string, err error) error {
	return &CallError{Op: op, Transient: false, Err: err}
}

// IsTransient reports whether err is (or wraps) a transient call failure.
// Unclassified errors are treated as transient so a flaky backend never
// kills a loop.
func IsTransient(err error) bool {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Transient
	}
	return true
}
