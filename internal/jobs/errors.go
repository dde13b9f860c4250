package jobs

import (
	"context"
	"errors"
	"fmt"
)

// Failure taxonomy sentinels. Components wrap them so callers can classify with errors.Is.
var (
	ErrNetwork    = errors.New("network failure")
	ErrParse      = errors.New("parse failure")
	ErrAutomation = errors.New("automation failure")

	// ErrBodyTooLarge is returned instead of a truncated body.
	ErrBodyTooLarge = fmt.Errorf("%w: response body exceeds limit", ErrParse)
)

// FailureKind classifies why an outcome contributed nothing.
type FailureKind string

// Failure kinds reported on outcomes and metrics.
const (
	FailureNone       FailureKind = "none"
	FailureNetwork    FailureKind = "network"
	FailureParse      FailureKind = "parse"
	FailureAutomation FailureKind = "automation"
	FailureCanceled   FailureKind = "canceled"
)

// ClassifyFailure maps an error onto the failure taxonomy. Sentinels win over context errors:
// a per-fetch timeout wrapped in ErrNetwork is a network failure, a bare context error means
// the scan itself was stopped.
func ClassifyFailure(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrNetwork):
		return FailureNetwork
	case errors.Is(err, ErrAutomation):
		return FailureAutomation
	case errors.Is(err, ErrParse):
		return FailureParse
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureCanceled
	default:
		return FailureParse
	}
}
