package retry

import (
	"errors"
	"fmt"
	"strings"
)

// Class is the failure taxonomy the controller acts on.
type Class string

const (
	// ClassTransient covers network, timeout, and connection errors.
	// Always retried per the backoff policy.
	ClassTransient Class = "transient"
	// ClassValidation covers malformed or unexpected input shape.
	// Retried exactly once (a mapping suggestion may self-correct),
	// permanent thereafter.
	ClassValidation Class = "validation"
	// ClassPermanent covers authentication failures, exhausted retry
	// budgets, and unrecognized errors past their free retry.
	ClassPermanent Class = "permanent"
)

// ClassifiedError lets processors attach an explicit class to an error
// instead of relying on string heuristics. Heuristics remain the
// fallback for errors from opaque external systems.
type ClassifiedError struct {
	Class Class
	Err   error
}

// Error implements error.
func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Class, e.Err.Error())
}

// Unwrap exposes the underlying error to errors.Is/As.
func (e *ClassifiedError) Unwrap() error { return e.Err }

// Transient wraps err as an explicitly transient failure.
func Transient(err error) error {
	return &ClassifiedError{Class: ClassTransient, Err: err}
}

// Validation wraps err as an explicitly validation-class failure.
func Validation(err error) error {
	return &ClassifiedError{Class: ClassValidation, Err: err}
}

// Permanent wraps err as an explicitly permanent failure.
func Permanent(err error) error {
	return &ClassifiedError{Class: ClassPermanent, Err: err}
}

// transientMarkers are substrings that identify network-shaped failures
// from external systems that don't return classified errors.
var transientMarkers = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"broken pipe",
	"temporarily unavailable",
	"too many requests",
	"rate limit",
	"unexpected eof",
	"network",
	"503",
	"502",
	"429",
}

// validationMarkers identify input-shape failures that get one free
// retry before turning permanent.
var validationMarkers = []string{
	"mapping",
	"validation",
	"invalid field",
	"unexpected format",
	"schema",
	"unmarshal",
	"parse error",
	"malformed",
}

// permanentMarkers identify failures no retry can fix.
var permanentMarkers = []string{
	"unauthorized",
	"authentication",
	"forbidden",
	"invalid api key",
	"401",
	"403",
}

// ClassifyError determines the class of err. An explicit
// ClassifiedError wins; otherwise the error string is matched against
// the marker lists; anything unrecognized is transient-shaped for
// exactly one retry and permanent after (Decide applies that rule).
func ClassifyError(err error) (Class, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return classifyMessage(err.Error())
}

// ClassifyMessage classifies a recorded error message. Used when only
// the persisted message is available (the error value is gone once the
// invocation that produced it has exited).
func ClassifyMessage(msg string) (Class, bool) {
	return classifyMessage(msg)
}

func classifyMessage(msg string) (Class, bool) {
	lower := strings.ToLower(msg)

	// A message persisted from a ClassifiedError carries its class as a
	// prefix (ClassifiedError.Error formats "class: message"). The
	// explicit class outlives the error value, so it wins over every
	// marker heuristic.
	switch {
	case strings.HasPrefix(lower, string(ClassTransient)+":"):
		return ClassTransient, true
	case strings.HasPrefix(lower, string(ClassValidation)+":"):
		return ClassValidation, true
	case strings.HasPrefix(lower, string(ClassPermanent)+":"):
		return ClassPermanent, true
	}

	for _, m := range permanentMarkers {
		if strings.Contains(lower, m) {
			return ClassPermanent, true
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(lower, m) {
			return ClassTransient, true
		}
	}
	for _, m := range validationMarkers {
		if strings.Contains(lower, m) {
			return ClassValidation, true
		}
	}
	return ClassPermanent, false
}

// Decide resolves whether a failed unit should be retried, given its
// recorded error message and the number of retries already attempted.
//
//   - transient: retry while budget remains
//   - validation: one free retry, permanent after
//   - permanent: never retried
//   - unrecognized: one retry, permanent after
func Decide(msg string, retryCount, maxRetries int) Class {
	if retryCount >= maxRetries {
		return ClassPermanent
	}

	class, recognized := classifyMessage(msg)
	if !recognized {
		// Unknown failure class: one retry, then stop.
		if retryCount > 0 {
			return ClassPermanent
		}
		return ClassTransient
	}

	if class == ClassValidation && retryCount > 0 {
		return ClassPermanent
	}
	return class
}
