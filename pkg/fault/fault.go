// Package fault classifies backend failures so the dispatcher can decide
// between surfacing an error and degrading to the fallback adapter.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// Class buckets a failure for fallback policy. See Classify.
type Class string

const (
	// ClassAuth means a missing or rejected credential. Never masked by
	// fallback: the caller must see it to fix configuration.
	ClassAuth Class = "auth_error"

	// ClassRateLimited means the backend refused for quota reasons.
	ClassRateLimited Class = "rate_limited"

	// ClassUnavailable covers 5xx responses, timeouts, and a model that is
	// still loading. The caller may retry the original model shortly.
	ClassUnavailable Class = "service_unavailable"

	// ClassConnRefused means nothing answered at all, typically a local
	// daemon that is not running.
	ClassConnRefused Class = "connection_refused"

	// ClassMalformed covers requests the backend rejected as invalid and
	// upstream responses this pipeline could not parse.
	ClassMalformed Class = "malformed_request"

	// ClassUnknown is everything else.
	ClassUnknown Class = "unknown"
)

// Failure is a classified backend error.
type Failure struct {
	Class Class
	// Message is safe to show to the user; it names the likely cause in
	// plain terms (for example the unreachable daemon's base URL).
	Message string
	// Loading marks the "try again shortly" flavor of ClassUnavailable.
	Loading bool
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Class, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Class, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// New builds a Failure with a user-readable message.
func New(class Class, message string) *Failure {
	return &Failure{Class: class, Message: message}
}

// Wrap builds a Failure around an upstream error.
func Wrap(class Class, message string, err error) *Failure {
	return &Failure{Class: class, Message: message, Err: err}
}

// FromStatus maps an upstream HTTP status to a failure class.
func FromStatus(status int) Class {
	switch {
	case status == 401 || status == 403:
		return ClassAuth
	case status == 429:
		return ClassRateLimited
	case status == 408 || status >= 500:
		return ClassUnavailable
	case status >= 400:
		return ClassMalformed
	default:
		return ClassUnknown
	}
}

// Classify extracts the failure class from err. Adapters return *Failure
// directly; anything else is inspected for transport-level causes before
// defaulting to ClassUnknown.
func Classify(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return Wrap(ClassConnRefused, "connection refused", err)
	case errors.Is(err, context.DeadlineExceeded), os.IsTimeout(err):
		return &Failure{Class: ClassUnavailable, Message: "request timed out", Loading: true, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Failure{Class: ClassUnavailable, Message: "request timed out", Loading: true, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if strings.Contains(opErr.Error(), "connection refused") {
			return Wrap(ClassConnRefused, "connection refused", err)
		}
		return Wrap(ClassUnavailable, "network error", err)
	}
	return Wrap(ClassUnknown, "backend error", err)
}
