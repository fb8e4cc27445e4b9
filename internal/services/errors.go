package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool      = errors.New("external tool error")
	ErrValidation        = errors.New("validation error")
	ErrConfiguration     = errors.New("configuration error")
	ErrNotFound          = errors.New("not found")
	ErrTimeout           = errors.New("timeout")
	ErrTransient         = errors.New("transient failure")
	ErrGateExhausted     = errors.New("quality gate exhausted")
	ErrCandidateRejected = errors.New("candidate rejected")
	ErrNoViableCandidate = errors.New("no viable candidate")
	ErrCancelled         = errors.New("cancellation requested")
)

// Failure kinds persisted on terminal job records. FailureKind maps a
// classified error onto one of these.
const (
	KindTransient         = "transient_exhausted"
	KindGateExhausted     = "gate_exhausted"
	KindCandidateRejected = "candidate_rejected"
	KindNoViableCandidate = "no_viable_candidate"
	KindConfiguration     = "configuration"
	KindValidation        = "validation"
	KindExternalTool      = "external_tool"
	KindNotFound          = "not_found"
	KindCanceled          = "canceled"
	KindInterrupted       = "interrupted"
	KindInternal          = "internal"
)

// Wrap builds an error message that includes step context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, step, operation, message string, err error) error {
	detail := buildDetail(step, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureKind maps a classified error to the failure kind recorded on the job.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrCancelled):
		return KindCanceled
	case errors.Is(err, ErrGateExhausted):
		return KindGateExhausted
	case errors.Is(err, ErrCandidateRejected):
		return KindCandidateRejected
	case errors.Is(err, ErrNoViableCandidate):
		return KindNoViableCandidate
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrExternalTool):
		return KindExternalTool
	default:
		return KindInternal
	}
}

// markerOrder lists the sentinels Message strips, most specific first.
var markerOrder = []error{
	ErrGateExhausted,
	ErrCandidateRejected,
	ErrNoViableCandidate,
	ErrExternalTool,
	ErrConfiguration,
	ErrValidation,
	ErrNotFound,
	ErrTimeout,
	ErrTransient,
	ErrCancelled,
}

// Message returns the human-readable portion of a classified error: the
// detail chain without the leading sentinel marker. Event logs and failure
// records use it so the kind is not repeated in the message text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range markerOrder {
		if prefix := marker.Error() + ": "; strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

// IsRetryable reports whether the step runner may re-invoke the step after
// this failure. Only transient conditions qualify.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrCandidateRejected) || errors.Is(err, ErrGateExhausted) ||
		errors.Is(err, ErrNoViableCandidate) || errors.Is(err, ErrCancelled) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

func buildDetail(step, operation, message string) string {
	parts := make([]string, 0, 3)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
