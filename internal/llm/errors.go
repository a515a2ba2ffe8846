package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for generative calls.
var (
	// ErrTransient marks a failed or timed-out call that may succeed on retry.
	ErrTransient = errors.New("transient upstream error")
	// ErrFatalAPI marks a permanent provider failure (credentials, billing, quota).
	ErrFatalAPI = errors.New("fatal API error")
	// ErrMalformedResult marks generated output that matched no known result shape.
	ErrMalformedResult = errors.New("malformed generative result")
)

var fatalMarkers = []string{
	"credit balance",
	"quota exceeded",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

// isFatalAPIError reports whether err will not go away by retrying.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// wrapFatalError wraps err with ErrFatalAPI when it is permanent and returns it unchanged otherwise.
func wrapFatalError(err error) error {
	if !isFatalAPIError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatalAPI, err)
}

// classifyError tags every upstream failure as either fatal or transient.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrFatalAPI) || errors.Is(err, ErrTransient) {
		return err
	}
	if isFatalAPIError(err) {
		return wrapFatalError(err)
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err is a retryable upstream failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

// FailureKind labels err for metrics: "transient", "fatal", "malformed" or "other".
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrMalformedResult):
		return "malformed"
	case errors.Is(err, ErrFatalAPI):
		return "fatal"
	case IsTransient(err):
		return "transient"
	default:
		return "other"
	}
}
