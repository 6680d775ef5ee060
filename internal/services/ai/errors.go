package ai

import (
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
)

var errEmptyCompletion = errors.New("completion contained no choices")

// ModelInvocationError indicates the model call itself failed: transport
// error, non-2xx status, or an empty/unusable completion. The caller must
// not charge the user for a failed invocation.
type ModelInvocationError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ModelInvocationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("model invocation failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("model invocation failed: %v", e.Err)
}

func (e *ModelInvocationError) Unwrap() error {
	return e.Err
}

// InvocationLogError indicates the model call succeeded but the audit row
// recording tokens and cost could not be persisted. The completion content
// is still usable; the caller decides whether to proceed.
type InvocationLogError struct {
	Err error
}

func (e *InvocationLogError) Error() string {
	return fmt.Sprintf("failed to record model invocation: %v", e.Err)
}

func (e *InvocationLogError) Unwrap() error {
	return e.Err
}

// newModelError extracts the HTTP status and response body from an SDK
// error when one is available.
func newModelError(err error) *ModelInvocationError {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &ModelInvocationError{StatusCode: apierr.StatusCode, Body: apierr.Error(), Err: err}
	}
	return &ModelInvocationError{Err: err}
}

// IsRateLimited reports whether the error is a provider rate-limit response.
// Workers use this to back off instead of burning retry attempts.
func IsRateLimited(err error) bool {
	var merr *ModelInvocationError
	return errors.As(err, &merr) && merr.StatusCode == 429
}
