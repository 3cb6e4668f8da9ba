package apperr

import "errors"

// Stable error codes returned to callers. They never change across retries
// or idempotent replays of the same request.
const (
	CodeNotFound              = "NOT_FOUND"
	CodeValidationError       = "VALIDATION_ERROR"
	CodeConflict              = "CONFLICT"
	CodeStateInvalid          = "STATE_INVALID"
	CodeFull                  = "FULL"
	CodeDeadlinePassed        = "DEADLINE_PASSED"
	CodeEnded                 = "ENDED"
	CodeIdempotencyInProgress = "IDEMPOTENCY_IN_PROGRESS"
	CodeIdempotencyKeyReuse   = "IDEMPOTENCY_KEY_REUSE"
	CodeInternal              = "INTERNAL"
)

// Error is an application-layer error that can be mapped to an HTTP
// response. It is shared across features (unlike a per-feature error type)
// because the idempotency wrapper must recognize and serialize domain
// errors produced by any wrapped operation.
type Error struct {
	Status  int            `json:"status"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// As unwraps err into an *Error if it is one.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
