package errors

import (
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Processing Errors ---

// NodataTile signals that a tile has no data. The tile task converts it to an
// empty result; it never escapes the task boundary.
func NodataTile(tileID string) *AppError {
	return &AppError{
		Code: ErrCodeNodataTile, Message: "Tile contains no data.",
		HTTPStatus: http.StatusNoContent, Retryable: false,
		Details: map[string]any{"tile": tileID},
	}
}

// ProcessFailed wraps a failure raised by the user process function. The
// original cause is preserved.
func ProcessFailed(taskID string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeProcessFailed, Message: fmt.Sprintf("Process function failed for task %s.", taskID),
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"task": taskID}, Cause: cause,
	}
}

// TaskFailed wraps an executor-level failure: a worker crashed, was cancelled
// by something other than the caller, or produced no result.
func TaskFailed(taskID string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeTaskFailed, Message: fmt.Sprintf("Task %s failed in the executor.", taskID),
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"task": taskID}, Cause: cause,
	}
}

// TaskCancelled marks a task cancelled by the caller.
func TaskCancelled(taskID string) *AppError {
	return &AppError{
		Code: ErrCodeTaskCancelled, Message: fmt.Sprintf("Task %s was cancelled.", taskID),
		HTTPStatus: http.StatusConflict, Retryable: false,
		Details: map[string]any{"task": taskID},
	}
}

// --- Configuration Errors ---

// ConfigInvalid creates a fatal configuration error.
func ConfigInvalid(reason string) *AppError {
	return &AppError{
		Code: ErrCodeConfigInvalid, Message: reason,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// ZoomOutOfRange indicates a zoom level outside the configured zoom set.
func ZoomOutOfRange(zoom int) *AppError {
	return &AppError{
		Code: ErrCodeZoomOutOfRange, Message: fmt.Sprintf("Zoom level %d is outside the configured zoom levels.", zoom),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"zoom": zoom},
	}
}

// --- Output Driver Errors ---

// OutputDriver wraps a failed driver operation. Retryable, since drivers may
// recover between attempts.
func OutputDriver(operation, tileID string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeOutputDriver, Message: fmt.Sprintf("Output driver %s failed.", operation),
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"operation": operation, "tile": tileID}, Cause: cause,
	}
}

// DriverUnknown indicates no output driver is registered under the name.
func DriverUnknown(name string) *AppError {
	return &AppError{
		Code: ErrCodeDriverUnknown, Message: fmt.Sprintf("No output driver registered as %q.", name),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"driver": name},
	}
}

// --- Request Errors ---

// NotFound creates a new AppError for a tile that was not found.
func NotFound(tileID string) *AppError {
	return &AppError{
		Code: ErrCodeNotFound, Message: "The requested tile was not found.",
		HTTPStatus: http.StatusNotFound, Retryable: false,
		Details: map[string]any{"tile": tileID},
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false, Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// Timeout creates a new AppError for a bounded result wait that expired.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: "The operation took too long. Please try again.",
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"operation": operation},
	}
}

// RateLimited creates a new AppError for too many requests.
func RateLimited() *AppError {
	return &AppError{
		Code: ErrCodeRateLimited, Message: "Too many requests. Please wait a moment and try again.",
		HTTPStatus: http.StatusTooManyRequests, Retryable: true,
	}
}

// Overloaded creates an error for requests rejected because every compute
// slot is busy.
func Overloaded() *AppError {
	return &AppError{
		Code: ErrCodeOverloaded, Message: "The server is at capacity. Please retry shortly.",
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
	}
}

// Internal creates a new AppError for an unexpected internal error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}
