package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Processing errors
const (
	// ErrCodeNodataTile indicates a tile has no data. Expected and non-fatal;
	// it is converted to an empty result at the tile task boundary.
	ErrCodeNodataTile ErrorCode = "NODATA_TILE"
	// ErrCodeProcessFailed indicates the user process function failed.
	ErrCodeProcessFailed ErrorCode = "PROCESS_FAILED"
	// ErrCodeTaskFailed indicates an executor-level failure: a worker
	// crashed, was cancelled externally, or returned no result.
	ErrCodeTaskFailed ErrorCode = "TASK_FAILED"
	// ErrCodeTaskCancelled indicates the caller cancelled the run.
	ErrCodeTaskCancelled ErrorCode = "TASK_CANCELLED"
)

// Configuration errors (fatal, raised before any task runs)
const (
	// ErrCodeConfigInvalid indicates the process configuration is invalid.
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"
	// ErrCodeZoomOutOfRange indicates a zoom level outside the configured set.
	ErrCodeZoomOutOfRange ErrorCode = "ZOOM_OUT_OF_RANGE"
)

// Output driver errors
const (
	// ErrCodeOutputDriver indicates a driver read or write failed.
	ErrCodeOutputDriver ErrorCode = "OUTPUT_DRIVER_ERROR"
	// ErrCodeDriverUnknown indicates no driver is registered under a name.
	ErrCodeDriverUnknown ErrorCode = "DRIVER_UNKNOWN"
)

// Request errors (serving surface)
const (
	// ErrCodeNotFound indicates the requested tile was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeTimeout indicates a bounded wait for a result expired.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRateLimited indicates the client is rate limited.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeOverloaded indicates the server is out of compute capacity.
	ErrCodeOverloaded ErrorCode = "OVERLOADED"
)

// Internal errors
const (
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeOutputDriver: true,
	ErrCodeTimeout:      true,
	ErrCodeRateLimited:  true,
	ErrCodeOverloaded:   true,
	ErrCodeTaskFailed:   false,
	ErrCodeInternal:     false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
