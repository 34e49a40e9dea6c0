// Package errors provides unified error handling for the tile processing
// engine. It implements structured error types with machine-readable codes,
// HTTP status mapping for the serving surface, and retryable detection.
package errors
