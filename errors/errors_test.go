package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_New_Success(t *testing.T) {
	err := New(ErrCodeNotFound, "not found", http.StatusNotFound)
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, err.Code)
	}
	if err.Message != "not found" {
		t.Errorf("expected message 'not found', got %q", err.Message)
	}
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, err.HTTPStatus)
	}
	if err.Retryable {
		t.Error("NOT_FOUND should not be retryable")
	}
}

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeTimeout, "timed out", http.StatusGatewayTimeout)
	if !err.Retryable {
		t.Error("TIMEOUT should be retryable")
	}
}

func TestAppError_NodataTile(t *testing.T) {
	err := NodataTile("5-0-0")
	if err.Code != ErrCodeNodataTile {
		t.Errorf("expected NODATA_TILE, got %s", err.Code)
	}
	if err.Details["tile"] != "5-0-0" {
		t.Errorf("expected tile=5-0-0, got %v", err.Details["tile"])
	}
	if err.Retryable {
		t.Error("NodataTile should not be retryable")
	}
	if !IsNodata(err) {
		t.Error("IsNodata should recognize NodataTile errors")
	}
	if !IsNodata(fmt.Errorf("wrapped: %w", err)) {
		t.Error("IsNodata should see through wrapping")
	}
}

func TestAppError_ProcessFailed_PreservesCause(t *testing.T) {
	cause := stderrors.New("division by zero")
	err := ProcessFailed("tile-4-1-2", cause)
	if err.Code != ErrCodeProcessFailed {
		t.Errorf("expected PROCESS_FAILED, got %s", err.Code)
	}
	if !stderrors.Is(err, cause) {
		t.Error("the original cause must be reachable through Unwrap")
	}
	if !strings.Contains(err.Error(), "division by zero") {
		t.Errorf("cause missing from message: %q", err.Error())
	}
}

func TestAppError_TaskFailed_WrapsCause(t *testing.T) {
	cause := stderrors.New("worker crashed")
	err := TaskFailed("pre-1", cause)
	if !stderrors.Is(err, cause) {
		t.Error("the original cause must be reachable through Unwrap")
	}
	if err.Details["task"] != "pre-1" {
		t.Errorf("expected task=pre-1, got %v", err.Details["task"])
	}
}

func TestAppError_TaskCancelled(t *testing.T) {
	err := TaskCancelled("tile-3-0-0")
	if !IsCancelled(err) {
		t.Error("IsCancelled should recognize TaskCancelled errors")
	}
	if IsCancelled(stderrors.New("plain")) {
		t.Error("IsCancelled must reject plain errors")
	}
}

func TestAppError_ConfigInvalid(t *testing.T) {
	err := ConfigInvalid("zoom operator '~5' cannot be parsed")
	if err.Code != ErrCodeConfigInvalid {
		t.Errorf("expected CONFIG_INVALID, got %s", err.Code)
	}
	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", err.HTTPStatus)
	}
}

func TestAppError_ZoomOutOfRange(t *testing.T) {
	err := ZoomOutOfRange(12)
	if err.Details["zoom"] != 12 {
		t.Errorf("expected zoom=12, got %v", err.Details["zoom"])
	}
}

func TestAppError_OutputDriver_Retryable(t *testing.T) {
	err := OutputDriver("write", "6-3-3", stderrors.New("disk full"))
	if !err.Retryable {
		t.Error("driver errors should be retryable")
	}
	if err.Details["operation"] != "write" {
		t.Errorf("expected operation=write, got %v", err.Details["operation"])
	}
}

func TestAppError_WithDetail(t *testing.T) {
	err := ConfigInvalid("bad").WithDetail("key", "value")
	if err.Details["key"] != "value" {
		t.Errorf("expected value, got %v", err.Details["key"])
	}
	err.WithDetails(map[string]any{"other": 1})
	if err.Details["other"] != 1 {
		t.Errorf("expected 1, got %v", err.Details["other"])
	}
}

func TestIsAppError(t *testing.T) {
	if !IsAppError(NotFound("1-0-0")) {
		t.Error("expected AppError detection")
	}
	if IsAppError(stderrors.New("plain")) {
		t.Error("plain errors are not AppErrors")
	}
	wrapped := fmt.Errorf("context: %w", Internal(nil))
	appErr, ok := AsAppError(wrapped)
	if !ok || appErr.Code != ErrCodeInternal {
		t.Errorf("AsAppError through wrapping failed: %v, %v", appErr, ok)
	}
}

func TestToResponse(t *testing.T) {
	resp := RateLimited().ToResponse()
	if resp.Error.Code != ErrCodeRateLimited {
		t.Errorf("expected RATE_LIMITED, got %s", resp.Error.Code)
	}
	if !resp.Error.Retryable {
		t.Error("expected retryable response")
	}
}
