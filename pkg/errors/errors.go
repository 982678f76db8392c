package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrManifestFetch = errors.New("manifest fetch failed")
	ErrArtifactFetch = errors.New("artifact fetch failed")
	ErrIntegrity     = errors.New("artifact checksum mismatch")
	ErrParse         = errors.New("malformed snapshot")
	ErrCorruptState  = errors.New("corrupted cached state")
	ErrCardNotFound  = errors.New("card not found")
	ErrNotReady      = errors.New("catalog not loaded")
	ErrInvalidInput  = errors.New("invalid input")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrInternal      = errors.New("internal error")
	ErrTimeout       = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// IsSyncFailure reports whether err belongs to the synchronization failure
// taxonomy (fetch, integrity or parse).
func IsSyncFailure(err error) bool {
	return errors.Is(err, ErrManifestFetch) ||
		errors.Is(err, ErrArtifactFetch) ||
		errors.Is(err, ErrIntegrity) ||
		errors.Is(err, ErrParse)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrCardNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrManifestFetch), errors.Is(err, ErrArtifactFetch),
		errors.Is(err, ErrIntegrity), errors.Is(err, ErrParse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}

}
