package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrSegmentNotFound   = errors.New("segment not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrMissingQuery      = errors.New("missing query")
	ErrMissingCollection = errors.New("missing collection selection")
	ErrInvalidCollection = errors.New("invalid collection")
	ErrIndexNotEmpty     = errors.New("index already populated")
	ErrBuildInProgress   = errors.New("index build already in progress")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrUnavailable       = errors.New("service unavailable")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
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

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrSegmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrIndexNotEmpty), errors.Is(err, ErrBuildInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrMissingQuery),
		errors.Is(err, ErrMissingCollection),
		errors.Is(err, ErrInvalidCollection):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
