// Package errors defines the sentinel errors shared across the engine and
// an AppError type that carries an HTTP status for the server surface.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrCorruptPostings reports a block-length mismatch between the docids
	// and freqs streams. Fatal for the affected cursor only.
	ErrCorruptPostings = errors.New("corrupt posting stream")
	// ErrMalformedLine reports a posting or lexicon line that fails to parse.
	// Recovered locally; the line is skipped.
	ErrMalformedLine = errors.New("malformed line")
	ErrTermNotFound = errors.New("term not found in lexicon")
	ErrDocNotFound  = errors.New("document not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
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
	case errors.Is(err, ErrDocNotFound), errors.Is(err, ErrTermNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMalformedLine):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
