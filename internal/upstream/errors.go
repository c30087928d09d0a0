package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrRetryExhausted is returned when every attempt failed with a retriable error.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context ends during a backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass classifies a failed upstream request.
type ErrorClass string

const (
	// ErrorClassClient is a 4xx answer other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer is a 5xx answer.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit is a 429 answer.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork is a transport failure or timeout.
	ErrorClassNetwork ErrorClass = "network"
)

// Error is a failed upstream request.
type Error struct {
	URL        string
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error (status %d) for %s: %s: %v",
			e.Class, e.StatusCode, e.URL, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s error (status %d) for %s: %s",
		e.Class, e.StatusCode, e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusOf returns the upstream status carried by err, or 0.
func StatusOf(err error) int {
	var upErr *Error
	if errors.As(err, &upErr) {
		return upErr.StatusCode
	}
	return 0
}

// classify maps a status code or transport error to an ErrorClass.
// Successful answers classify as "".
func classify(status int, err error) ErrorClass {
	switch {
	case err != nil:
		return ErrorClassNetwork
	case status == 429:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// 4xx will not get better by asking again.
		return false
	}
}
