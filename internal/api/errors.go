package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized is returned after a refresh-and-replay cycle still ends in 401.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound matches *Error values with status 404.
	ErrNotFound = errors.New("not found")
)

// Error is a non-successful response from the marketplace API.
type Error struct {
	Status  int
	Message string
	Path    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("marketplace api %s returned %d", e.Path, e.Status)
	}
	return fmt.Sprintf("marketplace api %s returned %d: %s", e.Path, e.Status, e.Message)
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	}
	return false
}

// statusError carries a retryable 5xx through the retry executor.
type statusError struct {
	status int
	body   []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned %d", e.status)
}
