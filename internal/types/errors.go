package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrTokenRejected = errors.New("access token rejected")
	ErrMissingToken  = errors.New("token response missing access_token")
	ErrNoInfobox     = errors.New("no infobox found")
	ErrNoColumn      = errors.New("expected column not found in table header")
	ErrEmptyName     = errors.New("name cannot be empty")
	ErrCollectorUsed = errors.New("collector has already run")
)

// AuthenticationError wraps failures to obtain an access token.
type AuthenticationError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("authentication failed at %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authentication failed at %s: %v", e.URL, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// FetchError wraps errors that occur during page fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsAuthFailure reports whether the server refused the bearer token.
func (e *FetchError) IsAuthFailure() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// ExtractionError wraps failures to read the structure a page extractor
// depends on.
type ExtractionError struct {
	Page    string
	Element string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Element != "" {
		return fmt.Sprintf("extraction error for %s (element=%q): %v", e.Page, e.Element, e.Err)
	}
	return fmt.Sprintf("extraction error for %s: %v", e.Page, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur while persisting entities.
type StorageError struct {
	Backend string
	Entity  string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("storage error (%s) %s %s: %v", e.Backend, e.Op, e.Entity, e.Err)
	}
	return fmt.Sprintf("storage error (%s) %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
