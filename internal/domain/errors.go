package domain

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks an enrichment that could not be fetched.
// It is logged and never shown to the user.
var ErrUnavailable = errors.New("enrichment unavailable")

// ErrNotConfigured is returned when an integration lacks credentials
var ErrNotConfigured = errors.New("not configured")

// DataSourceError means the schedule sheet is unreachable or malformed
type DataSourceError struct {
	Op  string
	Err error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("schedule source: %s: %v", e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// SyncError is a calendar push failure, either for one date or for the whole run
type SyncError struct {
	Date string // empty when the whole run failed
	Op   string
	Err  error
}

func (e *SyncError) Error() string {
	if e.Date == "" {
		return fmt.Sprintf("calendar sync: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("calendar sync %s: %s: %v", e.Date, e.Op, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// AuthError is an OAuth failure; the UI sends the user back into the flow
type AuthError struct {
	Provider Provider
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authorization: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }
