package spotify

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredential means the upstream issued an anonymous token,
	// which happens when the configured sp_dc cookie is wrong or expired.
	// This is operator-correctable, unlike transient upstream failures.
	ErrInvalidCredential = errors.New("the sp_dc set seems to be invalid, please correct it!")

	// ErrMissingCredential means no sp_dc cookie was configured at all.
	ErrMissingCredential = errors.New("sp_dc credential is not set")

	// ErrNoLyrics means the upstream has no lyrics for the requested track.
	ErrNoLyrics = errors.New("lyrics for this track is not available on spotify!")
)

// APIError is a non-success HTTP status returned by the upstream service.
type APIError struct {
	Op         string // which upstream call failed
	StatusCode int
	Reason     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed: HTTP status %d %s", e.Op, e.StatusCode, e.Reason)
}
