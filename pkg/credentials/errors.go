package credentials

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when a credential has no client id or secret.
	// It is a configuration problem and callers should not retry.
	ErrNotConfigured = errors.New("credential not configured")
	// ErrCredentialFetch is returned when the token endpoint could not be reached
	// or answered with a non-success status.
	ErrCredentialFetch = errors.New("credential fetch failed")
	// ErrUnknownCredential is returned by Acquire for a name that was never registered.
	ErrUnknownCredential = errors.New("unknown credential")
)

// FetchError describes a failed token request. StatusCode is zero for
// transport failures.
type FetchError struct {
	Name       string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("credential %s: token endpoint returned %d: %v", e.Name, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("credential %s: %v", e.Name, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrCredentialFetch) match any FetchError.
func (e *FetchError) Is(target error) bool { return target == ErrCredentialFetch }
