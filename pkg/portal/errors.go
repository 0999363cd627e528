package portal

import (
	"errors"
	"fmt"
)

// AuthError means the portal rejected or could not complete authentication.
// Reason distinguishes bad credentials from a missing account module index,
// since the latter indicates a site-structure change rather than user error.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "portal auth: " + e.Reason
}

// ParseError means the page or payload structure did not match what we
// scrape for. Retrying won't help; the vendor likely changed their UI.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "portal parse: " + e.Reason
}

// FetchError means the data request failed at the transport level after
// bounded retries, or authentication could not be recovered mid-cycle.
type FetchError struct {
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("portal fetch: status %d: %v", e.Status, e.Err)
	case e.Err != nil:
		return "portal fetch: " + e.Err.Error()
	default:
		return fmt.Sprintf("portal fetch: status %d", e.Status)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// errSessionExpired is the internal signal that the data endpoint answered
// as if we were logged out. It never escapes CurrentSnapshot: the first
// occurrence in a cycle triggers exactly one re-login, the second becomes a
// FetchError.
var errSessionExpired = errors.New("session expired")
