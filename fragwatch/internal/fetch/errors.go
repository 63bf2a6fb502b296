package fetch

import (
	"errors"
	"fmt"
)

// Class is the classification of one attempt.
type Class int

const (
	ClassSuccess Class = iota
	ClassBlocked       // 403/429/503 or a challenge page
	ClassNetwork       // timeout, connection failure, truncated body
	ClassStatus        // any other non-2xx
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassBlocked:
		return "blocked"
	case ClassNetwork:
		return "network"
	case ClassStatus:
		return "status"
	}
	return "unknown"
}

// Outcome describes one failed or successful attempt.
type Outcome struct {
	URL        string
	Class      Class
	StatusCode int
	Detail     string
	Err        error
}

var (
	// ErrFetchBlocked matches every *ExhaustedError.
	ErrFetchBlocked = errors.New("fetch: blocked")
	// ErrNetwork matches an *ExhaustedError whose last attempt failed at the
	// network level.
	ErrNetwork = errors.New("fetch: network error")
)

// ExhaustedError is returned when every candidate spent its budget.
type ExhaustedError struct {
	Last       Outcome
	Attempts   int
	Candidates int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("fetch: %d candidates exhausted after %d attempts, last %s: %s",
		e.Candidates, e.Attempts, e.Last.Class, e.Last.Detail)
}

// Is matches ErrFetchBlocked always and ErrNetwork when the last attempt was
// a network failure.
func (e *ExhaustedError) Is(target error) bool {
	switch target {
	case ErrFetchBlocked:
		return true
	case ErrNetwork:
		return e.Last.Class == ClassNetwork
	}
	return false
}

// Unwrap returns the transport error of the last attempt, if any.
func (e *ExhaustedError) Unwrap() error { return e.Last.Err }

// Reason is a short user-facing explanation.
func (e *ExhaustedError) Reason() string {
	switch e.Last.Class {
	case ClassNetwork:
		return "site unreachable (" + e.Last.Detail + ")"
	case ClassBlocked:
		return "blocked by the site (" + e.Last.Detail + ")"
	default:
		return "profile unavailable (" + e.Last.Detail + ")"
	}
}
