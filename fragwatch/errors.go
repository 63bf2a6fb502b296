package fragwatch

import (
	"errors"
	"fmt"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/candidate"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/fetch"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/schedule"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/store"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/window"
)

var (
	ErrNotFound        = store.ErrNotFound
	ErrPlayerExists    = store.ErrPlayerExists
	ErrFetchBlocked    = fetch.ErrFetchBlocked
	ErrNetwork         = fetch.ErrNetwork
	ErrInvalidUsername = candidate.ErrInvalidUsername
	ErrUnknownWindow   = window.ErrUnknownKind

	// ErrNoPlayers is returned by a tick for a group with nobody tracked.
	ErrNoPlayers = errors.New("fragwatch: group has no players")
)

// ValidationError rejects malformed input before anything is persisted.
type ValidationError = schedule.ValidationError

// CollectError is one player's failed collection.
type CollectError struct {
	Player string
	Reason string
	Cause  error
}

func (e *CollectError) Error() string {
	return fmt.Sprintf("fragwatch: collect %s: %s", e.Player, e.Reason)
}

func (e *CollectError) Unwrap() error { return e.Cause }

// IsValidation reports whether err is caller input the service refused.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidUsername) ||
		errors.Is(err, ErrUnknownWindow)
}
