package provider

import "errors"

var (
	ErrInvalidTransition  = errors.New("provider: invalid transition")
	ErrNotInitialized     = errors.New("provider: not initialized")
	ErrAlreadyInitialized = errors.New("provider: already initialized")
	ErrNotReady           = errors.New("provider: not ready")
	ErrFaulted            = errors.New("provider: in error state")
	ErrNotAvailable       = errors.New("provider: value not in available set")
	ErrEmptyAvailableSet  = errors.New("provider: available set is empty")
)

// StartError maps a state that forbids starting to its error.
func StartError(s State) error {
	switch s {
	case Uninitialized:
		return ErrNotInitialized
	case NotReady:
		return ErrNotReady
	case Error:
		return ErrFaulted
	default:
		return nil
	}
}
