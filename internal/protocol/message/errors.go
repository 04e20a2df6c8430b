package message

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed           = errors.New("message: malformed payload")
	ErrUnknownKind         = errors.New("message: unknown kind")
	ErrSeparatorInElement  = errors.New("message: string array element contains separator")
	ErrLoneEmptyElement    = errors.New("message: lone empty string array element")
	ErrUnknownStringFormat = errors.New("message: unknown string array encoding")
)

// DecodeError records which kind a payload was being decoded as.
type DecodeError struct {
	Kind Kind
	Type Type
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("message: decode type=%d as %s: %v", e.Type, e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func malformed(t Tagged, kind Kind, format string, args ...any) error {
	return &DecodeError{
		Kind: kind,
		Type: t.Type,
		Err:  fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...)),
	}
}
