package credential

import "errors"

// ErrUserExists is returned by backends that surface duplicate registrations
// as errors internally. Store.RegisterUser maps it to (false, nil).
var ErrUserExists = errors.New("credential: user already exists")

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("credential: store is closed")

// StoreError represents a failure reported by a credential backend.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Username is the account involved, if any
	Username string

	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := e.Message
	if e.Username != "" {
		msg += ": " + e.Username
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrorCode represents the category of a StoreError.
type ErrorCode int

const (
	// ErrIO indicates the backend could not read or write
	ErrIO ErrorCode = iota

	// ErrCorrupted indicates a stored record could not be decoded
	ErrCorrupted

	// ErrClosed indicates the store was used after Close
	ErrClosed
)

func (c ErrorCode) String() string {
	switch c {
	case ErrIO:
		return "io"
	case ErrCorrupted:
		return "corrupted"
	case ErrClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// IsCode reports whether err is a StoreError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Code == code
}
