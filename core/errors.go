package core

import "errors"

// Sentinel errors returned by Dataset operations. The session layer maps
// these to reply statuses (see session.nilOrError), mirroring the way the
// teacher's controller/responses.go maps core errors to message.Status.
var (
	// ErrNotFound means the key is absent or has expired ("not live").
	ErrNotFound = errors.New("key not found or expired")

	// ErrWrongType means the live value at key is not the variant the
	// operation requires (string op on a sorted set, or vice versa).
	ErrWrongType = errors.New("value is not the expected type")
)
