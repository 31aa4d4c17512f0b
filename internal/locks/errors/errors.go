package errors

import "errors"

var (
	ErrNotOwner = errors.New("lock is held by another staff member")

	ErrNoActiveLock = errors.New("no active lock for request")

	ErrAlreadyLocked = errors.New("request already has an active lock")
)
