package errors

import "errors"

var (
	ErrNotFound            = errors.New("request not found")
	ErrInvalidState        = errors.New("request is not in a valid state for this operation")
	ErrInvalidRange        = errors.New("start must be before end")
	ErrTooEarly            = errors.New("request has not ended yet")
	ErrActiveRequestExists = errors.New("requester already has an open request")
	ErrStatusChanged       = errors.New("request status changed concurrently")
)
