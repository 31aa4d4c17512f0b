package errors

import "errors"

var (
	ErrSetNotFound     = errors.New("availability set not found")
	ErrAlreadyExists   = errors.New("availability set already exists")
	ErrVersionConflict = errors.New("availability set was modified concurrently")
	ErrNotBlocked      = errors.New("slot is not blocked")
	ErrAlreadyBlocked  = errors.New("slot is already blocked")
)
