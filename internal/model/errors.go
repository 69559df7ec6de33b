package model

import "errors"

// Error kinds shared by services and handlers. Concrete errors wrap one of
// these with %w so callers can classify them with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrInvalidAccess  = errors.New("invalid access")
	ErrNotFound       = errors.New("not found")
	ErrPersistence    = errors.New("persistence error")
	ErrDeadlinePassed = errors.New("unit deadline passed")
)
