package service

import "errors"

// Sentinel errors shared by the services. Handlers map these to HTTP status
// codes; everything else is treated as a 500.
var (
	ErrNotFound          = errors.New("record not found")
	ErrForbidden         = errors.New("action not permitted")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrAlreadyExists     = errors.New("record already exists")
)
