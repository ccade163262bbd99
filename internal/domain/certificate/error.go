package certificate

import (
	"errors"
)

var (
	ErrNotFound          = errors.New("certificate not found")
	ErrDuplicateID       = errors.New("certificate id already exists")
	ErrFinalized         = errors.New("certificate is finalized")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidType       = errors.New("invalid certificate type")
	ErrInvalidData       = errors.New("invalid certificate data")
)
