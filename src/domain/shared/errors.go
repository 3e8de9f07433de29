package shared

import "errors"

// Error taxonomy shared by every battle component. Domain packages wrap these
// so callers can branch with errors.Is.
var (
	ErrNotFound          = errors.New("entity not found")
	ErrInvalidState      = errors.New("invalid state transition")
	ErrExpired           = errors.New("expired")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("entity conflict")
	ErrDependency        = errors.New("dependency failure")
	ErrForbidden         = errors.New("forbidden")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicate         = errors.New("duplicate operation")
)
