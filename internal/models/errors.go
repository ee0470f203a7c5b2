package models

import "errors"

// Error taxonomy shared by the store, services and HTTP layer.
// Callers wrap these with fmt.Errorf("%w: ...") and match with errors.Is.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrProvider         = errors.New("payment provider request failed")
	ErrSignature        = errors.New("webhook signature verification failed")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrDuplicate        = errors.New("duplicate record")
)
