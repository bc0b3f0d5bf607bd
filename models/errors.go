package models

import "errors"

// Error taxonomy shared by the storage backends and the session service.
// Wrap these with fmt.Errorf("...: %w", err) and match them with errors.Is.
var (
	ErrConflict      = errors.New("conflict")
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrConfiguration = errors.New("configuration error")
	ErrUpstream      = errors.New("upstream service failure")
)
