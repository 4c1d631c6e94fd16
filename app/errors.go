package app

import "errors"

// Sentinel errors matching the taxonomy every component reports through.
// Callers test with errors.Is; call sites wrap with fmt.Errorf("...: %w", ...)
// to add context without losing the sentinel.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotFound       = errors.New("not found")
	ErrTransient      = errors.New("transient error")
	ErrMalformedEvent = errors.New("malformed event")
)
