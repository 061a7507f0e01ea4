package engine

import "errors"

// Error definitions for zero-tolerance error handling. Every rejection has a
// distinct, inspectable condition so callers and tests can tell causes apart.
var (
	ErrUnauthorized      = errors.New("caller is not authorized for this operation")
	ErrPaused            = errors.New("engine is paused")
	ErrReentrantCall     = errors.New("engine operation already in progress")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidAddress    = errors.New("venue address is empty")
	ErrVenueExists       = errors.New("venue already registered")
	ErrVenueNotFound     = errors.New("venue not registered")
	ErrRegistryFull      = errors.New("venue registry at capacity")
	ErrYieldOutOfRange   = errors.New("yield exceeds maximum basis points")
	ErrNoVenues          = errors.New("no active venues registered")
	ErrInvalidDuration   = errors.New("duration must be positive")
	ErrInsufficientFunds = errors.New("requested amount exceeds total allocated capital")
)
