package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrConflict             = errors.New("conflict")
	ErrAlreadyCancelled     = fmt.Errorf("%w: booking is already cancelled", ErrConflict)
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrInvalidAmount        = fmt.Errorf("%w: amount is below the minimum chargeable amount", ErrValidation)
	ErrPaymentVerification  = errors.New("payment verification failed")
	ErrUnavailable          = errors.New("service unavailable")
)

// CapacityError reports how many seats are really left so the caller can retry with less.
type CapacityError struct {
	Requested int
	Remaining int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("only %d seats available", e.Remaining)
}

func (e *CapacityError) Unwrap() error {
	return ErrInsufficientCapacity
}

// StateError is returned when a transition is attempted from a state that does not allow it.
type StateError struct {
	Op      string
	Current Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s: booking is %s", e.Op, e.Current)
}

func (e *StateError) Unwrap() error {
	return ErrConflict
}
