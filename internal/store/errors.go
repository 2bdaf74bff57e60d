package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("record version conflict")
	ErrUnavailable     = errors.New("storage unavailable")
)

// unavailable tags a driver or transport failure so callers can surface it
// without matching driver-specific errors.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
