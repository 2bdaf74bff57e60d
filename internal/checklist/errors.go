package checklist

import (
	"context"
	"errors"
	"fmt"

	"checklist/api/internal/store"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTemplate    = errors.New("invalid template")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("conflict")
	ErrIncomplete         = errors.New("mandatory items unchecked")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// StorageError translates a storage collaborator failure into the checklist
// error taxonomy. The original error stays in the chain.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	case errors.Is(err, store.ErrVersionConflict):
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// lockError classifies a failed lock acquisition. Running out of time while
// another writer holds the session is contention, not an outage.
func lockError(sessionID string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("lock session %s: %w: %w", sessionID, ErrConflict, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("lock session %s: %w", sessionID, err)
	}
	return fmt.Errorf("lock session %s: %w: %w", sessionID, ErrStorageUnavailable, err)
}

// Wire codes for the error taxonomy, shared by the HTTP API and its client.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidTemplate    = "INVALID_TEMPLATE"
	CodeValidation         = "VALIDATION_ERROR"
	CodeConflict           = "CONFLICT"
	CodeIncomplete         = "INCOMPLETE"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeServerError        = "SERVER_ERROR"
)

var codeErrors = []struct {
	code string
	err  error
}{
	{CodeNotFound, ErrNotFound},
	{CodeInvalidTemplate, ErrInvalidTemplate},
	{CodeValidation, ErrInvalidInput},
	{CodeIncomplete, ErrIncomplete},
	{CodeConflict, ErrConflict},
	{CodeStorageUnavailable, ErrStorageUnavailable},
}

// Code returns the wire code for err, or CodeServerError when err is outside
// the taxonomy.
func Code(err error) string {
	for _, entry := range codeErrors {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeServerError
}

// FromCode returns the sentinel for a wire code, or nil for unknown codes.
func FromCode(code string) error {
	for _, entry := range codeErrors {
		if entry.code == code {
			return entry.err
		}
	}
	return nil
}
