package app

import (
	"errors"
	"fmt"
	"net/http"

	"checklist/api/internal/checklist"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var codeStatus = map[string]int{
	checklist.CodeNotFound:           http.StatusNotFound,
	checklist.CodeInvalidTemplate:    http.StatusUnprocessableEntity,
	checklist.CodeValidation:         http.StatusBadRequest,
	checklist.CodeConflict:           http.StatusConflict,
	checklist.CodeIncomplete:         http.StatusConflict,
	checklist.CodeStorageUnavailable: http.StatusServiceUnavailable,
}

// toDomainError classifies err against the checklist taxonomy. Errors outside
// it become a 500 without leaking their text.
func toDomainError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	code := checklist.Code(err)
	status, ok := codeStatus[code]
	if !ok {
		return domainError(http.StatusInternalServerError, checklist.CodeServerError, "Server error", nil)
	}
	return domainError(status, code, err.Error(), nil)
}
