package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error kinds. Callers branch on these with errors.Is.
var (
	ErrValidation             = errors.New("validation failed")
	ErrNotFound               = errors.New("not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidStateTransition = errors.New("invalid order state transition")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrPersistence            = errors.New("persistence failure")
)

var (
	ErrBookNotFound      = fmt.Errorf("book %w", ErrNotFound)
	ErrCartLineNotFound  = fmt.Errorf("cart line %w", ErrNotFound)
	ErrOrderNotFound     = fmt.Errorf("order %w", ErrNotFound)
	ErrStockNotFound     = fmt.Errorf("inventory record %w", ErrNotFound)
	ErrEmptySelection    = fmt.Errorf("%w: no cart lines match the selected books", ErrValidation)
	ErrDuplicateCode     = errors.New("order code already taken")
	ErrCustomerNotFound  = fmt.Errorf("customer %w", ErrNotFound)
	ErrAdminRoleRequired = fmt.Errorf("%w: admin role required", ErrForbidden)
)

// ValidationError carries per-field messages for malformed input.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add records a message for field; the first message per field wins.
func (e *ValidationError) Add(field, message string) {
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

// OrNil returns nil when no field failed, so callers can `return v.OrNil()`.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Persistence marks a storage-layer error so the transport can hide its text.
func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
