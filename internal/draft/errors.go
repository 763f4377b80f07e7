package draft

import (
	"errors"
	"strings"
)

var (
	ErrMissingSelection         = errors.New("select a product and enter quantity")
	ErrProductNotFound          = errors.New("selected product not found")
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrInvalidQuantity          = errors.New("invalid quantity")
	ErrCannotRemoveLastCustomer = errors.New("at least one customer is required")
	ErrValidationFailed         = errors.New("validation failed")
	ErrCustomerNotFound         = errors.New("customer not found")
	ErrEmployeeLocked           = errors.New("employee is locked for this bill")
)

// FieldError names one reason a draft cannot be saved.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError matches ErrValidationFailed with errors.Is.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidationFailed.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrValidationFailed.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// HasField reports whether the validation failed on the named field.
func (e *ValidationError) HasField(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}
