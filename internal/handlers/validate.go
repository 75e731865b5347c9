package handlers

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"fiapstore/internal/models"
)

var validate = validator.New()

// validateStruct checks s against its validate tags and reports failures as
// an invalid input error of op
func validateStruct(op string, s any) error {
	if err := validate.Struct(s); err != nil {
		return models.NewError(models.ErrInvalidInput, op, formatValidationError(err))
	}
	return nil
}

// validateEach validates every element of items, prefixing messages with the
// element index
func validateEach[T any](op string, items []T) error {
	if len(items) == 0 {
		return models.InvalidInput(op, "request body must contain at least one element")
	}
	for i := range items {
		if err := validate.Struct(items[i]); err != nil {
			return models.NewError(models.ErrInvalidInput, op, fmt.Errorf("element %d: %w", i, formatValidationError(err)))
		}
	}
	return nil
}

func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatFieldError(e))
	}
	return fmt.Errorf("%s", strings.Join(messages, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "numeric":
		return fmt.Sprintf("%s must be a number", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
