package services

import (
	"errors"
	"fmt"
	"strings"

	"loanflow/apperrors"

	"github.com/go-playground/validator/v10"
)

// validateStruct runs the validator and folds field errors into one
// ValidationError message
func validateStruct(v *validator.Validate, dto interface{}) error {
	err := v.Struct(dto)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return apperrors.Validation(err.Error())
	}

	var errorMessages []string
	for _, e := range validationErrors {
		switch e.Tag() {
		case "required":
			errorMessages = append(errorMessages, fmt.Sprintf("field %s is required", e.Field()))
		case "email":
			errorMessages = append(errorMessages, fmt.Sprintf("field %s must be a valid email", e.Field()))
		case "min":
			errorMessages = append(errorMessages, fmt.Sprintf("field %s must be at least %s", e.Field(), e.Param()))
		case "max":
			errorMessages = append(errorMessages, fmt.Sprintf("field %s must be at most %s", e.Field(), e.Param()))
		case "gt":
			errorMessages = append(errorMessages, fmt.Sprintf("field %s must be greater than %s", e.Field(), e.Param()))
		case "gte":
			errorMessages = append(errorMessages, fmt.Sprintf("field %s must be at least %s", e.Field(), e.Param()))
		case "oneof":
			errorMessages = append(errorMessages, fmt.Sprintf("field %s must be one of %s", e.Field(), e.Param()))
		default:
			errorMessages = append(errorMessages, fmt.Sprintf("field %s is invalid", e.Field()))
		}
	}
	return apperrors.Validation(strings.Join(errorMessages, "; "))
}
