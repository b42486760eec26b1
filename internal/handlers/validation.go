package handlers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/inkwell-app/inkwell/internal/models"
)

// usernamePattern restricts usernames to 3-20 alphanumerics and underscores.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

// Global validator instance (reused across all handlers)
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Registration failure here is a programming error.
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidateRequest validates a request struct using go-playground/validator.
// Field-level failures come back as a models.ValidationError so handlers can
// return them with per-field details.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return &models.ValidationError{Message: "validation failed"}
	}

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = formatValidationError(fe)
		}
	}

	first := ve[0]
	msg := formatValidationError(first)
	if !strings.HasPrefix(msg, first.Field()) {
		msg = fmt.Sprintf("%s: %s", first.Field(), msg)
	}
	return &models.ValidationError{
		Message: msg,
		Fields:  fields,
	}
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "username":
		return "must be 3-20 characters of letters, digits, or underscores"
	case "min":
		return fmt.Sprintf("must have a minimum of %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gte", "lte":
		// Age bounds are the only numeric range in the surface; the message
		// names the full range either way the check fails.
		if fe.Field() == "Age" {
			return "Age must be between 13 and 120"
		}
		return fmt.Sprintf("must be within the allowed range (%s)", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "numeric":
		return "must contain only digits"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
