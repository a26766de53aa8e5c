// Package validate wraps go-playground/validator for request DTOs. Handlers
// decode JSON into a tagged struct and call Struct; the returned field map
// goes straight into the 400 response body.
package validate

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var v = validator.New(validator.WithRequiredStructEnabled())

// Struct validates a tagged request struct. On failure it returns a map of
// json-ish field names to short human messages.
func Struct(s any) (map[string]string, bool) {
	err := v.Struct(s)
	if err == nil {
		return nil, true
	}

	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[strings.ToLower(fe.Field())] = message(fe)
		}
		return fields, false
	}
	fields["request"] = "invalid request"
	return fields, false
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "eqfield":
		return "must match " + strings.ToLower(fe.Param())
	case "url":
		return "must be a valid URL"
	default:
		return "is invalid"
	}
}
