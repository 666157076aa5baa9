// Package validation holds the input rules shared by the agent API, the CLI
// and the config loader.
package validation

import (
	"strings"
	"unicode"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a validator with the custom tags registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// endpoint: an absolute backend path such as /alerts/panic.
	_ = v.RegisterValidation("endpoint", validateEndpoint)

	return v
}

func validateEndpoint(fl validatorv10.FieldLevel) bool {
	s := fl.Field().String()
	if !strings.HasPrefix(s, "/") || strings.HasPrefix(s, "//") {
		return false
	}
	return strings.IndexFunc(s, unicode.IsSpace) < 0
}

// FieldErrors flattens validator errors into field -> message pairs.
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	if ve, ok := err.(validatorv10.ValidationErrors); ok {
		for _, fe := range ve {
			out[fe.Field()] = fe.Error()
		}
	} else if err != nil {
		out["error"] = err.Error()
	}
	return out
}
