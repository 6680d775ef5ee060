package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Validate is the shared validator instance. Request structs tag fields
// against it and config loading checks enum values through it.
var Validate *validator.Validate

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("reconcile_policy", validateReconcilePolicy); err != nil {
		panic(fmt.Sprintf("failed to register reconcile_policy validator: %v", err))
	}
}

func validateReconcilePolicy(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "replace_all", "append_only":
		return true
	default:
		return false
	}
}

// SanitizeText trims whitespace and strips control characters from
// inbound email fields. Newlines and tabs survive; everything else in
// the control range is dropped.
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}
