// Package validation checks user-supplied form and JSON fields before they are sent upstream.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "github.com/target/talentgate/internal/errors"
)

// Validator returns a user-facing message when v is invalid, or "".
type Validator func(v string) string

// Required rejects blank values and values longer than maxLen runes.
func Required(label string, maxLen int) Validator {
	return func(v string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return label + " is required."
		}
		return MaxLen(label, maxLen)(v)
	}
}

// MaxLen rejects values longer than maxLen runes. Blank values pass.
func MaxLen(label string, maxLen int) Validator {
	return func(v string) string {
		if utf8.RuneCountInString(strings.TrimSpace(v)) > maxLen {
			return fmt.Sprintf("%s cannot exceed %d characters.", label, maxLen)
		}
		return ""
	}
}

// Email does a shape check only; the backend owns deliverability.
func Email(label string) Validator {
	return func(v string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return ""
		}
		local, domain, ok := strings.Cut(v, "@")
		if !ok || local == "" || !strings.Contains(domain, ".") || strings.ContainsAny(v, " \t<>") {
			return "Enter a valid " + strings.ToLower(label) + "."
		}
		return ""
	}
}

// FieldValidator collects the first failure per field, in the order fields are checked.
type FieldValidator struct {
	order  []string
	errors map[string]string
}

// New creates a FieldValidator.
func New() *FieldValidator {
	return &FieldValidator{errors: make(map[string]string)}
}

// Validate runs validators against value until one fails.
func (fv *FieldValidator) Validate(field, value string, validators ...Validator) *FieldValidator {
	if _, seen := fv.errors[field]; seen {
		return fv
	}
	for _, v := range validators {
		if msg := v(value); msg != "" {
			fv.order = append(fv.order, field)
			fv.errors[field] = msg
			break
		}
	}
	return fv
}

// Each validates every item of a list field; the first bad item reports for the field.
// At most maxItems items are allowed.
func (fv *FieldValidator) Each(field string, items []string, maxItems int, validators ...Validator) *FieldValidator {
	if len(items) > maxItems {
		return fv.Validate(field, "", func(string) string {
			return fmt.Sprintf("At most %d %s are allowed.", maxItems, field)
		})
	}
	for _, item := range items {
		fv.Validate(field, item, validators...)
	}
	return fv
}

// Errors returns the failures keyed by field.
func (fv *FieldValidator) Errors() map[string]string {
	return fv.errors
}

// Err returns the first failure as a validation error carrying its field, or nil.
func (fv *FieldValidator) Err() error {
	if len(fv.order) == 0 {
		return nil
	}
	field := fv.order[0]
	return apperrors.ValidationField(field, fv.errors[field])
}
