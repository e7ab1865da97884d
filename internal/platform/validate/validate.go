// Package validate adapts go-playground/validator to echo.
package validate

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator implements echo.Validator.
type Validator struct {
	v *validator.Validate
}

// FieldError is one failed rule, named by the field's JSON key.
type FieldError struct {
	Field string
	Tag   string
	Param string
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	return &Validator{v: v}
}

// Validate runs struct tag rules on i.
func (cv *Validator) Validate(i interface{}) error {
	return cv.v.Struct(i)
}

// Var validates a single value against tag, e.g. "required,len=10,number".
func (cv *Validator) Var(field interface{}, tag string) error {
	return cv.v.Var(field, tag)
}

// Fields flattens a validator error. Other errors yield nil.
func Fields(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()})
	}
	return out
}

// Reason renders a FieldError as a short sentence.
func (fe FieldError) Reason() string {
	switch fe.Tag {
	case "required":
		return "is required"
	case "len":
		return "must be exactly " + fe.Param + " characters"
	case "number":
		return "must contain only digits"
	case "startswith":
		return "must start with " + fe.Param
	case "min":
		return "must be at least " + fe.Param
	case "max":
		return "must be at most " + fe.Param
	case "gt":
		return "must be greater than " + fe.Param
	case "lt":
		return "must be less than " + fe.Param
	default:
		return "failed " + fe.Tag + " validation"
	}
}
