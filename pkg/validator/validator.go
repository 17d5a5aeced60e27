// Package validator checks request payloads. Struct tags (go-playground/validator)
// cover shape; RuleSet covers field rules that are easier to keep as data.
package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError is one failed rule, named by the JSON field it applies to.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

// ValidationErrors collects every failed rule of one payload.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}

	var b strings.Builder
	for i, failure := range v {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(failure.Field + " failed on " + failure.Tag)
		if failure.Param != "" {
			b.WriteString("=" + failure.Param)
		}
	}
	return b.String()
}

var engine = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	// Struct tags and rule sets share one password predicate.
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return PasswordPolicy(fl.Field().String())
	})
	return v
})

// jsonFieldName reports fields by their JSON name so errors match the request body.
func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return field.Name
	}
	return name
}

// ValidateStruct applies the validate tags of s. Tag failures are returned as
// ValidationErrors; anything else (such as a non-struct argument) is returned as is.
func ValidateStruct(s any) error {
	err := engine().Struct(s)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	failures := make(ValidationErrors, len(fieldErrs))
	for i, fe := range fieldErrs {
		failures[i] = ValidationError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()}
	}
	return failures
}

// ValidateVar reports whether value satisfies a tag expression such as "required,email".
func ValidateVar(value any, tag string) bool {
	return engine().Var(value, tag) == nil
}

// RegisterValidation adds a custom tag.
func RegisterValidation(tag string, fn validator.Func) error {
	return engine().RegisterValidation(tag, fn)
}
