package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/accountd/pkg/errors"
	"github.com/charlesng35/accountd/pkg/response"
	appValidator "github.com/charlesng35/accountd/pkg/validator"
)

// bindAndValidate decodes the JSON body into dest and checks its struct tags. On
// failure a 400 has already been written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}
	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, validationError(err))
		return false
	}
	return true
}

// applyRules checks values against rules, writing a 400 on failure.
func applyRules(c *gin.Context, rules appValidator.RuleSet, values map[string]string) bool {
	if err := rules.Validate(values); err != nil {
		response.Error(c, validationError(err))
		return false
	}
	return true
}

// validationError renders failures as one readable message plus a per-field
// "fields" detail for clients that highlight inputs.
func validationError(err error) *appErrors.AppError {
	var failures appValidator.ValidationErrors
	if !errors.As(err, &failures) || len(failures) == 0 {
		return appErrors.NewBadRequest("invalid request payload")
	}

	messages := make([]string, len(failures))
	for i, failure := range failures {
		messages[i] = describeFailure(failure)
	}
	return appErrors.NewBadRequest(strings.Join(messages, "; ")).
		WithDetail("fields", []appValidator.ValidationError(failures))
}

func describeFailure(f appValidator.ValidationError) string {
	field := humanize(f.Field)
	switch f.Tag {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, f.Param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, f.Param)
	case "len_between":
		if lo, hi, ok := strings.Cut(f.Param, ".."); ok {
			return fmt.Sprintf("%s must be between %s and %s characters", field, lo, hi)
		}
		return field + " has an invalid length"
	case "password":
		return fmt.Sprintf("%s must be %d to %d characters and contain a letter and a digit",
			field, appValidator.MinPasswordLength, appValidator.MaxPasswordBytes)
	case "eqfield":
		return fmt.Sprintf("%s must match %s", field, humanize(f.Param))
	case "":
		return field + " is invalid"
	}
	if f.Param != "" {
		return fmt.Sprintf("%s failed validation: %s=%s", field, f.Tag, f.Param)
	}
	return fmt.Sprintf("%s failed validation: %s", field, f.Tag)
}

func humanize(name string) string {
	if name == "" {
		return "field"
	}
	return strings.ToLower(strings.ReplaceAll(name, "_", " "))
}
