package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type signupPayload struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password,omitempty" validate:"password"`
	Internal string `json:"-" validate:"required"`
}

func TestValidateStructAcceptsValidPayload(t *testing.T) {
	err := ValidateStruct(signupPayload{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "Passw0rd",
		Internal: "x",
	})
	require.NoError(t, err)
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	err := ValidateStruct(signupPayload{Email: "invalid", Password: "letters"})

	var failures ValidationErrors
	require.ErrorAs(t, err, &failures)
	require.ElementsMatch(t, ValidationErrors{
		{Field: "username", Tag: "required"},
		{Field: "email", Tag: "email"},
		{Field: "password", Tag: "password"},
		{Field: "Internal", Tag: "required"},
	}, failures)
	require.Contains(t, err.Error(), "email failed on email")
}

func TestValidateStructRejectsNonStruct(t *testing.T) {
	err := ValidateStruct("not a struct")
	require.Error(t, err)

	var failures ValidationErrors
	require.NotErrorAs(t, err, &failures)
}

func TestValidateVar(t *testing.T) {
	require.True(t, ValidateVar("alice@example.com", "required,email"))
	require.False(t, ValidateVar("alice", "required,email"))
}

func TestRegisterValidation(t *testing.T) {
	require.NoError(t, RegisterValidation("accountd", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "accountd"
	}))

	type custom struct {
		Value string `validate:"accountd"`
	}
	require.NoError(t, ValidateStruct(custom{Value: "accountd"}))
	require.Error(t, ValidateStruct(custom{Value: "other"}))
}

func TestValidationErrorsMessage(t *testing.T) {
	require.Equal(t, "validation failed", ValidationErrors{}.Error())
	require.Equal(t, "username failed on len_between=3..255; email failed on required", ValidationErrors{
		{Field: "username", Tag: "len_between", Param: "3..255"},
		{Field: "email", Tag: "required"},
	}.Error())
}
