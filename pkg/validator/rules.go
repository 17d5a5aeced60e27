package validator

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Password length limits. The upper bound is bcrypt's input limit in bytes.
const (
	MinPasswordLength = 6
	MaxPasswordBytes  = 72
)

// Rule is a named predicate applied to a single field value.
type Rule struct {
	Tag   string
	Param string
	Check func(value string) bool
}

// RuleSet maps field names to the rules that must hold for them. Rules are plain
// data so they can be inspected and tested without binding a request.
type RuleSet map[string][]Rule

// Validate applies every rule to the matching entry in values. Missing entries are
// validated as empty strings. Failures are reported in field order.
func (rs RuleSet) Validate(values map[string]string) error {
	fields := make([]string, 0, len(rs))
	for field := range rs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var failures ValidationErrors
	for _, field := range fields {
		value := values[field]
		for _, rule := range rs[field] {
			if rule.Check == nil || rule.Check(value) {
				continue
			}
			failures = append(failures, ValidationError{Field: field, Tag: rule.Tag, Param: rule.Param})
			break
		}
	}

	if len(failures) == 0 {
		return nil
	}
	return failures
}

// Required rejects blank values.
func Required() Rule {
	return Rule{Tag: "required", Check: func(value string) bool {
		return strings.TrimSpace(value) != ""
	}}
}

// Length bounds the rune count of a value. A max of zero disables the upper bound.
func Length(min, max int) Rule {
	tag, param := "min", strconv.Itoa(min)
	if max > 0 {
		tag, param = "len_between", strconv.Itoa(min)+".."+strconv.Itoa(max)
	}
	return Rule{Tag: tag, Param: param, Check: func(value string) bool {
		n := utf8.RuneCountInString(value)
		return n >= min && (max <= 0 || n <= max)
	}}
}

// Email checks the value is a syntactically valid email address.
func Email() Rule {
	return Rule{Tag: "email", Check: func(value string) bool {
		return ValidateVar(value, "email")
	}}
}

// Password applies PasswordPolicy.
func Password() Rule {
	return Rule{Tag: "password", Check: PasswordPolicy}
}

// EqualTo requires the value to match another field's value captured at build time.
func EqualTo(field, other string) Rule {
	return Rule{Tag: "eqfield", Param: field, Check: func(value string) bool {
		return value == other
	}}
}

// PasswordPolicy requires at least MinPasswordLength characters, at most
// MaxPasswordBytes bytes, and at least one letter and one digit.
func PasswordPolicy(value string) bool {
	if utf8.RuneCountInString(value) < MinPasswordLength || len(value) > MaxPasswordBytes {
		return false
	}

	var letter, digit bool
	for _, r := range value {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}
