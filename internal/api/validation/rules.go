package validation

import (
	"fmt"
	"net/mail"
	"strings"

	"authgate/internal/common"
)

// Check inspects one field value and returns a message when it fails, "" when
// it passes.
type Check func(value string) string

// FieldRule is an ordered list of checks for one named field; the first
// failing check short-circuits the rest of that field's list.
type FieldRule struct {
	Field  string
	Checks []Check
}

// Rules is the ordered rule list for one route.
type Rules []FieldRule

// Table maps a route key to its rules. It is built once and passed into the
// router construction, so every route's validation is visible in one place.
type Table map[string]Rules

// Route keys.
const (
	RouteRegister       = "register"
	RouteLogin          = "login"
	RouteForgotPassword = "forgot-password"
	RouteResetPassword  = "reset-password"
	RouteChangePassword = "change-password"
)

// Apply runs the rules against the field values and collects one error per
// failing field.
func (rs Rules) Apply(values map[string]string) []common.FieldError {
	var errs []common.FieldError
	for _, rule := range rs {
		value := values[rule.Field]
		for _, check := range rule.Checks {
			if msg := check(value); msg != "" {
				errs = append(errs, common.FieldError{Field: rule.Field, Message: msg})
				break
			}
		}
	}
	return errs
}

func NotEmpty(name string) Check {
	return func(value string) string {
		if strings.TrimSpace(value) == "" {
			return name + " is required"
		}
		return ""
	}
}

func Email() Check {
	return func(value string) string {
		if _, err := mail.ParseAddress(strings.TrimSpace(value)); err != nil {
			return "email is invalid"
		}
		return ""
	}
}

func Lowercase(name string) Check {
	return func(value string) string {
		if value != strings.ToLower(value) {
			return name + " must be in lower case"
		}
		return ""
	}
}

func MinLength(name string, min int) Check {
	return func(value string) string {
		if len(value) < min {
			return fmt.Sprintf("%s must be at least %d characters long", name, min)
		}
		return ""
	}
}

// OneOf passes empty values; pair with NotEmpty when the field is required.
func OneOf(name string, allowed ...string) Check {
	return func(value string) string {
		if value == "" {
			return ""
		}
		for _, a := range allowed {
			if value == a {
				return ""
			}
		}
		return fmt.Sprintf("%s must be one of: %s", name, strings.Join(allowed, ", "))
	}
}

// DefaultTable is the rule table for the auth routes.
func DefaultTable() Table {
	return Table{
		RouteRegister: Rules{
			{Field: "email", Checks: []Check{NotEmpty("email"), Email()}},
			{Field: "username", Checks: []Check{NotEmpty("username"), Lowercase("username"), MinLength("username", 3)}},
			{Field: "password", Checks: []Check{NotEmpty("password"), MinLength("password", 6)}},
			{Field: "role", Checks: []Check{OneOf("role", "user", "admin")}},
		},
		RouteLogin: Rules{
			{Field: "identifier", Checks: []Check{NotEmpty("identifier")}},
			{Field: "password", Checks: []Check{NotEmpty("password")}},
		},
		RouteForgotPassword: Rules{
			{Field: "email", Checks: []Check{NotEmpty("email"), Email()}},
		},
		RouteResetPassword: Rules{
			{Field: "newPassword", Checks: []Check{NotEmpty("newPassword"), MinLength("newPassword", 6)}},
		},
		RouteChangePassword: Rules{
			{Field: "oldPassword", Checks: []Check{NotEmpty("oldPassword")}},
			{Field: "newPassword", Checks: []Check{NotEmpty("newPassword"), MinLength("newPassword", 6)}},
		},
	}
}
