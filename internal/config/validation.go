package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	urlutil "github.com/law-makers/sitewatch/internal/utils/url"
)

// Site IDs name state files, so they are restricted to filename-safe characters.
var siteIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func newValidator() *validator.Validate {
	validate := validator.New()

	_ = validate.RegisterValidation("httpurl", func(fl validator.FieldLevel) bool {
		return urlutil.ValidateURL(fl.Field().String()) == nil
	})
	_ = validate.RegisterValidation("siteid", func(fl validator.FieldLevel) bool {
		id := fl.Field().String()
		return siteIDPattern.MatchString(id) && id != "." && id != ".."
	})

	return validate
}

func validate(c *Config) error {
	var messages []string

	if err := newValidator().Struct(c); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			return fmt.Errorf("configuration validation error: %w", err)
		}
		for _, e := range errs {
			messages = append(messages, describe(e))
		}
	}

	seen := make(map[string]int, len(c.Sites))
	for i, site := range c.Sites {
		if first, ok := seen[site.ID]; ok && site.ID != "" {
			messages = append(messages, fmt.Sprintf("Sites[%d].ID: duplicate site id %q (also Sites[%d])", i, site.ID, first))
			continue
		}
		seen[site.ID] = i
	}

	if len(messages) > 0 {
		return fmt.Errorf("configuration validation failed:\n  %s", strings.Join(messages, "\n  "))
	}
	return nil
}

func describe(e validator.FieldError) string {
	field := strings.TrimPrefix(e.Namespace(), "Config.")

	var msg string
	switch e.Tag() {
	case "required", "required_if":
		msg = "is required"
	case "httpurl":
		msg = "must be an absolute http or https URL"
	case "siteid":
		msg = "may only contain letters, digits, '.', '_' and '-'"
	case "email":
		msg = "must be an email address"
	case "oneof":
		msg = fmt.Sprintf("must be one of [%s]", e.Param())
	case "gtefield":
		msg = fmt.Sprintf("must be >= %s", e.Param())
	default:
		msg = fmt.Sprintf("failed rule '%s'", e.Tag())
		if e.Param() != "" {
			msg += fmt.Sprintf(" (expected: %s)", e.Param())
		}
	}

	if v := e.Value(); v != nil && v != "" {
		return fmt.Sprintf("%s %s, actual: '%v'", field, msg, v)
	}
	return fmt.Sprintf("%s %s", field, msg)
}
