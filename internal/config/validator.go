package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate validates the Config using struct tags and custom cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if c.Auth.RefreshGrace < 0 {
		return errors.New("auth.refresh_grace must not be negative")
	}
	if strings.Contains(c.Agent.Binary, "..") {
		return errors.New("agent.binary must not contain \"..\"")
	}

	if err := c.validateAuthCompleteness(); err != nil {
		return err
	}

	return nil
}

// validateAuthCompleteness ensures the demo credential pair and signing secret
// are present outside DevMode. DevMode fills these via SetDevDefaults, which
// must run before Validate when that flag is set.
func (c *Config) validateAuthCompleteness() error {
	if c.DevMode {
		return nil
	}
	var missing []string
	if c.Auth.Username == "" {
		missing = append(missing, "auth.username")
	}
	if c.Auth.PasswordHash == "" {
		missing = append(missing, "auth.password_hash")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "auth.jwt_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config outside dev mode: %s", strings.Join(missing, ", "))
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname|ip":
		return fmt.Sprintf("%s must be a valid hostname or IP address", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
