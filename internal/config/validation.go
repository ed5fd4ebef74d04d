package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate runs the struct tag pass plus the semantic checks that tags
// cannot express.
func validate(c *Config) error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var errs validator.ValidationErrors
		if ok := asValidationErrors(err, &errs); ok && len(errs) > 0 {
			messages := make([]string, 0, len(errs))
			for _, fieldErr := range errs {
				messages = append(messages, describeFieldError(fieldErr))
			}
			return fmt.Errorf("%s", strings.Join(messages, "; "))
		}
		return err
	}

	for _, origin := range c.TrustedWebOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("trustedWebOrigins entry %q is not an absolute origin", origin)
		}
		if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
			return fmt.Errorf("trustedWebOrigins entry %q must be a bare origin without a path", origin)
		}
	}

	// Endpoints must either all be configured or all left for discovery.
	endpoints := []string{c.AuthorizeEndpoint, c.TokenEndpoint, c.UserInfoEndpoint, c.LogoutEndpoint}
	configured := 0
	for _, e := range endpoints {
		if e != "" {
			configured++
		}
	}
	if configured != 0 && configured != len(endpoints) {
		return fmt.Errorf("either configure all of authorizeEndpoint, tokenEndpoint, userinfoEndpoint and logoutEndpoint, or none of them to use discovery")
	}

	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	errs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = errs
	}
	return ok
}

func describeFieldError(fieldErr validator.FieldError) string {
	field := fieldErr.Field()
	switch fieldErr.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url":
		return fmt.Sprintf("%s must be an absolute URL", field)
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, fieldErr.Param())
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fieldErr.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fieldErr.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fieldErr.Tag())
	}
}
