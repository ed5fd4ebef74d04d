// Package config loads and validates the process configuration. The config
// file is JSON; any string value may be replaced by {"$env": "NAME"} to pull
// the value from the environment, which is required for secrets.
package config

import (
	"encoding/json"
	"net/http"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// CookieConfig holds the attributes applied to every session cookie. The
// CSRF cookie additionally drops HttpOnly so the SPA can read it, and the
// refresh and ID cookies narrow Path; everything else is shared.
type CookieConfig struct {
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Secure   *bool  `json:"secure,omitempty"`
	HTTPOnly *bool  `json:"httpOnly,omitempty"`
	SameSite string `json:"sameSite,omitempty" validate:"omitempty,oneof=strict lax none"`
}

// Config is the immutable process configuration, loaded once before the
// listener starts and shared read-only by every request handler.
type Config struct {
	ListenAddr      string `json:"listenAddr,omitempty"`
	EndpointsPrefix string `json:"endpointsPrefix" validate:"required,startswith=/"`

	ClientID              string `json:"clientId" validate:"required"`
	ClientSecret          Secret `json:"clientSecret" validate:"required"`
	RedirectURI           string `json:"redirectUri" validate:"required,url"`
	PostLogoutRedirectURI string `json:"postLogoutRedirectUri,omitempty" validate:"omitempty,url"`
	Scope                 string `json:"scope,omitempty"`

	Issuer string `json:"issuer" validate:"required,url"`

	// Endpoint URLs may be omitted, in which case they are resolved once at
	// startup from the issuer's discovery document.
	AuthorizeEndpoint string `json:"authorizeEndpoint,omitempty" validate:"omitempty,url"`
	TokenEndpoint     string `json:"tokenEndpoint,omitempty" validate:"omitempty,url"`
	UserInfoEndpoint  string `json:"userinfoEndpoint,omitempty" validate:"omitempty,url"`
	LogoutEndpoint    string `json:"logoutEndpoint,omitempty" validate:"omitempty,url"`

	EncryptionKey    Secret       `json:"encryptionKey" validate:"required"`
	CookieNamePrefix string       `json:"cookieNamePrefix,omitempty"`
	Cookie           CookieConfig `json:"cookie,omitempty"`

	TrustedWebOrigins []string `json:"trustedWebOrigins" validate:"required,min=1,dive,url"`

	RequestTimeout string `json:"requestTimeout,omitempty"`

	encryptionKey  []byte
	requestTimeout time.Duration
}

// EncKey returns the 32-byte AES key derived from EncryptionKey at load time.
func (c *Config) EncKey() []byte {
	return c.encryptionKey
}

// Timeout returns the bound applied to outbound Authorization Server calls.
func (c *Config) Timeout() time.Duration {
	return c.requestTimeout
}

// CookieSecure reports whether session cookies carry the Secure attribute.
// Defaults to true; disabling it is only sensible for local development.
func (c *Config) CookieSecure() bool {
	if c.Cookie.Secure == nil {
		return true
	}
	return *c.Cookie.Secure
}

// CookieHTTPOnly reports whether session cookies carry HttpOnly. The CSRF
// cookie ignores this and is always readable by the SPA.
func (c *Config) CookieHTTPOnly() bool {
	if c.Cookie.HTTPOnly == nil {
		return true
	}
	return *c.Cookie.HTTPOnly
}

// CookiePath returns the base path for root-scoped session cookies.
func (c *Config) CookiePath() string {
	if c.Cookie.Path == "" {
		return "/"
	}
	return c.Cookie.Path
}

// CookieSameSite maps the configured sameSite value onto http.SameSite.
func (c *Config) CookieSameSite() http.SameSite {
	switch c.Cookie.SameSite {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}
