// Package cookie builds the named session cookies that carry the encrypted
// OAuth state in the user's browser. Nothing here is persisted server-side:
// the cookies are the session.
package cookie

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spafront/spa-front/internal/config"
	"github.com/spafront/spa-front/internal/crypto"
	"github.com/spafront/spa-front/internal/idp"
	"github.com/spafront/spa-front/internal/login"
)

// Cookie name suffixes. The full name is the configured prefix plus the
// suffix, eg "spafront-at".
const (
	accessTokenSuffix = "-at"
	authSuffix        = "-auth"
	idTokenSuffix     = "-id"
	csrfSuffix        = "-csrf"
	tempLoginSuffix   = "-login"
)

// AccessTokenName returns the access token cookie name for the prefix.
func AccessTokenName(prefix string) string { return prefix + accessTokenSuffix }

// AuthName returns the refresh token cookie name. Its presence is the sole
// definition of "logged in" at the refresh endpoint.
func AuthName(prefix string) string { return prefix + authSuffix }

// IDTokenName returns the ID token cookie name.
func IDTokenName(prefix string) string { return prefix + idTokenSuffix }

// CSRFName returns the CSRF cookie name. This is the only session cookie
// the SPA can read.
func CSRFName(prefix string) string { return prefix + csrfSuffix }

// TempLoginName returns the temp login data cookie name.
func TempLoginName(prefix string) string { return prefix + tempLoginSuffix }

// refreshPath and claimsPath narrow the refresh and ID cookies to the only
// endpoints that read them, keeping them off every other request.
func refreshPath(cfg *config.Config) string { return cfg.EndpointsPrefix + "/refresh" }
func claimsPath(cfg *config.Config) string { return cfg.EndpointsPrefix + "/claims" }

// template returns a cookie with the configured attribute set applied.
func template(cfg *config.Config, name, path string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Path:     path,
		Domain:   cfg.Cookie.Domain,
		HttpOnly: cfg.CookieHTTPOnly(),
		Secure:   cfg.CookieSecure(),
		SameSite: cfg.CookieSameSite(),
	}
}

// encrypted seals value and returns the named cookie carrying the envelope.
func encrypted(cfg *config.Config, name, path, value string) (*http.Cookie, error) {
	sealed, err := crypto.EncryptCookie(cfg.EncKey(), value)
	if err != nil {
		return nil, fmt.Errorf("encrypting %s cookie: %w", name, err)
	}
	c := template(cfg, name, path)
	c.Value = sealed
	return c, nil
}

// unset returns an expiring directive for the named cookie. The path must
// match the one the cookie was set with or browsers will keep it.
func unset(cfg *config.Config, name, path string) *http.Cookie {
	c := template(cfg, name, path)
	c.Value = ""
	c.MaxAge = -1
	c.Expires = time.Now().Add(-24 * time.Hour)
	return c
}

// ForTokenResponse builds the session cookies for a token response. The
// access token cookie is always written; refresh and ID cookies only when
// the grant returned them; the CSRF cookie only when a value is supplied
// (logins mint or reuse one, refreshes leave it untouched); and an unset
// directive for the temp login cookie when requested.
func ForTokenResponse(cfg *config.Config, tokens *idp.TokenResponse, unsetTempLogin bool, csrfValue string) ([]*http.Cookie, error) {
	prefix := cfg.CookieNamePrefix

	at, err := encrypted(cfg, AccessTokenName(prefix), cfg.CookiePath(), tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	cookies := []*http.Cookie{at}

	if csrfValue != "" {
		csrf, err := encrypted(cfg, CSRFName(prefix), cfg.CookiePath(), csrfValue)
		if err != nil {
			return nil, err
		}
		csrf.HttpOnly = false
		cookies = append(cookies, csrf)
	}

	if unsetTempLogin {
		cookies = append(cookies, unset(cfg, TempLoginName(prefix), cfg.CookiePath()))
	}

	if tokens.RefreshToken != "" {
		auth, err := encrypted(cfg, AuthName(prefix), refreshPath(cfg), tokens.RefreshToken)
		if err != nil {
			return nil, err
		}
		cookies = append(cookies, auth)
	}

	if tokens.IDToken != "" {
		id, err := encrypted(cfg, IDTokenName(prefix), claimsPath(cfg), tokens.IDToken)
		if err != nil {
			return nil, err
		}
		cookies = append(cookies, id)
	}

	return cookies, nil
}

// ForUnset builds expiring directives for every named session cookie.
// Idempotent: safe to send even when some cookies were never set.
func ForUnset(cfg *config.Config) []*http.Cookie {
	prefix := cfg.CookieNamePrefix
	return []*http.Cookie{
		unset(cfg, AuthName(prefix), refreshPath(cfg)),
		unset(cfg, AccessTokenName(prefix), cfg.CookiePath()),
		unset(cfg, IDTokenName(prefix), claimsPath(cfg)),
		unset(cfg, CSRFName(prefix), cfg.CookiePath()),
		unset(cfg, TempLoginName(prefix), cfg.CookiePath()),
	}
}

// ForTempLoginUnset builds the expiring directive for the temp login cookie
// alone. Login completion must discard the consumed verifier/state pair even
// when it fails.
func ForTempLoginUnset(cfg *config.Config) *http.Cookie {
	return unset(cfg, TempLoginName(cfg.CookieNamePrefix), cfg.CookiePath())
}

// ForTempLogin seals the PKCE verifier/state pair into the temp login
// cookie written when a login starts.
func ForTempLogin(cfg *config.Config, data login.TempLoginData) (*http.Cookie, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding temp login data: %w", err)
	}
	return encrypted(cfg, TempLoginName(cfg.CookieNamePrefix), cfg.CookiePath(), string(plaintext))
}

// ForAccessTokenValue rewrites only the access token cookie. Used by the
// expiry test hook.
func ForAccessTokenValue(cfg *config.Config, accessToken string) (*http.Cookie, error) {
	return encrypted(cfg, AccessTokenName(cfg.CookieNamePrefix), cfg.CookiePath(), accessToken)
}

// Get retrieves a named cookie value from the request, or "" when absent.
func Get(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
