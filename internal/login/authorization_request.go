// Package login builds the outbound PKCE authorization request and
// classifies the page URL the SPA reports back after the redirect.
package login

import (
	"fmt"
	"net/url"

	"github.com/spafront/spa-front/internal/config"
	"golang.org/x/oauth2"
)

// TempLoginData is the PKCE state bound to one login attempt. It is JSON
// serialized, encrypted into the temp login cookie when a login starts, and
// consumed exactly once when the authorization response comes back.
type TempLoginData struct {
	CodeVerifier string `json:"codeVerifier"`
	State        string `json:"state"`
}

// ExtraParam is a caller-supplied authorization request parameter forwarded
// verbatim, eg prompt, acr_values, claims or max_age.
type ExtraParam struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// AuthorizationRequest is the outcome of starting a login: the URL to send
// the browser to, plus the verifier/state pair the caller must persist in
// the temp login cookie.
type AuthorizationRequest struct {
	URL          string
	CodeVerifier string
	State        string
}

// reservedParams are the code flow parameters this service controls. Extra
// params must never override them: a caller-supplied redirect_uri or
// code_challenge would defeat the checks the flow depends on.
var reservedParams = map[string]bool{
	"client_id":             true,
	"redirect_uri":          true,
	"response_type":         true,
	"state":                 true,
	"code_challenge":        true,
	"code_challenge_method": true,
}

// NewAuthorizationRequest generates a fresh code verifier and state and
// builds the authorization URL for the code flow with an S256 challenge.
func NewAuthorizationRequest(cfg *config.Config, authorizeEndpoint string, extraParams []ExtraParam) AuthorizationRequest {
	codeVerifier := oauth2.GenerateVerifier()
	state := oauth2.GenerateVerifier()

	query := url.Values{}
	query.Set("client_id", cfg.ClientID)
	query.Set("redirect_uri", cfg.RedirectURI)
	query.Set("response_type", "code")
	query.Set("state", state)
	query.Set("code_challenge", oauth2.S256ChallengeFromVerifier(codeVerifier))
	query.Set("code_challenge_method", "S256")

	if cfg.Scope != "" {
		query.Set("scope", cfg.Scope)
	}

	// Forwarded verbatim, empty values included; only the reserved flow
	// parameters are off limits.
	for _, p := range extraParams {
		if p.Key == "" || reservedParams[p.Key] {
			continue
		}
		query.Set(p.Key, p.Value)
	}

	return AuthorizationRequest{
		URL:          fmt.Sprintf("%s?%s", authorizeEndpoint, query.Encode()),
		CodeVerifier: codeVerifier,
		State:        state,
	}
}
