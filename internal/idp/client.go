// Package idp is the back-channel client for the Authorization Server: the
// authorization code and refresh token grants, the userinfo call, and
// endpoint discovery. Responses are classified into the error taxonomy; raw
// transport errors never reach the handlers.
package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spafront/spa-front/internal/apierror"
	"github.com/spafront/spa-front/internal/config"
	"github.com/spafront/spa-front/internal/crypto"
	"github.com/spafront/spa-front/internal/log"
	"github.com/spafront/spa-front/internal/login"
)

// TokenResponse is the token endpoint's answer to a grant request. It is
// never returned to the browser as-is; the handlers re-encode it into the
// encrypted session cookies.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// Endpoints holds the resolved Authorization Server URLs.
type Endpoints struct {
	Authorize string
	Token     string
	UserInfo  string
	Logout    string
}

// Client executes grants against the Authorization Server with a bounded
// timeout. It is safe for concurrent use.
type Client struct {
	cfg       *config.Config
	endpoints Endpoints
	http      *http.Client
}

// New resolves the Authorization Server endpoints, from configuration when
// present or otherwise from the issuer's discovery document, and returns a
// ready client.
func New(cfg *config.Config) (*Client, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout()}

	endpoints := Endpoints{
		Authorize: cfg.AuthorizeEndpoint,
		Token:     cfg.TokenEndpoint,
		UserInfo:  cfg.UserInfoEndpoint,
		Logout:    cfg.LogoutEndpoint,
	}

	if endpoints.Token == "" {
		discovered, err := fetchDiscovery(httpClient, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve endpoints from discovery: %w", err)
		}
		endpoints = *discovered
	}

	return &Client{
		cfg:       cfg,
		endpoints: endpoints,
		http:      httpClient,
	}, nil
}

// Endpoints returns the resolved Authorization Server URLs.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// ExchangeCode performs the authorization code grant for a returned code.
// encryptedTempLogin is the raw temp login cookie written when the login
// started; the state returned by the Authorization Server must match the
// state sealed inside it before any network call is made.
func (c *Client) ExchangeCode(ctx context.Context, code, state, encryptedTempLogin string) (*TokenResponse, error) {
	if encryptedTempLogin == "" {
		return nil, apierror.MissingTempLoginData()
	}

	plaintext, err := crypto.DecryptCookie(c.cfg.EncKey(), encryptedTempLogin)
	if err != nil {
		return nil, apierror.InvalidCookie(err, "Unable to decrypt the temp login cookie during a code exchange")
	}

	var tempLogin login.TempLoginData
	if err := json.Unmarshal([]byte(plaintext), &tempLogin); err != nil {
		return nil, apierror.InvalidCookie(err, "The temp login cookie contents could not be parsed")
	}

	if tempLogin.State != state {
		return nil, apierror.InvalidState()
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("code", code)
	form.Set("code_verifier", tempLogin.CodeVerifier)

	status, body, err := c.postForm(ctx, form)
	if err != nil {
		return nil, apierror.AuthorizationServer(err, "Connectivity problem during an Authorization Code Grant")
	}

	if status >= 500 {
		return nil, apierror.AuthorizationServer(nil, "Server error response in an Authorization Code Grant: "+string(body))
	}
	if status >= 400 {
		return nil, apierror.AuthorizationClient("Authorization Code Grant request was rejected: " + string(body))
	}

	return parseTokenResponse(body)
}

// Refresh performs the refresh token grant.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	status, body, err := c.postForm(ctx, form)
	if err != nil {
		return nil, apierror.AuthorizationServer(err, "Connectivity problem during a Refresh Token Grant")
	}

	if status >= 500 {
		return nil, apierror.AuthorizationServer(nil, "Server error response in a Refresh Token Grant: "+string(body))
	}
	if status >= 400 {
		return nil, apierror.RefreshFailed(string(body))
	}

	return parseTokenResponse(body)
}

// UserInfo calls the userinfo endpoint with the given access token and
// returns the claims.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.UserInfo, nil)
	if err != nil {
		return nil, apierror.AuthorizationServer(err, "Unable to build a User Info request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierror.AuthorizationServer(err, "Connectivity problem during a User Info request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierror.AuthorizationServer(err, "Unable to read a User Info response")
	}

	if resp.StatusCode >= 500 {
		return nil, apierror.AuthorizationServer(nil, "Server error response in a User Info request: "+string(body))
	}
	if resp.StatusCode >= 400 {
		return nil, apierror.UserInfoFailed(resp.StatusCode, string(body))
	}

	var claims map[string]any
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, apierror.AuthorizationServer(err, "Unable to parse a User Info response")
	}
	return claims, nil
}

// LogoutURL builds the Authorization Server's end session URL. AWS Cognito
// names the post logout parameter logout_uri instead of
// post_logout_redirect_uri.
func (c *Client) LogoutURL() string {
	logoutURL := c.endpoints.Logout + "?client_id=" + url.QueryEscape(c.cfg.ClientID)

	if c.cfg.PostLogoutRedirectURI != "" {
		param := "post_logout_redirect_uri"
		if strings.Contains(c.cfg.Issuer, "cognito") {
			param = "logout_uri"
		}
		logoutURL += "&" + param + "=" + url.QueryEscape(c.cfg.PostLogoutRedirectURI)
	}

	return logoutURL
}

// postForm sends a form POST to the token endpoint with HTTP Basic client
// authentication. It returns the status and body for classification; err is
// only non-nil for transport-level failures.
func (c *Client) postForm(ctx context.Context, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.Token, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.SetBasicAuth(c.cfg.ClientID, string(c.cfg.ClientSecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	log.LogDebugWithFields("idp", "Token endpoint responded", map[string]any{
		"grant":  form.Get("grant_type"),
		"status": resp.StatusCode,
	})

	return resp.StatusCode, body, nil
}

func parseTokenResponse(body []byte) (*TokenResponse, error) {
	var tokens TokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, apierror.AuthorizationServer(err, "Unable to parse a token endpoint response")
	}
	return &tokens, nil
}
