package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/spafront/spa-front/internal/apierror"
	"github.com/spafront/spa-front/internal/config"
	"github.com/spafront/spa-front/internal/cookie"
	"github.com/spafront/spa-front/internal/crypto"
	"github.com/spafront/spa-front/internal/idp"
	"github.com/spafront/spa-front/internal/idtoken"
	jsonwriter "github.com/spafront/spa-front/internal/json"
	"github.com/spafront/spa-front/internal/log"
	"github.com/spafront/spa-front/internal/login"
	"github.com/spafront/spa-front/internal/validate"
)

// Handlers holds the endpoint implementations for the token handler API.
type Handlers struct {
	cfg *config.Config
	idp *idp.Client
}

// NewHandlers creates the endpoint handlers backed by the given IdP client.
func NewHandlers(cfg *config.Config, idpClient *idp.Client) *Handlers {
	return &Handlers{cfg: cfg, idp: idpClient}
}

// CSRFHeaderName is the request header the SPA must echo the CSRF token in.
func CSRFHeaderName(cookieNamePrefix string) string {
	return "x-" + cookieNamePrefix + "-csrf"
}

// Routes builds the full handler chain: the token handler endpoints under
// the configured prefix, plus a health endpoint at the root.
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()
	p := h.cfg.EndpointsPrefix

	mux.HandleFunc("POST "+p+"/login/start", h.StartLogin)
	mux.HandleFunc("POST "+p+"/login/end", h.EndLogin)
	mux.HandleFunc("POST "+p+"/login/token/expire", h.ExpireAccessToken)
	mux.HandleFunc("POST "+p+"/refresh", h.Refresh)
	mux.HandleFunc("GET "+p+"/userInfo", h.UserInfo)
	mux.HandleFunc("GET "+p+"/claims", h.Claims)
	mux.HandleFunc("GET "+p+"/logout", h.Logout)
	mux.HandleFunc("POST "+p+"/logout", h.Logout)
	mux.Handle("GET /health", NewHealthHandler())

	return ChainMiddleware(mux,
		NewRecoverMiddleware("server"),
		NewLoggerMiddleware("http"),
		NewCORSMiddleware(h.cfg.TrustedWebOrigins, CSRFHeaderName(h.cfg.CookieNamePrefix)),
	)
}

// validateRequest runs the origin and CSRF gates against the incoming request.
func (h *Handlers) validateRequest(r *http.Request, opts validate.Options) error {
	return validate.Request(validate.Data{
		OriginHeader:   r.Header.Get("Origin"),
		CSRFHeader:     r.Header.Get(CSRFHeaderName(h.cfg.CookieNamePrefix)),
		CSRFCookie:     cookie.Get(r, cookie.CSRFName(h.cfg.CookieNamePrefix)),
		TrustedOrigins: h.cfg.TrustedWebOrigins,
		EncKey:         h.cfg.EncKey(),
	}, opts)
}

// writeError is the single error boundary for all endpoints. Session expiry
// additionally clears every session cookie so the browser starts clean.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierror.From(err)

	fields := map[string]any{
		"status": apiErr.Status,
		"code":   apiErr.Code,
		"method": r.Method,
		"path":   r.URL.Path,
	}
	if apiErr.LogInfo != "" {
		fields["detail"] = apiErr.LogInfo
	}
	if cause := errors.Unwrap(apiErr); cause != nil {
		fields["cause"] = cause.Error()
	}
	if apiErr.Status >= http.StatusInternalServerError {
		log.LogErrorWithFields("api", "request failed", fields)
	} else {
		log.LogWarnWithFields("api", "request rejected", fields)
	}

	if apiErr.Code == apierror.CodeSessionExpired {
		for _, c := range cookie.ForUnset(h.cfg) {
			http.SetCookie(w, c)
		}
	}

	jsonwriter.WriteError(w, apiErr.Status, apiErr.Code, apiErr.Message)
}

// failLogin reports a failed login completion. The temp login cookie holds a
// consumed verifier/state pair at this point and is discarded whatever the
// outcome was.
func (h *Handlers) failLogin(w http.ResponseWriter, r *http.Request, err error) {
	http.SetCookie(w, cookie.ForTempLoginUnset(h.cfg))
	h.writeError(w, r, err)
}

type startLoginRequest struct {
	ExtraParams []login.ExtraParam `json:"extraParams,omitempty"`
}

type startLoginResponse struct {
	AuthorizationRequestURL string `json:"authorizationRequestUrl"`
}

// StartLogin begins an authorization code flow with PKCE. The generated
// code verifier and state are stored in a temporary encrypted cookie and
// the authorization request URL is returned for the SPA to navigate to.
func (h *Handlers) StartLogin(w http.ResponseWriter, r *http.Request) {
	opts := validate.DefaultOptions()
	opts.RequireCSRFHeader = false
	if err := h.validateRequest(r, opts); err != nil {
		h.writeError(w, r, err)
		return
	}

	var body startLoginRequest
	if err := decodeOptionalBody(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	authReq := login.NewAuthorizationRequest(h.cfg, h.idp.Endpoints().Authorize, body.ExtraParams)

	tempCookie, err := cookie.ForTempLogin(h.cfg, login.TempLoginData{
		CodeVerifier: authReq.CodeVerifier,
		State:        authReq.State,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.SetCookie(w, tempCookie)

	if err := jsonwriter.Write(w, startLoginResponse{AuthorizationRequestURL: authReq.URL}); err != nil {
		log.LogError("Failed to write login start response: %v", err)
	}
}

type endLoginRequest struct {
	PageURL string `json:"pageUrl"`
}

type endLoginResponse struct {
	Handled    bool   `json:"handled"`
	IsLoggedIn bool   `json:"isLoggedIn"`
	CSRF       string `json:"csrf,omitempty"`
}

// EndLogin is called on every SPA page load. When the page URL carries an
// authorization response it redeems the code for tokens and issues the
// session cookies; otherwise it just reports whether a session exists.
func (h *Handlers) EndLogin(w http.ResponseWriter, r *http.Request) {
	opts := validate.DefaultOptions()
	opts.RequireCSRFHeader = false
	if err := h.validateRequest(r, opts); err != nil {
		h.writeError(w, r, err)
		return
	}

	var body endLoginRequest
	if err := decodeOptionalBody(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	oauthResponse, err := login.ParsePageURL(body.PageURL)
	if err != nil {
		h.failLogin(w, r, err)
		return
	}

	if oauthResponse == nil {
		h.endLoginWithoutResponse(w, r)
		return
	}

	prefix := h.cfg.CookieNamePrefix
	tempLogin := cookie.Get(r, cookie.TempLoginName(prefix))
	tokens, err := h.idp.ExchangeCode(r.Context(), oauthResponse.Code, oauthResponse.State, tempLogin)
	if err != nil {
		h.failLogin(w, r, err)
		return
	}

	if tokens.IDToken != "" {
		if err := idtoken.Validate(h.cfg.Issuer, h.cfg.ClientID, tokens.IDToken); err != nil {
			h.failLogin(w, r, err)
			return
		}
	}

	// Reuse the CSRF token across logins so parallel tabs keep working.
	// Mint a fresh one only if there is no cookie or it was written under
	// a previous encryption key.
	csrfToken := ""
	if existing := cookie.Get(r, cookie.CSRFName(prefix)); existing != "" {
		if value, err := crypto.DecryptCookie(h.cfg.EncKey(), existing); err == nil {
			csrfToken = value
		}
	}
	if csrfToken == "" {
		token, err := crypto.GenerateSecureToken()
		if err != nil {
			h.failLogin(w, r, err)
			return
		}
		csrfToken = token
	}

	cookies, err := cookie.ForTokenResponse(h.cfg, tokens, true, csrfToken)
	if err != nil {
		h.failLogin(w, r, err)
		return
	}
	for _, c := range cookies {
		http.SetCookie(w, c)
	}

	if err := jsonwriter.Write(w, endLoginResponse{Handled: true, IsLoggedIn: true, CSRF: csrfToken}); err != nil {
		log.LogError("Failed to write login end response: %v", err)
	}
}

// endLoginWithoutResponse handles the page load that carries no
// authorization response: a plain visit, a bookmark, or a reload.
func (h *Handlers) endLoginWithoutResponse(w http.ResponseWriter, r *http.Request) {
	prefix := h.cfg.CookieNamePrefix
	isLoggedIn := cookie.Get(r, cookie.AccessTokenName(prefix)) != ""

	csrfToken := ""
	if isLoggedIn {
		encrypted := cookie.Get(r, cookie.CSRFName(prefix))
		if encrypted != "" {
			value, err := crypto.DecryptCookie(h.cfg.EncKey(), encrypted)
			if err != nil {
				h.writeError(w, r, apierror.InvalidCookie(err, "The CSRF cookie could not be decrypted"))
				return
			}
			csrfToken = value
		}
	}

	resp := endLoginResponse{Handled: false, IsLoggedIn: isLoggedIn, CSRF: csrfToken}
	if err := jsonwriter.Write(w, resp); err != nil {
		log.LogError("Failed to write login end response: %v", err)
	}
}

// Refresh redeems the refresh token cookie for a new set of tokens and
// rewrites the session cookies.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.validateRequest(r, validate.DefaultOptions()); err != nil {
		h.writeError(w, r, err)
		return
	}

	prefix := h.cfg.CookieNamePrefix
	authCookie := cookie.Get(r, cookie.AuthName(prefix))
	if authCookie == "" {
		h.writeError(w, r, apierror.InvalidCookie(nil, "No auth cookie was supplied in a call to refresh"))
		return
	}

	refreshToken, err := crypto.DecryptCookie(h.cfg.EncKey(), authCookie)
	if err != nil {
		h.writeError(w, r, apierror.InvalidCookie(err, "The auth cookie could not be decrypted"))
		return
	}

	tokens, err := h.idp.Refresh(r.Context(), refreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if tokens.IDToken != "" {
		if err := idtoken.Validate(h.cfg.Issuer, h.cfg.ClientID, tokens.IDToken); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	cookies, err := cookie.ForTokenResponse(h.cfg, tokens, false, "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	for _, c := range cookies {
		http.SetCookie(w, c)
	}

	w.WriteHeader(http.StatusNoContent)
}

// UserInfo fetches claims from the Authorization Server's userinfo endpoint
// using the access token held in the session cookie.
func (h *Handlers) UserInfo(w http.ResponseWriter, r *http.Request) {
	opts := validate.DefaultOptions()
	opts.RequireCSRFHeader = false
	if err := h.validateRequest(r, opts); err != nil {
		h.writeError(w, r, err)
		return
	}

	atCookie := cookie.Get(r, cookie.AccessTokenName(h.cfg.CookieNamePrefix))
	if atCookie == "" {
		h.writeError(w, r, apierror.InvalidCookie(nil, "No access token cookie was supplied in a call to get user info"))
		return
	}

	accessToken, err := crypto.DecryptCookie(h.cfg.EncKey(), atCookie)
	if err != nil {
		h.writeError(w, r, apierror.InvalidCookie(err, "The access token cookie could not be decrypted"))
		return
	}

	claims, err := h.idp.UserInfo(r.Context(), accessToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := jsonwriter.Write(w, claims); err != nil {
		log.LogError("Failed to write user info response: %v", err)
	}
}

// Claims returns the claims of the ID token held in the session cookie,
// without a round trip to the Authorization Server.
func (h *Handlers) Claims(w http.ResponseWriter, r *http.Request) {
	if err := h.validateRequest(r, validate.DefaultOptions()); err != nil {
		h.writeError(w, r, err)
		return
	}

	idCookie := cookie.Get(r, cookie.IDTokenName(h.cfg.CookieNamePrefix))
	if idCookie == "" {
		h.writeError(w, r, apierror.InvalidCookie(nil, "No ID token cookie was supplied in a call to get claims"))
		return
	}

	rawToken, err := crypto.DecryptCookie(h.cfg.EncKey(), idCookie)
	if err != nil {
		h.writeError(w, r, apierror.InvalidCookie(err, "The ID token cookie could not be decrypted"))
		return
	}

	claims, err := idtoken.Claims(rawToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := jsonwriter.Write(w, claims); err != nil {
		log.LogError("Failed to write claims response: %v", err)
	}
}

type logoutResponse struct {
	URL string `json:"url"`
}

// Logout clears every session cookie and returns the Authorization Server's
// end session URL for the SPA to navigate to.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.validateRequest(r, validate.DefaultOptions()); err != nil {
		h.writeError(w, r, err)
		return
	}

	if cookie.Get(r, cookie.AccessTokenName(h.cfg.CookieNamePrefix)) == "" {
		h.writeError(w, r, apierror.InvalidCookie(nil, "No session cookie was supplied in a call to logout"))
		return
	}

	for _, c := range cookie.ForUnset(h.cfg) {
		http.SetCookie(w, c)
	}

	if err := jsonwriter.Write(w, logoutResponse{URL: h.idp.LogoutURL()}); err != nil {
		log.LogError("Failed to write logout response: %v", err)
	}
}

// ExpireAccessToken corrupts the stored access token so that the next API
// call fails with a 401. A test hook for exercising the SPA's refresh path.
func (h *Handlers) ExpireAccessToken(w http.ResponseWriter, r *http.Request) {
	if err := h.validateRequest(r, validate.DefaultOptions()); err != nil {
		h.writeError(w, r, err)
		return
	}

	atCookie := cookie.Get(r, cookie.AccessTokenName(h.cfg.CookieNamePrefix))
	if atCookie == "" {
		h.writeError(w, r, apierror.InvalidCookie(nil, "No access token cookie was supplied in a call to expire the token"))
		return
	}

	accessToken, err := crypto.DecryptCookie(h.cfg.EncKey(), atCookie)
	if err != nil {
		h.writeError(w, r, apierror.InvalidCookie(err, "The access token cookie could not be decrypted"))
		return
	}

	expired, err := cookie.ForAccessTokenValue(h.cfg, accessToken+"x")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.SetCookie(w, expired)

	w.WriteHeader(http.StatusNoContent)
}

// decodeOptionalBody tolerates an absent or empty body.
func decodeOptionalBody(r *http.Request, into any) error {
	err := json.NewDecoder(r.Body).Decode(into)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return decodeBodyError(err)
}

func decodeBodyError(err error) error {
	return &apierror.Error{
		Status:  http.StatusBadRequest,
		Code:    "invalid_request",
		Message: "The request body could not be parsed as JSON",
		LogInfo: err.Error(),
	}
}
