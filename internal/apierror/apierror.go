// Package apierror defines the closed set of errors that spa-front endpoints
// can surface to the SPA. Every error carries an HTTP status, a short stable
// code for the client, and an internal diagnostic that only ever reaches the
// logs.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Codes returned to the SPA. These are part of the client contract and must
// stay stable across releases.
const (
	CodeUnauthorized       = "unauthorized_request"
	CodeInvalidCookie      = "invalid_cookie"
	CodeInvalidIDToken     = "invalid_id_token"
	CodeMissingLoginData   = "missing_temp_login_data"
	CodeInvalidState       = "invalid_state"
	CodeAuthorizationError = "authorization_error"
	CodeSessionExpired     = "session_expired"
	CodeTokenExpired       = "token_expired"
	CodeServerError        = "server_error"
	CodeAuthServerError    = "authorization_server_error"
)

// Error is a classified failure. Message is safe to return to the browser;
// LogInfo and the wrapped cause are for operators only.
type Error struct {
	Status  int
	Code    string
	Message string
	LogInfo string
	cause   error
}

func (e *Error) Error() string {
	if e.LogInfo != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.LogInfo)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// From classifies an arbitrary error. Anything that is not already an *Error
// becomes an opaque 500 so that internal details never leak to the SPA.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    CodeServerError,
		Message: "A technical problem occurred in the token handler",
		cause:   err,
	}
}

// Unauthorized reports a failed origin or CSRF check.
func Unauthorized(logInfo string) *Error {
	return &Error{
		Status:  http.StatusUnauthorized,
		Code:    CodeUnauthorized,
		Message: "Access denied due to invalid request details",
		LogInfo: logInfo,
	}
}

// InvalidCookie reports a session cookie that is absent, corrupt, or was
// written under a different encryption key.
func InvalidCookie(cause error, logInfo string) *Error {
	return &Error{
		Status:  http.StatusUnauthorized,
		Code:    CodeInvalidCookie,
		Message: "A required cookie was missing or invalid",
		LogInfo: logInfo,
		cause:   cause,
	}
}

// InvalidIDToken reports ID token sanity checks failing after a token
// response was received. This points at client or server misconfiguration,
// so it is a 500 rather than a client failure.
func InvalidIDToken(cause error, logInfo string) *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    CodeInvalidIDToken,
		Message: "The ID token failed validation checks",
		LogInfo: logInfo,
		cause:   cause,
	}
}

// MalformedIDToken reports an ID cookie whose decrypted contents cannot be
// decoded as a JWT, raised when the SPA asks for claims.
func MalformedIDToken(cause error) *Error {
	return &Error{
		Status:  http.StatusUnauthorized,
		Code:    CodeInvalidIDToken,
		Message: "The ID token could not be decoded",
		cause:   cause,
	}
}

// MissingTempLoginData reports a login completion without the temporary
// login cookie, meaning the login was never started in this browser or the
// cookie was lost.
func MissingTempLoginData() *Error {
	return &Error{
		Status:  http.StatusUnauthorized,
		Code:    CodeMissingLoginData,
		Message: "No login state cookie was found when completing a login",
	}
}

// InvalidState reports a state parameter that does not match the value bound
// to this login attempt. Possible CSRF or an injected authorization code.
func InvalidState() *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeInvalidState,
		Message: "The state parameter did not match the login state cookie",
	}
}

// AuthorizationResponse reports an error returned on the authorization
// redirect, eg invalid_scope. The OAuth error code is surfaced to the SPA
// verbatim. A login_required response comes from a failed silent login and
// is treated as session expiry.
func AuthorizationResponse(oauthError, description string) *Error {
	status := http.StatusBadRequest
	if oauthError == "login_required" {
		status = http.StatusUnauthorized
	}
	if description == "" {
		description = "Login failed at the Authorization Server"
	}
	return &Error{
		Status:  status,
		Code:    oauthError,
		Message: description,
	}
}

// AuthorizationClient reports a 4xx from the Authorization Server during an
// authorization code grant.
func AuthorizationClient(logInfo string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeAuthorizationError,
		Message: "A request sent to the Authorization Server was rejected",
		LogInfo: logInfo,
	}
}

// RefreshFailed reports a 4xx from the Authorization Server during a refresh
// token grant. An invalid_grant body means the refresh token itself has
// expired, which the SPA should treat as the end of the session rather than
// an error to display.
func RefreshFailed(body string) *Error {
	if strings.Contains(body, "invalid_grant") {
		return &Error{
			Status:  http.StatusUnauthorized,
			Code:    CodeSessionExpired,
			Message: "The session has expired and the user must log in again",
			LogInfo: "Refresh Token Grant was rejected with invalid_grant",
		}
	}
	e := AuthorizationClient("Refresh Token Grant request was rejected: " + body)
	return e
}

// UserInfoFailed reports a 4xx from the userinfo endpoint. A 401 means the
// access token has expired and the SPA should refresh rather than show an
// error.
func UserInfoFailed(status int, body string) *Error {
	if status == http.StatusUnauthorized {
		return &Error{
			Status:  http.StatusUnauthorized,
			Code:    CodeTokenExpired,
			Message: "The access token has expired and should be refreshed",
			LogInfo: "User Info request was rejected with a 401",
		}
	}
	return AuthorizationClient("User Info request was rejected: " + body)
}

// AuthorizationServer reports the Authorization Server being unreachable or
// answering with a 5xx. The underlying cause is kept for diagnostics and
// never surfaced to the SPA.
func AuthorizationServer(cause error, logInfo string) *Error {
	return &Error{
		Status:  http.StatusBadGateway,
		Code:    CodeAuthServerError,
		Message: "A problem occurred with a request to the Authorization Server",
		LogInfo: logInfo,
		cause:   cause,
	}
}
