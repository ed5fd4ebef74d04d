package apierror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrom(t *testing.T) {
	t.Run("passes classified errors through", func(t *testing.T) {
		original := InvalidState()
		assert.Same(t, original, From(original))
	})

	t.Run("finds classified errors in wrap chains", func(t *testing.T) {
		wrapped := errors.Join(errors.New("outer"), MissingTempLoginData())
		assert.Equal(t, CodeMissingLoginData, From(wrapped).Code)
	})

	t.Run("unknown errors become opaque 500s", func(t *testing.T) {
		cause := errors.New("database on fire")
		apiErr := From(cause)
		assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
		assert.Equal(t, CodeServerError, apiErr.Code)
		assert.NotContains(t, apiErr.Message, "database")
		assert.ErrorIs(t, apiErr, cause)
	})
}

func TestRefreshFailed(t *testing.T) {
	t.Run("invalid_grant is session expiry", func(t *testing.T) {
		apiErr := RefreshFailed(`{"error":"invalid_grant"}`)
		assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
		assert.Equal(t, CodeSessionExpired, apiErr.Code)
	})

	t.Run("other rejections are client errors", func(t *testing.T) {
		apiErr := RefreshFailed(`{"error":"invalid_request"}`)
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Equal(t, CodeAuthorizationError, apiErr.Code)
	})
}

func TestUserInfoFailed(t *testing.T) {
	apiErr := UserInfoFailed(http.StatusUnauthorized, "")
	assert.Equal(t, CodeTokenExpired, apiErr.Code)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	apiErr = UserInfoFailed(http.StatusForbidden, "nope")
	assert.Equal(t, CodeAuthorizationError, apiErr.Code)
}

func TestAuthorizationResponse(t *testing.T) {
	t.Run("oauth error code is surfaced verbatim", func(t *testing.T) {
		apiErr := AuthorizationResponse("invalid_scope", "scope not granted")
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Equal(t, "invalid_scope", apiErr.Code)
		assert.Equal(t, "scope not granted", apiErr.Message)
	})

	t.Run("login_required is a 401", func(t *testing.T) {
		apiErr := AuthorizationResponse("login_required", "")
		assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
		require.NotEmpty(t, apiErr.Message)
	})
}

func TestErrorMessageNeverLeaksLogInfo(t *testing.T) {
	apiErr := Unauthorized("ip 10.0.0.1 sent a forged CSRF header")
	assert.Contains(t, apiErr.Error(), "forged")
	assert.NotContains(t, apiErr.Message, "forged")
}
