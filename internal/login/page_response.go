package login

import (
	"net/url"

	"github.com/spafront/spa-front/internal/apierror"
)

// OAuthResponse holds the code and state of a successful authorization
// response.
type OAuthResponse struct {
	Code  string
	State string
}

// ParsePageURL classifies the page URL the SPA posts on load. Three
// outcomes: a successful authorization response (code and state present), an
// authorization error response (state and error present, returned as a
// classified error), or not an OAuth response at all (nil, nil) in which
// case the caller reports the existing session state instead.
func ParsePageURL(pageURL string) (*OAuthResponse, error) {
	if pageURL == "" {
		return nil, nil
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil
	}
	query := parsed.Query()

	state := query.Get("state")
	if state != "" && query.Get("code") != "" {
		return &OAuthResponse{
			Code:  query.Get("code"),
			State: state,
		}, nil
	}

	if state != "" && query.Get("error") != "" {
		return nil, apierror.AuthorizationResponse(query.Get("error"), query.Get("error_description"))
	}

	return nil, nil
}
