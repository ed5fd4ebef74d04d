// Package idtoken performs sanity checks on received ID tokens and decodes
// their claims for the SPA.
//
// Tokens arrive over the trusted back-channel connection to the
// Authorization Server, so signatures are not verified here; the checks
// guard against a misconfigured or substituted client, not forgery.
// https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
package idtoken

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spafront/spa-front/internal/apierror"
)

// Validate checks the iss, aud and azp claims of a raw ID token against the
// configured issuer and client id.
func Validate(issuer, clientID, rawToken string) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return apierror.InvalidIDToken(err, "The ID token could not be decoded")
	}

	iss, _ := claims["iss"].(string)
	if iss != issuer {
		return apierror.InvalidIDToken(nil, fmt.Sprintf("Unexpected iss claim: %q", iss))
	}

	audience := audienceClaim(claims["aud"])
	found := false
	for _, aud := range audience {
		if aud == clientID {
			found = true
			break
		}
	}
	if !found {
		return apierror.InvalidIDToken(nil, "The configured client id is not present in the aud claim")
	}

	// With multiple audiences (or an explicit azp) the authorized party must
	// be this client.
	azp, hasAzp := claims["azp"].(string)
	if len(audience) > 1 || hasAzp {
		if azp != clientID {
			return apierror.InvalidIDToken(nil, fmt.Sprintf("Unexpected azp claim: %q", azp))
		}
	}

	return nil
}

// Claims decodes the full claim set of a raw ID token for the claims
// endpoint.
func Claims(rawToken string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return nil, apierror.MalformedIDToken(err)
	}
	if len(claims) == 0 {
		return nil, apierror.MalformedIDToken(errors.New("empty claim set"))
	}
	return claims, nil
}

func audienceClaim(aud any) []string {
	switch v := aud.(type) {
	case string:
		return []string{v}
	case []any:
		audience := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				audience = append(audience, s)
			}
		}
		return audience
	default:
		return nil
	}
}
