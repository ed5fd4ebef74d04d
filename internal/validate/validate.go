// Package validate gates inbound requests before any handler logic runs:
// the web origin allow-list and the CSRF double-submit check.
package validate

import (
	"crypto/subtle"
	"slices"

	"github.com/spafront/spa-front/internal/apierror"
	"github.com/spafront/spa-front/internal/crypto"
)

// Options selects which checks an endpoint needs. Login endpoints must
// tolerate the browser not yet holding a CSRF cookie.
type Options struct {
	RequireTrustedOrigin bool
	RequireCSRFHeader    bool
}

// DefaultOptions enables every check.
func DefaultOptions() Options {
	return Options{
		RequireTrustedOrigin: true,
		RequireCSRFHeader:    true,
	}
}

// Data holds the request values under validation. CSRFCookie is the raw
// encrypted cookie value; CSRFHeader is the plaintext the SPA echoed back.
type Data struct {
	OriginHeader   string
	CSRFHeader     string
	CSRFCookie     string
	TrustedOrigins []string
	EncKey         []byte
}

// Request runs the selected checks and returns an unauthorized error on the
// first failure. Neither check reads the request body, and the origin check
// runs before any cookie is touched.
func Request(data Data, opts Options) error {
	if opts.RequireTrustedOrigin {
		if !slices.Contains(data.TrustedOrigins, data.OriginHeader) {
			return apierror.Unauthorized("The call is from an untrusted web origin: " + data.OriginHeader)
		}
	}

	if opts.RequireCSRFHeader {
		if data.CSRFCookie == "" {
			return apierror.Unauthorized("No CSRF cookie was supplied in a POST request")
		}

		decrypted, err := crypto.DecryptCookie(data.EncKey, data.CSRFCookie)
		if err != nil {
			return apierror.Unauthorized("The CSRF cookie could not be decrypted")
		}

		if subtle.ConstantTimeCompare([]byte(decrypted), []byte(data.CSRFHeader)) != 1 {
			return apierror.Unauthorized("The CSRF header did not match the CSRF cookie")
		}
	}

	return nil
}
