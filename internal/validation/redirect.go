package validation

import "net/url"

// ValidRedirectURI checks the shape of a redirect_uri candidate for
// registration time: absolute, no fragment. Matching at authorize time is
// exact string comparison against the registered set, never this function.
func ValidRedirectURI(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if !u.IsAbs() || u.Host == "" {
		return false
	}
	if u.Fragment != "" {
		return false
	}
	return true
}
