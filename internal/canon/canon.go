// Package canon canonicalizes URLs for dedup and same-site tests, per the
// rules every other component relies on before queueing, hashing, or
// comparing hosts.
package canon

import (
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned when the input cannot be parsed as a URL.
var ErrInvalidURL = errors.New("canon: invalid URL")

// trackingParams are stripped from the query string. The set is
// intentionally small and extensible.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
}

// Canonicalize normalizes rawURL, resolving it against referrer first when
// referrer is non-empty. On parse failure it returns the input unchanged
// and an error so the caller can mark the link as likely-invalid without
// losing it.
func Canonicalize(rawURL, referrer string) (string, error) {
	target := rawURL
	if referrer != "" {
		base, err := url.Parse(referrer)
		if err == nil {
			if rel, err := url.Parse(rawURL); err == nil {
				target = base.ResolveReference(rel).String()
			}
		}
	}

	u, err := url.Parse(target)
	if err != nil {
		return rawURL, ErrInvalidURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(stripDefaultPort(u.Scheme, u.Host))
	u.Fragment = ""

	if u.RawQuery != "" {
		u.RawQuery = stripTrackingParams(u.RawQuery)
	}

	if u.Path == "/" {
		u.Path = ""
	}

	return u.String(), nil
}

// CanonicalizeOrInput is a convenience wrapper that always returns a usable
// string even on parse failure (the unchanged input), reporting the
// likely-invalid case as valid=false instead of an error.
func CanonicalizeOrInput(rawURL, referrer string) (canonical string, valid bool) {
	c, err := Canonicalize(rawURL, referrer)
	return c, err == nil
}

func stripDefaultPort(scheme, host string) string {
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		return strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		return strings.TrimSuffix(host, ":443")
	default:
		return host
	}
}

// stripTrackingParams removes known tracking parameters while preserving
// the original ordering of the remaining parameters (query semantics are
// order-sensitive for some servers, so we never alphabetize).
func stripTrackingParams(rawQuery string) string {
	pairs := strings.Split(rawQuery, "&")
	kept := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		key := pair
		if idx := strings.IndexByte(pair, '='); idx >= 0 {
			key = pair[:idx]
		}
		if decodedKey, err := url.QueryUnescape(key); err == nil {
			key = decodedKey
		}
		if _, tracked := trackingParams[strings.ToLower(key)]; tracked {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}

// SameSite reports whether a and b share the same canonical host
// (case-insensitive). Subdomains are considered different sites.
func SameSite(a, b string) bool {
	ua, err1 := url.Parse(a)
	ub, err2 := url.Parse(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return strings.EqualFold(ua.Hostname(), ub.Hostname())
}

// Host returns the lowercase host (without port) of rawURL, or "" on parse
// failure.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
