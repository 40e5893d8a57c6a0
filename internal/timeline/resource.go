package timeline

import (
	"net/url"
	"path"
	"slices"
	"strings"
)

// pathEquivalentSchemes are compared on their path alone, so a file and its
// version-control view count as the same resource.
var pathEquivalentSchemes = []string{"file", "git"}

// DefaultUnsupportedSchemes cannot produce a timeline.
var DefaultUnsupportedSchemes = []string{"output", "untitled", "vscode-settings", "data", "about"}

// normalizeResource returns the canonical string form of a resource URI.
// Strings that do not parse are returned unchanged.
func normalizeResource(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path != "" {
		u.Path = path.Clean(u.Path)
	}
	u.RawPath = ""
	return u.String()
}

// sameResource reports whether a and b identify the same resource.
func sameResource(a, b string) bool {
	if a == "" || b == "" {
		return a == b
	}
	if normalizeResource(a) == normalizeResource(b) {
		return true
	}
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	if !slices.Contains(pathEquivalentSchemes, strings.ToLower(ua.Scheme)) ||
		!slices.Contains(pathEquivalentSchemes, strings.ToLower(ub.Scheme)) {
		return false
	}
	return ua.Path != "" && path.Clean(ua.Path) == path.Clean(ub.Path)
}

// scheme returns the lower-cased scheme of a resource URI.
func scheme(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}
