package apiclient

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeBaseURL trims whitespace and trailing slashes, falling back to def.
func NormalizeBaseURL(baseURL, def string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = def
	}
	return strings.TrimRight(baseURL, "/")
}

// ValidateBaseURL accepts only absolute https URLs without userinfo, query or
// fragment, whose host is in allowedHosts (or defaultHosts when none are
// configured). envName is used in error messages.
func ValidateBaseURL(envName, baseURL string, defaultHosts, allowedHosts []string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", envName, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid %s %q: absolute URL with host is required", envName, baseURL)
	}
	if u.User != nil {
		return fmt.Errorf("invalid %s %q: userinfo is not allowed", envName, baseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid %s %q: query and fragment are not allowed", envName, baseURL)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return fmt.Errorf("invalid %s %q: https is required", envName, baseURL)
	}

	host := strings.ToLower(u.Hostname())
	allowed := normalizeHosts(allowedHosts)
	if len(allowed) == 0 {
		allowed = normalizeHosts(defaultHosts)
	}
	if _, ok := allowed[host]; !ok {
		return fmt.Errorf("invalid %s %q: host %q is not allowed", envName, baseURL, host)
	}
	return nil
}

func normalizeHosts(hosts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		v := strings.ToLower(strings.TrimSpace(h))
		v = strings.TrimPrefix(v, "http://")
		v = strings.TrimPrefix(v, "https://")
		v = strings.Trim(v, "/")
		if i := strings.Index(v, ":"); i >= 0 {
			v = v[:i]
		}
		if v == "" {
			continue
		}
		out[v] = struct{}{}
	}
	return out
}
