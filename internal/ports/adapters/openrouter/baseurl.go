package openrouter

import (
	"github.com/forPelevin/storyreel/internal/ports/adapters/apiclient"
)

const defaultBaseURL = "https://openrouter.ai"

var defaultAllowedHosts = []string{"openrouter.ai", "api.openrouter.ai"}

func normalizeBaseURL(baseURL string) string {
	return apiclient.NormalizeBaseURL(baseURL, defaultBaseURL)
}

// ValidateBaseURL checks OPENROUTER_BASE_URL against allowedHosts, or the
// public OpenRouter hosts when none are configured.
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	return apiclient.ValidateBaseURL("OPENROUTER_BASE_URL", normalizeBaseURL(baseURL), defaultAllowedHosts, allowedHosts)
}
