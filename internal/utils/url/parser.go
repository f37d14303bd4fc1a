package urlutil

import (
	"fmt"
	"net/url"
	"unicode/utf8"
)

// ValidateURL checks that urlStr is an absolute http(s) URL with a host
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: must be http or https, got %s", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("invalid URL: missing host")
	}

	return nil
}

// ShortenURL truncates urlStr for display: anything longer than max runes
// keeps its first max-3 runes followed by "...".
func ShortenURL(urlStr string, max int) string {
	if max <= 3 || utf8.RuneCountInString(urlStr) <= max {
		return urlStr
	}
	runes := []rune(urlStr)
	return string(runes[:max-3]) + "..."
}

// Host returns the host of urlStr without port, or "" when it cannot be parsed
func Host(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
