package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/law-makers/sitewatch/internal/extract"
)

// Site is one monitored page, fully resolved at load time.
type Site struct {
	ID                 string            `json:"id" validate:"required,siteid"`
	Name               string            `json:"name"`
	URL                string            `json:"url" validate:"required,httpurl"`
	Selector           extract.Selector  `json:"selector" validate:"-"`
	Headers            map[string]string `json:"headers,omitempty"`
	MinIntervalMinutes float64           `json:"min_check_interval_minutes" validate:"gt=0"`
	MaxIntervalMinutes float64           `json:"max_check_interval_minutes" validate:"gtefield=MinIntervalMinutes"`
	Recipients         []string          `json:"recipients,omitempty" validate:"dive,email"`
}

// MinInterval returns the lower bound of the check interval
func (s Site) MinInterval() time.Duration {
	return minutes(s.MinIntervalMinutes)
}

// MaxInterval returns the upper bound of the check interval
func (s Site) MaxInterval() time.Duration {
	return minutes(s.MaxIntervalMinutes)
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

// resolveSite applies defaults to a site from the file. A selector that fails
// to compile is not fatal: the site keeps an Invalid selector and a warning
// is returned.
func resolveSite(fs fileSite) (Site, string, error) {
	site := Site{
		ID:         strings.TrimSpace(fs.ID),
		Name:       strings.TrimSpace(fs.Name),
		URL:        strings.TrimSpace(fs.URL),
		Headers:    fs.Headers,
		Recipients: dedupe(fs.Recipients),
	}
	if site.Name == "" {
		site.Name = site.ID
	}

	rawSelector := fs.Selector
	if rawSelector == "" {
		rawSelector = fs.CSSSelector
	}
	if strings.TrimSpace(rawSelector) == "" {
		return site, "", fmt.Errorf("site %q: a selector (css_selector) is required", site.ID)
	}

	var warning string
	sel, err := extract.ParseSelector(rawSelector)
	if err != nil {
		warning = fmt.Sprintf("site %q: %v; it will report %s", site.ID, err, extract.NotFoundText)
	}
	site.Selector = sel

	switch {
	case fs.MinInterval != nil:
		site.MinIntervalMinutes = *fs.MinInterval
	case fs.CheckInterval != nil:
		site.MinIntervalMinutes = *fs.CheckInterval
	default:
		site.MinIntervalMinutes = DefaultMinIntervalMinutes
	}

	if fs.MaxInterval != nil {
		site.MaxIntervalMinutes = *fs.MaxInterval
	} else {
		site.MaxIntervalMinutes = site.MinIntervalMinutes * 2
	}
	if site.MaxIntervalMinutes < site.MinIntervalMinutes {
		site.MaxIntervalMinutes = site.MinIntervalMinutes
	}

	return site, warning, nil
}

// dedupe drops blank and repeated entries, keeping first occurrences in order.
func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
