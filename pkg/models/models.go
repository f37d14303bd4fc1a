package models

import "time"

// SiteState is the persisted observation of one monitored site.
// Content is nil until the first successful check.
type SiteState struct {
	Content       *string    `json:"content"`
	LastCheckedAt *time.Time `json:"last_checked_at"`
}

// Checked reports whether the site has a baseline to diff against.
func (s SiteState) Checked() bool {
	return s.Content != nil
}

// ContentOr returns the stored content, or def when the site was never checked.
func (s SiteState) ContentOr(def string) string {
	if s.Content == nil {
		return def
	}
	return *s.Content
}

// ChangeRecord describes one detected change, handed to notifiers and then dropped.
type ChangeRecord struct {
	SiteID     string    `json:"site_id"`
	SiteName   string    `json:"site_name"`
	URL        string    `json:"url"`
	OldContent string    `json:"old_content"`
	NewContent string    `json:"new_content"`
	Recipients []string  `json:"recipients,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}

// OutcomeKind classifies the result of checking a site once
type OutcomeKind string

const (
	NoChange           OutcomeKind = "no_change"
	InitialObservation OutcomeKind = "initial"
	Changed            OutcomeKind = "changed"
)

// CheckOutcome is what a single check of a site produced.
//
// A transport failure is reported as NoChange with Err set: the cycle is
// skipped and the stored baseline is left untouched.
type CheckOutcome struct {
	Kind    OutcomeKind
	Content string
	Change  *ChangeRecord
	Err     error
}

// RequestOptions describes one page fetch
type RequestOptions struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// PageData is a fetched page. Body is only read for 2xx responses.
type PageData struct {
	URL          string            `json:"url"`
	StatusCode   int               `json:"status_code"`
	Body         string            `json:"-"`
	Headers      map[string]string `json:"headers,omitempty"`
	FetchedAt    time.Time         `json:"fetched_at"`
	ResponseTime int64             `json:"response_time_ms"`
}

// OK reports whether the response carried a 2xx status.
func (p *PageData) OK() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}
