package output

import (
	"encoding/json"
	"io"
	"os"
	"time"
)

// CheckReport is one row of a check run export.
type CheckReport struct {
	SiteID     string    `json:"site_id"`
	SiteName   string    `json:"site_name"`
	URL        string    `json:"url"`
	Outcome    string    `json:"outcome"`
	Content    string    `json:"content"`
	Previous   string    `json:"previous,omitempty"`
	Error      string    `json:"error,omitempty"`
	Notified   bool      `json:"notified"`
	DurationMS int64     `json:"duration_ms"`
	CheckedAt  time.Time `json:"checked_at"`
	NextCheck  time.Time `json:"next_check"`
}

// WriteJSON writes reports as an indented JSON array.
func WriteJSON(w io.Writer, reports []CheckReport) error {
	if reports == nil {
		reports = []CheckReport{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(reports)
}

// SaveJSON writes a JSON export of reports to filepath.
func SaveJSON(reports []CheckReport, filepath string) error {
	file, err := os.Create(filepath)
	if err != nil {
		return err
	}
	if err := WriteJSON(file, reports); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
