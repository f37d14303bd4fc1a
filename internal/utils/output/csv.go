package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var csvHeader = []string{
	"site_id", "site_name", "url", "outcome", "content", "previous",
	"error", "notified", "duration_ms", "checked_at", "next_check",
}

// WriteCSV writes reports as CSV with a header row.
func WriteCSV(w io.Writer, reports []CheckReport) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range reports {
		row := []string{
			r.SiteID,
			r.SiteName,
			r.URL,
			r.Outcome,
			r.Content,
			r.Previous,
			r.Error,
			strconv.FormatBool(r.Notified),
			strconv.FormatInt(r.DurationMS, 10),
			formatTime(r.CheckedAt),
			formatTime(r.NextCheck),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// SaveCSV writes reports to a CSV file. Returns an error on failure.
func SaveCSV(reports []CheckReport, filepath string) error {
	file, err := os.Create(filepath)
	if err != nil {
		return err
	}
	if err := WriteCSV(file, reports); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Save picks the format from path's extension: .csv or .json.
func Save(reports []CheckReport, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return SaveCSV(reports, path)
	case ".json":
		return SaveJSON(reports, path)
	default:
		return fmt.Errorf("unsupported output format %q (use .json or .csv)", filepath.Ext(path))
	}
}

// Write renders reports to w in format, "json" or "csv".
func Write(w io.Writer, format string, reports []CheckReport) error {
	switch strings.ToLower(format) {
	case "json":
		return WriteJSON(w, reports)
	case "csv":
		return WriteCSV(w, reports)
	default:
		return fmt.Errorf("unsupported output format %q (use json or csv)", format)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
