package headers

import (
	"fmt"
	"strings"
)

// ParseHeaders converts an array of header strings ("Key: Value") into a map.
// Malformed entries are skipped.
func ParseHeaders(h []string) map[string]string {
	m := make(map[string]string)
	for _, hdr := range h {
		parts := strings.SplitN(hdr, ":", 2)
		if len(parts) == 2 {
			m[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return m
}

// ParseHeadersStrict is ParseHeaders but rejects entries without a colon
// or with an empty name.
func ParseHeadersStrict(h []string) (map[string]string, error) {
	for _, hdr := range h {
		name, _, ok := strings.Cut(hdr, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q: expected \"Name: value\"", hdr)
		}
	}
	return ParseHeaders(h), nil
}

// Merge returns base overlaid with override. Neither input is modified.
func Merge(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
