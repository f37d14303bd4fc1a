// internal/engine/test_helpers.go
package engine

import (
	"time"

	"github.com/rs/zerolog"
)

// NewTestStaticFetcher creates a StaticFetcher for testing with default dependencies
func NewTestStaticFetcher() *StaticFetcher {
	return NewStaticFetcher(
		NewHTTPClient(30*time.Second),
		StaticOptions{
			UserAgent: "TestFetcher/1.0",
			Timeout:   5 * time.Second,
		},
		zerolog.Nop(),
	)
}
