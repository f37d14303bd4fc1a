package engine

import (
	"context"

	"github.com/law-makers/sitewatch/pkg/models"
)

// Fetcher is the interface that page fetchers must implement
type Fetcher interface {
	// Fetch retrieves the page described by opts.
	// Non-2xx responses are returned as PageData, not as errors.
	Fetch(ctx context.Context, opts models.RequestOptions) (*models.PageData, error)

	// Name returns the name of the fetcher implementation
	Name() string
}
