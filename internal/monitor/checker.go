// Package monitor checks sites for changes and schedules the checks.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/law-makers/sitewatch/internal/config"
	"github.com/law-makers/sitewatch/internal/engine"
	"github.com/law-makers/sitewatch/internal/extract"
	"github.com/law-makers/sitewatch/internal/reqctx"
	"github.com/law-makers/sitewatch/pkg/models"
	"github.com/rs/zerolog"
)

// StateSaver records the latest observed content of a site.
type StateSaver interface {
	Save(ctx context.Context, siteID, content string)
}

// Checker performs one fetch-extract-compare cycle for a site.
type Checker struct {
	fetcher   engine.Fetcher
	extractor *extract.Extractor
	store     StateSaver
	timeout   time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewChecker creates a Checker. timeout bounds each fetch; zero leaves it to the fetcher.
func NewChecker(fetcher engine.Fetcher, extractor *extract.Extractor, store StateSaver, timeout time.Duration, logger zerolog.Logger) *Checker {
	return &Checker{
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		timeout:   timeout,
		logger:    logger.With().Str("component", "checker").Logger(),
		now:       time.Now,
	}
}

// Check observes site once and compares the result with prior.
//
// Transport failures yield NoChange with Err set and leave the stored state
// untouched. A first observation and every change are saved.
func (c *Checker) Check(ctx context.Context, site config.Site, prior models.SiteState) models.CheckOutcome {
	ctx = reqctx.WithCheckContext(ctx, site.ID)
	cc := reqctx.GetCheckContext(ctx)
	log := c.logger.With().
		Str("site_id", site.ID).
		Str("check_id", cc.CheckID).
		Logger()

	log.Info().Str("url", site.URL).Msgf("Checking site: %s", site.Name)

	content, err := c.observe(ctx, site, log)
	if err != nil {
		log.Error().
			Err(err).
			Dur("elapsed", cc.Elapsed()).
			Msgf("Error checking site %s", site.Name)
		return models.CheckOutcome{Kind: models.NoChange, Err: reqctx.NewCheckError(ctx, err)}
	}

	if !prior.Checked() {
		c.store.Save(ctx, site.ID, content)
		log.Info().Str("content", content).Msgf("Initial content for %s", site.Name)
		return models.CheckOutcome{Kind: models.InitialObservation, Content: content}
	}

	old := *prior.Content
	if content == old {
		log.Info().Msgf("No changes detected for %s", site.Name)
		return models.CheckOutcome{Kind: models.NoChange, Content: content}
	}

	c.store.Save(ctx, site.ID, content)
	log.Info().
		Str("old", old).
		Str("new", content).
		Msgf("Content changed on %s", site.Name)

	return models.CheckOutcome{
		Kind:    models.Changed,
		Content: content,
		Change: &models.ChangeRecord{
			SiteID:     site.ID,
			SiteName:   site.Name,
			URL:        site.URL,
			OldContent: old,
			NewContent: content,
			Recipients: site.Recipients,
			DetectedAt: c.now(),
		},
	}
}

// Observe fetches site and returns the content it currently shows,
// without consulting or updating any state.
func (c *Checker) Observe(ctx context.Context, site config.Site) (string, error) {
	return c.observe(ctx, site, c.logger.With().Str("site_id", site.ID).Logger())
}

func (c *Checker) observe(ctx context.Context, site config.Site, log zerolog.Logger) (string, error) {
	page, err := c.fetcher.Fetch(ctx, models.RequestOptions{
		URL:     site.URL,
		Headers: site.Headers,
		Timeout: c.timeout,
	})
	if err != nil {
		return "", err
	}

	if !page.OK() {
		log.Warn().Int("status", page.StatusCode).Msgf("Non-success response from %s", site.Name)
		return fmt.Sprintf("Status Code: %d", page.StatusCode), nil
	}

	result := c.extractor.Extract(page.Body, site.Selector)
	if !result.Found {
		log.Warn().
			Str("selector", site.Selector.String()).
			Msgf("Element with selector '%s' not found on %s", site.Selector, site.Name)
	}
	return result.String(), nil
}
