package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"time"

	"github.com/law-makers/sitewatch/internal/config"
	"github.com/law-makers/sitewatch/internal/notify"
	"github.com/law-makers/sitewatch/pkg/models"
	"github.com/rs/zerolog"
)

// MinWait is the shortest pause between sweeps.
const MinWait = time.Second

// SiteChecker checks one site against its prior state.
type SiteChecker interface {
	Check(ctx context.Context, site config.Site, prior models.SiteState) models.CheckOutcome
}

// StateTracker is the part of the state store the scheduler drives.
type StateTracker interface {
	Load(ctx context.Context, siteID string) models.SiteState
	Flush(ctx context.Context) int
}

// Result is what one site produced during a sweep.
type Result struct {
	Site      config.Site
	Outcome   models.CheckOutcome
	Duration  time.Duration
	NextCheck time.Time
	Interval  time.Duration
	Notified  bool
	NotifyErr error
	Panicked  bool
}

// Options tunes a Scheduler. Zero values select the defaults.
type Options struct {
	// SkipStartupSweep delays the first check of each site by one interval
	// instead of making every site due immediately on start.
	SkipStartupSweep bool
	// Rand draws intervals.
	Rand *rand.Rand
	// Clock returns the current time.
	Clock func() time.Time
	// Sleep waits for d or until ctx is done, returning ctx.Err() in that case.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnResult is called after each site is checked.
	OnResult func(Result)
}

// Scheduler runs the sweep loop over a fixed list of sites.
// It is driven by a single goroutine; sites are checked sequentially.
type Scheduler struct {
	sites    []config.Site
	checker  SiteChecker
	store    StateTracker
	notifier notify.Notifier
	logger   zerolog.Logger

	skipStartupSweep bool
	rng              *rand.Rand
	now              func() time.Time
	sleep            func(ctx context.Context, d time.Duration) error
	onResult         func(Result)

	next         map[string]time.Time
	lastInterval map[string]time.Duration
}

// NewScheduler creates a Scheduler. notifier may be nil.
func NewScheduler(sites []config.Site, checker SiteChecker, store StateTracker, notifier notify.Notifier, logger zerolog.Logger, opts Options) *Scheduler {
	s := &Scheduler{
		sites:            sites,
		checker:          checker,
		store:            store,
		notifier:         notifier,
		logger:           logger.With().Str("component", "scheduler").Logger(),
		skipStartupSweep: opts.SkipStartupSweep,
		rng:              opts.Rand,
		now:              opts.Clock,
		sleep:            opts.Sleep,
		onResult:         opts.OnResult,
		next:             make(map[string]time.Time, len(sites)),
		lastInterval:     make(map[string]time.Duration, len(sites)),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sleep == nil {
		s.sleep = sleepContext
	}
	return s
}

func (s *Scheduler) validate() error {
	if len(s.sites) == 0 {
		return errors.New("no sites configured")
	}
	if s.checker == nil {
		return errors.New("scheduler has no site checker")
	}
	if s.store == nil {
		return errors.New("scheduler has no state store")
	}
	return nil
}

// Run checks sites as they come due until ctx is cancelled, which is a
// clean stop and returns nil. A check in progress when ctx is cancelled
// runs to completion first.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.validate(); err != nil {
		return err
	}

	count := len(s.sites)
	plural := "s"
	if count == 1 {
		plural = ""
	}
	s.logger.Info().Int("sites", count).Msgf("Starting to monitor %d website%s", count, plural)

	if s.skipStartupSweep {
		start := s.now()
		for _, site := range s.sites {
			s.schedule(site, start)
		}
	}

	for {
		s.sweep(ctx, false)

		if remaining := s.store.Flush(context.WithoutCancel(ctx)); remaining > 0 {
			s.logger.Warn().Int("sites", remaining).Msg("Some site state is only held in memory")
		}

		if ctx.Err() != nil {
			s.logger.Info().Msg("Monitoring stopped")
			return nil
		}

		wait, soonest := s.nextWait(s.now())
		s.logger.Info().
			Dur("wait", wait).
			Str("next_site", soonest.ID).
			Msgf("Sleeping for %.2f seconds until next check (%s)", wait.Seconds(), soonest.Name)

		if err := s.sleep(ctx, wait); err != nil {
			s.logger.Info().Msg("Monitoring stopped")
			return nil
		}
	}
}

// SweepOnce checks every due site once, or every site when force is set,
// and returns what each produced.
func (s *Scheduler) SweepOnce(ctx context.Context, force bool) ([]Result, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	results := s.sweep(ctx, force)
	s.store.Flush(context.WithoutCancel(ctx))
	return results, nil
}

// nextCheck returns when siteID is next due; zero means immediately.
func (s *Scheduler) nextCheck(siteID string) time.Time {
	return s.next[siteID]
}

func (s *Scheduler) sweep(ctx context.Context, force bool) []Result {
	sweepStart := s.now()
	var results []Result

	for _, site := range s.sites {
		if ctx.Err() != nil {
			break
		}
		if !force && sweepStart.Before(s.next[site.ID]) {
			continue
		}

		res := s.checkSite(ctx, site)
		res.Interval, res.NextCheck = s.schedule(site, sweepStart)
		results = append(results, res)
		if s.onResult != nil {
			s.onResult(res)
		}
	}
	return results
}

// checkSite runs one check on a context detached from cancellation.
// Errors and panics stay confined to the site.
func (s *Scheduler) checkSite(ctx context.Context, site config.Site) (res Result) {
	checkCtx := context.WithoutCancel(ctx)
	start := s.now()
	res.Site = site

	defer func() {
		res.Duration = s.now().Sub(start)
		if r := recover(); r != nil {
			res.Panicked = true
			res.Outcome = models.CheckOutcome{Kind: models.NoChange, Err: fmt.Errorf("panic: %v", r)}
			s.logger.Error().
				Str("site_id", site.ID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msgf("Check of %s panicked", site.Name)
		}
	}()

	prior := s.store.Load(checkCtx, site.ID)
	res.Outcome = s.checker.Check(checkCtx, site, prior)

	if res.Outcome.Kind == models.Changed && res.Outcome.Change != nil && s.notifier != nil {
		if err := s.notifier.Notify(checkCtx, *res.Outcome.Change); err != nil {
			res.NotifyErr = err
			s.logger.Error().
				Err(err).
				Str("site_id", site.ID).
				Str("notifier", s.notifier.Name()).
				Msgf("Failed to send notification for %s", site.Name)
		} else {
			res.Notified = true
			s.logger.Info().Str("site_id", site.ID).Msgf("Notification sent for %s", site.Name)
		}
	}
	return res
}

// schedule sets the next check of site to base plus a fresh interval.
func (s *Scheduler) schedule(site config.Site, base time.Time) (time.Duration, time.Time) {
	interval := NextInterval(s.rng, site.MinInterval(), site.MaxInterval())
	next := base.Add(interval)
	s.next[site.ID] = next

	if s.lastInterval[site.ID] != interval {
		s.lastInterval[site.ID] = interval
		s.logger.Info().
			Str("site_id", site.ID).
			Dur("interval", interval).
			Msgf("Next check for %s in %.2f minutes", site.Name, interval.Minutes())
	}
	return interval, next
}

// nextWait returns how long to sleep and which site is due first.
// Ties go to the site configured first.
func (s *Scheduler) nextWait(now time.Time) (time.Duration, config.Site) {
	soonest := s.sites[0]
	earliest := s.next[soonest.ID]
	for _, site := range s.sites[1:] {
		if t := s.next[site.ID]; t.Before(earliest) {
			earliest, soonest = t, site
		}
	}

	wait := earliest.Sub(now)
	if wait < MinWait {
		wait = MinWait
	}
	return wait, soonest
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
