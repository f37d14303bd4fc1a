package monitor

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/law-makers/sitewatch/internal/config"
	"github.com/law-makers/sitewatch/pkg/models"
	"github.com/rs/zerolog"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeChecker struct {
	mu       sync.Mutex
	calls    []string
	outcomes map[string]models.CheckOutcome
	panicOn  string
	onCheck  func(ctx context.Context, site config.Site)
}

func (f *fakeChecker) Check(ctx context.Context, site config.Site, prior models.SiteState) models.CheckOutcome {
	f.mu.Lock()
	f.calls = append(f.calls, site.ID)
	f.mu.Unlock()

	if f.onCheck != nil {
		f.onCheck(ctx, site)
	}
	if site.ID == f.panicOn {
		panic("selector engine exploded")
	}
	if out, ok := f.outcomes[site.ID]; ok {
		return out
	}
	return models.CheckOutcome{Kind: models.NoChange}
}

type fakeTracker struct {
	mu      sync.Mutex
	flushes int
}

func (f *fakeTracker) Load(context.Context, string) models.SiteState { return models.SiteState{} }

func (f *fakeTracker) Flush(context.Context) int {
	f.mu.Lock()
	f.flushes++
	f.mu.Unlock()
	return 0
}

type fakeNotifier struct {
	mu   sync.Mutex
	got  []models.ChangeRecord
	fail error
}

func (f *fakeNotifier) Name() string { return "fake" }

func (f *fakeNotifier) Notify(_ context.Context, change models.ChangeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, change)
	return f.fail
}

func fixedSite(id string, minutes float64) config.Site {
	return config.Site{ID: id, Name: id, MinIntervalMinutes: minutes, MaxIntervalMinutes: minutes}
}

func changed(id string) models.CheckOutcome {
	return models.CheckOutcome{
		Kind:    models.Changed,
		Content: "new",
		Change:  &models.ChangeRecord{SiteID: id, SiteName: id, OldContent: "old", NewContent: "new"},
	}
}

func TestNextInterval_Bounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	lo, hi := 5*time.Minute, 10*time.Minute

	var sawLow, sawHigh bool
	for i := 0; i < 1000; i++ {
		d := NextInterval(rng, lo, hi)
		if d < lo || d > hi {
			t.Fatalf("Interval %v outside [%v, %v]", d, lo, hi)
		}
		if d < 6*time.Minute {
			sawLow = true
		}
		if d > 9*time.Minute {
			sawHigh = true
		}
	}
	if !sawLow || !sawHigh {
		t.Error("Expected samples spread across the range")
	}
}

func TestNextInterval_Degenerate(t *testing.T) {
	if got := NextInterval(nil, 10*time.Minute, 5*time.Minute); got != 10*time.Minute {
		t.Errorf("Expected exactly min when max < min, got %v", got)
	}
	if got := NextInterval(nil, 7*time.Minute, 7*time.Minute); got != 7*time.Minute {
		t.Errorf("Expected exactly min when max == min, got %v", got)
	}
}

func TestScheduler_RunWaitsForSoonestSite(t *testing.T) {
	clock := newFakeClock()
	checker := &fakeChecker{}
	tracker := &fakeTracker{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var waits []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		clock.Advance(d)
		if len(waits) == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	s := NewScheduler(
		[]config.Site{fixedSite("a", 5), fixedSite("b", 2)},
		checker, tracker, nil, zerolog.Nop(),
		Options{Clock: clock.Now, Sleep: sleep},
	)

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Expected clean stop, got %v", err)
	}

	wantWaits := []time.Duration{2 * time.Minute, 2 * time.Minute, time.Minute}
	if len(waits) != len(wantWaits) {
		t.Fatalf("Expected %d sleeps, got %v", len(wantWaits), waits)
	}
	for i := range wantWaits {
		if waits[i] != wantWaits[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, wantWaits[i], waits[i])
		}
	}

	wantCalls := []string{"a", "b", "b", "b"}
	if len(checker.calls) != len(wantCalls) {
		t.Fatalf("Expected checks %v, got %v", wantCalls, checker.calls)
	}
	for i := range wantCalls {
		if checker.calls[i] != wantCalls[i] {
			t.Errorf("check %d: expected %s, got %s", i, wantCalls[i], checker.calls[i])
		}
	}
	if tracker.flushes != 3 {
		t.Errorf("Expected a flush after every sweep, got %d", tracker.flushes)
	}
}

func TestScheduler_WaitIsAtLeastOneSecond(t *testing.T) {
	clock := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		got = d
		cancel()
		return ctx.Err()
	}

	// 0.001 minutes = 60ms
	s := NewScheduler([]config.Site{fixedSite("fast", 0.001)}, &fakeChecker{}, &fakeTracker{}, nil, zerolog.Nop(),
		Options{Clock: clock.Now, Sleep: sleep})

	if err := s.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if got != MinWait {
		t.Errorf("Expected wait clamped to %v, got %v", MinWait, got)
	}
}

func TestScheduler_NextIsSweepStartPlusInterval(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	checker := &fakeChecker{onCheck: func(context.Context, config.Site) { clock.Advance(30 * time.Second) }}

	s := NewScheduler([]config.Site{fixedSite("a", 5), fixedSite("b", 5)}, checker, &fakeTracker{}, nil, zerolog.Nop(),
		Options{Clock: clock.Now})

	results, err := s.SweepOnce(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	for _, id := range []string{"a", "b"} {
		if got := s.nextCheck(id); !got.Equal(start.Add(5 * time.Minute)) {
			t.Errorf("%s: expected next check at sweep start + 5m, got %v", id, got)
		}
	}
	if results[0].Duration != 30*time.Second {
		t.Errorf("Expected duration 30s, got %v", results[0].Duration)
	}
}

func TestScheduler_ForwardsChangesToNotifier(t *testing.T) {
	checker := &fakeChecker{outcomes: map[string]models.CheckOutcome{"a": changed("a")}}
	notifier := &fakeNotifier{}

	s := NewScheduler([]config.Site{fixedSite("a", 5), fixedSite("b", 5)}, checker, &fakeTracker{}, notifier, zerolog.Nop(),
		Options{})

	results, _ := s.SweepOnce(context.Background(), true)

	if len(notifier.got) != 1 || notifier.got[0].SiteID != "a" {
		t.Fatalf("Expected exactly one notification for a, got %v", notifier.got)
	}
	if !results[0].Notified || results[1].Notified {
		t.Errorf("Unexpected notified flags: %v %v", results[0].Notified, results[1].Notified)
	}
}

func TestScheduler_FaultsStayWithinSite(t *testing.T) {
	checker := &fakeChecker{
		panicOn:  "a",
		outcomes: map[string]models.CheckOutcome{"b": changed("b")},
	}
	notifier := &fakeNotifier{fail: errors.New("smtp down")}

	s := NewScheduler([]config.Site{fixedSite("a", 5), fixedSite("b", 5), fixedSite("c", 5)}, checker, &fakeTracker{}, notifier, zerolog.Nop(),
		Options{})

	results, err := s.SweepOnce(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected all three sites to be visited, got %d", len(results))
	}
	if !results[0].Panicked || results[0].Outcome.Err == nil {
		t.Error("Expected the panic to be recorded on site a")
	}
	if results[1].NotifyErr == nil {
		t.Error("Expected the notifier error to be recorded on site b")
	}
	if s.nextCheck("a").IsZero() {
		t.Error("Expected a panicking site to be rescheduled")
	}
	if len(checker.calls) != 3 {
		t.Errorf("Expected 3 checks, got %v", checker.calls)
	}
}

func TestScheduler_CancelLetsCurrentCheckFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var checkCtxErr error
	checker := &fakeChecker{onCheck: func(checkCtx context.Context, site config.Site) {
		if site.ID == "a" {
			cancel()
			checkCtxErr = checkCtx.Err()
		}
	}}
	sleeps := 0
	s := NewScheduler([]config.Site{fixedSite("a", 5), fixedSite("b", 5)}, checker, &fakeTracker{}, nil, zerolog.Nop(),
		Options{Sleep: func(context.Context, time.Duration) error { sleeps++; return nil }})

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Expected nil on cancellation, got %v", err)
	}
	if checkCtxErr != nil {
		t.Errorf("Expected the in-flight check context to survive cancellation, got %v", checkCtxErr)
	}
	if len(checker.calls) != 1 {
		t.Errorf("Expected sweep to stop after the in-flight site, got %v", checker.calls)
	}
	if sleeps != 0 {
		t.Errorf("Expected no sleep after cancellation, got %d", sleeps)
	}
}

func TestScheduler_NoStartupSweep(t *testing.T) {
	checker := &fakeChecker{}
	s := NewScheduler([]config.Site{fixedSite("a", 5)}, checker, &fakeTracker{}, nil, zerolog.Nop(), Options{SkipStartupSweep: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var firstWait time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		firstWait = d
		cancel()
		return ctx.Err()
	}
	clock := newFakeClock()
	s.now = clock.Now

	if err := s.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if len(checker.calls) != 0 {
		t.Errorf("Expected no check before the first interval, got %v", checker.calls)
	}
	if firstWait != 5*time.Minute {
		t.Errorf("Expected to wait one interval, got %v", firstWait)
	}
}

func TestScheduler_ZeroOptionsSweepOnStart(t *testing.T) {
	checker := &fakeChecker{}
	s := NewScheduler([]config.Site{fixedSite("a", 5), fixedSite("b", 5)}, checker, &fakeTracker{}, nil, zerolog.Nop(), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	if err := s.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if len(checker.calls) != 2 {
		t.Errorf("Expected both sites checked on start, got %v", checker.calls)
	}
}

func TestScheduler_InfrastructureErrors(t *testing.T) {
	s := NewScheduler(nil, &fakeChecker{}, &fakeTracker{}, nil, zerolog.Nop(), Options{})
	if err := s.Run(context.Background()); err == nil {
		t.Error("Expected error with no sites")
	}

	s = NewScheduler([]config.Site{fixedSite("a", 5)}, nil, &fakeTracker{}, nil, zerolog.Nop(), Options{})
	if _, err := s.SweepOnce(context.Background(), true); err == nil {
		t.Error("Expected error with no checker")
	}
}

func TestScheduler_OnResultPerSite(t *testing.T) {
	var seen []string
	s := NewScheduler([]config.Site{fixedSite("a", 5), fixedSite("b", 5)}, &fakeChecker{}, &fakeTracker{}, nil, zerolog.Nop(),
		Options{OnResult: func(r Result) { seen = append(seen, r.Site.ID) }})

	if _, err := s.SweepOnce(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Errorf("Expected a callback per site in order, got %v", seen)
	}
}
