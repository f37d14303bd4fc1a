package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/law-makers/sitewatch/internal/config"
	"github.com/law-makers/sitewatch/internal/engine"
	"github.com/law-makers/sitewatch/internal/extract"
	"github.com/law-makers/sitewatch/internal/store"
	"github.com/law-makers/sitewatch/pkg/models"
	"github.com/rs/zerolog"
)

// countingStore wraps a StateStore and counts saves.
type countingStore struct {
	*store.StateStore
	mu    sync.Mutex
	saves int
}

func (c *countingStore) Save(ctx context.Context, siteID, content string) {
	c.mu.Lock()
	c.saves++
	c.mu.Unlock()
	c.StateStore.Save(ctx, siteID, content)
}

func newCountingStore() *countingStore {
	return &countingStore{StateStore: store.New(store.NewMemoryBackend(), zerolog.Nop())}
}

// pageServer serves body with status at "/" and lets tests swap both.
type pageServer struct {
	*httptest.Server
	mu     sync.Mutex
	status int
	body   string
	delay  time.Duration
}

func newPageServer(t *testing.T, body string) *pageServer {
	t.Helper()
	ps := &pageServer{status: http.StatusOK, body: body}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		status, body, delay := ps.status, ps.body, ps.delay
		ps.mu.Unlock()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *pageServer) set(status int, body string) {
	ps.mu.Lock()
	ps.status, ps.body = status, body
	ps.mu.Unlock()
}

func stockPage(text string) string {
	return `<html><body><div class="product"><span class="stock">` + text + `</span></div></body></html>`
}

func testSite(t *testing.T, url, selector string) config.Site {
	t.Helper()
	sel, _ := extract.ParseSelector(selector)
	return config.Site{
		ID:                 "shop",
		Name:               "Shop",
		URL:                url,
		Selector:           sel,
		MinIntervalMinutes: 5,
		MaxIntervalMinutes: 10,
		Recipients:         []string{"buyer@example.com"},
	}
}

func newTestChecker(st StateSaver, timeout time.Duration) *Checker {
	return NewChecker(engine.NewTestStaticFetcher(), extract.New(zerolog.Nop()), st, timeout, zerolog.Nop())
}

func TestChecker_InitialObservation(t *testing.T) {
	srv := newPageServer(t, stockPage("In Stock"))
	st := newCountingStore()
	c := newTestChecker(st, 0)
	site := testSite(t, srv.URL, ".stock")
	ctx := context.Background()

	out := c.Check(ctx, site, st.Load(ctx, site.ID))

	if out.Kind != models.InitialObservation {
		t.Fatalf("Expected InitialObservation, got %s", out.Kind)
	}
	if out.Change != nil {
		t.Error("Expected no ChangeRecord on first observation")
	}
	if got := st.Load(ctx, site.ID).ContentOr(""); got != "In Stock" {
		t.Errorf("Expected stored 'In Stock', got %q", got)
	}
}

func TestChecker_NoChangeDoesNotWrite(t *testing.T) {
	srv := newPageServer(t, stockPage("In Stock"))
	st := newCountingStore()
	c := newTestChecker(st, 0)
	site := testSite(t, srv.URL, ".stock")
	ctx := context.Background()

	c.Check(ctx, site, st.Load(ctx, site.ID))
	before := st.Load(ctx, site.ID)

	out := c.Check(ctx, site, st.Load(ctx, site.ID))
	if out.Kind != models.NoChange || out.Err != nil {
		t.Fatalf("Expected clean NoChange, got %s (%v)", out.Kind, out.Err)
	}
	if st.saves != 1 {
		t.Errorf("Expected exactly one save, got %d", st.saves)
	}
	after := st.Load(ctx, site.ID)
	if !after.LastCheckedAt.Equal(*before.LastCheckedAt) {
		t.Error("Expected LastCheckedAt to be unchanged on NoChange")
	}
}

func TestChecker_Changed(t *testing.T) {
	srv := newPageServer(t, stockPage("In Stock"))
	st := newCountingStore()
	c := newTestChecker(st, 0)
	site := testSite(t, srv.URL, ".stock")
	ctx := context.Background()

	c.Check(ctx, site, st.Load(ctx, site.ID))
	srv.set(http.StatusOK, stockPage("Out of Stock"))

	out := c.Check(ctx, site, st.Load(ctx, site.ID))
	if out.Kind != models.Changed {
		t.Fatalf("Expected Changed, got %s", out.Kind)
	}
	rec := out.Change
	if rec == nil {
		t.Fatal("Expected a ChangeRecord")
	}
	if rec.OldContent != "In Stock" || rec.NewContent != "Out of Stock" {
		t.Errorf("Unexpected change %q -> %q", rec.OldContent, rec.NewContent)
	}
	if rec.SiteID != "shop" || rec.SiteName != "Shop" || rec.URL != srv.URL {
		t.Errorf("Unexpected record identity %+v", rec)
	}
	if len(rec.Recipients) != 1 || rec.Recipients[0] != "buyer@example.com" {
		t.Errorf("Expected site recipients on record, got %v", rec.Recipients)
	}
	if got := st.Load(ctx, site.ID).ContentOr(""); got != "Out of Stock" {
		t.Errorf("Expected stored 'Out of Stock', got %q", got)
	}
}

func TestChecker_NotFoundSentinel(t *testing.T) {
	srv := newPageServer(t, stockPage("In Stock"))
	st := newCountingStore()
	c := newTestChecker(st, 0)
	site := testSite(t, srv.URL, ".missing")
	ctx := context.Background()

	out := c.Check(ctx, site, st.Load(ctx, site.ID))
	if out.Content != extract.NotFoundText {
		t.Fatalf("Expected %q, got %q", extract.NotFoundText, out.Content)
	}

	out = c.Check(ctx, site, st.Load(ctx, site.ID))
	if out.Kind != models.NoChange {
		t.Errorf("Expected NoChange when sentinel is already stored, got %s", out.Kind)
	}
}

func TestChecker_Non2xxStatus(t *testing.T) {
	srv := newPageServer(t, "")
	srv.set(http.StatusServiceUnavailable, "maintenance")
	st := newCountingStore()
	c := newTestChecker(st, 0)
	site := testSite(t, srv.URL, ".stock")
	ctx := context.Background()

	out := c.Check(ctx, site, st.Load(ctx, site.ID))
	if out.Content != "Status Code: 503" {
		t.Errorf("Expected 'Status Code: 503', got %q", out.Content)
	}
	if out.Kind != models.InitialObservation {
		t.Errorf("Expected status text to be recorded as an observation, got %s", out.Kind)
	}
}

func TestChecker_TimeoutSkipsCycle(t *testing.T) {
	srv := newPageServer(t, stockPage("In Stock"))
	st := newCountingStore()
	c := newTestChecker(st, 50*time.Millisecond)
	site := testSite(t, srv.URL, ".stock")
	ctx := context.Background()

	c.Check(ctx, site, st.Load(ctx, site.ID))
	srv.mu.Lock()
	srv.delay = time.Second
	srv.mu.Unlock()

	out := c.Check(ctx, site, st.Load(ctx, site.ID))
	if out.Kind != models.NoChange {
		t.Fatalf("Expected NoChange on timeout, got %s", out.Kind)
	}
	if !errors.Is(out.Err, engine.ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", out.Err)
	}
	if st.saves != 1 {
		t.Errorf("Expected no write on timeout, got %d saves", st.saves)
	}
	if got := st.Load(ctx, site.ID).ContentOr(""); got != "In Stock" {
		t.Errorf("Expected baseline to survive, got %q", got)
	}
}

func TestChecker_RegexOverClass(t *testing.T) {
	srv := newPageServer(t, `<div class="card price-tag sale"> $9 </div><div class="price-tag">$12</div>`)
	st := newCountingStore()
	c := newTestChecker(st, 0)
	site := testSite(t, srv.URL, "regex:price-tag")

	out := c.Check(context.Background(), site, models.SiteState{})
	if out.Content != "$9" {
		t.Errorf("Expected first matching element text '$9', got %q", out.Content)
	}
}

func TestChecker_Observe(t *testing.T) {
	srv := newPageServer(t, stockPage("Backorder"))
	st := newCountingStore()
	c := newTestChecker(st, 0)

	got, err := c.Observe(context.Background(), testSite(t, srv.URL, ".stock"))
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if got != "Backorder" {
		t.Errorf("Expected 'Backorder', got %q", got)
	}
	if st.saves != 0 {
		t.Error("Expected Observe to leave state alone")
	}
}
