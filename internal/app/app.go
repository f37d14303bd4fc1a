// Package app wires configuration into the running components and manages
// their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/law-makers/sitewatch/internal/auth"
	"github.com/law-makers/sitewatch/internal/config"
	"github.com/law-makers/sitewatch/internal/engine"
	"github.com/law-makers/sitewatch/internal/extract"
	"github.com/law-makers/sitewatch/internal/logger"
	"github.com/law-makers/sitewatch/internal/monitor"
	"github.com/law-makers/sitewatch/internal/notify"
	"github.com/law-makers/sitewatch/internal/proxy"
	"github.com/law-makers/sitewatch/internal/ratelimit"
	"github.com/law-makers/sitewatch/internal/store"
)

// Options adjusts how the Application is assembled.
type Options struct {
	// LogOut receives log output; defaults to stderr.
	LogOut io.Writer
	// ConsoleOut receives change banners; defaults to stdout.
	ConsoleOut io.Writer
	// DryRun keeps state writes in memory so nothing on disk changes.
	DryRun bool
	// NoNotify disables every notifier.
	NoNotify bool
	// Credentials overrides the SMTP password store.
	Credentials *auth.Store
}

// Application holds all application dependencies and manages their lifecycle.
//
// It is created once per command invocation. Use Close() to flush state and
// release files on shutdown.
type Application struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Proxies     *proxy.Pool
	HTTPClient  *http.Client
	Fetcher     *engine.StaticFetcher
	Extractor   *extract.Extractor
	Backend     store.Backend
	Store       *store.StateStore
	Checker     *monitor.Checker
	Notifier    notify.Notifier
	Credentials *auth.Store

	durable   store.Backend
	logCloser io.Closer
	startTime time.Time
}

// New creates and initializes a new Application with all dependencies.
//
// It performs the following initialization steps:
//   - Builds the logger (console or JSON, plus an optional rotated file)
//   - Parses the proxy pool and creates the shared HTTP client
//   - Opens the state backend (files or SQLite) behind a StateStore
//   - Assembles the notifiers (console, and email when enabled)
//
// If any step fails, resources acquired so far are released and an error is
// returned.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	log, logCloser, err := logger.New(logger.Options{
		Level:      cfg.LogLevel,
		JSON:       cfg.JSONLog,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Out:        opts.LogOut,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Debug().
		Str("level", cfg.LogLevel).
		Bool("json", cfg.JSONLog).
		Str("config", cfg.ConfigPath).
		Msg("Logger initialized")

	for _, w := range cfg.Warnings {
		log.Warn().Msg(w)
	}

	a := &Application{
		Config:    cfg,
		Logger:    log,
		logCloser: logCloser,
		startTime: time.Now(),
	}

	if err := a.init(ctx, opts); err != nil {
		a.release()
		return nil, err
	}

	log.Debug().
		Int("sites", len(cfg.Sites)).
		Str("backend", a.Backend.Name()).
		Str("notifier", a.Notifier.Name()).
		Msg("Application initialized successfully")
	return a, nil
}

func (a *Application) init(ctx context.Context, opts Options) error {
	cfg := a.Config

	pool, err := proxy.NewPool(cfg.Proxies, proxy.DefaultCooldown)
	if err != nil {
		return err
	}
	a.Proxies = pool
	if pool != nil {
		a.Logger.Debug().Int("proxies", pool.Size()).Msg("Proxy pool initialized")
	}

	a.HTTPClient = engine.NewHTTPClient(cfg.HTTPTimeout)
	a.Fetcher = engine.NewStaticFetcher(a.HTTPClient, engine.StaticOptions{
		UserAgent:    cfg.UserAgent,
		Timeout:      cfg.HTTPTimeout,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Proxies:      pool,
	}, a.Logger)
	a.Extractor = extract.New(a.Logger)

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	a.durable = backend
	if opts.DryRun {
		backend = store.NewOverlay(backend)
	}
	a.Backend = backend
	a.Store = store.New(backend, a.Logger)
	a.Logger.Debug().Str("backend", backend.Name()).Str("data_dir", cfg.DataDir).Msg("State store initialized")

	a.Checker = monitor.NewChecker(a.Fetcher, a.Extractor, a.Store, cfg.HTTPTimeout, a.Logger)

	a.Credentials = opts.Credentials
	if a.Credentials == nil {
		a.Credentials = auth.NewStore("")
	}
	a.Notifier = a.buildNotifier(opts)
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	switch cfg.StateBackend {
	case config.BackendSQLite:
		b, err := store.NewSQLiteBackend(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open state database: %w", err)
		}
		return b, nil
	default:
		b, err := store.NewFileBackend(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open data directory: %w", err)
		}
		return b, nil
	}
}

func (a *Application) buildNotifier(opts Options) notify.Notifier {
	if opts.NoNotify {
		return notify.Multi{}
	}

	notifiers := notify.Multi{notify.NewConsole(opts.ConsoleOut)}

	email := a.Config.Email
	if !email.Enabled {
		a.Logger.Debug().Msg("Email notifications disabled")
		return notifiers
	}

	password, err := auth.ResolvePassword(email.SMTPPassword, email.SMTPUsername, a.Credentials)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Could not read stored SMTP password")
	}
	if email.SMTPUsername != "" && password == "" {
		a.Logger.Warn().
			Str("username", email.SMTPUsername).
			Msgf("No SMTP password found; set %s or run 'sitewatch credentials set'", auth.PasswordEnv)
	}

	var limiter ratelimit.RateLimiter
	if l := ratelimit.NewKeyedLimiter(email.MaxPerMinute, 1); l != nil {
		limiter = l
	}
	notifiers = append(notifiers, notify.NewEmail(email, password, limiter, a.Logger))

	a.Logger.Debug().
		Str("server", email.SMTPServer).
		Int("port", email.SMTPPort).
		Int("recipients", len(email.Recipients)).
		Msg("Email notifications enabled")
	return notifiers
}

// NewScheduler builds a scheduler over sites using the application's
// checker, store and notifiers.
func (a *Application) NewScheduler(sites []config.Site, opts monitor.Options) *monitor.Scheduler {
	return monitor.NewScheduler(sites, a.Checker, a.Store, a.Notifier, a.Logger, opts)
}

// Close flushes pending state and releases the backend and log file.
// A context with a timeout should be provided to bound the final flush.
func (a *Application) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}

	var errs []error
	if a.Store != nil {
		if pending := a.Store.DirtyCount(); pending > 0 {
			a.Logger.Warn().Int("sites", pending).Msg("Flushing unsaved site state before exit")
		}
		if err := a.Store.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	// An overlay leaves its base open.
	if a.durable != nil && a.durable != a.Backend {
		if err := a.durable.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.HTTPClient != nil {
		a.HTTPClient.CloseIdleConnections()
	}

	a.Logger.Debug().Dur("uptime", a.Uptime()).Msg("Application shutdown complete")

	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// release frees what a failed New acquired.
func (a *Application) release() {
	if a.durable != nil {
		a.durable.Close()
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}

// Uptime returns how long the application has been running.
func (a *Application) Uptime() time.Duration {
	return time.Since(a.startTime)
}
