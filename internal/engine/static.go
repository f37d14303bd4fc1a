// internal/engine/static.go
package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/law-makers/sitewatch/internal/proxy"
	"github.com/law-makers/sitewatch/pkg/models"
	"github.com/rs/zerolog"
)

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes int64 = 10 * 1024 * 1024

// StaticOptions configures a StaticFetcher
type StaticOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	Proxies      *proxy.Pool
}

// StaticFetcher implements the Fetcher interface with plain HTTP GET requests.
type StaticFetcher struct {
	client       *http.Client
	proxies      *proxy.Pool
	userAgent    string
	timeout      time.Duration
	maxBodyBytes int64
	logger       zerolog.Logger
}

// NewStaticFetcher creates a StaticFetcher using client for transport.
// The client's Transport should use proxy.FromRequest for proxy rotation to take effect.
func NewStaticFetcher(client *http.Client, opts StaticOptions, logger zerolog.Logger) *StaticFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &StaticFetcher{
		client:       client,
		proxies:      opts.Proxies,
		userAgent:    opts.UserAgent,
		timeout:      opts.Timeout,
		maxBodyBytes: opts.MaxBodyBytes,
		logger:       logger.With().Str("component", "fetcher").Logger(),
	}
}

// Name returns the name of this fetcher
func (s *StaticFetcher) Name() string {
	return "StaticFetcher"
}

// Fetch performs a GET request for opts.URL.
// The body is read only for 2xx responses.
func (s *StaticFetcher) Fetch(ctx context.Context, opts models.RequestOptions) (*models.PageData, error) {
	start := time.Now()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	chosenProxy := s.proxies.Next()
	ctx = proxy.WithProxy(ctx, chosenProxy)

	s.logger.Debug().
		Str("url", opts.URL).
		Dur("timeout", timeout).
		Bool("proxied", chosenProxy != nil).
		Msg("Starting fetch")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return nil, NewEngineError(ErrCodeValidation, "failed to create request", err).
			WithDetail("url", opts.URL)
	}

	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	// Site headers win over the defaults
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.proxies.MarkFailed(chosenProxy)
		return nil, classifyTransportError(err).WithDetail("url", opts.URL)
	}
	defer resp.Body.Close()
	s.proxies.MarkHealthy(chosenProxy)

	pageData := &models.PageData{
		URL:        opts.URL,
		StatusCode: resp.StatusCode,
		Headers:    make(map[string]string),
	}
	for key, values := range resp.Header {
		if len(values) > 0 {
			pageData.Headers[key] = values[0]
		}
	}

	if pageData.OK() {
		body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodyBytes+1))
		if err != nil {
			return nil, classifyBodyError(err).WithDetail("url", opts.URL)
		}
		if int64(len(body)) > s.maxBodyBytes {
			return nil, NewEngineError(ErrCodeTooLarge,
				fmt.Sprintf("body exceeds %d bytes", s.maxBodyBytes), nil).
				WithDetail("url", opts.URL)
		}
		pageData.Body = string(body)
	}

	pageData.FetchedAt = time.Now()
	pageData.ResponseTime = time.Since(start).Milliseconds()

	s.logger.Debug().
		Str("url", opts.URL).
		Int("status", resp.StatusCode).
		Int64("response_time_ms", pageData.ResponseTime).
		Int("body_bytes", len(pageData.Body)).
		Msg("Fetch completed")

	return pageData, nil
}

// classifyBodyError keeps timeouts that hit while streaming the body as timeouts.
func classifyBodyError(err error) *EngineError {
	if classified := classifyTransportError(err); classified.Code == ErrCodeTimeout {
		return classified
	}
	return NewEngineError(ErrCodeBodyRead, "failed to read response body", err)
}

// NewHTTPClient builds the shared client used for page fetches.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               proxy.FromRequest,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DisableKeepAlives:   false,
		},
	}
}
