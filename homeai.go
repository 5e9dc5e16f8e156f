package homeai

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second
	// DefaultTokenTTL is the lifetime requested from the login exchange.
	DefaultTokenTTL = 30 * 24 * time.Hour
	// DefaultPlatform is the platform reported when none is configured.
	DefaultPlatform = PlatformWeb
)

// Client is the HomeAI API client.
//
// A Client owns a single session. Use NewClient with at least a base URL:
//
//	client := homeai.NewClient(homeai.WithBaseURL("http://localhost:8000"))
//	if err := client.Sessions.Ensure(ctx, "u1"); err != nil {
//	    return err
//	}
type Client struct {
	baseURL    string
	userAgent  string
	platform   Platform
	tokenTTL   time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *Metrics

	// Services
	Sessions   *SessionManager
	Bootstrap  *BootstrapService
	RenderJobs *RenderJobsService
	Discover   *DiscoverService
	Catalog    *CatalogService
	Telemetry  *TelemetryService
	Account    *AccountService
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL sets the API base URL. Trailing slashes are trimmed.
//
// Example:
//
//	client := homeai.NewClient(homeai.WithBaseURL("https://api.homeai.app"))
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(url), "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
//
// Example:
//
//	httpClient := &http.Client{Timeout: 60 * time.Second}
//	client := homeai.NewClient(homeai.WithHTTPClient(httpClient))
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP client timeout. A client given to WithHTTPClient
// is copied, not modified.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		var hc http.Client
		if c.httpClient != nil {
			hc = *c.httpClient
		}
		hc.Timeout = timeout
		c.httpClient = &hc
	}
}

// WithPlatform sets the platform reported on login and render requests.
func WithPlatform(p Platform) Option {
	return func(c *Client) {
		c.platform = p
	}
}

// WithTokenTTL sets the token lifetime requested from the login exchange.
// It is rounded down to whole hours.
func WithTokenTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.tokenTTL = ttl
	}
}

// WithLogger sets the structured logger. The default logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics enables prometheus instrumentation of requests, logins and polls.
//
// Example:
//
//	client := homeai.NewClient(
//	    homeai.WithBaseURL(url),
//	    homeai.WithMetrics(homeai.NewMetrics(prometheus.DefaultRegisterer)),
//	)
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a new HomeAI API client.
//
// The client starts without a session. Every request fails with
// ErrBaseURLRequired until a base URL is configured.
func NewClient(opts ...Option) *Client {
	c := &Client{
		userAgent: sdkUserAgent,
		platform:  DefaultPlatform,
		tokenTTL:  DefaultTokenTTL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.tokenTTL < time.Hour {
		c.tokenTTL = time.Hour
	}

	// Initialize services
	c.Sessions = &SessionManager{client: c}
	c.Bootstrap = &BootstrapService{client: c}
	c.RenderJobs = &RenderJobsService{client: c}
	c.Discover = &DiscoverService{client: c}
	c.Catalog = &CatalogService{client: c}
	c.Telemetry = &TelemetryService{client: c, timeout: defaultTelemetryTimeout}
	c.Account = &AccountService{client: c}

	return c
}

// BaseURL returns the current base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Platform returns the configured platform.
func (c *Client) Platform() Platform {
	return c.platform
}
