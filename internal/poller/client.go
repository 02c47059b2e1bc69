package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jpalmerr/skywatch/opensky"
)

// maxResponseBodySize caps a single states response. A world-wide snapshot
// is a few MB; bounding-box queries are far smaller.
const maxResponseBodySize = 8 << 20 // 8MB

// DefaultBaseURL is the public OpenSky REST API root.
const DefaultBaseURL = "https://opensky-network.org/api"

// DefaultTimeout bounds a single fetch when no timeout is configured.
const DefaultTimeout = 10 * time.Second

const defaultUserAgent = "skywatch/1.0"

// connection pooling limits; all requests go to a single host
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 4
	defaultMaxConnsPerHost     = 4
	defaultIdleConnTimeout     = 60 * time.Second
)

// ClientConfig configures a [Client].
type ClientConfig struct {
	// BaseURL is the API root, without trailing slash. Defaults to DefaultBaseURL.
	BaseURL string

	// Username and Password enable HTTP basic auth when both are set.
	Username string
	Password string

	// Timeout bounds each fetch, including time spent waiting on the rate
	// limiter. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the maximum sustained requests per second. Zero disables
	// client-side limiting.
	RateLimit float64

	// Burst is the number of requests allowed at once under RateLimit.
	// Defaults to 1.
	Burst int

	// UserAgent overrides the User-Agent header.
	UserAgent string
}

// Client fetches and decodes flight states from the OpenSky API.
//
// Client applies per-request timeouts via context rather than a global
// client timeout, and an optional token-bucket limit so that region changes
// and refresh ticks cannot exceed the API's request quota.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	timeout    time.Duration
	userAgent  string
	limiter    *rate.Limiter
}

// NewClient creates a new OpenSky [Client].
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		baseURL:   baseURL,
		username:  cfg.Username,
		password:  cfg.Password,
		timeout:   timeout,
		userAgent: userAgent,
		limiter:   rate.NewLimiter(limit, burst),
	}
}

// StatesURL returns the request URL for a region's bounding box.
func (c *Client) StatesURL(region opensky.Region) string {
	b := region.Bounds()
	q := url.Values{}
	q.Set("lamin", formatDegrees(b.Bottom()))
	q.Set("lomin", formatDegrees(b.Left()))
	q.Set("lamax", formatDegrees(b.Top()))
	q.Set("lomax", formatDegrees(b.Right()))
	return c.baseURL + "/states/all?" + q.Encode()
}

func formatDegrees(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FetchStates requests the current states inside region and decodes them.
//
// Errors are *opensky.TransportError for network, timeout and status
// failures and *opensky.DecodeError for an unusable body.
func (c *Client) FetchStates(ctx context.Context, region opensky.Region) (opensky.States, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return opensky.States{}, &opensky.TransportError{Op: "rate limit", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.StatesURL(region), nil)
	if err != nil {
		return opensky.States{}, &opensky.TransportError{Op: "create request", Err: err}
	}
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return opensky.States{}, &opensky.TransportError{Op: "request", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain a little so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return opensky.States{}, &opensky.TransportError{
			Op:         "status",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %s", opensky.ErrStatus, http.StatusText(resp.StatusCode)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return opensky.States{}, &opensky.TransportError{Op: "read body", StatusCode: resp.StatusCode, Err: err}
	}

	return opensky.ParseStates(body)
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times. After Close, the client remains usable but
// new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
