// Package spotify adapts the Spotify Web API into a candidate catalog:
// track search, artist top tracks and batched audio features.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ewilliams-labs/persona/internal/core/ports"
	"github.com/ewilliams-labs/persona/internal/metrics"
)

const breakerName = "spotify-api"

// Options configures endpoint and resilience settings.
type Options struct {
	BaseURL     string
	Market      string
	MaxRetries  int
	BaseBackoff time.Duration
	// BreakerFailures is the consecutive failure count that opens the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Credentials are the client-credentials grant parameters.
type Credentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
}

// Client is an HTTP client for the Spotify adapter.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	market      string
	maxRetries  int
	baseBackoff time.Duration
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	logger      zerolog.Logger
}

// compile-time interface assertion
var _ ports.CatalogProvider = (*Client)(nil)

// NewAuthenticatedClient returns an HTTP client that fetches and refreshes
// app tokens on its own.
func NewAuthenticatedClient(ctx context.Context, creds Credentials) *http.Client {
	base := &http.Client{Timeout: creds.Timeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	cc := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.TokenURL,
	}
	httpClient := cc.Client(ctx)
	httpClient.Timeout = creds.Timeout
	return httpClient
}

// NewClient constructs a new Spotify client. A nil httpClient means
// http.DefaultClient (no auth), which is what the tests use.
func NewClient(httpClient *http.Client, opts Options, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = defaultBackoff
	}
	if opts.Market == "" {
		opts.Market = "US"
	}
	c := &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		market:      opts.Market,
		maxRetries:  opts.MaxRetries,
		baseBackoff: opts.BaseBackoff,
		logger:      logger.With().Str("component", "spotify").Logger(),
	}
	c.breaker = newBreaker(opts.BreakerFailures, opts.BreakerTimeout, c.logger)
	return c
}

func newBreaker(failures uint32, timeout time.Duration, logger zerolog.Logger) *gobreaker.CircuitBreaker[*http.Response] {
	if failures == 0 {
		failures = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// getJSON issues a GET through the breaker and retry loop and decodes a 200
// body into out. Any other status is an error.
func (c *Client) getJSON(ctx context.Context, endpoint string, u *url.URL, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("spotify adapter: %s: %w", endpoint, err)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.doRequestWithRetry(req)
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "rejected"
		}
		metrics.CatalogRequests.WithLabelValues(endpoint, outcome).Inc()
		return fmt.Errorf("spotify adapter: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.CatalogRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("spotify adapter: %s: status %d", endpoint, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.CatalogRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("spotify adapter: %s decode: %w", endpoint, err)
	}
	metrics.CatalogRequests.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

func (c *Client) endpoint(path string, params url.Values) (*url.URL, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("spotify adapter: invalid url: %w", err)
	}
	u.RawQuery = params.Encode()
	return u, nil
}
