// Package coingecko fetches spot prices from the CoinGecko public API.
package coingecko

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goodnatureofminers/ergowatch-syncer/internal/model"
	"github.com/tidwall/gjson"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	defaultTimeout  = 10 * time.Second
	defaultMaxTries = 3
	maxBodySize     = 1 << 20
)

// ErrMalformedResponse is returned when the API answers with an unexpected body.
var ErrMalformedResponse = errors.New("malformed coingecko response")

// Metrics records API call outcomes.
type Metrics interface {
	Observe(operation string, err error, started time.Time)
}

// Config configures the client. Zero values fall back to defaults.
type Config struct {
	BaseURL  string
	RPS      int
	Timeout  time.Duration
	MaxTries uint
}

// Client is a rate limited, retrying CoinGecko client.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	limiter    ratelimit.Limiter
	maxTries   uint
	newBackOff func() backoff.BackOff
	metrics    Metrics
	logger     *zap.Logger
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config, metrics Metrics, logger *zap.Logger) (*Client, error) {
	if metrics == nil {
		return nil, errors.New("coingecko metrics is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = defaultMaxTries
	}

	limiter := ratelimit.NewUnlimited()
	if cfg.RPS > 0 {
		limiter = ratelimit.New(cfg.RPS)
	}

	return &Client{
		baseURL:  base,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  limiter,
		maxTries: cfg.MaxTries,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		metrics: metrics,
		logger:  logger.Named("coingecko"),
	}, nil
}

// SimplePrice returns the current price of coin in currency.
func (c *Client) SimplePrice(ctx context.Context, coin, currency string) (price model.Price, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("simple_price", err, started)
	}()

	u := c.baseURL.JoinPath("simple", "price")
	q := url.Values{}
	q.Set("ids", coin)
	q.Set("vs_currencies", currency)
	q.Set("include_last_updated_at", "true")
	u.RawQuery = q.Encode()

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		return c.get(ctx, u.String())
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("price request failed, retrying", zap.Error(err), zap.Duration("next", next))
		}),
	)
	if err != nil {
		return model.Price{}, fmt.Errorf("simple price %s/%s: %w", coin, currency, err)
	}
	return parseSimplePrice(body, coin, currency)
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	c.limiter.Take()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return nil, backoff.RetryAfter(secs)
		}
		return nil, fmt.Errorf("rate limited: status %d", resp.StatusCode)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("server error: status %d", resp.StatusCode)
	default:
		return nil, backoff.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}

// parseSimplePrice reads {"<coin>":{"<currency>":1.23,"last_updated_at":1700000000}}.
func parseSimplePrice(body []byte, coin, currency string) (model.Price, error) {
	if !gjson.ValidBytes(body) {
		return model.Price{}, fmt.Errorf("%w: invalid json", ErrMalformedResponse)
	}
	entry := gjson.GetBytes(body, gjson.Escape(coin))
	if !entry.IsObject() {
		return model.Price{}, fmt.Errorf("%w: no entry for %q", ErrMalformedResponse, coin)
	}
	value := entry.Get(gjson.Escape(currency))
	if value.Type != gjson.Number {
		return model.Price{}, fmt.Errorf("%w: no %q quote for %q", ErrMalformedResponse, currency, coin)
	}

	updated := time.Now().UTC()
	if ts := entry.Get("last_updated_at"); ts.Type == gjson.Number {
		updated = time.Unix(ts.Int(), 0).UTC()
	}
	return model.Price{
		Coin:      coin,
		Currency:  currency,
		Value:     value.Float(),
		UpdatedAt: updated,
	}, nil
}
