package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"golddesk/internal/numeric"
	"golddesk/internal/snapshot"
)

const defaultBaseURL = "https://www.okx.com"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=okx_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the OKX market-data API.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP httpClient.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// limiter gates outbound requests when set.
	limiter *rate.Limiter
	// log records swallowed waterfall failures.
	log *logrus.Logger
}

// Option is a configuration option for the OKX client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithRateLimit gates requests at requestsPerSecond with the given burst.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			if burst <= 0 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient creates a new OKX client.
func NewClient(options ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		log:        logrus.StandardLogger(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Ticker is a decoded market ticker.
type Ticker struct {
	InstID  string
	Last    float64
	Open24h float64
}

type tickerPayload struct {
	InstID  string `json:"instId"`
	Last    string `json:"last"`
	Open24h string `json:"open24h"`
}

type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data []tickerPayload `json:"data"`
}

// Ticker fetches the ticker for one instrument. A well-formed payload
// with a non-error code and a positive last-traded price is required;
// anything else is an error for the waterfall to fall through.
func (c *Client) Ticker(ctx context.Context, instID string) (*Ticker, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u := fmt.Sprintf("%s/api/v5/market/ticker?instId=%s", c.baseURL, url.QueryEscape(instID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for key, values := range c.header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return nil, fmt.Errorf("decoding ticker response: %w", err)
	}
	if api.Code != "0" || len(api.Data) == 0 {
		return nil, fmt.Errorf("ticker %s: code=%s msg=%q", instID, api.Code, api.Msg)
	}

	d := api.Data[0]
	last := numeric.SafeFloat(d.Last, 0)
	if last <= 0 {
		return nil, fmt.Errorf("ticker %s: no traded price", instID)
	}
	return &Ticker{
		InstID:  d.InstID,
		Last:    last,
		Open24h: numeric.SafeFloat(d.Open24h, 0),
	}, nil
}

// SwapInstID derives the perpetual-contract instrument from a spot pair,
// e.g. BTC-USDT -> BTC-USDT-SWAP.
func SwapInstID(pair string) string {
	return pair + "-SWAP"
}

// FetchSymbol runs the per-symbol waterfall: spot ticker first, then the
// perpetual contract derived from the same pair. First success wins; when
// both fail the symbol is reported absent via the returned error.
func (c *Client) FetchSymbol(ctx context.Context, name, pair string) (snapshot.CryptoTicker, error) {
	t, err := c.Ticker(ctx, pair)
	if err != nil {
		c.log.WithError(err).WithField("symbol", name).Debug("spot ticker failed, trying contract")
		t, err = c.Ticker(ctx, SwapInstID(pair))
	}
	if err != nil {
		return snapshot.CryptoTicker{}, fmt.Errorf("symbol %s: %w", name, err)
	}

	change := 0.0
	if t.Open24h > 0 {
		change = (t.Last - t.Open24h) / t.Open24h * 100
	}
	return snapshot.CryptoTicker{Price: t.Last, ChangePct: change}, nil
}
