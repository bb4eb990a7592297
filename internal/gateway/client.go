package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"offersync/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// ErrRejected means the gateway answered but did not apply the request.
var ErrRejected = errors.New("gateway rejected request")

// Client calls the remote offer API over HTTP+JSON.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithTokenSource attaches bearer tokens to every request. Token refresh is
// the token source's business.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithRateLimit throttles outbound calls. rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient constructs a client for baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StaticToken wraps a fixed access token; empty token means no auth header.
func StaticToken(token string) oauth2.TokenSource {
	if token == "" {
		return nil
	}
	return oauth2.ReuseTokenSource(nil, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type offersData struct {
	Offers []models.Offer `json:"offers"`
}

func (c *Client) AcceptOffer(ctx context.Context, offerID string) error {
	endpoint := fmt.Sprintf("%s/api/v1/offers/%s/accept", c.baseURL, url.PathEscape(offerID))
	_, err := c.call(ctx, http.MethodPost, endpoint)
	return err
}

func (c *Client) DeclineOffer(ctx context.Context, offerID string) error {
	endpoint := fmt.Sprintf("%s/api/v1/offers/%s/decline", c.baseURL, url.PathEscape(offerID))
	_, err := c.call(ctx, http.MethodPost, endpoint)
	return err
}

func (c *Client) FetchTechnicianOffers(ctx context.Context, userID string) ([]models.Offer, error) {
	endpoint := fmt.Sprintf("%s/api/v1/technicians/%s/offers", c.baseURL, url.PathEscape(userID))
	data, err := c.call(ctx, http.MethodGet, endpoint)
	if err != nil {
		return nil, err
	}

	var wrap offersData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &wrap); err != nil {
			return nil, fmt.Errorf("decode offers: %w", err)
		}
	}
	return wrap.Offers, nil
}

func (c *Client) call(ctx context.Context, method, endpoint string) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader([]byte("{}"))
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.addAuth(req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= 300 {
		if decodeErr == nil && env.Error != "" {
			return nil, fmt.Errorf("%w: http %d: %s", ErrRejected, resp.StatusCode, env.Error)
		}
		return nil, fmt.Errorf("%w: http %d", ErrRejected, resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "success=false"
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return env.Data, nil
}

func (c *Client) addAuth(req *http.Request) error {
	if c.tokens == nil {
		return nil
	}
	tok, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	tok.SetAuthHeader(req)
	return nil
}
