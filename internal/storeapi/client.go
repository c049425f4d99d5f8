// Package storeapi is the HTTP client for the remote shopping cart API.
//
// The API is addressed by server line-item IDs only; it has no lookup by
// product. Callers that hold a product ID list the cart and scan.
package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"storefront-cart/internal/adapter"
	"storefront-cart/internal/model"
	"storefront-cart/internal/transport"
)

const (
	itemsPath = "/shopping_cart_items"

	// userAgent identifies this client to the cart API.
	// Some storefront WAFs reject requests without one.
	userAgent = "storefront-cart/1.0"

	serviceName = "cart API"
)

// Config holds cart API client configuration.
type Config struct {
	BaseURL       string
	Token         string        // Bearer token; empty sends no Authorization header
	Timeout       time.Duration // Per-request timeout, default 10s
	ChromeTLS     bool          // Dial with a Chrome TLS fingerprint
	MinAPIVersion string        // Warn when X-API-Version is older, e.g. "v2.1"
	MaxRetries    int           // Retries for list fetches on temporary errors, default 2
	RetryWait     time.Duration // Initial backoff, default 200ms
	Logger        *slog.Logger
}

// Client implements adapter.CartStore over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	minVersion string
	maxRetries int
	retryWait  time.Duration
	logger     *slog.Logger

	versionOnce sync.Once
}

// New creates a cart API client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("base URL must be http(s): %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = 2
	}
	wait := cfg.RetryWait
	if wait <= 0 {
		wait = 200 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: transport.New(transport.Options{
				Timeout:   timeout,
				ChromeTLS: cfg.ChromeTLS,
				UserAgent: userAgent,
			}),
		},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		minVersion: cfg.MinAPIVersion,
		maxRetries: retries,
		retryWait:  wait,
		logger:     logger,
	}, nil
}

// ListItems fetches the authoritative cart contents.
// Reads are idempotent, so temporary failures are retried with backoff.
func (c *Client) ListItems(ctx context.Context) ([]model.LineItem, error) {
	b := &backoff.Backoff{
		Min:    c.retryWait,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	for attempt := 0; ; attempt++ {
		items, err := c.listOnce(ctx)
		if err == nil {
			return items, nil
		}

		retry, advised := model.RetryHint(err)
		if attempt >= c.maxRetries || ctx.Err() != nil || !retry {
			return nil, err
		}

		wait := b.Duration()
		if advised > 0 {
			wait = advised
		}
		c.logger.Debug("retrying cart list",
			slog.Int("attempt", attempt+1),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) listOnce(ctx context.Context) ([]model.LineItem, error) {
	body, err := c.do(ctx, http.MethodGet, itemsPath, nil)
	if err != nil {
		return nil, err
	}

	raw, err := decodeItems(body)
	if err != nil {
		return nil, model.NewUpstreamError(serviceName, err)
	}

	items := make([]model.LineItem, 0, len(raw))
	for _, it := range raw {
		items = append(items, it.toLineItem())
	}
	return items, nil
}

// UpdateQuantity sets the quantity on an existing line item.
func (c *Client) UpdateQuantity(ctx context.Context, itemID, quantity int) error {
	if quantity < 1 {
		return model.NewValidationError("quantity", "must be at least 1")
	}
	_, err := c.do(ctx, http.MethodPatch, itemPath(itemID), updateQuantityRequest{Quantity: quantity})
	return err
}

// RemoveItem deletes a line item.
func (c *Client) RemoveItem(ctx context.Context, itemID int) error {
	_, err := c.do(ctx, http.MethodDelete, itemPath(itemID), nil)
	return err
}

// AddItem inserts a product into the cart.
func (c *Client) AddItem(ctx context.Context, productID, quantity int) error {
	if quantity < 1 {
		return model.NewValidationError("quantity", "must be at least 1")
	}
	_, err := c.do(ctx, http.MethodPost, itemsPath, addItemRequest{ProductID: productID, Quantity: quantity})
	return err
}

func itemPath(itemID int) string {
	return itemsPath + "/" + strconv.Itoa(itemID)
}

// do performs a request and returns the response body for 2xx responses.
// Non-2xx responses are converted to *model.APIError.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req, body != nil)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, model.NewUpstreamError(serviceName, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("cart API call",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)
	c.checkVersion(resp.Header.Get(versionHeader))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewUpstreamError(serviceName, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, resp.Header, respBody)
	}
	return respBody, nil
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// Verify Client implements CartStore at compile time.
var _ adapter.CartStore = (*Client)(nil)
