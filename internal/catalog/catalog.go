// Package catalog looks up products for display before the cart API has
// confirmed them.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jellydator/ttlcache/v3"
	"github.com/shopspring/decimal"

	"storefront-cart/internal/adapter"
	"storefront-cart/internal/model"
)

// DefaultCacheTTL is used when HTTP cache headers don't specify a duration.
const DefaultCacheTTL = 5 * time.Minute

// DefaultFetchTimeout is the timeout for fetching a product.
const DefaultFetchTimeout = 5 * time.Second

// MaxCacheEntries limits the number of cached products (LRU eviction).
const MaxCacheEntries = 1000

// Config contains configuration for the product fetcher.
type Config struct {
	BaseURL      string
	CacheTTL     time.Duration     // Default TTL when not specified by cache headers
	FetchTimeout time.Duration     // HTTP timeout for fetching products
	MaxEntries   int               // Max cache entries (0 = default)
	Transport    http.RoundTripper // Optional; shares the cart API transport
	Clock        clock.Clock
}

// HTTPFetcher fetches products over HTTP with caching.
// Honors Cache-Control max-age and Expires, revalidates with ETag, and serves
// stale entries when the catalog is unreachable.
type HTTPFetcher struct {
	client  *http.Client
	baseURL string
	config  Config
	clock   clock.Clock

	// Entries never expire inside the cache; freshness is tracked per entry
	// so stale data can still be served on fetch failure.
	cache *ttlcache.Cache[int, *cacheEntry]
}

type cacheEntry struct {
	product   *model.Product
	expiresAt time.Time
	etag      string
}

// apiProduct is the product endpoint payload.
type apiProduct struct {
	ID          int             `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	ImageURLAlt string          `json:"imageUrl"`
}

// New creates a product fetcher.
func New(config Config) (*HTTPFetcher, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("catalog base URL is required")
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = DefaultCacheTTL
	}
	if config.FetchTimeout == 0 {
		config.FetchTimeout = DefaultFetchTimeout
	}
	if config.MaxEntries == 0 {
		config.MaxEntries = MaxCacheEntries
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   config.FetchTimeout,
			Transport: config.Transport,
		},
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		config:  config,
		clock:   clk,
		cache: ttlcache.New[int, *cacheEntry](
			ttlcache.WithCapacity[int, *cacheEntry](uint64(config.MaxEntries)),
		),
	}, nil
}

// Product retrieves a product, using cache when possible.
// If cached entry is fresh, returns it immediately.
// If cached entry is stale, attempts revalidation with ETag.
// On fetch failure with stale cache, returns stale data (best effort).
func (f *HTTPFetcher) Product(ctx context.Context, productID int) (*model.Product, error) {
	var entry *cacheEntry
	if item := f.cache.Get(productID); item != nil {
		entry = item.Value()
	}

	if entry != nil && entry.expiresAt.After(f.clock.Now()) {
		return entry.product, nil
	}

	product, err := f.fetch(ctx, productID, entry)
	if err != nil {
		if entry != nil {
			return entry.product, nil
		}
		return nil, err
	}
	return product, nil
}

func (f *HTTPFetcher) fetch(ctx context.Context, productID int, stale *cacheEntry) (*model.Product, error) {
	url := f.baseURL + "/products/" + strconv.Itoa(productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if stale != nil && stale.etag != "" {
		req.Header.Set("If-None-Match", stale.etag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, model.NewUpstreamError("catalog", err)
	}
	defer resp.Body.Close()

	// 304 Not Modified - refresh TTL and keep cached product
	if resp.StatusCode == http.StatusNotModified && stale != nil {
		f.store(productID, stale.product, resp)
		return stale.product, nil
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, model.NewNotFoundError("product")
	case resp.StatusCode != http.StatusOK:
		return nil, model.NewUpstreamError("catalog", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var raw apiProduct
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, model.NewUpstreamError("catalog", fmt.Errorf("parse product JSON: %w", err))
	}

	product := &model.Product{
		ID:       raw.ID,
		Title:    raw.Title,
		Price:    model.DecimalToCents(raw.Price),
		ImageURL: raw.ImageURL,
	}
	if product.ID == 0 {
		product.ID = productID
	}
	if product.ImageURL == "" {
		product.ImageURL = raw.ImageURLAlt
	}

	f.store(productID, product, resp)
	return product, nil
}

func (f *HTTPFetcher) store(productID int, product *model.Product, resp *http.Response) {
	f.cache.Set(productID, &cacheEntry{
		product:   product,
		expiresAt: f.clock.Now().Add(f.cacheTTL(resp)),
		etag:      resp.Header.Get("ETag"),
	}, ttlcache.NoTTL)
}

// cacheTTL extracts TTL from HTTP cache headers.
// Priority: no-store/no-cache, max-age in Cache-Control, Expires, then default.
func (f *HTTPFetcher) cacheTTL(resp *http.Response) time.Duration {
	if cc := resp.Header.Get("Cache-Control"); cc != "" {
		for _, directive := range strings.Split(cc, ",") {
			directive = strings.ToLower(strings.TrimSpace(directive))
			switch {
			case directive == "no-store" || directive == "no-cache":
				return 0
			case strings.HasPrefix(directive, "max-age="):
				if seconds, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age=")); err == nil && seconds >= 0 {
					return time.Duration(seconds) * time.Second
				}
			}
		}
	}

	if expires := resp.Header.Get("Expires"); expires != "" {
		if t, err := http.ParseTime(expires); err == nil {
			if ttl := t.Sub(f.clock.Now()); ttl > 0 {
				return ttl
			}
		}
	}

	return f.config.CacheTTL
}

// Len returns the number of cached products.
func (f *HTTPFetcher) Len() int {
	return f.cache.Len()
}

// ClearCache removes all cached entries.
func (f *HTTPFetcher) ClearCache() {
	f.cache.DeleteAll()
}

// Verify HTTPFetcher implements ProductLookup at compile time.
var _ adapter.ProductLookup = (*HTTPFetcher)(nil)
