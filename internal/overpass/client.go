package overpass

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/mapvia/internal/cache"
	"github.com/sells-group/mapvia/internal/model"
	"github.com/sells-group/mapvia/internal/monitoring"
	"github.com/sells-group/mapvia/internal/resilience"
)

// DefaultEndpoints are the public Overpass mirrors, tried in order.
var DefaultEndpoints = []string{
	"https://overpass-api.de/api/interpreter",
	"https://overpass.kumi.systems/api/interpreter",
	"https://overpass.nchc.org.tw/api/interpreter",
}

const (
	// DefaultTimeout bounds a single mirror attempt.
	DefaultTimeout = 9 * time.Second
	// DefaultCacheTTL is how long a successful result is reused.
	DefaultCacheTTL = 60 * time.Second
	// DefaultCacheEntries bounds the result cache.
	DefaultCacheEntries = 128
	// DefaultUserAgent identifies requests to the mirrors.
	DefaultUserAgent = "mapvia/0.1"
)

// ErrNoEndpoints is returned when the client has no mirrors configured.
var ErrNoEndpoints = eris.New("overpass: no endpoints configured")

// Option configures the Client.
type Option func(*Client)

// WithEndpoints replaces the mirror list.
func WithEndpoints(endpoints ...string) Option {
	return func(c *Client) {
		c.endpoints = endpoints
	}
}

// WithHTTPClient sets the HTTP client used for mirror requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-mirror timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRateLimit paces outgoing requests. rps <= 0 disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCache replaces the result cache.
func WithCache(rc *cache.Cache[[]model.Company]) Option {
	return func(c *Client) {
		c.cache = rc
	}
}

// WithCacheSize sizes the default result cache. Zero values keep the
// defaults. Ignored when WithCache supplies a cache.
func WithCacheSize(entries int, ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheEntries = entries
		c.cacheTTL = ttl
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithResultLimit sets the server-side feature cap.
func WithResultLimit(n int) Option {
	return func(c *Client) {
		c.resultLimit = n
	}
}

// WithMetrics enables metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client fetches companies from Overpass with mirror failover and a short
// result cache.
type Client struct {
	endpoints   []string
	httpClient  *http.Client
	timeout     time.Duration
	limiter     *rate.Limiter
	cache       *cache.Cache[[]model.Company]
	userAgent   string
	resultLimit int
	metrics     *monitoring.Metrics

	cacheEntries int
	cacheTTL     time.Duration
}

// NewClient creates a Client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		endpoints:   DefaultEndpoints,
		httpClient:  &http.Client{},
		timeout:     DefaultTimeout,
		limiter:     rate.NewLimiter(2, 2),
		userAgent:   DefaultUserAgent,
		resultLimit: DefaultResultLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		if c.cacheEntries <= 0 {
			c.cacheEntries = DefaultCacheEntries
		}
		if c.cacheTTL <= 0 {
			c.cacheTTL = DefaultCacheTTL
		}
		c.cache = cache.New[[]model.Company](cache.Config{
			MaxEntries:  c.cacheEntries,
			TTL:         c.cacheTTL,
			LoadTimeout: c.loadBudget(),
		})
	}
	return c
}

// loadBudget bounds one shared lookup: a full timeout per mirror plus one
// more for time spent queued on the rate limiter.
func (c *Client) loadBudget() time.Duration {
	return c.timeout * time.Duration(len(c.endpoints)+1)
}

// Companies returns named businesses inside bbox whose name contains term.
// Results are cached per (bbox, escaped term); failures are not cached.
// The returned slice may be shared with other callers and must not be modified.
func (c *Client) Companies(ctx context.Context, bbox model.BBox, term string) ([]model.Company, error) {
	q := Query{BBox: bbox, Term: term, Limit: c.resultLimit}
	companies, hit, err := c.cache.GetOrLoad(ctx, q.CacheKey(), func(ctx context.Context) ([]model.Company, error) {
		return c.fetch(ctx, q)
	})
	c.metrics.ObserveCache("overpass", hit)
	if err != nil {
		return nil, err
	}
	return companies, nil
}

// fetch tries each mirror in order and returns the first successful result.
func (c *Client) fetch(ctx context.Context, q Query) ([]model.Company, error) {
	if len(c.endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	// Pacing applies per query, not per mirror, so a queued request keeps the
	// full timeout for every mirror it tries.
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "overpass: rate limit")
	}

	body := url.Values{"data": {q.String()}}.Encode()

	var lastErr error
	for _, endpoint := range c.endpoints {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "overpass: cancelled")
		}

		start := time.Now()
		companies, err := c.fetchOne(ctx, endpoint, body)
		c.metrics.ObserveOverpass(endpoint, resilience.Classify(err), time.Since(start))
		if err == nil {
			return companies, nil
		}

		lastErr = err
		zap.L().Warn("overpass: mirror failed",
			zap.String("endpoint", endpoint),
			zap.String("kind", resilience.Classify(err)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
	}
	return nil, eris.Wrapf(lastErr, "overpass: all %d endpoints failed", len(c.endpoints))
}

func (c *Client) fetchOne(ctx context.Context, endpoint, body string) ([]model.Company, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &resilience.StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, eris.Wrap(err, "overpass: decode response")
	}
	if parsed.Remark != "" {
		zap.L().Debug("overpass: server remark",
			zap.String("endpoint", endpoint),
			zap.String("remark", parsed.Remark),
		)
	}
	return toCompanies(parsed.Elements), nil
}

// CacheStats reports result cache statistics.
func (c *Client) CacheStats() cache.Stats {
	return c.cache.Stats()
}

// PurgeCache drops every cached live result.
func (c *Client) PurgeCache() {
	c.cache.Purge()
}
