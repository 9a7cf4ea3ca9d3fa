// Package geocode resolves free-text place queries to coordinates through a
// Nominatim-compatible search API, with a JSON file cache in front.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/mapvia/internal/resilience"
)

const (
	// DefaultBaseURL is the public OpenStreetMap Nominatim instance.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"
	// DefaultUserAgent identifies dataset crawls to the geocoder.
	DefaultUserAgent = "mapvia/0.1 (data crawl)"
	// DefaultMinInterval matches the public instance's one request per second policy.
	DefaultMinInterval = time.Second
)

// Result is the best match for a query.
type Result struct {
	Lat     float64
	Lng     float64
	Address string
	Found   bool
}

// Geocoder looks up a single query.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (Result, error)
}

// NominatimOption configures a Nominatim client.
type NominatimOption func(*Nominatim)

// WithBaseURL points the client at another Nominatim instance.
func WithBaseURL(baseURL string) NominatimOption {
	return func(n *Nominatim) {
		if strings.TrimSpace(baseURL) != "" {
			n.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) NominatimOption {
	return func(n *Nominatim) {
		if hc != nil {
			n.httpClient = hc
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) NominatimOption {
	return func(n *Nominatim) {
		if strings.TrimSpace(ua) != "" {
			n.userAgent = ua
		}
	}
}

// WithMinInterval spaces requests at least d apart. d <= 0 disables pacing.
func WithMinInterval(d time.Duration) NominatimOption {
	return func(n *Nominatim) {
		if d <= 0 {
			n.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		n.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(rc resilience.RetryConfig) NominatimOption {
	return func(n *Nominatim) {
		n.retry = rc
	}
}

// Nominatim is a client for the Nominatim /search endpoint.
type Nominatim struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// NewNominatim creates a client with the given options.
func NewNominatim(opts ...NominatimOption) *Nominatim {
	n := &Nominatim{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		userAgent:  DefaultUserAgent,
		limiter:    rate.NewLimiter(rate.Every(DefaultMinInterval), 1),
		retry:      resilience.RetryConfig{Operation: "geocode"},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns the first match for query. An empty result list is not
// an error; it yields Found=false.
func (n *Nominatim) Geocode(ctx context.Context, query string) (Result, error) {
	if strings.TrimSpace(query) == "" {
		return Result{}, nil
	}

	var res Result
	err := resilience.Do(ctx, n.retry, func(ctx context.Context) error {
		var err error
		res, err = n.search(ctx, query)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (n *Nominatim) search(ctx context.Context, query string) (Result, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return Result{}, eris.Wrap(err, "geocode: rate limit")
	}

	endpoint := strings.TrimRight(n.baseURL, "/") + "/search"
	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return Result{}, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return Result{}, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Result{}, &resilience.StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Result{}, eris.Wrap(err, "geocode: decode response")
	}
	if len(results) == 0 {
		return Result{}, nil
	}
	return parseResult(results[0])
}

func parseResult(r searchResult) (Result, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(r.Lat), 64)
	if err != nil {
		return Result{}, eris.Wrapf(err, "geocode: bad lat %q", r.Lat)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(r.Lon), 64)
	if err != nil {
		return Result{}, eris.Wrapf(err, "geocode: bad lon %q", r.Lon)
	}
	return Result{Lat: lat, Lng: lng, Address: r.DisplayName, Found: true}, nil
}
