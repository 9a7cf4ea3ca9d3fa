package dataset

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mapvia/internal/cache"
	"github.com/sells-group/mapvia/internal/fetcher"
	"github.com/sells-group/mapvia/internal/model"
	"github.com/sells-group/mapvia/internal/monitoring"
)

// Source serves the flat-file snapshot. The file is parsed on first use and
// the records are kept for the life of the process.
type Source struct {
	location string
	fetcher  fetcher.Fetcher
	cache    *cache.Cache[[]model.Company]
	metrics  *monitoring.Metrics
}

// Option configures a Source.
type Option func(*Source)

// WithFetcher sets the fetcher used when location is an http(s) URL.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(s *Source) {
		s.fetcher = f
	}
}

// WithCache replaces the record cache, letting tests pre-seed or reset it.
func WithCache(c *cache.Cache[[]model.Company]) Option {
	return func(s *Source) {
		s.cache = c
	}
}

// WithMetrics enables metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Source) {
		s.metrics = m
	}
}

// NewSource creates a Source reading from location (a file path or URL).
func NewSource(location string, opts ...Option) *Source {
	s := &Source{
		location: location,
		cache:    cache.New[[]model.Company](cache.Config{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the configured file path or URL.
func (s *Source) Location() string {
	return s.location
}

// Companies returns every record in the snapshot. The returned slice is
// shared; callers must not modify it.
func (s *Source) Companies(ctx context.Context) ([]model.Company, error) {
	companies, hit, err := s.cache.GetOrLoad(ctx, s.location, func(ctx context.Context) ([]model.Company, error) {
		res, err := s.Load(ctx)
		if err != nil {
			return nil, err
		}
		return res.Companies, nil
	})
	s.metrics.ObserveCache("dataset", hit)
	if err != nil {
		return nil, err
	}
	return companies, nil
}

// Load reads and normalizes the snapshot without consulting the cache.
func (s *Source) Load(ctx context.Context) (Result, error) {
	start := time.Now()

	rc, err := fetcher.Open(ctx, s.fetcher, s.location)
	if err != nil {
		return Result{}, eris.Wrap(err, "dataset: open")
	}
	defer rc.Close() //nolint:errcheck

	rows, err := fetcher.ReadCSV(rc)
	if err != nil {
		return Result{}, eris.Wrap(err, "dataset: parse")
	}

	res := Normalize(rows)
	s.metrics.ObserveDataset(res.Stats.Kept, res.Stats.Dropped)
	zap.L().Info("dataset: loaded",
		zap.String("location", s.location),
		zap.Int("rows", res.Stats.Rows),
		zap.Int("kept", res.Stats.Kept),
		zap.Int("dropped", res.Stats.Dropped),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// CacheStats reports record cache statistics.
func (s *Source) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// PurgeCache drops the parsed snapshot so the next request re-reads the file.
func (s *Source) PurgeCache() {
	s.cache.Purge()
}
