package directory

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mapvia/internal/cache"
	"github.com/sells-group/mapvia/internal/model"
	"github.com/sells-group/mapvia/internal/monitoring"
)

// Record source labels.
const (
	SourceLabelLive = "overpass"
	SourceLabelFile = "csv"
)

// DefaultBBox covers central Los Angeles; it is used when a live lookup is
// forced without a box.
var DefaultBBox = model.NewBBox(-118.67, 33.8, -118.15, 34.15)

// LiveSource looks up companies from a live geodata service.
type LiveSource interface {
	Companies(ctx context.Context, bbox model.BBox, term string) ([]model.Company, error)
}

// FileSource serves the flat-file snapshot.
type FileSource interface {
	Companies(ctx context.Context) ([]model.Company, error)
}

type cacheReporter interface {
	CacheStats() cache.Stats
}

type cachePurger interface {
	PurgeCache()
}

// Service picks a record source per request and runs the query engine.
type Service struct {
	file        FileSource
	live        LiveSource
	defaultBBox model.BBox
	metrics     *monitoring.Metrics
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLiveSource enables live lookups.
func WithLiveSource(live LiveSource) ServiceOption {
	return func(s *Service) {
		s.live = live
	}
}

// WithDefaultBBox overrides the box used for forced live lookups.
func WithDefaultBBox(b model.BBox) ServiceOption {
	return func(s *Service) {
		if !b.IsZero() {
			s.defaultBBox = b
		}
	}
}

// WithMetrics enables metrics.
func WithMetrics(m *monitoring.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a Service backed by the flat-file source.
func NewService(file FileSource, opts ...ServiceOption) *Service {
	s := &Service{
		file:        file,
		defaultBBox: DefaultBBox,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query selects records, filters them, and returns the requested page.
// Only a dataset read failure is returned as an error.
func (s *Service) Query(ctx context.Context, req Request) (Page, error) {
	companies, source, err := s.companies(ctx, req)
	if err != nil {
		return Page{}, err
	}
	s.metrics.ObserveQuery(source)

	filtered := Apply(companies, Filter{
		BBox:    req.BBox,
		Keyword: req.Keyword,
		Tags:    req.Tags,
	})
	page := Paginate(filtered, req.Offset, req.Limit)
	page.Source = source
	return page, nil
}

// companies uses the live source when it is forced or a box is given, and
// falls back to the flat file when the live source fails or finds nothing.
func (s *Service) companies(ctx context.Context, req Request) ([]model.Company, string, error) {
	if s.live != nil && (req.ForceLive || req.HasBBox()) {
		bbox := req.BBox
		if bbox.IsZero() {
			bbox = s.defaultBBox
		}

		live, err := s.live.Companies(ctx, bbox, req.Keyword)
		switch {
		case err != nil:
			zap.L().Error("directory: live lookup failed, using dataset fallback",
				zap.String("bbox", bbox.String()),
				zap.String("q", req.Keyword),
				zap.Error(err),
			)
			s.metrics.ObserveFallback("error")
		case len(live) == 0:
			zap.L().Info("directory: live lookup empty, using dataset fallback",
				zap.String("bbox", bbox.String()),
				zap.String("q", req.Keyword),
			)
			s.metrics.ObserveFallback("empty")
		default:
			return live, SourceLabelLive, nil
		}
	}

	companies, err := s.file.Companies(ctx)
	if err != nil {
		return nil, "", eris.Wrap(err, "directory: load dataset")
	}
	return companies, SourceLabelFile, nil
}

// CacheStats reports statistics for every source that keeps a cache.
func (s *Service) CacheStats() map[string]cache.Stats {
	out := make(map[string]cache.Stats, 2)
	if r, ok := s.file.(cacheReporter); ok {
		out["dataset"] = r.CacheStats()
	}
	if r, ok := s.live.(cacheReporter); ok {
		out["overpass"] = r.CacheStats()
	}
	return out
}

// PurgeCaches empties every source cache and returns the names purged.
func (s *Service) PurgeCaches() []string {
	var purged []string
	if p, ok := s.file.(cachePurger); ok {
		p.PurgeCache()
		purged = append(purged, "dataset")
	}
	if p, ok := s.live.(cachePurger); ok {
		p.PurgeCache()
		purged = append(purged, "overpass")
	}
	zap.L().Info("directory: caches purged", zap.Strings("caches", purged))
	return purged
}
