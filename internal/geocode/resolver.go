package geocode

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Resolver answers queries from the cache first and falls back to the
// geocoder. Failed lookups are not cached.
type Resolver struct {
	geocoder Geocoder
	cache    *Cache
	now      func() time.Time
}

// NewResolver creates a Resolver. cache may be nil.
func NewResolver(g Geocoder, cache *Cache) *Resolver {
	return &Resolver{geocoder: g, cache: cache, now: time.Now}
}

// Resolve returns the result for query and whether it came from the cache.
func (r *Resolver) Resolve(ctx context.Context, query string) (Result, bool, error) {
	if strings.TrimSpace(query) == "" {
		return Result{}, false, nil
	}
	if e, ok := r.cache.Get(query); ok {
		zap.L().Debug("geocode cache hit", zap.String("query", query), zap.Bool("found", e.Found))
		return Result{Lat: e.Lat, Lng: e.Lng, Address: e.Address, Found: e.Found}, true, nil
	}

	res, err := r.geocoder.Geocode(ctx, query)
	if err != nil {
		return Result{}, false, err
	}
	r.cache.Set(query, CacheEntry{
		Lat:       res.Lat,
		Lng:       res.Lng,
		Address:   res.Address,
		Found:     res.Found,
		UpdatedAt: r.now(),
	})
	return res, false, nil
}
