package main

import (
	"time"

	"github.com/sells-group/mapvia/internal/config"
	"github.com/sells-group/mapvia/internal/dataset"
	"github.com/sells-group/mapvia/internal/directory"
	"github.com/sells-group/mapvia/internal/fetcher"
	"github.com/sells-group/mapvia/internal/model"
	"github.com/sells-group/mapvia/internal/monitoring"
	"github.com/sells-group/mapvia/internal/overpass"
)

// app holds the wired sources and query service.
type app struct {
	Dataset *dataset.Source
	Live    *overpass.Client
	Service *directory.Service
	Limits  directory.Limits
}

// buildApp wires the dataset source, the optional Overpass client and the
// query service from configuration. metrics may be nil.
func buildApp(c *config.Config, metrics *monitoring.Metrics) *app {
	ds := dataset.NewSource(c.Dataset.Path,
		dataset.WithFetcher(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent: c.Overpass.UserAgent,
			Timeout:   time.Duration(c.Dataset.DownloadTimeoutSecs) * time.Second,
		})),
		dataset.WithMetrics(metrics),
	)

	a := &app{
		Dataset: ds,
		Limits: directory.Limits{
			Default: c.Query.DefaultLimit,
			Max:     c.Query.MaxLimit,
		},
	}

	svcOpts := []directory.ServiceOption{directory.WithMetrics(metrics)}
	if c.Overpass.Enabled {
		a.Live = overpass.NewClient(overpassOptions(c.Overpass, metrics)...)
		svcOpts = append(svcOpts, directory.WithLiveSource(a.Live))
		if b := c.Overpass.DefaultBBox; len(b) == 4 {
			svcOpts = append(svcOpts, directory.WithDefaultBBox(model.NewBBox(b[0], b[1], b[2], b[3])))
		}
	}

	a.Service = directory.NewService(ds, svcOpts...)
	return a
}

func overpassOptions(c config.OverpassConfig, metrics *monitoring.Metrics) []overpass.Option {
	opts := []overpass.Option{
		overpass.WithRateLimit(c.RateLimitRPS),
		overpass.WithMetrics(metrics),
	}
	if len(c.Endpoints) > 0 {
		opts = append(opts, overpass.WithEndpoints(c.Endpoints...))
	}
	if c.TimeoutSecs > 0 {
		opts = append(opts, overpass.WithTimeout(c.Timeout()))
	}
	if c.UserAgent != "" {
		opts = append(opts, overpass.WithUserAgent(c.UserAgent))
	}
	if c.ResultLimit > 0 {
		opts = append(opts, overpass.WithResultLimit(c.ResultLimit))
	}
	if c.CacheTTLSecs > 0 || c.CacheMaxEntries > 0 {
		opts = append(opts, overpass.WithCacheSize(c.CacheMaxEntries, c.CacheTTL()))
	}
	return opts
}
