package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mapvia/internal/dataset"
	"github.com/sells-group/mapvia/internal/fetcher"
	"github.com/sells-group/mapvia/internal/geocode"
	"github.com/sells-group/mapvia/internal/model"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Build and inspect the flat-file company snapshot",
}

var datasetPath string

var datasetValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse and normalize the dataset, reporting kept and dropped rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := datasetPath
		if path == "" {
			path = cfg.Dataset.Path
		}

		src := dataset.NewSource(path, dataset.WithFetcher(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent: cfg.Overpass.UserAgent,
		})))
		res, err := src.Load(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "dataset: %s\n", path)
		fmt.Fprintf(out, "rows:    %d\n", res.Stats.Rows)
		fmt.Fprintf(out, "kept:    %d\n", res.Stats.Kept)
		fmt.Fprintf(out, "dropped: %d\n", res.Stats.Dropped)

		if res.Stats.Kept == 0 {
			return eris.Errorf("dataset: %s has no usable rows", path)
		}
		return nil
	},
}

var buildFlags struct {
	input     string
	output    string
	failures  string
	cache     string
	delay     float64
	bbox      string
	noGeocode bool
}

var datasetBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Clean, dedupe and geocode crawled companies into a dataset snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		bbox := dataset.DefaultBuildBBox
		if buildFlags.bbox != "" {
			b, err := model.ParseBBox(buildFlags.bbox)
			if err != nil {
				return eris.Wrap(err, "dataset build: --bbox")
			}
			bbox = b
		}

		f, err := os.Open(buildFlags.input)
		if err != nil {
			return eris.Wrapf(err, "dataset build: open %s", buildFlags.input)
		}
		raw, err := dataset.ReadRaw(f)
		f.Close() //nolint:errcheck
		if err != nil {
			return err
		}

		var resolver dataset.Resolver
		var gcache *geocode.Cache
		if !buildFlags.noGeocode {
			gcache, err = geocode.LoadCache(buildFlags.cache)
			if err != nil {
				return err
			}
			resolver = geocode.NewResolver(newGeocoder(cmd), gcache)
		}

		res, buildErr := dataset.NewBuilder(resolver, dataset.WithBuildBBox(bbox)).Build(cmd.Context(), raw)
		// Lookups made before an interruption are still saved.
		if err := gcache.Save(buildFlags.cache); err != nil {
			zap.L().Error("dataset build: save geocode cache", zap.Error(err))
		}
		if buildErr != nil {
			return buildErr
		}

		if err := writeFile(buildFlags.output, func(w io.Writer) error {
			return dataset.WriteRows(w, res.Rows)
		}); err != nil {
			return err
		}
		if err := writeFile(buildFlags.failures, func(w io.Writer) error {
			return dataset.WriteFailures(w, res.Failures)
		}); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Saved %d rows to %s\n", len(res.Rows), buildFlags.output)
		fmt.Fprintf(out, "Logged %d failures to %s\n", len(res.Failures), buildFlags.failures)
		return nil
	},
}

// newGeocoder builds the Nominatim client from config, with --delay
// overriding the configured spacing when set.
func newGeocoder(cmd *cobra.Command) *geocode.Nominatim {
	delay := cfg.Geocode.Delay()
	if cmd.Flags().Changed("delay") {
		delay = time.Duration(buildFlags.delay * float64(time.Second))
	}
	timeout := time.Duration(cfg.Geocode.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return geocode.NewNominatim(
		geocode.WithBaseURL(cfg.Geocode.BaseURL),
		geocode.WithUserAgent(cfg.Geocode.UserAgent),
		geocode.WithMinInterval(delay),
		geocode.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
}

// writeFile creates path and its parent directories and streams fn into it.
func writeFile(path string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "create dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := fn(f); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}

func init() {
	datasetValidateCmd.Flags().StringVar(&datasetPath, "path", "", "dataset file or URL (default from config)")

	f := datasetBuildCmd.Flags()
	f.StringVar(&buildFlags.input, "input", "data/companies_raw.json", "crawled companies JSON")
	f.StringVar(&buildFlags.output, "output", "data/companies_clean.csv", "dataset CSV to write")
	f.StringVar(&buildFlags.failures, "failures", "data/geocode_failures.csv", "geocode failure log to write")
	f.StringVar(&buildFlags.cache, "cache", "data/geocode_cache.json", "geocode cache file")
	f.Float64Var(&buildFlags.delay, "delay", 1.0, "seconds between geocoder requests (default from config)")
	f.StringVar(&buildFlags.bbox, "bbox", dataset.DefaultBuildBBox.String(), "minLng,minLat,maxLng,maxLat accepted area")
	f.BoolVar(&buildFlags.noGeocode, "no-geocode", false, "skip geocoding; rows are written without coordinates")

	datasetCmd.AddCommand(datasetValidateCmd, datasetBuildCmd)
	rootCmd.AddCommand(datasetCmd)
}
