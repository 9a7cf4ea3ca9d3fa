package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runDatasetValidate(t *testing.T, path string) (string, error) {
	t.Helper()
	cfg = testConfig(t)
	datasetPath = path
	t.Cleanup(func() { datasetPath = "" })

	var out bytes.Buffer
	datasetValidateCmd.SetOut(&out)
	t.Cleanup(func() { datasetValidateCmd.SetOut(nil) })

	datasetValidateCmd.SetContext(context.Background())
	err := datasetValidateCmd.RunE(datasetValidateCmd, nil)
	return out.String(), err
}

func TestDatasetValidate_ConfigPath(t *testing.T) {
	out, err := runDatasetValidate(t, "")
	require.NoError(t, err)
	assert.Contains(t, out, "rows:    4")
	assert.Contains(t, out, "kept:    3")
	assert.Contains(t, out, "dropped: 1")
}

func TestDatasetValidate_BundledSnapshot(t *testing.T) {
	out, err := runDatasetValidate(t, filepath.Join("..", "data", "osm_companies.csv"))
	require.NoError(t, err)
	assert.Contains(t, out, "dataset: ")
	assert.NotContains(t, out, "kept:    0")
}

func TestDatasetValidate_NoUsableRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,lat,lng\nx,,\n"), 0o600))

	_, err := runDatasetValidate(t, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable rows")
}

func TestDatasetValidate_Missing(t *testing.T) {
	_, err := runDatasetValidate(t, "/nonexistent.csv")
	assert.Error(t, err)
}

const buildInput = `[
  {"name": "Acme Design Inc", "website": "www.acme.test", "tags": ["ai", "saas"]},
  {"name": "Acme Design, LLC"},
  {"name": "Far Away Co", "tags": "hardware"},
  {"name": "Ghost Corp"}
]`

func runDatasetBuild(t *testing.T, geocoderURL string, extra func()) (string, string, error) {
	t.Helper()
	cfg = testConfig(t)
	cfg.Geocode.BaseURL = geocoderURL
	cfg.Geocode.TimeoutSecs = 2

	dir := t.TempDir()
	input := filepath.Join(dir, "companies_raw.json")
	require.NoError(t, os.WriteFile(input, []byte(buildInput), 0o600))

	saved := buildFlags
	t.Cleanup(func() { buildFlags = saved })
	buildFlags.input = input
	buildFlags.output = filepath.Join(dir, "out", "companies_clean.csv")
	buildFlags.failures = filepath.Join(dir, "out", "geocode_failures.csv")
	buildFlags.cache = filepath.Join(dir, "geocode_cache.json")
	buildFlags.bbox = ""
	buildFlags.noGeocode = false
	if extra != nil {
		extra()
	}

	var out bytes.Buffer
	datasetBuildCmd.SetOut(&out)
	t.Cleanup(func() { datasetBuildCmd.SetOut(nil) })

	datasetBuildCmd.SetContext(context.Background())
	err := datasetBuildCmd.RunE(datasetBuildCmd, nil)
	return out.String(), dir, err
}

func newGeocoderServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Query().Get("q") {
		case "Acme Design Inc, Los Angeles, CA":
			_, _ = io.WriteString(w, `[{"lat":"34.0522342","lon":"-118.2436849","display_name":"Acme, Spring St, Los Angeles"}]`)
		case "Far Away Co, Los Angeles, CA":
			_, _ = io.WriteString(w, `[{"lat":"40.7","lon":"-74.0","display_name":"New York"}]`)
		default:
			_, _ = io.WriteString(w, `[]`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDatasetBuild_GeocodesAndWritesSnapshot(t *testing.T) {
	var calls atomic.Int32
	srv := newGeocoderServer(t, &calls)

	out, dir, err := runDatasetBuild(t, srv.URL, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved 3 rows")
	assert.Contains(t, out, "Logged 2 failures")
	assert.Equal(t, int32(3), calls.Load())

	// The snapshot is readable by the same pipeline that serves it.
	validateOut, err := runDatasetValidate(t, filepath.Join(dir, "out", "companies_clean.csv"))
	require.NoError(t, err)
	assert.Contains(t, validateOut, "rows:    3")
	assert.Contains(t, validateOut, "kept:    1")

	failures, err := os.ReadFile(filepath.Join(dir, "out", "geocode_failures.csv"))
	require.NoError(t, err)
	assert.Equal(t, "name,query,reason\n"+
		"Far Away Co,\"Far Away Co, Los Angeles, CA\",out_of_bbox\n"+
		"Ghost Corp,\"Ghost Corp, Los Angeles, CA\",no_results\n", string(failures))

	cache, err := os.ReadFile(filepath.Join(dir, "geocode_cache.json"))
	require.NoError(t, err)
	assert.Contains(t, string(cache), "acme design inc, los angeles, ca")
}

func TestDatasetBuild_ReusesCache(t *testing.T) {
	var calls atomic.Int32
	srv := newGeocoderServer(t, &calls)

	dir := t.TempDir()
	cachePath := filepath.Join(dir, "geocode_cache.json")
	_, _, err := runDatasetBuild(t, srv.URL, func() { buildFlags.cache = cachePath })
	require.NoError(t, err)
	_, _, err = runDatasetBuild(t, srv.URL, func() { buildFlags.cache = cachePath })
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDatasetBuild_NoGeocode(t *testing.T) {
	var calls atomic.Int32
	srv := newGeocoderServer(t, &calls)

	out, dir, err := runDatasetBuild(t, srv.URL, func() { buildFlags.noGeocode = true })
	require.NoError(t, err)
	assert.Contains(t, out, "Logged 0 failures")
	assert.Zero(t, calls.Load())

	snapshot, err := os.ReadFile(filepath.Join(dir, "out", "companies_clean.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(snapshot), "Acme Design Inc,,,,Los Angeles,CA,https://www.acme.test,,ai|saas\n")
	assert.NoFileExists(t, filepath.Join(dir, "geocode_cache.json"))
}

func TestDatasetBuild_CustomBBox(t *testing.T) {
	var calls atomic.Int32
	srv := newGeocoderServer(t, &calls)

	out, _, err := runDatasetBuild(t, srv.URL, func() { buildFlags.bbox = "-75,40,-73,41" })
	require.NoError(t, err)
	assert.Contains(t, out, "Logged 2 failures")
}

func TestDatasetBuild_BadBBox(t *testing.T) {
	_, _, err := runDatasetBuild(t, "http://127.0.0.1:0", func() { buildFlags.bbox = "1,2,3" })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--bbox")
}

func TestDatasetBuild_MissingInput(t *testing.T) {
	_, _, err := runDatasetBuild(t, "http://127.0.0.1:0", func() { buildFlags.input = "/nonexistent.json" })
	assert.Error(t, err)
}
