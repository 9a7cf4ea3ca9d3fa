package directory

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mapvia/internal/cache"
	"github.com/sells-group/mapvia/internal/dataset"
	"github.com/sells-group/mapvia/internal/model"
	"github.com/sells-group/mapvia/internal/overpass"
)

type fakeFile struct {
	companies []model.Company
	err       error
	calls     int
}

func (f *fakeFile) Companies(context.Context) ([]model.Company, error) {
	f.calls++
	return f.companies, f.err
}

type liveCall struct {
	bbox model.BBox
	term string
}

type fakeLive struct {
	mu        sync.Mutex
	companies []model.Company
	err       error
	calls     []liveCall
	purged    int
}

func (f *fakeLive) Companies(_ context.Context, bbox model.BBox, term string) ([]model.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, liveCall{bbox: bbox, term: term})
	return f.companies, f.err
}

func (f *fakeLive) CacheStats() cache.Stats {
	return cache.Stats{Entries: len(f.calls)}
}

func (f *fakeLive) PurgeCache() {
	f.purged++
}

func liveCompanies() []model.Company {
	return []model.Company{
		company("osm-node-1", "Live Design Studio", 34.05, -118.25, "office"),
		company("osm-way-2", "Live Bakery", 34.06, -118.26, "shop"),
	}
}

func TestService_NoBBoxUsesFile(t *testing.T) {
	file := &fakeFile{companies: fixtureCompanies()}
	live := &fakeLive{companies: liveCompanies()}
	svc := NewService(file, WithLiveSource(live))

	page, err := svc.Query(context.Background(), Request{Limit: 20})
	require.NoError(t, err)

	assert.Equal(t, SourceLabelFile, page.Source)
	assert.Equal(t, 5, page.Total)
	assert.Empty(t, live.calls)
}

func TestService_BBoxUsesLive(t *testing.T) {
	file := &fakeFile{companies: fixtureCompanies()}
	live := &fakeLive{companies: liveCompanies()}
	svc := NewService(file, WithLiveSource(live))

	box := model.NewBBox(-118.3, 34.0, -118.2, 34.1)
	page, err := svc.Query(context.Background(), Request{BBox: box, Keyword: "design", Limit: 20})
	require.NoError(t, err)

	assert.Equal(t, SourceLabelLive, page.Source)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "osm-node-1", page.Data[0].ID)
	assert.Equal(t, 0, file.calls)

	require.Len(t, live.calls, 1)
	assert.Equal(t, box.String(), live.calls[0].bbox.String())
	assert.Equal(t, "design", live.calls[0].term)
}

func TestService_ForceLiveWithoutBBoxUsesDefault(t *testing.T) {
	file := &fakeFile{companies: fixtureCompanies()}
	live := &fakeLive{companies: liveCompanies()}
	svc := NewService(file, WithLiveSource(live))

	page, err := svc.Query(context.Background(), Request{ForceLive: true, Limit: 20})
	require.NoError(t, err)

	assert.Equal(t, SourceLabelLive, page.Source)
	assert.Equal(t, 2, page.Total)
	require.Len(t, live.calls, 1)
	assert.Equal(t, DefaultBBox.String(), live.calls[0].bbox.String())
}

func TestService_CustomDefaultBBox(t *testing.T) {
	live := &fakeLive{companies: liveCompanies()}
	box := model.NewBBox(-1, -1, 1, 1)
	svc := NewService(&fakeFile{}, WithLiveSource(live), WithDefaultBBox(box))

	_, err := svc.Query(context.Background(), Request{ForceLive: true, Limit: 20})
	require.NoError(t, err)
	require.Len(t, live.calls, 1)
	assert.Equal(t, "-1,-1,1,1", live.calls[0].bbox.String())
}

func TestService_LiveErrorFallsBack(t *testing.T) {
	file := &fakeFile{companies: fixtureCompanies()}
	live := &fakeLive{err: eris.New("overpass: all 3 endpoints failed")}
	svc := NewService(file, WithLiveSource(live))

	box := model.NewBBox(-118.67, 33.8, -118.15, 34.15)
	page, err := svc.Query(context.Background(), Request{BBox: box, Limit: 20})
	require.NoError(t, err)

	assert.Equal(t, SourceLabelFile, page.Source)
	assert.Equal(t, []string{"osm-1", "osm-2", "osm-3", "osm-5"}, ids(page.Data))
	assert.Equal(t, 1, file.calls)
}

func TestService_LiveEmptyFallsBack(t *testing.T) {
	file := &fakeFile{companies: fixtureCompanies()}
	live := &fakeLive{companies: []model.Company{}}
	svc := NewService(file, WithLiveSource(live))

	page, err := svc.Query(context.Background(), Request{ForceLive: true, Limit: 20})
	require.NoError(t, err)

	assert.Equal(t, SourceLabelFile, page.Source)
	assert.Equal(t, 5, page.Total)
}

func TestService_WithoutLiveSourceAlwaysFile(t *testing.T) {
	file := &fakeFile{companies: fixtureCompanies()}
	svc := NewService(file)

	page, err := svc.Query(context.Background(), Request{ForceLive: true, BBox: DefaultBBox, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, SourceLabelFile, page.Source)
}

func TestService_FileErrorIsReturned(t *testing.T) {
	file := &fakeFile{err: eris.New("missing")}
	live := &fakeLive{err: eris.New("down")}
	svc := NewService(file, WithLiveSource(live))

	_, err := svc.Query(context.Background(), Request{BBox: DefaultBBox, Limit: 20})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory: load dataset")
}

func TestService_Pagination(t *testing.T) {
	svc := NewService(&fakeFile{companies: makeN(55)})

	first, err := svc.Query(context.Background(), Request{Limit: 20})
	require.NoError(t, err)
	assert.Len(t, first.Data, 20)
	require.NotNil(t, first.NextCursor)
	assert.Equal(t, "20", *first.NextCursor)

	last, err := svc.Query(context.Background(), Request{Limit: 20, Offset: 40})
	require.NoError(t, err)
	assert.Len(t, last.Data, 15)
	assert.Nil(t, last.NextCursor)
	assert.Equal(t, 55, last.Total)
}

func TestService_CacheStats(t *testing.T) {
	live := &fakeLive{companies: liveCompanies()}
	svc := NewService(&fakeFile{}, WithLiveSource(live))

	_, err := svc.Query(context.Background(), Request{ForceLive: true, Limit: 20})
	require.NoError(t, err)

	stats := svc.CacheStats()
	assert.NotContains(t, stats, "dataset")
	require.Contains(t, stats, "overpass")
	assert.Equal(t, 1, stats["overpass"].Entries)
}

const serviceCSV = `name,lat,lng,address,city,state,website,careers_url,tags
Acme Design,34.05,-118.25,,Los Angeles,CA,www.acme.test,,ai|saas
Ocean Labs,33.99,-118.47,1 Pier Ave,,,https://ocean.test,https://ocean.test/jobs,hardware
Nowhere Inc,0,0,,,,,,
`

func writeDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "companies.csv")
	require.NoError(t, os.WriteFile(path, []byte(serviceCSV), 0o600))
	return path
}

func TestService_AllMirrorsTimeOutFallsBackToDataset(t *testing.T) {
	release := make(chan struct{})

	var mu sync.Mutex
	var hits []string
	hang := func(name string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			hits = append(hits, name)
			mu.Unlock()
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
	}
	a, b, c := hang("a"), hang("b"), hang("c")
	defer a.Close()
	defer b.Close()
	defer c.Close()
	defer close(release)

	live := overpass.NewClient(
		overpass.WithEndpoints(a.URL, b.URL, c.URL),
		overpass.WithTimeout(50*time.Millisecond),
		overpass.WithRateLimit(0),
	)
	svc := NewService(dataset.NewSource(writeDataset(t)), WithLiveSource(live))

	page, err := svc.Query(context.Background(), Request{BBox: DefaultBBox, Limit: 20})
	require.NoError(t, err)

	assert.Equal(t, SourceLabelFile, page.Source)
	assert.Equal(t, []string{"osm-1", "osm-2"}, ids(page.Data))
	assert.Equal(t, "https://www.acme.test", page.Data[0].Website)
	assert.Equal(t, "Los Angeles, CA", page.Data[0].Address)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, hits)
}

func TestService_LiveResultsFromMirror(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"elements":[
			{"type":"node","id":7,"lat":34.01,"lon":-118.3,"tags":{"name":"Pixel Design","office":"company"}},
			{"type":"way","id":9,"center":{"lat":34.02,"lon":-118.31},"tags":{"name":"Other Design","shop":"furniture"}}
		]}`)
	}))
	defer srv.Close()

	live := overpass.NewClient(overpass.WithEndpoints(srv.URL), overpass.WithRateLimit(0))
	file := &fakeFile{}
	svc := NewService(file, WithLiveSource(live))

	page, err := svc.Query(context.Background(), Request{ForceLive: true, Keyword: "pixel", Limit: 20})
	require.NoError(t, err)

	assert.Equal(t, SourceLabelLive, page.Source)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "osm-node-7", page.Data[0].ID)
	assert.Equal(t, 0, file.calls)
}

func TestService_PurgeCaches(t *testing.T) {
	path := writeDataset(t)
	file := dataset.NewSource(path)
	live := &fakeLive{companies: liveCompanies()}
	svc := NewService(file, WithLiveSource(live))

	page, err := svc.Query(context.Background(), Request{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	// A rewritten snapshot is only seen after a purge.
	require.NoError(t, os.WriteFile(path, []byte("name,lat,lng\nSolo,34.0,-118.3\n"), 0o600))
	page, err = svc.Query(context.Background(), Request{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	assert.Equal(t, []string{"dataset", "overpass"}, svc.PurgeCaches())
	assert.Equal(t, 1, live.purged)

	page, err = svc.Query(context.Background(), Request{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, "Solo", page.Data[0].Name)
}

func TestService_PurgeCachesWithoutCaches(t *testing.T) {
	svc := NewService(&fakeFile{})
	assert.Empty(t, svc.PurgeCaches())
}
