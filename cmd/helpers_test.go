package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/mapvia/internal/config"
)

const testCSV = `name,lat,lng,address,city,state,website,careers_url,tags
Acme Design,34.05,-118.25,,Los Angeles,CA,www.acme.test,,ai|saas
Ocean Labs,33.99,-118.47,1 Pier Ave,,,https://ocean.test,https://ocean.test/jobs,hardware
Nowhere Inc,0,0,,,,,,
Bay Robotics,37.77,-122.42,,San Francisco,CA,,,hardware|ai
`

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "companies.csv")
	require.NoError(t, os.WriteFile(path, []byte(testCSV), 0o600))
	return path
}

// testConfig returns a config pointing at a temp dataset with Overpass
// disabled.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.Server.Port = 8080
	c.Server.CORSOrigins = []string{"*"}
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Dataset.Path = writeCSV(t)
	c.Query.DefaultLimit = 20
	c.Query.MaxLimit = 50
	return c
}
