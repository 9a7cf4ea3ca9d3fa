package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/mapvia/internal/config"
)

func TestConfigShow(t *testing.T) {
	cfg = testConfig(t)
	cfg.Overpass.Endpoints = []string{"https://mirror.test/api/interpreter"}

	var out bytes.Buffer
	configShowCmd.SetOut(&out)
	t.Cleanup(func() { configShowCmd.SetOut(nil) })

	require.NoError(t, configShowCmd.RunE(configShowCmd, nil))

	var got config.Config
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, cfg.Dataset.Path, got.Dataset.Path)
	assert.Equal(t, []string{"https://mirror.test/api/interpreter"}, got.Overpass.Endpoints)
	assert.Equal(t, 50, got.Query.MaxLimit)
}
