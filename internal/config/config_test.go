package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "./store", cfg.StorePath)
	assert.Equal(t, "Entity", cfg.Graph.Sentinel)
	assert.Equal(t, 20, cfg.Graph.LabelMaxLength)
	assert.Equal(t, "-1", cfg.Graph.NullReference)
	assert.Equal(t, 10, cfg.Graph.Weights.Extends)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad(t *testing.T) {
	t.Run("File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fedgraph.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
port: 9000
log_format: json
graph:
  root_aliases: [Container, RootChild]
  label_max_length: 12
  weights:
    extends: 8
archive:
  ignore: ["drafts/"]
`), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 9000, cfg.Port)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, "./store", cfg.StorePath)
		assert.Equal(t, []string{"Container", "RootChild"}, cfg.Graph.RootAliases)
		assert.Equal(t, 12, cfg.Graph.LabelMaxLength)
		assert.Equal(t, 8, cfg.Graph.Weights.Extends)
		assert.Equal(t, 5, cfg.Graph.Weights.Component)
		assert.Equal(t, []string{"drafts/"}, cfg.Archive.Ignore)
	})

	t.Run("EnvOverridesFile", func(t *testing.T) {
		t.Setenv("FEDGRAPH_PORT", "")
		t.Setenv("PORT", "7070")
		t.Setenv("FEDGRAPH_STORE_PATH", "/var/lib/fedgraph")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Port)
		assert.Equal(t, "/var/lib/fedgraph", cfg.StorePath)
	})

	t.Run("BadEnvPort", func(t *testing.T) {
		t.Setenv("FEDGRAPH_PORT", "eighty")

		_, err := Load("")
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("BadYAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("port: [not, a, number]"), 0o644))

		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"PortZero", func(c *Config) { c.Port = 0 }},
		{"PortTooLarge", func(c *Config) { c.Port = 70000 }},
		{"EmptyStorePath", func(c *Config) { c.StorePath = "" }},
		{"UnknownLevel", func(c *Config) { c.LogLevel = "trace" }},
		{"UnknownFormat", func(c *Config) { c.LogFormat = "xml" }},
		{"NoUploadLimit", func(c *Config) { c.MaxUploadMB = 0 }},
		{"LabelLength", func(c *Config) { c.Graph.LabelMaxLength = 0 }},
		{"Alpha", func(c *Config) { c.Graph.EdgeAlpha = 1.5 }},
		{"NegativeWeight", func(c *Config) { c.Graph.Weights.SoftReference = -1 }},
		{"NegativeWorkers", func(c *Config) { c.Archive.Workers = -2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"FEDGRAPH_PORT":       "9001",
		"PORT":                "1",
		"STORE_PATH":          "/tmp/feds",
		"FEDGRAPH_LOG_LEVEL":  "debug",
		"FEDGRAPH_LOG_FORMAT": "json",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))

	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, "/tmp/feds", cfg.StorePath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestOptions(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Graph.MarkerAttribute = "locked"
	cfg.Archive.Ignore = []string{"x/"}

	build := cfg.BuildOptions()
	assert.Equal(t, "Entity", build.Sentinel)
	assert.Equal(t, 20, build.LabelMaxLength)

	imp := cfg.ImportOptions()
	assert.Equal(t, "locked", imp.Parser.MarkerAttribute)
	assert.Equal(t, imp.Build.NullReference, imp.Parser.NullReference)
	assert.Equal(t, []string{"x/"}, imp.IgnorePatterns)
	assert.Equal(t, build.Weights, imp.Build.Weights)
}
