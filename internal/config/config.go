// Package config loads fedgraph configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. Command-line flags are applied by the caller on
// top of the loaded value.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/Benny93/fedgraph/internal/builder"
	"github.com/Benny93/fedgraph/internal/federation"
	"github.com/Benny93/fedgraph/internal/ingestion"
	"github.com/Benny93/fedgraph/internal/parsers"
	"github.com/Benny93/fedgraph/internal/resolver"
)

// ErrInvalidConfig is returned by Validate and Load for unusable values.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete fedgraph configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port"`

	// StorePath is the badger directory holding imported federations.
	StorePath string `yaml:"store_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is text or json.
	LogFormat string `yaml:"log_format"`

	// MaxUploadMB bounds uploaded archive size.
	MaxUploadMB int `yaml:"max_upload_mb"`

	Graph   Graph   `yaml:"graph"`
	Archive Archive `yaml:"archive"`
}

// Graph holds the graph build tunables.
type Graph struct {
	Sentinel        string          `yaml:"sentinel"`
	RootAliases     []string        `yaml:"root_aliases"`
	NameFields      []string        `yaml:"name_fields"`
	LabelMaxLength  int             `yaml:"label_max_length"`
	MarkerAttribute string          `yaml:"marker_attribute"`
	NullReference   string          `yaml:"null_reference"`
	EdgeAlpha       float64         `yaml:"edge_alpha"`
	Weights         builder.Weights `yaml:"weights"`
}

// Archive holds the archive decoding tunables.
type Archive struct {
	// Ignore lists extra gitignore-style patterns for archive entries.
	Ignore []string `yaml:"ignore"`

	// Workers bounds parallel store decoding. Zero uses all CPUs.
	Workers int `yaml:"workers"`
}

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"text", "json"}
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:        8080,
		StorePath:   "./store",
		LogLevel:    "info",
		LogFormat:   "text",
		MaxUploadMB: 64,
		Graph: Graph{
			Sentinel:        federation.DefaultSentinel,
			RootAliases:     []string{"RootChild"},
			NameFields:      []string{"name"},
			LabelMaxLength:  20,
			MarkerAttribute: "finalizer",
			NullReference:   resolver.DefaultNullReference,
			EdgeAlpha:       0.5,
			Weights:         builder.DefaultWeights(),
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv applies FEDGRAPH_* variables, falling back to the bare PORT and
// STORE_PATH names.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(names ...string) (string, bool) {
		for _, n := range names {
			if v, ok := lookup(n); ok && v != "" {
				return v, true
			}
		}
		return "", false
	}

	if v, ok := get("FEDGRAPH_PORT", "PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: port %q is not a number", ErrInvalidConfig, v)
		}
		c.Port = port
	}
	if v, ok := get("FEDGRAPH_STORE_PATH", "STORE_PATH"); ok {
		c.StorePath = v
	}
	if v, ok := get("FEDGRAPH_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := get("FEDGRAPH_LOG_FORMAT"); ok {
		c.LogFormat = v
	}
	return nil
}

// Validate checks the configuration for unusable values.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.StorePath == "" {
		errs = append(errs, errors.New("store path is empty"))
	}
	if !slices.Contains(validLevels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	if !slices.Contains(validFormats, c.LogFormat) {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("max upload size %d must be positive", c.MaxUploadMB))
	}
	if c.Graph.LabelMaxLength <= 0 {
		errs = append(errs, fmt.Errorf("label max length %d must be positive", c.Graph.LabelMaxLength))
	}
	if c.Graph.EdgeAlpha < 0 || c.Graph.EdgeAlpha > 1 {
		errs = append(errs, fmt.Errorf("edge alpha %v outside [0, 1]", c.Graph.EdgeAlpha))
	}
	w := c.Graph.Weights
	if w.Extends < 0 || w.Component < 0 || w.HardReference < 0 || w.SoftReference < 0 || w.Parent < 0 {
		errs = append(errs, errors.New("edge weights must not be negative"))
	}
	if c.Archive.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers %d must not be negative", c.Archive.Workers))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// BuildOptions returns the graph build options.
func (c Config) BuildOptions() builder.Options {
	return builder.Options{
		Sentinel:       c.Graph.Sentinel,
		RootAliases:    c.Graph.RootAliases,
		NameFields:     c.Graph.NameFields,
		LabelMaxLength: c.Graph.LabelMaxLength,
		NullReference:  c.Graph.NullReference,
		Weights:        c.Graph.Weights,
		EdgeAlpha:      c.Graph.EdgeAlpha,
	}
}

// ImportOptions returns the archive import options.
func (c Config) ImportOptions() ingestion.Options {
	return ingestion.Options{
		Parser: parsers.Options{
			Sentinel:        c.Graph.Sentinel,
			MarkerAttribute: c.Graph.MarkerAttribute,
			NullReference:   c.Graph.NullReference,
		},
		Build:          c.BuildOptions(),
		IgnorePatterns: c.Archive.Ignore,
		Workers:        c.Archive.Workers,
	}
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}
