// Package config loads run configuration from YAML with ${VAR} environment
// substitution, so service keys stay out of config files.
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tabfetch/tabfetch/pkg/logger"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// Duration is a time.Duration that decodes from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return taberrors.Wrap(err, taberrors.ErrorTypeConfig, "invalid duration").
			WithDetail("value", raw)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Service locates and authenticates against the web service.
type Service struct {
	Endpoint string `yaml:"endpoint"`
	Key      string `yaml:"key"`
	// AuthMode is "query" or "basic".
	AuthMode string `yaml:"auth_mode"`
	// Language restricts translated fields to one language id; zero fetches
	// all languages.
	Language int `yaml:"language"`
}

// Fetch tunes paging and prefetching.
type Fetch struct {
	PageSize int      `yaml:"page_size"`
	Timeout  Duration `yaml:"timeout"`
	Retries  int      `yaml:"retries"`
	// PrefetchWindow bounds how many pages may be in flight beyond the
	// one being written.
	PrefetchWindow int `yaml:"prefetch_window"`
}

// Output selects the columnar runtime and encoding.
type Output struct {
	Backend     string `yaml:"backend"`
	Format      string `yaml:"format"`
	Compression string `yaml:"compression"`
	Flatten     bool   `yaml:"flatten"`
	// Path is the output file, "-" or empty means stdout.
	Path string `yaml:"path"`
}

// Config is the full run configuration.
type Config struct {
	Service Service       `yaml:"service"`
	Fetch   Fetch         `yaml:"fetch"`
	Output  Output        `yaml:"output"`
	Logging logger.Config `yaml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Service: Service{AuthMode: "query"},
		Fetch: Fetch{
			PageSize:       100,
			Timeout:        Duration(30 * time.Second),
			Retries:        2,
			PrefetchWindow: 2,
		},
		Output: Output{
			Backend: "arrow-go",
			Format:  "arrow",
		},
	}
}

// Load reads a YAML file over the defaults, substituting ${VAR} references
// from the environment first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, taberrors.Wrap(err, taberrors.ErrorTypeConfig, "read config file").
			WithDetail("path", path)
	}

	cfg := Default()
	content := substituteEnvVars(string(data))
	dec := yaml.NewDecoder(strings.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, taberrors.Wrap(err, taberrors.ErrorTypeConfig, "parse config file").
			WithDetail("path", path)
	}
	return cfg, nil
}

// Validate checks invariants a run depends on.
func (c *Config) Validate() error {
	if c.Service.Endpoint == "" {
		return taberrors.New(taberrors.ErrorTypeConfig, "service.endpoint is required")
	}
	if c.Fetch.PageSize <= 0 {
		return taberrors.New(taberrors.ErrorTypeConfig, "fetch.page_size must be positive").
			WithDetail("page_size", c.Fetch.PageSize)
	}
	if c.Fetch.PrefetchWindow < 1 {
		return taberrors.New(taberrors.ErrorTypeConfig, "fetch.prefetch_window must be at least 1").
			WithDetail("prefetch_window", c.Fetch.PrefetchWindow)
	}
	return nil
}

// substituteEnvVars replaces ${VAR} with the variable's value, empty when
// unset.
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		content = content[:start] + os.Getenv(content[start+2:end]) + content[end+1:]
	}
	return content
}
