// Package config loads the optional YAML runtime configuration. Every
// field has a working default so the tool runs with no file at all.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"netqual/catalog"
)

const DefaultFilename = "netqual.yaml"

type Config struct {
	LogLevel string `yaml:"log_level"`

	PingCount   int      `yaml:"ping_count"`
	PingTimeout Interval `yaml:"ping_timeout"`

	Bufferbloat Bufferbloat `yaml:"bufferbloat"`
	Traffic     Traffic     `yaml:"traffic"`

	// Servers overrides the compiled-in probe catalog when non-empty.
	Servers []catalog.Server `yaml:"servers"`
}

type Bufferbloat struct {
	Enabled  bool     `yaml:"enabled"`
	Duration Interval `yaml:"duration"`
}

// Traffic configures the saturation endpoints of the load generator.
type Traffic struct {
	DownloadURLs []string `yaml:"download_urls"`
	UploadURLs   []string `yaml:"upload_urls"`
}

func Default() Config {
	return Config{
		LogLevel:    "info",
		PingCount:   4,
		PingTimeout: Interval{Duration: time.Second},
		Bufferbloat: Bufferbloat{
			Enabled:  true,
			Duration: Interval{Duration: 30 * time.Second},
		},
	}
}

// Load reads path (DefaultFilename when empty) over the defaults. A
// missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultFilename
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Interval is a time.Duration that (un)marshals as a duration string.
type Interval struct {
	time.Duration
}

func (d *Interval) UnmarshalYAML(value *yaml.Node) (err error) {
	var pstr string
	if err = value.Decode(&pstr); err != nil {
		return
	}
	d.Duration, err = time.ParseDuration(pstr)
	return
}

func (d Interval) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}
