package config_test

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"netqual/config"
)

func TestInterval(t *testing.T) {
	expected := config.Interval{Duration: 1500 * time.Millisecond}

	b, err := yaml.Marshal(expected)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "1.5s\n" {
		t.Errorf("encoded interval = %q, want %q", b, "1.5s\n")
	}

	var n config.Interval
	if err := yaml.Unmarshal([]byte("750ms"), &n); err != nil {
		t.Fatal(err)
	}
	if n.Duration != 750*time.Millisecond {
		t.Errorf("decoded interval = %v, want 750ms", n.Duration)
	}
}

func TestIntervalRejectsGarbage(t *testing.T) {
	var n config.Interval
	if err := yaml.Unmarshal([]byte("quickly"), &n); err == nil {
		t.Error("expected error for a non-duration string")
	}
}

func TestLoad(t *testing.T) {
	cfg, err := config.Load("testdata/netqual.yaml")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.PingCount != 6 {
		t.Errorf("ping_count = %d, want 6", cfg.PingCount)
	}
	if cfg.PingTimeout.Duration != 2*time.Second {
		t.Errorf("ping_timeout = %v, want 2s", cfg.PingTimeout.Duration)
	}
	if cfg.Bufferbloat.Enabled {
		t.Error("bufferbloat should be disabled by the file")
	}
	if len(cfg.Servers) != 2 || cfg.Servers[0].Host != "203.0.113.10" || cfg.Servers[1].Region != "USA" {
		t.Errorf("servers = %+v", cfg.Servers)
	}
	if len(cfg.Traffic.DownloadURLs) != 1 {
		t.Errorf("download_urls = %v", cfg.Traffic.DownloadURLs)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load("testdata/does-not-exist.yaml")
	if err != nil {
		t.Fatal(err)
	}
	def := config.Default()
	if cfg.PingCount != def.PingCount || cfg.PingTimeout != def.PingTimeout {
		t.Errorf("missing file should yield defaults, got %+v", cfg)
	}
}
