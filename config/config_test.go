package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netan.toml")
	data := `
http_addr = "127.0.0.1:8080"
log_level = "debug"
max_entries = 50
capture_on_start = false
probe_urls = ["https://example.com/"]
latitude = 52.37
longitude = 4.89
map_token = "pk.test"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	if err := LoadConfig(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:8080" || cfg.LogLevel != "debug" || cfg.MaxEntries != 50 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.CaptureOnStart {
		t.Fatalf("capture_on_start not applied")
	}
	if len(cfg.ProbeURLs) != 1 || cfg.ProbeInterval != 30 {
		t.Fatalf("probe settings: %v every %d", cfg.ProbeURLs, cfg.ProbeInterval)
	}
	if cfg.Latitude == nil || *cfg.Latitude != 52.37 || cfg.MapToken != "pk.test" {
		t.Fatalf("location/map settings not applied: %+v", cfg)
	}
	// untouched keys keep their defaults
	if cfg.MapStyle != DefaultConfig().MapStyle || cfg.MapZoom != 14 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg := DefaultConfig()
	if err := LoadConfig("", &cfg); err != nil {
		t.Fatalf("empty path: %v", err)
	}
}

func TestLoadConfigBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	os.WriteFile(path, []byte("http_addr = "), 0o644)
	cfg := DefaultConfig()
	if err := LoadConfig(path, &cfg); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestValidate(t *testing.T) {
	lat := 10.0
	lng := 200.0

	cfg := Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero config: %v", err)
	}
	if cfg.HTTPAddr != ":9092" || cfg.MaxEntries != 250 || cfg.MapZoom != 14 {
		t.Fatalf("defaults not filled: %+v", cfg)
	}

	cfg = DefaultConfig()
	cfg.Latitude = &lat
	if err := cfg.Validate(); err == nil {
		t.Fatalf("latitude without longitude accepted")
	}

	cfg.Longitude = &lng
	if err := cfg.Validate(); err == nil {
		t.Fatalf("longitude out of range accepted")
	}

	cfg = DefaultConfig()
	cfg.GeoIPDB = "/tmp/city.mmdb"
	cfg.ClientIP = "not-an-ip"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("geoip without a valid client ip accepted")
	}
}
