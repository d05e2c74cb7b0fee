package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	HTTPAddr       string `toml:"http_addr"`
	LogLevel       string `toml:"log_level"`
	MaxEntries     int    `toml:"max_entries"`      // resource timing buffer size
	CaptureOnStart bool   `toml:"capture_on_start"` // Default true
	DirectoryFile  string `toml:"directory_file"`   // YAML; empty means built-in mock networks

	// Outbound fetches recorded as resource loads
	ProbeURLs     []string `toml:"probe_urls"`
	ProbeInterval int      `toml:"probe_interval"` // seconds

	// Location service. A GeoIP database wins over a static position.
	GeoIPDB   string   `toml:"geoip_db"`
	ClientIP  string   `toml:"client_ip"`
	Latitude  *float64 `toml:"latitude"`
	Longitude *float64 `toml:"longitude"`

	// Map provider, handed to the page as-is
	MapZoom  float64 `toml:"map_zoom"`
	MapStyle string  `toml:"map_style"`
	MapToken string  `toml:"map_token"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		HTTPAddr:       ":9092",
		LogLevel:       "info",
		MaxEntries:     250,
		CaptureOnStart: true,
		ProbeInterval:  30,
		MapZoom:        14,
		MapStyle:       "mapbox://styles/mapbox/dark-v11",
	}
}

func LoadConfig(path string, cfg *Config) error {
	if path != "" {
		_, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("error decoding config file: %w", err)
		}
	}
	return nil
}

// Validate fills zero values with defaults and rejects inconsistent settings.
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.HTTPAddr == "" {
		c.HTTPAddr = def.HTTPAddr
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = def.MaxEntries
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = def.ProbeInterval
	}
	if c.MapZoom <= 0 {
		c.MapZoom = def.MapZoom
	}
	if (c.Latitude == nil) != (c.Longitude == nil) {
		return errors.New("latitude and longitude must be set together")
	}
	if c.Latitude != nil && (*c.Latitude < -90 || *c.Latitude > 90) {
		return fmt.Errorf("latitude %v out of range", *c.Latitude)
	}
	if c.Longitude != nil && (*c.Longitude < -180 || *c.Longitude > 180) {
		return fmt.Errorf("longitude %v out of range", *c.Longitude)
	}
	if c.GeoIPDB != "" && net.ParseIP(c.ClientIP) == nil {
		return fmt.Errorf("geoip_db needs a valid client_ip, got %q", c.ClientIP)
	}
	return nil
}
