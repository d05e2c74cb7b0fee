package model

import (
	"encoding/json"
	"time"
)

// ResourceEntry is a raw resource timing record as produced by the source.
// Field names follow the browser's PerformanceResourceTiming so beacons can be
// decoded directly.
type ResourceEntry struct {
	Name          string  `json:"name"`
	InitiatorType string  `json:"initiatorType"`
	Duration      float64 `json:"duration"`     // milliseconds
	TransferSize  int64   `json:"transferSize"` // bytes, 0 when served from an opaque cache
	StartTime     float64 `json:"startTime"`    // milliseconds since the source origin
}

// TimingRecord is one completed resource load after normalization.
type TimingRecord struct {
	Name             string  `json:"name"`
	Kind             string  `json:"kind"`
	DurationMs       int64   `json:"duration_ms"`
	TransferredBytes int64   `json:"transferred_bytes"`
	StartOffsetMs    float64 `json:"start_offset_ms"`
}

// MetricsSnapshot is recomputed in full on every update.
type MetricsSnapshot struct {
	Records           []TimingRecord `json:"records"`
	TotalBytes        int64          `json:"total_bytes"`
	AverageDurationMs float64        `json:"average_duration_ms"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// KindStats is a per-initiator rollup of a snapshot.
type KindStats struct {
	Kind       string `json:"kind"`
	Requests   int    `json:"requests"`
	TotalBytes int64  `json:"total_bytes"`
}

type Security string

const (
	SecurityOpen Security = "Open"
	SecurityWPA2 Security = "WPA2"
	SecurityWPA3 Security = "WPA3"
)

// Coordinates is a WGS84 position.
type Coordinates struct {
	Latitude  float64 `json:"lat" yaml:"lat"`
	Longitude float64 `json:"lng" yaml:"lng"`
}

// Pair returns (longitude, latitude), the order map widgets take.
func (c Coordinates) Pair() (float64, float64) {
	return c.Longitude, c.Latitude
}

// Network describes one entry of the network directory.
type Network struct {
	SSID        string       `json:"ssid" yaml:"ssid"`
	Security    Security     `json:"security" yaml:"security"`
	Strength    int          `json:"strength" yaml:"strength"` // 1..4 bars
	Coordinates *Coordinates `json:"coordinates,omitempty" yaml:"coordinates,omitempty"`
}

type Viewport struct {
	Center Coordinates `json:"center"`
	Zoom   float64     `json:"zoom"`
}

// WSMessage is the envelope for all WebSocket communication.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload describes an error sent to the client.
type ErrorPayload struct {
	Message string `json:"message"`
}
