package directory

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kisy/netan/pkg/model"
)

const (
	MinStrength = 1
	MaxStrength = 4
)

var (
	ErrNoSSID        = errors.New("network ssid is required")
	ErrNoSuchNetwork = errors.New("no such network")
	ErrBadSecurity   = errors.New("unknown security kind")
	ErrBadStrength   = errors.New("signal strength out of range")
)

// Directory is the set of networks offered to the connection flow. It stands
// in for a real scan; user additions live only as long as the process.
type Directory struct {
	mu       sync.RWMutex
	networks []model.Network
}

func New(networks []model.Network) *Directory {
	d := &Directory{}
	d.networks = append(d.networks, networks...)
	return d
}

// Default returns the built-in mock directory.
func Default() *Directory {
	return New(defaultNetworks())
}

func defaultNetworks() []model.Network {
	at := func(lat, lng float64) *model.Coordinates {
		return &model.Coordinates{Latitude: lat, Longitude: lng}
	}
	return []model.Network{
		{SSID: "Home Network", Security: model.SecurityWPA2, Strength: 4, Coordinates: at(40.7128, -74.006)},
		{SSID: "Office WiFi", Security: model.SecurityWPA3, Strength: 3, Coordinates: at(40.7148, -74.008)},
		{SSID: "Guest Network", Security: model.SecurityOpen, Strength: 2, Coordinates: at(40.7138, -74.007)},
		{SSID: "IoT Network", Security: model.SecurityWPA2, Strength: 4, Coordinates: at(40.7118, -74.005)},
	}
}

type fileFormat struct {
	Networks []model.Network `yaml:"networks"`
}

// LoadFile reads a YAML directory of the form
//
//	networks:
//	  - ssid: Lab
//	    security: WPA3
//	    strength: 3
//	    coordinates: {lat: 52.37, lng: 4.89}
func LoadFile(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory file: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding directory file %s: %w", path, err)
	}
	d := New(nil)
	for i, n := range f.Networks {
		if err := d.Add(n); err != nil {
			return nil, fmt.Errorf("directory file %s, network %d: %w", path, i, err)
		}
	}
	return d, nil
}

// List returns the networks in directory order.
func (d *Directory) List() []model.Network {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Network, len(d.networks))
	copy(out, d.networks)
	return out
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.networks)
}

// Get returns the network at the zero-based index i.
func (d *Directory) Get(i int) (model.Network, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i < 0 || i >= len(d.networks) {
		return model.Network{}, fmt.Errorf("%w: index %d", ErrNoSuchNetwork, i)
	}
	return d.networks[i], nil
}

// Lookup returns the first network named ssid. SSIDs are not unique, so
// later entries with the same name are only reachable by index.
func (d *Directory) Lookup(ssid string) (model.Network, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, n := range d.networks {
		if n.SSID == ssid {
			return n, nil
		}
	}
	return model.Network{}, fmt.Errorf("%w: %q", ErrNoSuchNetwork, ssid)
}

// Markers returns the networks that can be placed on a map.
func (d *Directory) Markers() []model.Network {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []model.Network
	for _, n := range d.networks {
		if n.Coordinates != nil {
			out = append(out, n)
		}
	}
	return out
}

// Add normalizes n and appends it. Security defaults to Open and strength to
// full bars when unset. Duplicate SSIDs are accepted.
func (d *Directory) Add(n model.Network) error {
	n, err := Normalize(n)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.networks = append(d.networks, n)
	return nil
}

// Normalize applies defaults to a user-supplied network and validates it.
func Normalize(n model.Network) (model.Network, error) {
	n.SSID = strings.TrimSpace(n.SSID)
	if n.SSID == "" {
		return n, ErrNoSSID
	}
	sec, err := ParseSecurity(string(n.Security))
	if err != nil {
		return n, err
	}
	n.Security = sec
	if n.Strength == 0 {
		n.Strength = MaxStrength
	}
	if n.Strength < MinStrength || n.Strength > MaxStrength {
		return n, fmt.Errorf("%w: %d", ErrBadStrength, n.Strength)
	}
	if n.Coordinates != nil {
		c := *n.Coordinates
		n.Coordinates = &c
	}
	return n, nil
}

// ParseSecurity accepts the security names case-insensitively; empty means Open.
func ParseSecurity(s string) (model.Security, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "OPEN":
		return model.SecurityOpen, nil
	case "WPA2":
		return model.SecurityWPA2, nil
	case "WPA3":
		return model.SecurityWPA3, nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadSecurity, s)
}
