package geo

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog"

	"github.com/kisy/netan/pkg/model"
)

// Fallback is used whenever a lookup fails (New York City).
var Fallback = model.Coordinates{Latitude: 40.7128, Longitude: -74.006}

var ErrNoLocation = errors.New("location unavailable")

// Locator resolves the user's position.
type Locator interface {
	Locate(ctx context.Context) (model.Coordinates, error)
}

// Resolve asks loc once. Failures are logged and replaced by Fallback; they
// are never returned to the caller.
func Resolve(ctx context.Context, loc Locator, log zerolog.Logger) model.Coordinates {
	if loc == nil {
		log.Warn().Msg("no location service configured, using fallback")
		return Fallback
	}
	c, err := loc.Locate(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("error getting location, using fallback")
		return Fallback
	}
	return c
}

// StaticLocator always answers with a configured position.
type StaticLocator struct {
	Coordinates model.Coordinates
}

func (s StaticLocator) Locate(ctx context.Context) (model.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return model.Coordinates{}, err
	}
	return s.Coordinates, nil
}

// GeoIPLocator looks an address up in a MaxMind City database.
type GeoIPLocator struct {
	DBPath string
	IP     net.IP
}

func (g GeoIPLocator) Locate(ctx context.Context) (model.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return model.Coordinates{}, err
	}
	if g.IP == nil {
		return model.Coordinates{}, fmt.Errorf("%w: no address to look up", ErrNoLocation)
	}
	db, err := geoip2.Open(g.DBPath)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("opening geoip database: %w", err)
	}
	defer db.Close()

	rec, err := db.City(g.IP)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("geoip lookup %s: %w", g.IP, err)
	}
	if rec.Location.Latitude == 0 && rec.Location.Longitude == 0 {
		return model.Coordinates{}, fmt.Errorf("%w: no position for %s", ErrNoLocation, g.IP)
	}
	return model.Coordinates{
		Latitude:  rec.Location.Latitude,
		Longitude: rec.Location.Longitude,
	}, nil
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (model.Coordinates, error)

func (f LocatorFunc) Locate(ctx context.Context) (model.Coordinates, error) {
	return f(ctx)
}
