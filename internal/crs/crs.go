// Package crs reprojects canonical feature collections between named
// coordinate reference systems.
//
// The supported set is deliberately small: the systems the catalog's
// providers actually publish in. WGS84 (EPSG:4326) and NAD83
// (EPSG:4269) are treated as coincident at dataset precision, and both
// convert to and from spherical Web Mercator (EPSG:3857). Anything else
// is an unsupported pair, not a silent pass-through.
package crs

import (
	"fmt"
	"math"
	"strings"

	"geopipe/internal/geo"
)

const (
	WGS84       = "EPSG:4326"
	NAD83       = "EPSG:4269"
	WebMercator = "EPSG:3857"
)

// earthRadius is the WGS84 spherical radius used by Web Mercator, in meters.
const earthRadius = 6378137.0

// TransformError reports an unsupported CRS pair.
type TransformError struct {
	From string
	To   string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("unsupported coordinate transform %s -> %s", e.From, e.To)
}

// Normalize canonicalizes a CRS identifier: "4326", "epsg:4326", and
// "EPSG:4326" all normalize to "EPSG:4326". Empty stays empty.
func Normalize(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "" {
		return ""
	}
	if !strings.Contains(id, ":") {
		return "EPSG:" + id
	}
	return id
}

type pointFn func(x, y float64) (float64, float64)

func identity(x, y float64) (float64, float64) { return x, y }

func lonLatToMercator(lon, lat float64) (float64, float64) {
	// Clamp latitude to the Web Mercator domain.
	lat = math.Max(-85.06, math.Min(85.06, lat))
	x := earthRadius * lon * math.Pi / 180
	y := earthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

func mercatorToLonLat(x, y float64) (float64, float64) {
	lon := x / earthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}

// transforms maps normalized (from, to) pairs to point functions.
// Same-CRS pairs are handled before lookup.
var transforms = map[[2]string]pointFn{
	{WGS84, WebMercator}: lonLatToMercator,
	{NAD83, WebMercator}: lonLatToMercator,
	{WebMercator, WGS84}: mercatorToLonLat,
	{WebMercator, NAD83}: mercatorToLonLat,
	{WGS84, NAD83}:       identity,
	{NAD83, WGS84}:       identity,
}

// Supported reports whether the pair can be transformed.
func Supported(from, to string) bool {
	from, to = Normalize(from), Normalize(to)
	if from == to {
		return true
	}
	_, ok := transforms[[2]string{from, to}]
	return ok
}

// Transform returns the point function for a CRS pair, or a
// *TransformError if the pair is unsupported.
func Transform(from, to string) (pointFn, error) {
	nf, nt := Normalize(from), Normalize(to)
	if nf == nt {
		return identity, nil
	}
	fn, ok := transforms[[2]string{nf, nt}]
	if !ok {
		return nil, &TransformError{From: nf, To: nt}
	}
	return fn, nil
}

// Reproject applies the (from, to) transform to every coordinate
// position of every feature, rebuilding geometries in place on the
// collection. Same-CRS is a no-op fast path.
func Reproject(c *geo.Collection, from, to string) error {
	nf, nt := Normalize(from), Normalize(to)
	if nf == nt {
		return nil
	}
	fn, err := Transform(nf, nt)
	if err != nil {
		return err
	}
	for i := range c.Features {
		g := c.Features[i].Geometry
		if g == nil {
			continue
		}
		mapped, err := geo.MapCoords(g.Coordinates, fn)
		if err != nil {
			return fmt.Errorf("reproject feature %d: %w", i, err)
		}
		g.Coordinates = mapped
	}
	return nil
}
