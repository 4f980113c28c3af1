// Package geo defines the canonical feature collection: the system's
// normalized representation of geospatial data, plus the bounding-box,
// statistics, filtering, and sampling operations that work on it.
//
// Geometry coordinates are kept in their decoded nested-array form
// ([]any with numeric leaves) so that points, line strings, and polygon
// rings of arbitrary nesting depth can be walked uniformly. Parsers
// produce this form directly; consumers treat it as opaque.
package geo

import (
	"errors"
	"fmt"
)

// ErrBadCoordinates is returned when a coordinate array does not bottom
// out in numeric [x, y, ...] positions.
var ErrBadCoordinates = errors.New("malformed coordinate array")

// Geometry is a GeoJSON-shaped geometry.
type Geometry struct {
	Type        string `json:"type" msgpack:"type"`
	Coordinates any    `json:"coordinates" msgpack:"coordinates"`
}

// Feature is a single geospatial feature: one geometry and its attributes.
type Feature struct {
	Type       string         `json:"type" msgpack:"type"`
	Geometry   *Geometry      `json:"geometry" msgpack:"geometry"`
	Properties map[string]any `json:"properties" msgpack:"properties"`
}

// Collection is the canonical feature collection produced by one
// ingestion run. Immutable once the pipeline has returned it.
type Collection struct {
	Type     string         `json:"type" msgpack:"type"`
	Features []Feature      `json:"features" msgpack:"features"`
	Metadata map[string]any `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
	Stats    *Stats         `json:"statistics,omitempty" msgpack:"statistics,omitempty"`
}

// NewCollection returns an empty feature collection with the standard
// GeoJSON type tag.
func NewCollection() *Collection {
	return &Collection{
		Type:     "FeatureCollection",
		Metadata: make(map[string]any),
	}
}

// NewFeature builds a feature with the standard type tag. A nil props map
// is replaced with an empty one so property walks never nil-check.
func NewFeature(geomType string, coords any, props map[string]any) Feature {
	if props == nil {
		props = make(map[string]any)
	}
	return Feature{
		Type:       "Feature",
		Geometry:   &Geometry{Type: geomType, Coordinates: coords},
		Properties: props,
	}
}

// toFloat converts the numeric types that JSON and msgpack decoding can
// produce at coordinate leaves.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// WalkCoords calls fn with (x, y) for every coordinate position in a
// nested coordinate array, recursing through rings and multi-geometries.
// Extra dimensions beyond the first two are ignored.
func WalkCoords(coords any, fn func(x, y float64)) error {
	switch c := coords.(type) {
	case []float64:
		if len(c) < 2 {
			return ErrBadCoordinates
		}
		fn(c[0], c[1])
		return nil
	case []any:
		if len(c) == 0 {
			return nil
		}
		if x, ok := toFloat(c[0]); ok {
			if len(c) < 2 {
				return ErrBadCoordinates
			}
			y, ok := toFloat(c[1])
			if !ok {
				return ErrBadCoordinates
			}
			fn(x, y)
			return nil
		}
		for _, elem := range c {
			if err := WalkCoords(elem, fn); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unexpected element %T", ErrBadCoordinates, coords)
	}
}

// MapCoords rebuilds a nested coordinate array, applying fn to every
// (x, y) position. Dimensions beyond the first two are carried through
// unchanged. The input is not mutated.
func MapCoords(coords any, fn func(x, y float64) (float64, float64)) (any, error) {
	switch c := coords.(type) {
	case []float64:
		if len(c) < 2 {
			return nil, ErrBadCoordinates
		}
		nx, ny := fn(c[0], c[1])
		out := make([]float64, len(c))
		copy(out, c)
		out[0], out[1] = nx, ny
		return out, nil
	case []any:
		if len(c) == 0 {
			return c, nil
		}
		if x, ok := toFloat(c[0]); ok {
			if len(c) < 2 {
				return nil, ErrBadCoordinates
			}
			y, ok := toFloat(c[1])
			if !ok {
				return nil, ErrBadCoordinates
			}
			nx, ny := fn(x, y)
			out := make([]any, len(c))
			copy(out, c)
			out[0], out[1] = nx, ny
			return out, nil
		}
		out := make([]any, len(c))
		for i, elem := range c {
			mapped, err := MapCoords(elem, fn)
			if err != nil {
				return nil, err
			}
			out[i] = mapped
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unexpected element %T", ErrBadCoordinates, coords)
	}
}
