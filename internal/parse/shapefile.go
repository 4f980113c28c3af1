package parse

import (
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"strings"

	shp "github.com/jonas-p/go-shp"

	"geopipe/internal/geo"
)

func shapefileFeatures(path string, logger *slog.Logger) iter.Seq2[geo.Feature, error] {
	return func(yield func(geo.Feature, error) bool) {
		r, err := shp.Open(path)
		if err != nil {
			yield(geo.Feature{}, fmt.Errorf("open shapefile: %w", err))
			return
		}
		defer func() { _ = r.Close() }()

		fields := r.Fields()
		for r.Next() {
			row, shape := r.Shape()

			geomType, coords, ok := convertShape(shape)
			if !ok {
				logger.Warn("skipping unsupported shape", "row", row, "shape", fmt.Sprintf("%T", shape))
				continue
			}

			props := make(map[string]any, len(fields))
			for i, field := range fields {
				props[field.String()] = attributeValue(field, r.ReadAttribute(row, i))
			}

			if !yield(geo.NewFeature(geomType, coords, props), nil) {
				return
			}
		}
		if err := r.Err(); err != nil {
			yield(geo.Feature{}, fmt.Errorf("read shapefile: %w", err))
		}
	}
}

// convertShape maps a shapefile geometry onto its GeoJSON equivalent.
// Z and M measures are dropped; only the XY plane survives ingestion.
func convertShape(shape shp.Shape) (string, any, bool) {
	switch s := shape.(type) {
	case *shp.Point:
		return "Point", position(s.X, s.Y), true
	case *shp.PointZ:
		return "Point", position(s.X, s.Y), true
	case *shp.PointM:
		return "Point", position(s.X, s.Y), true
	case *shp.MultiPoint:
		return "MultiPoint", positions(s.Points), true
	case *shp.PolyLine:
		return lineCoords(s.Parts, s.Points)
	case *shp.PolyLineZ:
		return lineCoords(s.Parts, s.Points)
	case *shp.Polygon:
		return "Polygon", splitParts(s.Parts, s.Points), true
	case *shp.PolygonZ:
		return "Polygon", splitParts(s.Parts, s.Points), true
	default:
		return "", nil, false
	}
}

func lineCoords(parts []int32, points []shp.Point) (string, any, bool) {
	rings := splitParts(parts, points)
	if len(rings) == 1 {
		return "LineString", rings[0], true
	}
	return "MultiLineString", rings, true
}

// splitParts slices the flat point array into its per-part segments.
func splitParts(parts []int32, points []shp.Point) []any {
	if len(parts) == 0 {
		return []any{positions(points)}
	}
	out := make([]any, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || int(end) > len(points) || start > end {
			continue
		}
		out = append(out, positions(points[start:end]))
	}
	return out
}

func position(x, y float64) []any {
	return []any{x, y}
}

func positions(points []shp.Point) []any {
	out := make([]any, len(points))
	for i, p := range points {
		out[i] = position(p.X, p.Y)
	}
	return out
}

// attributeValue converts a DBF attribute string per its declared field
// type. Unparseable numerics fall back to the raw string.
func attributeValue(field shp.Field, raw string) any {
	val := strings.TrimSpace(raw)
	switch field.Fieldtype {
	case 'N', 'F':
		if val == "" {
			return nil
		}
		if n, err := strconv.ParseFloat(val, 64); err == nil {
			return n
		}
		return val
	case 'L':
		switch val {
		case "T", "t", "Y", "y":
			return true
		case "F", "f", "N", "n":
			return false
		default:
			return nil
		}
	default:
		return val
	}
}
