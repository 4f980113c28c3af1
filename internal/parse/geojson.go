package parse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"iter"
	"os"

	"geopipe/internal/geo"
)

var bareGeometryTypes = map[string]bool{
	"Point": true, "MultiPoint": true,
	"LineString": true, "MultiLineString": true,
	"Polygon": true, "MultiPolygon": true,
	"GeometryCollection": true,
}

// geojsonFeatures walks the top-level object with a json.Decoder so a
// FeatureCollection streams one feature at a time instead of holding the
// whole file in memory. Lone Features and bare geometries still work; those
// documents are small enough that buffering their fields is fine.
func geojsonFeatures(path string) iter.Seq2[geo.Feature, error] {
	return func(yield func(geo.Feature, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(geo.Feature{}, fmt.Errorf("open geojson: %w", err))
			return
		}
		defer f.Close()

		dec := json.NewDecoder(bufio.NewReaderSize(f, 64<<10))
		tok, err := dec.Token()
		if err != nil {
			yield(geo.Feature{}, fmt.Errorf("decode geojson: %w", err))
			return
		}
		if d, ok := tok.(json.Delim); !ok || d != '{' {
			yield(geo.Feature{}, fmt.Errorf("decode geojson: document is not an object"))
			return
		}

		var (
			docType     string
			geom        *geo.Geometry
			props       map[string]any
			coords      any
			sawFeatures bool
		)
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				yield(geo.Feature{}, fmt.Errorf("decode geojson: %w", err))
				return
			}
			key, _ := keyTok.(string)
			switch key {
			case "features":
				sawFeatures = true
				tok, err := dec.Token()
				if err != nil {
					yield(geo.Feature{}, fmt.Errorf("decode geojson: %w", err))
					return
				}
				if d, ok := tok.(json.Delim); !ok || d != '[' {
					yield(geo.Feature{}, fmt.Errorf("decode geojson: features is not an array"))
					return
				}
				for dec.More() {
					var feat geo.Feature
					if err := dec.Decode(&feat); err != nil {
						yield(geo.Feature{}, fmt.Errorf("decode geojson feature: %w", err))
						return
					}
					if !yield(feat, nil) {
						return
					}
				}
				if _, err := dec.Token(); err != nil {
					yield(geo.Feature{}, fmt.Errorf("decode geojson: %w", err))
					return
				}
			case "type":
				tok, err := dec.Token()
				if err != nil {
					yield(geo.Feature{}, fmt.Errorf("decode geojson: %w", err))
					return
				}
				docType, _ = tok.(string)
			case "geometry":
				if err := dec.Decode(&geom); err != nil {
					yield(geo.Feature{}, fmt.Errorf("decode geojson geometry: %w", err))
					return
				}
			case "properties":
				if err := dec.Decode(&props); err != nil {
					yield(geo.Feature{}, fmt.Errorf("decode geojson properties: %w", err))
					return
				}
			case "coordinates":
				if err := dec.Decode(&coords); err != nil {
					yield(geo.Feature{}, fmt.Errorf("decode geojson coordinates: %w", err))
					return
				}
			default:
				var skip json.RawMessage
				if err := dec.Decode(&skip); err != nil {
					yield(geo.Feature{}, fmt.Errorf("decode geojson: %w", err))
					return
				}
			}
		}

		switch {
		case docType == "FeatureCollection" || sawFeatures:
			// Features were yielded as they streamed past.
		case docType == "Feature":
			yield(geo.Feature{Type: "Feature", Geometry: geom, Properties: props}, nil)
		case bareGeometryTypes[docType]:
			yield(geo.NewFeature(docType, coords, nil), nil)
		default:
			yield(geo.Feature{}, fmt.Errorf("decode geojson: unexpected type %q", docType))
		}
	}
}
