package parse

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	shp "github.com/jonas-p/go-shp"

	"geopipe/internal/catalog"
	"geopipe/internal/geo"
	"geopipe/internal/logging"
)

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func collect(t *testing.T, path string, format catalog.Format) *geo.Collection {
	t.Helper()
	c, err := Collect(path, format, 0, logging.Discard())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return c
}

func TestFindPayload(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  string
	}{
		{"shp beats sidecars", []string{"a.dbf", "a.shx", "a.shp", "a.prj"}, "a.shp"},
		{"geojson beats ndjson", []string{"a.ndjson", "a.geojson"}, "a.geojson"},
		{"ndjson beats csv", []string{"a.csv", "a.ndjson"}, "a.ndjson"},
		{"csv alone", []string{"readme.md", "a.csv"}, "a.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindPayload(tt.paths)
			if err != nil {
				t.Fatalf("FindPayload: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("nothing parseable", func(t *testing.T) {
		_, err := FindPayload([]string{"readme.md", "a.prj"})
		if !errors.Is(err, ErrNoPayload) {
			t.Fatalf("expected ErrNoPayload, got %v", err)
		}
	})
}

func TestGeoJSON(t *testing.T) {
	t.Run("feature_collection", func(t *testing.T) {
		path := writeFixture(t, "data.geojson", `{
			"type": "FeatureCollection",
			"features": [
				{"type":"Feature","geometry":{"type":"Point","coordinates":[-73.98,40.74]},"properties":{"name":"a"}},
				{"type":"Feature","geometry":{"type":"Point","coordinates":[-74.00,40.75]},"properties":{"name":"b"}}
			]
		}`)
		c := collect(t, path, catalog.FormatGeoJSON)
		if len(c.Features) != 2 {
			t.Fatalf("got %d features", len(c.Features))
		}
		if c.Features[0].Properties["name"] != "a" {
			t.Errorf("properties = %v", c.Features[0].Properties)
		}
	})

	t.Run("single_feature", func(t *testing.T) {
		path := writeFixture(t, "data.geojson", `{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}}`)
		c := collect(t, path, catalog.FormatGeoJSON)
		if len(c.Features) != 1 || c.Features[0].Geometry.Type != "Point" {
			t.Fatalf("features = %+v", c.Features)
		}
	})

	t.Run("bare_geometry", func(t *testing.T) {
		path := writeFixture(t, "data.geojson", `{"type":"Point","coordinates":[1,2]}`)
		c := collect(t, path, catalog.FormatGeoJSON)
		if len(c.Features) != 1 || c.Features[0].Geometry.Type != "Point" {
			t.Fatalf("features = %+v", c.Features)
		}
	})

	t.Run("features_before_type", func(t *testing.T) {
		// Members can come in any order; the decoder walks tokens and must
		// not depend on seeing "type" first.
		path := writeFixture(t, "data.geojson", `{
			"name": "reordered",
			"features": [
				{"type":"Feature","geometry":{"type":"Point","coordinates":[5,6]},"properties":{"name":"c"}}
			],
			"crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:OGC:1.3:CRS84"}},
			"type": "FeatureCollection"
		}`)
		c := collect(t, path, catalog.FormatGeoJSON)
		if len(c.Features) != 1 || c.Features[0].Properties["name"] != "c" {
			t.Fatalf("features = %+v", c.Features)
		}
	})

	t.Run("invalid_json", func(t *testing.T) {
		path := writeFixture(t, "data.geojson", `{"type": "FeatureCollection", "features": [`)
		_, err := Collect(path, catalog.FormatGeoJSON, 0, logging.Discard())
		if err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestNDJSON(t *testing.T) {
	path := writeFixture(t, "data.ndjson", `{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"id":1}}
not json at all
{"type":"NotAFeature"}

{"type":"Feature","geometry":{"type":"Point","coordinates":[3,4]},"properties":{"id":2}}
`)
	c := collect(t, path, catalog.FormatNDJSON)
	if len(c.Features) != 2 {
		t.Fatalf("got %d features, want 2 (malformed lines skipped)", len(c.Features))
	}
}

func TestCSV(t *testing.T) {
	path := writeFixture(t, "data.csv", `name,latitude,longitude,kind
Alpha,40.74,-73.98,office
Beta,bad,-74.00,cafe
Gamma,40.75,-74.00,cafe
`)
	c := collect(t, path, catalog.FormatCSV)
	if len(c.Features) != 2 {
		t.Fatalf("got %d features, want 2 (bad-coordinate row skipped)", len(c.Features))
	}

	f := c.Features[0]
	if f.Geometry.Type != "Point" {
		t.Errorf("geometry type = %q", f.Geometry.Type)
	}
	coords, ok := f.Geometry.Coordinates.([]any)
	if !ok || len(coords) != 2 {
		t.Fatalf("coordinates = %v", f.Geometry.Coordinates)
	}
	if coords[0] != -73.98 || coords[1] != 40.74 {
		t.Errorf("coordinates = %v, want [lon lat]", coords)
	}
	if f.Properties["name"] != "Alpha" || f.Properties["kind"] != "office" {
		t.Errorf("properties = %v", f.Properties)
	}

	t.Run("no_coordinate_columns", func(t *testing.T) {
		path := writeFixture(t, "data.csv", "a,b\n1,2\n")
		_, err := Collect(path, catalog.FormatCSV, 0, logging.Discard())
		if !errors.Is(err, ErrNoCoordinateColumns) {
			t.Fatalf("expected ErrNoCoordinateColumns, got %v", err)
		}
	})
}

func TestGazetteer(t *testing.T) {
	path := writeFixture(t, "gaz.txt",
		"USPS\tGEOID\tANSICODE\tNAME\tALAND\tAWATER\tALAND_SQMI\tAWATER_SQMI\tINTPTLAT\tINTPTLONG   \n"+
			"NY\t36061\t00974129\tNew York County\t58680965\t28550889\t22.657\t11.024\t40.776042\t-73.970769\n")
	c := collect(t, path, catalog.FormatGazetteerCSV)
	if len(c.Features) != 1 {
		t.Fatalf("got %d features", len(c.Features))
	}
	f := c.Features[0]
	if f.Properties["GEOID"] != "36061" || f.Properties["NAME"] != "New York County" {
		t.Errorf("properties = %v", f.Properties)
	}
	coords := f.Geometry.Coordinates.([]any)
	if coords[0] != -73.970769 || coords[1] != 40.776042 {
		t.Errorf("coordinates = %v", coords)
	}
}

func TestShapefile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "points.shp")

	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		t.Fatalf("create shapefile: %v", err)
	}
	if err := w.SetFields([]shp.Field{
		shp.StringField("NAME", 25),
		shp.NumberField("POP", 10),
	}); err != nil {
		t.Fatalf("set fields: %v", err)
	}
	points := []shp.Point{{X: -73.98, Y: 40.74}, {X: -74.00, Y: 40.75}}
	names := []string{"Alpha", "Beta"}
	pops := []int{100, 200}
	for n := range points {
		w.Write(&points[n])
		if err := w.WriteAttribute(n, 0, names[n]); err != nil {
			t.Fatalf("write attribute: %v", err)
		}
		if err := w.WriteAttribute(n, 1, pops[n]); err != nil {
			t.Fatalf("write attribute: %v", err)
		}
	}
	w.Close()

	c := collect(t, path, catalog.FormatShapefileZip)
	if len(c.Features) != 2 {
		t.Fatalf("got %d features", len(c.Features))
	}
	f := c.Features[0]
	if f.Geometry.Type != "Point" {
		t.Errorf("geometry type = %q", f.Geometry.Type)
	}
	if f.Properties["NAME"] != "Alpha" {
		t.Errorf("NAME = %v", f.Properties["NAME"])
	}
	if pop, ok := f.Properties["POP"].(float64); !ok || pop != 100 {
		t.Errorf("POP = %v", f.Properties["POP"])
	}
}

func TestConvertShapeParts(t *testing.T) {
	poly := &shp.Polygon{
		NumParts:  2,
		NumPoints: 6,
		Parts:     []int32{0, 3},
		Points: []shp.Point{
			{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 0},
			{X: 5, Y: 5}, {X: 6, Y: 5}, {X: 5, Y: 5},
		},
	}
	geomType, coords, ok := convertShape(poly)
	if !ok || geomType != "Polygon" {
		t.Fatalf("got %q, ok=%v", geomType, ok)
	}
	rings, ok := coords.([]any)
	if !ok || len(rings) != 2 {
		t.Fatalf("rings = %v", coords)
	}

	var count int
	if err := geo.WalkCoords(coords, func(x, y float64) { count++ }); err != nil {
		t.Fatalf("WalkCoords: %v", err)
	}
	if count != 6 {
		t.Errorf("walked %d positions, want 6", count)
	}
}

func TestCollectLimit(t *testing.T) {
	path := writeFixture(t, "data.ndjson", `{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}}
{"type":"Feature","geometry":{"type":"Point","coordinates":[3,4]},"properties":{}}
{"type":"Feature","geometry":{"type":"Point","coordinates":[5,6]},"properties":{}}
`)
	c, err := Collect(path, catalog.FormatNDJSON, 2, logging.Discard())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(c.Features) != 2 {
		t.Fatalf("got %d features, want limit of 2", len(c.Features))
	}
}
