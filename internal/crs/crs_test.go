package crs

import (
	"errors"
	"math"
	"testing"

	"geopipe/internal/geo"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"4326":      "EPSG:4326",
		"epsg:4326": "EPSG:4326",
		"EPSG:3857": "EPSG:3857",
		" 4269 ":    "EPSG:4269",
		"":          "",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTransform_RoundTrip(t *testing.T) {
	fwd, err := Transform(WGS84, WebMercator)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	back, err := Transform(WebMercator, WGS84)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	lon, lat := -73.9857, 40.7484
	x, y := fwd(lon, lat)
	if math.Abs(x- -8236050) > 200 || math.Abs(y-4975610) > 200 {
		t.Errorf("mercator = (%v, %v)", x, y)
	}

	glon, glat := back(x, y)
	if math.Abs(glon-lon) > 1e-9 || math.Abs(glat-lat) > 1e-9 {
		t.Errorf("round trip = (%v, %v), want (%v, %v)", glon, glat, lon, lat)
	}
}

func TestTransform_SameCRS(t *testing.T) {
	fn, err := Transform("4326", "EPSG:4326")
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	x, y := fn(7, 8)
	if x != 7 || y != 8 {
		t.Errorf("identity transform changed coordinates: (%v, %v)", x, y)
	}
}

func TestTransform_Unsupported(t *testing.T) {
	_, err := Transform("EPSG:4326", "EPSG:2263")
	if err == nil {
		t.Fatal("expected error for unsupported pair")
	}
	var te *TransformError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransformError, got %T", err)
	}
	if te.To != "EPSG:2263" {
		t.Errorf("To = %q", te.To)
	}
}

func TestSupported(t *testing.T) {
	if !Supported("4269", "3857") {
		t.Error("NAD83 -> WebMercator should be supported")
	}
	if !Supported("EPSG:9999", "epsg:9999") {
		t.Error("same-CRS should always be supported")
	}
	if Supported("EPSG:4326", "EPSG:27700") {
		t.Error("unknown pair should not be supported")
	}
}

func TestReproject(t *testing.T) {
	c := geo.NewCollection()
	c.Features = []geo.Feature{
		geo.NewFeature("Point", []float64{0, 0}, nil),
		geo.NewFeature("LineString", []any{
			[]float64{-73.9857, 40.7484},
			[]float64{-74.0, 40.75},
		}, nil),
	}

	if err := Reproject(c, "4326", "3857"); err != nil {
		t.Fatalf("Reproject: %v", err)
	}

	origin := c.Features[0].Geometry.Coordinates.([]float64)
	if origin[0] != 0 || origin[1] != 0 {
		t.Errorf("origin = %v", origin)
	}
	line := c.Features[1].Geometry.Coordinates.([]any)
	first := line[0].([]float64)
	if first[0] >= 0 {
		t.Errorf("expected negative mercator x, got %v", first[0])
	}
}

func TestReproject_NoOpSameCRS(t *testing.T) {
	c := geo.NewCollection()
	c.Features = []geo.Feature{
		// Intentionally broken coordinates: the fast path must not touch them.
		{Type: "Feature", Geometry: &geo.Geometry{Type: "Point", Coordinates: "untouched"}},
	}
	if err := Reproject(c, "EPSG:4326", "4326"); err != nil {
		t.Fatalf("Reproject: %v", err)
	}
	if c.Features[0].Geometry.Coordinates != "untouched" {
		t.Error("same-CRS reprojection should be a no-op")
	}
}
