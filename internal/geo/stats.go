package geo

import (
	"log/slog"
	"sort"

	"geopipe/internal/logging"
)

// Stats summarizes a feature collection: counts, a geometry-type
// histogram, the distinct property keys seen across all features, and
// the overall bounding box.
type Stats struct {
	FeatureCount  int            `json:"feature_count" msgpack:"feature_count"`
	GeometryTypes map[string]int `json:"geometry_types" msgpack:"geometry_types"`
	PropertyKeys  []string       `json:"property_keys" msgpack:"property_keys"`
	BBox          *BBox          `json:"bbox,omitempty" msgpack:"bbox,omitempty"`
}

// ComputeStats walks the collection once. Features whose bounding box
// cannot be computed are logged and skipped for the overall bbox; they
// still count toward the histogram and property keys.
func ComputeStats(c *Collection, logger *slog.Logger) *Stats {
	logger = logging.Default(logger)

	stats := &Stats{
		FeatureCount:  len(c.Features),
		GeometryTypes: make(map[string]int),
	}

	keys := make(map[string]struct{})
	box := emptyBBox()
	boxed := false

	for i, f := range c.Features {
		if f.Geometry != nil {
			stats.GeometryTypes[f.Geometry.Type]++
		}
		for k := range f.Properties {
			keys[k] = struct{}{}
		}

		fb, err := FeatureBBox(f)
		if err != nil {
			logger.Warn("skipping feature in bbox computation", "index", i, "error", err)
			continue
		}
		box.extend(fb.MinX, fb.MinY)
		box.extend(fb.MaxX, fb.MaxY)
		boxed = true
	}

	stats.PropertyKeys = make([]string, 0, len(keys))
	for k := range keys {
		stats.PropertyKeys = append(stats.PropertyKeys, k)
	}
	sort.Strings(stats.PropertyKeys)

	if boxed {
		stats.BBox = &box
	}
	return stats
}
