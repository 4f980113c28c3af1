package pipeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"geopipe/internal/geo"
)

// Options are the per-request knobs. Passed by value; the pipeline never
// mutates them.
type Options struct {
	// Params fill the descriptor's URL template (e.g. state=36).
	Params map[string]string
	// ForceRefresh bypasses the cache read, never the write.
	ForceRefresh bool
	// TargetCRS reprojects the result when it differs from the source CRS.
	TargetCRS string
	// BBox keeps only features whose bounding box overlaps it.
	BBox *geo.BBox
	// PropertyFilters are per-key predicates (exact, contains:, wildcard).
	PropertyFilters map[string]string
	// SampleLimit down-samples the result to at most this many features.
	SampleLimit int
}

// cacheParams folds every result-shaping option into one canonical string
// map. Anything that changes the returned payload must appear here, or
// two differing requests would collide on one cache key. ForceRefresh is
// deliberately absent: it changes freshness, not content.
func (o Options) cacheParams() map[string]string {
	out := make(map[string]string, len(o.Params)+len(o.PropertyFilters)+3)
	for k, v := range o.Params {
		out["p."+k] = v
	}
	for k, v := range o.PropertyFilters {
		out["f."+k] = v
	}
	if o.TargetCRS != "" {
		out["crs"] = o.TargetCRS
	}
	if o.BBox != nil {
		out["bbox"] = fmt.Sprintf("%s,%s,%s,%s",
			trimFloat(o.BBox.MinX), trimFloat(o.BBox.MinY),
			trimFloat(o.BBox.MaxX), trimFloat(o.BBox.MaxY))
	}
	if o.SampleLimit > 0 {
		out["sample"] = strconv.Itoa(o.SampleLimit)
	}
	return out
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// describe renders the options for log lines, sorted for stable output.
func (o Options) describe() string {
	params := o.cacheParams()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, " ")
}
