package geo

import "math"

// BBox is an axis-aligned bounding box in coordinate order
// [min x, min y, max x, max y].
type BBox struct {
	MinX float64 `json:"min_x" msgpack:"min_x"`
	MinY float64 `json:"min_y" msgpack:"min_y"`
	MaxX float64 `json:"max_x" msgpack:"max_x"`
	MaxY float64 `json:"max_y" msgpack:"max_y"`
}

// emptyBBox is the identity for extend: any real coordinate replaces it.
func emptyBBox() BBox {
	return BBox{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
}

func (b *BBox) extend(x, y float64) {
	b.MinX = math.Min(b.MinX, x)
	b.MinY = math.Min(b.MinY, y)
	b.MaxX = math.Max(b.MaxX, x)
	b.MaxY = math.Max(b.MaxY, y)
}

// Intersects reports whether two boxes overlap, edges included.
func (b BBox) Intersects(o BBox) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX &&
		b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

// FeatureBBox computes the bounding box of a single feature's geometry.
func FeatureBBox(f Feature) (BBox, error) {
	box := emptyBBox()
	if f.Geometry == nil {
		return box, ErrBadCoordinates
	}
	if err := WalkCoords(f.Geometry.Coordinates, box.extend); err != nil {
		return box, err
	}
	if math.IsInf(box.MinX, 1) {
		// No coordinate positions at all (empty geometry).
		return box, ErrBadCoordinates
	}
	return box, nil
}
