package model

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// BBox is an axis-aligned rectangle in longitude/latitude space.
// X is longitude and Y is latitude.
type BBox struct {
	bounds *geom.Bounds
}

// NewBBox builds a bounding box from its corners.
func NewBBox(minLng, minLat, maxLng, maxLat float64) BBox {
	return BBox{bounds: geom.NewBounds(geom.XY).Set(minLng, minLat, maxLng, maxLat)}
}

// ParseBBox parses "minLng,minLat,maxLng,maxLat". Exactly four finite
// numbers are required.
func ParseBBox(raw string) (BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return BBox{}, eris.Errorf("bbox: expected 4 values, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || !isFinite(f) {
			return BBox{}, eris.Errorf("bbox: value %d (%q) is not a number", i+1, strings.TrimSpace(p))
		}
		v[i] = f
	}
	return NewBBox(v[0], v[1], v[2], v[3]), nil
}

// MinLng returns the western edge.
func (b BBox) MinLng() float64 { return b.bounds.Min(0) }

// MinLat returns the southern edge.
func (b BBox) MinLat() float64 { return b.bounds.Min(1) }

// MaxLng returns the eastern edge.
func (b BBox) MaxLng() float64 { return b.bounds.Max(0) }

// MaxLat returns the northern edge.
func (b BBox) MaxLat() float64 { return b.bounds.Max(1) }

// IsZero reports whether the box was never initialized.
func (b BBox) IsZero() bool { return b.bounds == nil }

// Contains reports whether the point lies inside the box, edges included.
func (b BBox) Contains(lat, lng float64) bool {
	if b.bounds == nil {
		return false
	}
	return b.bounds.OverlapsPoint(geom.XY, geom.Coord{lng, lat})
}

// String renders the box in query-parameter order, shortest exact form per value.
func (b BBox) String() string {
	vals := []float64{b.MinLng(), b.MinLat(), b.MaxLng(), b.MaxLat()}
	out := make([]string, len(vals))
	for i, f := range vals {
		out[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(out, ",")
}
