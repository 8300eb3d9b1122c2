// Package facematch holds the face box geometry and name normalization shared
// by detection and the dataset.
package facematch

import "image"

// BBox is a face box in x, y, width, height form as reported to API clients.
type BBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// ToBBox converts a rectangle to its x, y, width, height form.
func ToBBox(r image.Rectangle) BBox {
	return BBox{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// IntersectionArea returns the overlap area of two boxes.
// Boxes that only touch along an edge do not overlap.
func IntersectionArea(a, b image.Rectangle) int {
	dx := min(a.Max.X, b.Max.X) - max(a.Min.X, b.Min.X)
	dy := min(a.Max.Y, b.Max.Y) - max(a.Min.Y, b.Min.Y)
	if dx <= 0 || dy <= 0 {
		return 0
	}
	return dx * dy
}

// OverlapOfSmaller returns the intersection area divided by the area of the smaller box.
func OverlapOfSmaller(a, b image.Rectangle) float64 {
	smaller := min(a.Dx()*a.Dy(), b.Dx()*b.Dy())
	if smaller <= 0 {
		return 0
	}
	return float64(IntersectionArea(a, b)) / float64(smaller)
}

// IsDuplicate reports whether b covers at least frac of the smaller of the two boxes.
func IsDuplicate(a, b image.Rectangle, frac float64) bool {
	inter := IntersectionArea(a, b)
	if inter == 0 {
		return false
	}
	smaller := min(a.Dx()*a.Dy(), b.Dx()*b.Dy())
	return float64(inter) >= frac*float64(smaller)
}

// AspectRatio returns width divided by height, 0 for degenerate boxes.
func AspectRatio(r image.Rectangle) float64 {
	if r.Dy() <= 0 {
		return 0
	}
	return float64(r.Dx()) / float64(r.Dy())
}

// AspectWithin reports whether the box's width/height lies in [lo, hi].
func AspectWithin(r image.Rectangle, lo, hi float64) bool {
	ratio := AspectRatio(r)
	return ratio >= lo && ratio <= hi
}

// UpperHalf returns the top half of a face box, where the eyes are searched.
func UpperHalf(r image.Rectangle) image.Rectangle {
	return image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+r.Dy()/2)
}

// Deduper keeps boxes in acceptance order and rejects later boxes that
// overlap an accepted one. The first accepted box always wins.
type Deduper struct {
	frac     float64
	accepted []image.Rectangle
}

// NewDeduper creates a Deduper with the given overlap fraction of the smaller box.
func NewDeduper(frac float64) *Deduper {
	return &Deduper{frac: frac}
}

// Accept records r unless it duplicates an already accepted box.
func (d *Deduper) Accept(r image.Rectangle) bool {
	for _, existing := range d.accepted {
		if IsDuplicate(existing, r, d.frac) {
			return false
		}
	}
	d.accepted = append(d.accepted, r)
	return true
}

// Boxes returns the accepted boxes in acceptance order.
func (d *Deduper) Boxes() []image.Rectangle {
	return d.accepted
}
