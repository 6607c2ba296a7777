// Package geometry provides bounding-box arithmetic and coordinate-space
// conversion between PDF page space (points, bottom-left origin) and the
// output document space (EMUs, top-left origin).
//
// CRITICAL: PDF and the output document use different coordinate systems.
// PDF has its origin at the bottom-left with y increasing upward; the output
// document has its origin at the top-left with y increasing downward. All
// y-axis flips happen in this package and nowhere else.
package geometry

import "math"

// EMUsPerInch is the number of English Metric Units per inch, the fixed-point
// linear unit used by the output document format for positioning.
const EMUsPerInch = 914400

// PointsPerInch is the number of PDF points per inch.
const PointsPerInch = 72

// EMUsPerPoint is the linear scale factor from PDF points to EMUs.
const EMUsPerPoint = EMUsPerInch / PointsPerInch

// Rect is an axis-aligned bounding box. The interpretation of the coordinates
// (page space vs output space) is up to the caller; a well-formed Rect always
// has X0 < X1 and Y0 < Y1.
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// NewRect builds a Rect from any two corner points, normalizing the corner
// order so the result is well-formed.
func NewRect(x0, y0, x1, y1 float64) Rect {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

// FromXYWH builds a Rect from origin plus width/height.
func FromXYWH(x, y, w, h float64) Rect {
	return NewRect(x, y, x+w, y+h)
}

// Width returns the horizontal extent of the box.
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// Height returns the vertical extent of the box.
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Area returns the area of the box; degenerate boxes have zero area.
func (r Rect) Area() float64 {
	if r.X1 <= r.X0 || r.Y1 <= r.Y0 {
		return 0
	}
	return (r.X1 - r.X0) * (r.Y1 - r.Y0)
}

// Center returns the center point of the box.
func (r Rect) Center() (float64, float64) {
	return (r.X0 + r.X1) / 2, (r.Y0 + r.Y1) / 2
}

// IsValid reports whether the box has positive width and height.
func (r Rect) IsValid() bool {
	return r.X1 > r.X0 && r.Y1 > r.Y0
}

// ContainsPoint reports whether the point (x, y) lies inside the box,
// borders included.
func (r Rect) ContainsPoint(x, y float64) bool {
	return x >= r.X0 && x <= r.X1 && y >= r.Y0 && y <= r.Y1
}

// Contains reports whether other lies entirely inside r.
func (r Rect) Contains(other Rect) bool {
	return other.X0 >= r.X0 && other.Y0 >= r.Y0 &&
		other.X1 <= r.X1 && other.Y1 <= r.Y1
}

// Intersect returns the intersection of two boxes. The second return value
// is false when the boxes do not overlap.
func (r Rect) Intersect(other Rect) (Rect, bool) {
	x0 := math.Max(r.X0, other.X0)
	y0 := math.Max(r.Y0, other.Y0)
	x1 := math.Min(r.X1, other.X1)
	y1 := math.Min(r.Y1, other.Y1)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}, false
	}
	return Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}, true
}

// Union returns the smallest box containing both boxes.
func (r Rect) Union(other Rect) Rect {
	return Rect{
		X0: math.Min(r.X0, other.X0),
		Y0: math.Min(r.Y0, other.Y0),
		X1: math.Max(r.X1, other.X1),
		Y1: math.Max(r.Y1, other.Y1),
	}
}

// OverlapRatio returns intersection area divided by the smaller box's area.
// Hidden "ghost" text layers sit almost exactly on top of visible text, so
// this ratio approaches 1.0 for duplicates even when the two boxes differ
// slightly in size. Returns 0 for non-overlapping or degenerate boxes.
func (r Rect) OverlapRatio(other Rect) float64 {
	inter, ok := r.Intersect(other)
	if !ok {
		return 0
	}
	smaller := math.Min(r.Area(), other.Area())
	if smaller <= 0 {
		return 0
	}
	return inter.Area() / smaller
}

// IoU returns the intersection-over-union ratio of two boxes.
func (r Rect) IoU(other Rect) float64 {
	inter, ok := r.Intersect(other)
	if !ok {
		return 0
	}
	union := r.Area() + other.Area() - inter.Area()
	if union <= 0 {
		return 0
	}
	return inter.Area() / union
}

// Clip restricts the box to the given bounds. The second return value is
// false when nothing of the box remains inside the bounds.
func (r Rect) Clip(bounds Rect) (Rect, bool) {
	return r.Intersect(bounds)
}

// Translate returns the box shifted by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{X0: r.X0 + dx, Y0: r.Y0 + dy, X1: r.X1 + dx, Y1: r.Y1 + dy}
}

// Scale returns the box with both axes scaled independently about the origin.
func (r Rect) Scale(sx, sy float64) Rect {
	return Rect{X0: r.X0 * sx, Y0: r.Y0 * sy, X1: r.X1 * sx, Y1: r.Y1 * sy}
}

// PageToOutput converts a box from PDF page space (points, bottom-left
// origin) to output document space (EMUs, top-left origin):
//
//	output_y = page_height - (pdf_y + pdf_height)
//
// with linear units scaled by EMUsPerPoint.
func PageToOutput(r Rect, pageHeight float64) Rect {
	topPts := pageHeight - r.Y1
	return Rect{
		X0: r.X0 * EMUsPerPoint,
		Y0: topPts * EMUsPerPoint,
		X1: r.X1 * EMUsPerPoint,
		Y1: (topPts + r.Height()) * EMUsPerPoint,
	}
}

// OutputToPage is the exact inverse of PageToOutput, used to verify
// round-trip fidelity.
func OutputToPage(r Rect, pageHeight float64) Rect {
	x0 := r.X0 / EMUsPerPoint
	x1 := r.X1 / EMUsPerPoint
	topPts := r.Y0 / EMUsPerPoint
	h := (r.Y1 - r.Y0) / EMUsPerPoint
	y1 := pageHeight - topPts
	return Rect{X0: x0, Y0: y1 - h, X1: x1, Y1: y1}
}

// PixelsToOutput converts a box in rendered-image pixel space (top-left
// origin, as reported by the vision model) to output document space by
// scaling against the rendered image and target slide dimensions.
func PixelsToOutput(r Rect, imageWidth, imageHeight int, slideWidthEMU, slideHeightEMU float64) Rect {
	sx := slideWidthEMU / float64(imageWidth)
	sy := slideHeightEMU / float64(imageHeight)
	return r.Scale(sx, sy)
}

// PixelsToPage converts a box in rendered-image pixel space (top-left origin)
// to PDF page space (points, bottom-left origin). The render DPI fixes the
// pixel-to-point scale; the y axis is flipped.
func PixelsToPage(r Rect, dpi int, pageHeight float64) Rect {
	scale := PointsPerInch / float64(dpi)
	x0 := r.X0 * scale
	x1 := r.X1 * scale
	topPts := r.Y0 * scale
	h := r.Height() * scale
	y1 := pageHeight - topPts
	return Rect{X0: x0, Y0: y1 - h, X1: x1, Y1: y1}
}

// PageToPixels converts a box in PDF page space to rendered-image pixel
// space at the given DPI. Inverse of PixelsToPage.
func PageToPixels(r Rect, dpi int, pageHeight float64) Rect {
	scale := float64(dpi) / PointsPerInch
	top := pageHeight - r.Y1
	return Rect{
		X0: r.X0 * scale,
		Y0: top * scale,
		X1: r.X1 * scale,
		Y1: (top + r.Height()) * scale,
	}
}

// ScaleBetweenImages rescales a pixel box from one rendered image size to
// another, used when the vision model analyzes at a different DPI than the
// background export DPI.
func ScaleBetweenImages(r Rect, fromW, fromH, toW, toH int) Rect {
	return r.Scale(float64(toW)/float64(fromW), float64(toH)/float64(fromH))
}

// PointsToEMU converts a linear measure in PDF points to EMUs.
func PointsToEMU(pts float64) float64 { return pts * EMUsPerPoint }

// EMUToPoints converts a linear measure in EMUs to PDF points.
func EMUToPoints(emu float64) float64 { return emu / EMUsPerPoint }

// InchesToEMU converts inches to EMUs.
func InchesToEMU(in float64) float64 { return in * EMUsPerInch }
