package resolver

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"slide-reconstructor/internal/config"
)

// WatermarkDetector locates a watermark region on a rendered page image.
// Detect returns the pixel rectangle to remove and whether a watermark is
// present at all.
type WatermarkDetector interface {
	Detect(img image.Image) (image.Rectangle, bool)
}

// FixedRegionDetector detects the known fixed-position export watermark by
// comparing the configured corner region against its immediate surroundings.
// Flattened exports stamp the mark at the same relative position on every
// page, so no content search is needed, only a presence check.
type FixedRegionDetector struct {
	region  config.WatermarkRegion
	padding int
}

// NewFixedRegionDetector creates a detector for the configured region.
func NewFixedRegionDetector(cfg *config.Config) *FixedRegionDetector {
	return &FixedRegionDetector{
		region:  cfg.WatermarkRegion,
		padding: cfg.WatermarkPaddingPx,
	}
}

// Detect locates the watermark region on the image. Presence is decided by
// comparing the region's mean luminance against a ring just outside it: a
// stamped mark stands out from its local background, an unstamped corner
// does not.
func (d *FixedRegionDetector) Detect(img image.Image) (image.Rectangle, bool) {
	bounds := img.Bounds()
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())

	region := image.Rect(
		bounds.Min.X+int(d.region.RelativeLeft*w),
		bounds.Min.Y+int(d.region.RelativeTop*h),
		bounds.Min.X+int((d.region.RelativeLeft+d.region.RelativeWidth)*w),
		bounds.Min.Y+int((d.region.RelativeTop+d.region.RelativeHeight)*h),
	).Intersect(bounds)
	if region.Empty() {
		return image.Rectangle{}, false
	}

	padded := region.Inset(-d.padding).Intersect(bounds)

	inner := meanLuminance(img, region)
	ring := ringLuminance(img, region, padded)

	// Anti-aliased watermark glyphs shift the region's mean noticeably
	// against a locally uniform slide corner.
	if math.Abs(inner-ring) < 0.02 {
		return image.Rectangle{}, false
	}
	return padded, true
}

// Inpaint removes the given region from the image by horizontal interpolation
// between the colors just outside its left and right edges. The fill is
// deterministic and strictly local; no content is synthesized.
func Inpaint(img image.Image, region image.Rectangle) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)

	region = region.Intersect(bounds)
	if region.Empty() {
		return out
	}

	for y := region.Min.Y; y < region.Max.Y; y++ {
		left := sampleOutside(img, region.Min.X-1, y, bounds)
		right := sampleOutside(img, region.Max.X, y, bounds)
		width := region.Max.X - region.Min.X
		for x := region.Min.X; x < region.Max.X; x++ {
			t := float64(x-region.Min.X+1) / float64(width+1)
			out.Set(x, y, lerpColor(left, right, t))
		}
	}
	return out
}

// sampleOutside reads the pixel at (x, y) clamped into bounds.
func sampleOutside(img image.Image, x, y int, bounds image.Rectangle) color.Color {
	if x < bounds.Min.X {
		x = bounds.Min.X
	}
	if x >= bounds.Max.X {
		x = bounds.Max.X - 1
	}
	if y < bounds.Min.Y {
		y = bounds.Min.Y
	}
	if y >= bounds.Max.Y {
		y = bounds.Max.Y - 1
	}
	return img.At(x, y)
}

func lerpColor(a, b color.Color, t float64) color.Color {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	lerp := func(x, y uint32) uint8 {
		return uint8((float64(x)*(1-t) + float64(y)*t) / 257)
	}
	return color.RGBA{lerp(ar, br), lerp(ag, bg), lerp(ab, bb), lerp(aa, ba)}
}

// meanLuminance returns the mean relative luminance of the region, in [0,1].
func meanLuminance(img image.Image, region image.Rectangle) float64 {
	var sum float64
	var count int
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			sum += pixelLuminance(img.At(x, y))
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// ringLuminance returns the mean luminance of outer minus inner.
func ringLuminance(img image.Image, inner, outer image.Rectangle) float64 {
	var sum float64
	var count int
	for y := outer.Min.Y; y < outer.Max.Y; y++ {
		for x := outer.Min.X; x < outer.Max.X; x++ {
			if image.Pt(x, y).In(inner) {
				continue
			}
			sum += pixelLuminance(img.At(x, y))
			count++
		}
	}
	if count == 0 {
		return meanLuminance(img, outer)
	}
	return sum / float64(count)
}

func pixelLuminance(c color.Color) float64 {
	r, g, b, _ := c.RGBA()
	return (0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(b)) / 65535.0
}
