// Package resolver turns an arbitrated page layout into the final layout
// record: boxes converted to output space, the background and graphics
// cropped from the page render, watermarks removed, text readability
// secured, and z-order assigned (background below graphics below text).
package resolver

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"

	"slide-reconstructor/internal/arbiter"
	"slide-reconstructor/internal/config"
	"slide-reconstructor/internal/geometry"
	"slide-reconstructor/internal/logger"
	"slide-reconstructor/internal/slide"
)

// Z-order layers of a resolved slide.
const (
	zBackground = 0
	zGraphic    = 1
	zText       = 2
)

// Font size bounds for resolved text runs, in points.
const (
	minRunFontSize = 8.0
	maxRunFontSize = 144.0
	// Extracted sizes shrink slightly so reflowed text does not overflow
	// the box it was measured in.
	fontShrinkFactor = 0.95
)

// Backing fills used when text would not read against the background,
// 0xAARGGBB with partial opacity.
const (
	lightFill uint32 = 0xB3FFFFFF
	darkFill  uint32 = 0xB3202020
)

// Resolver produces the final layout record for a page.
type Resolver struct {
	cfg      *config.Config
	detector WatermarkDetector
}

// NewResolver creates a Resolver using the fixed-region watermark detector.
func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{cfg: cfg, detector: NewFixedRegionDetector(cfg)}
}

// NewResolverWithDetector creates a Resolver with a custom watermark detector.
func NewResolverWithDetector(cfg *config.Config, detector WatermarkDetector) *Resolver {
	return &Resolver{cfg: cfg, detector: detector}
}

// Resolve converts the arbitrated page-space layout into output space.
// render is the page raster at the analysis DPI and may be nil, in which
// case the record carries text only. Every returned box lies within the
// slide bounds; boxes falling entirely outside are dropped with a warning.
func (r *Resolver) Resolve(geom slide.PageGeometry, res arbiter.Result, render image.Image) (*slide.LayoutRecord, []slide.Warning, error) {
	slideW := geometry.InchesToEMU(r.cfg.SlideWidthInches)
	slideH := geometry.InchesToEMU(r.cfg.SlideHeightInches)
	slideBounds := geometry.Rect{X1: slideW, Y1: slideH}

	record := &slide.LayoutRecord{
		PageIndex:      geom.PageIndex,
		SlideWidthEMU:  slideW,
		SlideHeightEMU: slideH,
	}
	var warnings []slide.Warning

	if render != nil {
		if region, found := r.detector.Detect(render); found {
			logger.Debug("watermark removed",
				logger.Int("page", geom.PageIndex),
				logger.String("region", region.String()))
			render = Inpaint(render, region)
		}
	}

	if res.Background != nil && render != nil {
		bg, err := r.resolveBackground(geom, res.Background, render, slideBounds)
		if err != nil {
			return nil, nil, err
		}
		record.Background = bg
	}

	if render == nil && len(res.Graphics) > 0 {
		warnings = append(warnings, slide.Warning{
			Code:    slide.WarnRenderFailed,
			Message: fmt.Sprintf("no page render available, dropped %d graphic regions", len(res.Graphics)),
		})
	}
	if render != nil {
		for i, gc := range res.Graphics {
			outBox, ok := toSlide(gc.BBox, geom, slideW, slideH).Clip(slideBounds)
			if !ok {
				warnings = append(warnings, slide.Warning{
					Code:    slide.WarnOutOfBounds,
					Message: fmt.Sprintf("graphic %d fell outside slide bounds", i),
				})
				continue
			}
			data, err := r.cropToExport(render, geom, gc.BBox)
			if err != nil {
				return nil, nil, err
			}
			record.Graphics = append(record.Graphics, slide.Graphic{
				BBox:        outBox,
				ZOrder:      zGraphic,
				ImageData:   data,
				Description: gc.Description,
			})
		}
	}

	for _, b := range res.Blocks {
		outBox, ok := toSlide(b.BBox, geom, slideW, slideH).Clip(slideBounds)
		if !ok {
			warnings = append(warnings, slide.Warning{
				Code:    slide.WarnOutOfBounds,
				Message: fmt.Sprintf("text block %s fell outside slide bounds", b.ID),
			})
			continue
		}

		box := slide.TextBox{
			BBox:   outBox,
			Role:   b.Role,
			ZOrder: zText,
		}
		for _, span := range b.Spans {
			box.Runs = append(box.Runs, slide.TextRun{
				Text:     span.Content,
				FontName: span.Style.FontName,
				SizePt:   runFontSize(span, b.Role),
				Bold:     span.Style.Bold,
				Italic:   span.Style.Italic,
				Color:    span.Style.Color,
			})
		}
		box.Fill = r.backingFill(render, geom, b)
		record.TextBoxes = append(record.TextBoxes, box)
	}

	logger.Debug("resolved page layout",
		logger.Int("page", geom.PageIndex),
		logger.Int("textBoxes", len(record.TextBoxes)),
		logger.Int("graphics", len(record.Graphics)),
		logger.Bool("background", record.Background != nil))

	return record, warnings, nil
}

// resolveBackground crops the background region from the render and rescales
// it to the export DPI.
func (r *Resolver) resolveBackground(geom slide.PageGeometry, choice *arbiter.BackgroundChoice, render image.Image, slideBounds geometry.Rect) (*slide.Background, error) {
	outBox, ok := toSlide(choice.BBox, geom, slideBounds.X1, slideBounds.Y1).Clip(slideBounds)
	if !ok {
		return nil, nil
	}
	data, err := r.cropToExport(render, geom, choice.BBox)
	if err != nil {
		return nil, err
	}
	return &slide.Background{
		BBox:      outBox,
		ImageData: data,
	}, nil
}

// cropToExport cuts the page-space region out of the render and rescales it
// to the export DPI with Catmull-Rom resampling.
func (r *Resolver) cropToExport(render image.Image, geom slide.PageGeometry, pageBox geometry.Rect) ([]byte, error) {
	px := pageBoxToRenderPixels(pageBox, geom, render.Bounds())
	if px.Empty() {
		return nil, slide.NewErrorWithPage(slide.ErrRenderFailed,
			"crop region is empty", geom.PageIndex, nil)
	}

	targetW := int(math.Round(pageBox.Width() / geometry.PointsPerInch * float64(r.cfg.ExportDPI)))
	targetH := int(math.Round(pageBox.Height() / geometry.PointsPerInch * float64(r.cfg.ExportDPI)))
	if targetW < 1 {
		targetW = 1
	}
	if targetH < 1 {
		targetH = 1
	}

	out := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	xdraw.CatmullRom.Scale(out, out.Bounds(), render, px, xdraw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, slide.NewErrorWithPage(slide.ErrRenderFailed,
			"failed to encode cropped image", geom.PageIndex, err)
	}
	return buf.Bytes(), nil
}

// backingFill decides whether a text block needs a backing rectangle to stay
// readable, by comparing the text color's luminance against the mean
// luminance of the render under the block. Returns nil when contrast is
// sufficient or no render is available.
func (r *Resolver) backingFill(render image.Image, geom slide.PageGeometry, b slide.Block) *uint32 {
	if render == nil || len(b.Spans) == 0 {
		return nil
	}

	px := pageBoxToRenderPixels(b.BBox, geom, render.Bounds())
	if px.Empty() {
		return nil
	}
	bgLum := meanLuminance(render, px)
	textLum := colorLuminance(b.Spans[0].Style.Color)

	if math.Abs(bgLum-textLum) >= r.cfg.MinLuminanceContrast {
		return nil
	}

	fill := lightFill
	if textLum > 0.5 {
		fill = darkFill
	}
	return &fill
}

// toSlide maps a page-space box onto the slide canvas: each axis scales from
// page points to slide EMUs and the y axis flips to the top-left origin.
func toSlide(r geometry.Rect, geom slide.PageGeometry, slideW, slideH float64) geometry.Rect {
	sx := slideW / geom.Width
	sy := slideH / geom.Height
	top := (geom.Height - r.Y1) * sy
	return geometry.Rect{
		X0: r.X0 * sx,
		Y0: top,
		X1: r.X1 * sx,
		Y1: top + r.Height()*sy,
	}
}

// pageBoxToRenderPixels maps a page-space box into the render's pixel frame,
// scaling against the actual render size.
func pageBoxToRenderPixels(r geometry.Rect, geom slide.PageGeometry, bounds image.Rectangle) image.Rectangle {
	sx := float64(bounds.Dx()) / geom.Width
	sy := float64(bounds.Dy()) / geom.Height
	top := (geom.Height - r.Y1) * sy
	rect := image.Rect(
		bounds.Min.X+int(math.Floor(r.X0*sx)),
		bounds.Min.Y+int(math.Floor(top)),
		bounds.Min.X+int(math.Ceil(r.X1*sx)),
		bounds.Min.Y+int(math.Ceil(top+r.Height()*sy)),
	)
	return rect.Intersect(bounds)
}

// runFontSize resolves a span's output font size: the extracted size shrunk
// slightly, falling back to a role default when no size was extracted, and
// clamped to the plausible range.
func runFontSize(span slide.Element, role slide.TextRole) float64 {
	size := span.Style.FontSize * fontShrinkFactor
	if size <= 0 {
		switch role {
		case slide.RoleTitle:
			size = 36
		case slide.RoleSubtitle:
			size = 24
		case slide.RoleCaption, slide.RoleLabel:
			size = 11
		default:
			size = 14
		}
	}
	return math.Min(math.Max(size, minRunFontSize), maxRunFontSize)
}

// colorLuminance returns the relative luminance of a 0xRRGGBB color.
func colorLuminance(c uint32) float64 {
	r := float64((c >> 16) & 0xFF)
	g := float64((c >> 8) & 0xFF)
	b := float64(c & 0xFF)
	return (0.2126*r + 0.7152*g + 0.0722*b) / 255.0
}
