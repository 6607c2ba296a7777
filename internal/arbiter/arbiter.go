// Package arbiter reconciles the two per-page signals: the geometric blocks
// derived from the PDF's internal structure, and the vision model's layout
// guess. Geometry is always the source of truth for text content and styling;
// a trusted vision match may only widen a block's box and assign its role.
// An absent or distrusted guess degrades to the geometry-only result, which
// passes through unmodified.
package arbiter

import (
	"fmt"

	"slide-reconstructor/internal/config"
	"slide-reconstructor/internal/geometry"
	"slide-reconstructor/internal/logger"
	"slide-reconstructor/internal/slide"
)

// BackgroundChoice names the background selected for a page, in page space.
type BackgroundChoice struct {
	Source      slide.Source
	BBox        geometry.Rect
	ImageRef    string
	ImageData   []byte
	Description string
}

// GraphicCandidate is a non-background graphic region accepted from the
// vision guess, in page space. The resolver crops its pixels from the page
// render.
type GraphicCandidate struct {
	BBox        geometry.Rect
	Type        string
	Description string
	Confidence  float64
}

// Result is the arbitrated page layout, still in page space.
type Result struct {
	Blocks     []slide.Block
	Background *BackgroundChoice
	Graphics   []GraphicCandidate
	Warnings   []slide.Warning
	UsedVision bool
}

// Arbiter merges geometry blocks with an optional vision guess.
type Arbiter struct {
	cfg *config.Config
}

// NewArbiter creates an Arbiter with the given configuration.
func NewArbiter(cfg *config.Config) *Arbiter {
	return &Arbiter{cfg: cfg}
}

// Arbitrate produces the final page-space layout from the geometry blocks,
// the extracted image elements, and the optional vision guess. guess may be
// nil; that is the normal geometry-only path, and the returned blocks are
// then exactly the input blocks.
func (a *Arbiter) Arbitrate(geom slide.PageGeometry, blocks []slide.Block, images []slide.Element, guess *slide.VisionGuess) Result {
	if guess == nil {
		return a.geometryOnly(geom, blocks, images, slide.Warning{
			Code:    slide.WarnVisionAbsent,
			Message: "no vision guess available, resolved geometry-only",
		})
	}
	if guess.OverallConfidence < a.cfg.VisionTrustThreshold {
		return a.geometryOnly(geom, blocks, images, slide.Warning{
			Code: slide.WarnVisionLowTrust,
			Message: fmt.Sprintf("vision guess confidence %.2f below trust threshold %.2f, resolved geometry-only",
				guess.OverallConfidence, a.cfg.VisionTrustThreshold),
		})
	}

	result := Result{UsedVision: true}

	merged := a.mergeText(geom, blocks, guess)

	graphics, suppressed, warnings := a.acceptGraphics(geom, merged, guess)
	result.Warnings = append(result.Warnings, warnings...)
	result.Graphics = graphics

	// Extracted images the vision guess did not already account for still
	// become graphics; a vision region covering the same area carries the
	// same pixels and wins.
	for _, ig := range a.graphicsFromImages(geom, images) {
		covered := false
		for _, vg := range graphics {
			if vg.BBox.IoU(ig.BBox) >= a.cfg.MatchIoU {
				covered = true
				break
			}
		}
		if !covered {
			result.Graphics = append(result.Graphics, ig)
		}
	}

	for _, b := range merged {
		if suppressed[b.ID] {
			continue
		}
		result.Blocks = append(result.Blocks, b)
	}

	result.Background = a.chooseBackground(geom, images, guess)

	logger.Debug("arbitrated page layout",
		logger.Int("page", geom.PageIndex),
		logger.Int("blocks", len(result.Blocks)),
		logger.Int("graphics", len(result.Graphics)),
		logger.Bool("background", result.Background != nil))

	return result
}

// geometryOnly is the fallback path: blocks pass through untouched, the
// background and graphics come from the extracted images alone.
func (a *Arbiter) geometryOnly(geom slide.PageGeometry, blocks []slide.Block, images []slide.Element, warn slide.Warning) Result {
	return Result{
		Blocks:     blocks,
		Background: a.backgroundFromImages(geom, images),
		Graphics:   a.graphicsFromImages(geom, images),
		Warnings:   []slide.Warning{warn},
		UsedVision: false,
	}
}

// mergeText matches each geometry block against the vision text elements by
// IoU. On a sufficiently confident match the block adopts the vision role and
// widens its box to the union; content and styling stay geometric.
func (a *Arbiter) mergeText(geom slide.PageGeometry, blocks []slide.Block, guess *slide.VisionGuess) []slide.Block {
	merged := make([]slide.Block, len(blocks))
	copy(merged, blocks)

	consumed := make([]bool, len(guess.TextElements))
	bounds := geom.Bounds()

	for i := range merged {
		bestIdx := -1
		bestIoU := a.cfg.MatchIoU
		for j, vt := range guess.TextElements {
			if consumed[j] {
				continue
			}
			vbox := visionToPage(vt.BBox, guess, geom)
			if iou := merged[i].BBox.IoU(vbox); iou >= bestIoU {
				bestIoU = iou
				bestIdx = j
			}
		}
		if bestIdx < 0 {
			continue
		}
		consumed[bestIdx] = true

		vt := guess.TextElements[bestIdx]
		if vt.Confidence <= a.cfg.VisionTrustThreshold {
			continue
		}

		vbox := visionToPage(vt.BBox, guess, geom)
		widened := merged[i].BBox.Union(vbox)
		if clipped, ok := widened.Clip(bounds); ok {
			merged[i].BBox = clipped
		}
		if vt.Role != slide.RoleUnknown {
			merged[i].Role = vt.Role
		}
		merged[i].Source = slide.SourceMerged
		merged[i].Confidence = vt.Confidence
	}

	return merged
}

// acceptGraphics admits trusted vision graphics as graphic candidates. A
// region containing only a few text blocks absorbs them (labels baked into a
// diagram read better as pixels); a region swallowing many blocks is a
// misread text area and is rejected instead.
func (a *Arbiter) acceptGraphics(geom slide.PageGeometry, blocks []slide.Block, guess *slide.VisionGuess) ([]GraphicCandidate, map[string]bool, []slide.Warning) {
	var graphics []GraphicCandidate
	suppressed := make(map[string]bool)
	var warnings []slide.Warning

	ptPerPx := pagePerPixel(guess, geom)
	minW := a.cfg.MinGraphicWidthPx * ptPerPx
	minH := a.cfg.MinGraphicHeightPx * ptPerPx
	minArea := a.cfg.MinGraphicAreaPx * ptPerPx * ptPerPx
	pad := float64(a.cfg.GraphicPaddingPx) * ptPerPx

	for _, vg := range guess.Graphics {
		if vg.Confidence <= a.cfg.VisionTrustThreshold {
			continue
		}
		gbox := visionToPage(vg.BBox, guess, geom)
		if gbox.Width() < minW || gbox.Height() < minH || gbox.Area() < minArea {
			continue
		}

		var contained []string
		for _, b := range blocks {
			cx, cy := b.BBox.Center()
			if gbox.ContainsPoint(cx, cy) {
				contained = append(contained, b.ID)
			}
		}
		if len(contained) > a.cfg.MaxTextPerGraphic {
			warnings = append(warnings, slide.Warning{
				Code: slide.WarnTextInGraphic,
				Message: fmt.Sprintf("rejected graphic region containing %d text blocks (max %d)",
					len(contained), a.cfg.MaxTextPerGraphic),
			})
			continue
		}
		for _, id := range contained {
			suppressed[id] = true
			warnings = append(warnings, slide.Warning{
				Code:    slide.WarnTextInGraphic,
				Message: fmt.Sprintf("text block %s absorbed into graphic region", id),
			})
		}

		padded := geometry.NewRect(gbox.X0-pad, gbox.Y0-pad, gbox.X1+pad, gbox.Y1+pad)
		if clipped, ok := padded.Clip(geom.Bounds()); ok {
			gbox = clipped
		}
		graphics = append(graphics, GraphicCandidate{
			BBox:        gbox,
			Type:        vg.Type,
			Description: vg.Description,
			Confidence:  vg.Confidence,
		})
	}

	return graphics, suppressed, warnings
}

// graphicsFromImages passes extracted non-background images through as
// graphic candidates with the configured crop padding. Images large enough
// to qualify as a background never become graphics; a full-bleed raster
// layered above the background would hide it. The resolver crops the actual
// pixels from the page render.
func (a *Arbiter) graphicsFromImages(geom slide.PageGeometry, images []slide.Element) []GraphicCandidate {
	pageArea := geom.Bounds().Area()
	ptPerPx := geometry.PointsPerInch / float64(a.cfg.AnalysisDPI)
	pad := float64(a.cfg.GraphicPaddingPx) * ptPerPx

	var graphics []GraphicCandidate
	for _, img := range images {
		if img.BBox.Area() >= a.cfg.BackgroundAreaFraction*pageArea {
			continue
		}
		gbox := geometry.NewRect(img.BBox.X0-pad, img.BBox.Y0-pad, img.BBox.X1+pad, img.BBox.Y1+pad)
		if clipped, ok := gbox.Clip(geom.Bounds()); ok {
			gbox = clipped
		}
		graphics = append(graphics, GraphicCandidate{
			BBox:        gbox,
			Type:        "image",
			Description: img.ImageRef,
			Confidence:  1,
		})
	}
	return graphics
}

// chooseBackground picks the page background: a trusted vision background
// region first, then the largest extracted image covering most of the page,
// then none.
func (a *Arbiter) chooseBackground(geom slide.PageGeometry, images []slide.Element, guess *slide.VisionGuess) *BackgroundChoice {
	if guess.Background != nil && guess.Background.Confidence > a.cfg.VisionTrustThreshold {
		bbox := visionToPage(guess.Background.BBox, guess, geom)
		if clipped, ok := bbox.Clip(geom.Bounds()); ok {
			return &BackgroundChoice{
				Source:      slide.SourceVision,
				BBox:        clipped,
				Description: guess.Background.Description,
			}
		}
	}
	return a.backgroundFromImages(geom, images)
}

// backgroundFromImages selects the largest extracted image that covers at
// least the configured fraction of the page area.
func (a *Arbiter) backgroundFromImages(geom slide.PageGeometry, images []slide.Element) *BackgroundChoice {
	pageArea := geom.Bounds().Area()
	var best *slide.Element
	var bestArea float64

	for i := range images {
		area := images[i].BBox.Area()
		if area >= a.cfg.BackgroundAreaFraction*pageArea && area > bestArea {
			best = &images[i]
			bestArea = area
		}
	}
	if best == nil {
		return nil
	}
	return &BackgroundChoice{
		Source:    slide.SourceGeometry,
		BBox:      best.BBox,
		ImageRef:  best.ImageRef,
		ImageData: best.ImageData,
	}
}

// visionToPage converts a vision box (rendered-image pixels, top-left origin)
// to page space (points, bottom-left origin), scaling each axis against the
// actual render size so a DPI mismatch cannot skew the mapping.
func visionToPage(r geometry.Rect, guess *slide.VisionGuess, geom slide.PageGeometry) geometry.Rect {
	sx := geom.Width / float64(guess.ImageWidth)
	sy := geom.Height / float64(guess.ImageHeight)
	x0 := r.X0 * sx
	x1 := r.X1 * sx
	top := r.Y0 * sy
	h := r.Height() * sy
	y1 := geom.Height - top
	return geometry.Rect{X0: x0, Y0: y1 - h, X1: x1, Y1: y1}
}

// pagePerPixel returns the page points spanned by one rendered pixel,
// averaged over both axes.
func pagePerPixel(guess *slide.VisionGuess, geom slide.PageGeometry) float64 {
	sx := geom.Width / float64(guess.ImageWidth)
	sy := geom.Height / float64(guess.ImageHeight)
	return (sx + sy) / 2
}
