package extract

import (
	"fmt"
	"strings"

	"slide-reconstructor/internal/config"
	"slide-reconstructor/internal/geometry"
	"slide-reconstructor/internal/logger"
	"slide-reconstructor/internal/slide"
)

// Normalizer converts the backend's raw extraction records into canonical
// elements: well-formed boxes clipped to page bounds, degenerate and
// watermark elements dropped with warnings, and a stable extraction order
// assigned for downstream tie-breaking.
type Normalizer struct {
	cfg *config.Config
}

// NewNormalizer creates a Normalizer with the given configuration.
func NewNormalizer(cfg *config.Config) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// Normalize validates the page frame and canonicalizes every raw element.
// Invalid page geometry is fatal for the page; individual bad elements are
// dropped with a warning and the page continues.
func (n *Normalizer) Normalize(geom slide.PageGeometry, raws []slide.RawElement) ([]slide.Element, []slide.Warning, error) {
	if !geom.IsValid() {
		return nil, nil, slide.NewErrorWithPage(slide.ErrMalformedInput,
			fmt.Sprintf("page has invalid dimensions %.2fx%.2f", geom.Width, geom.Height),
			geom.PageIndex, nil)
	}

	bounds := geom.Bounds()
	ptPerPx := geometry.PointsPerInch / float64(n.cfg.AnalysisDPI)

	var elements []slide.Element
	var warnings []slide.Warning

	for i, raw := range raws {
		bbox := geometry.NewRect(raw.BBox.X0, raw.BBox.Y0, raw.BBox.X1, raw.BBox.Y1)

		clipped, ok := bbox.Clip(bounds)
		if !ok {
			warnings = append(warnings, slide.Warning{
				Code:    slide.WarnOutOfBounds,
				Message: fmt.Sprintf("element %d lies entirely outside page bounds", i),
			})
			continue
		}

		switch raw.Kind {
		case slide.KindText:
			el, warn, keep := n.normalizeText(geom, i, raw, clipped, ptPerPx)
			if warn != nil {
				warnings = append(warnings, *warn)
			}
			if keep {
				elements = append(elements, el)
			}

		case slide.KindImage:
			el, warn, keep := n.normalizeImage(geom, i, raw, clipped, ptPerPx)
			if warn != nil {
				warnings = append(warnings, *warn)
			}
			if keep {
				elements = append(elements, el)
			}
		}
	}

	// Order is the index into the normalized stream, not the raw one, so
	// consumers see a dense, stable sequence.
	for i := range elements {
		elements[i].Order = i
	}

	logger.Debug("normalized page elements",
		logger.Int("page", geom.PageIndex),
		logger.Int("raw", len(raws)),
		logger.Int("kept", len(elements)),
		logger.Int("warnings", len(warnings)))

	return elements, warnings, nil
}

func (n *Normalizer) normalizeText(geom slide.PageGeometry, idx int, raw slide.RawElement, bbox geometry.Rect, ptPerPx float64) (slide.Element, *slide.Warning, bool) {
	content := strings.TrimSpace(raw.Content)
	if content == "" {
		return slide.Element{}, nil, false
	}

	if n.isWatermarkText(content) {
		return slide.Element{}, &slide.Warning{
			Code:    slide.WarnWatermarkText,
			Message: fmt.Sprintf("dropped watermark text %q", truncate(content, 40)),
		}, false
	}

	minW := n.cfg.MinTextWidthPx * ptPerPx
	minH := n.cfg.MinTextHeightPx * ptPerPx
	if bbox.Width() < minW || bbox.Height() < minH {
		return slide.Element{}, &slide.Warning{
			Code:    slide.WarnDegenerateElement,
			Message: fmt.Sprintf("dropped degenerate text box %.1fx%.1fpt for %q", bbox.Width(), bbox.Height(), truncate(content, 40)),
		}, false
	}

	style := raw.Style
	// Spans below the minimum plausible font size are typical of hidden
	// OCR/indexing layers; they are kept but marked invisible so the
	// deduplicator prefers their visible twins.
	if style.FontSize > 0 && style.FontSize < n.cfg.MinSpanFontSize {
		style.Visible = false
	}

	return slide.Element{
		ID:         fmt.Sprintf("text_%d_%d", geom.PageIndex, idx),
		Kind:       slide.KindText,
		BBox:       bbox,
		Source:     slide.SourceGeometry,
		Content:    content,
		Style:      style,
		Role:       slide.RoleUnknown,
		Confidence: 1.0,
	}, nil, true
}

func (n *Normalizer) normalizeImage(geom slide.PageGeometry, idx int, raw slide.RawElement, bbox geometry.Rect, ptPerPx float64) (slide.Element, *slide.Warning, bool) {
	minW := n.cfg.MinGraphicWidthPx * ptPerPx
	minH := n.cfg.MinGraphicHeightPx * ptPerPx
	minArea := n.cfg.MinGraphicAreaPx * ptPerPx * ptPerPx
	if bbox.Width() < minW || bbox.Height() < minH || bbox.Area() < minArea {
		return slide.Element{}, &slide.Warning{
			Code:    slide.WarnDegenerateElement,
			Message: fmt.Sprintf("dropped tiny image %.1fx%.1fpt", bbox.Width(), bbox.Height()),
		}, false
	}

	el := slide.Element{
		ID:         fmt.Sprintf("image_%d_%d", geom.PageIndex, idx),
		Kind:       slide.KindImage,
		BBox:       bbox,
		Source:     slide.SourceGeometry,
		Confidence: 1.0,
		ImageRef:   raw.ImageRef,
		ImageData:  raw.ImageData,
	}

	// The backend cannot recover placement for embedded images and assigns
	// the full page rectangle. Flag it so the arbiter knows the box is a
	// hint, not a measurement.
	var warn *slide.Warning
	if bbox == geom.Bounds() {
		warn = &slide.Warning{
			Code:    slide.WarnImageBBoxApprox,
			Message: fmt.Sprintf("image %d has approximate page-sized placement", idx),
		}
	}
	return el, warn, true
}

// isWatermarkText reports whether the content matches a known watermark
// pattern, case-insensitively.
func (n *Normalizer) isWatermarkText(content string) bool {
	lower := strings.ToLower(content)
	for _, pat := range n.cfg.WatermarkPatterns {
		if pat == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(pat)) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
