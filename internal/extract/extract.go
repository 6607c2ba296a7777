// Package extract adapts the PDF backends into the pipeline's raw element
// stream and normalizes that stream into canonical per-page elements. The
// extractor works at span granularity; flattened slide exports carry no
// trustworthy block structure, so grouping is left to the span grouper.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"slide-reconstructor/internal/geometry"
	"slide-reconstructor/internal/logger"
	"slide-reconstructor/internal/slide"
)

// Backend reads a PDF document and produces raw elements per page. It
// combines two libraries: ledongthuc/pdf walks the content stream for
// positioned text, and pdfcpu supplies validation, page dimensions, and
// embedded image extraction.
type Backend struct {
	pdfPath  string
	workDir  string
	pages    []slide.PageGeometry
	imageDir string
}

// NewBackend opens and validates a PDF document. workDir receives extracted
// image files and must be writable.
func NewBackend(pdfPath, workDir string) (*Backend, error) {
	fileInfo, err := os.Stat(pdfPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, slide.NewError(slide.ErrPDFNotFound, "input file does not exist", err)
		}
		return nil, slide.NewError(slide.ErrPDFInvalid, "cannot access input file", err)
	}
	if fileInfo.IsDir() {
		return nil, slide.NewError(slide.ErrPDFInvalid, "path points to a directory, not a file", nil)
	}

	if err := api.ValidateFile(pdfPath, nil); err != nil {
		return nil, slide.NewError(slide.ErrPDFInvalid, "input is not a readable PDF", err)
	}

	dims, err := api.PageDimsFile(pdfPath)
	if err != nil {
		return nil, slide.NewError(slide.ErrPDFInvalid, "cannot read page dimensions", err)
	}

	pages := make([]slide.PageGeometry, len(dims))
	for i, d := range dims {
		pages[i] = slide.PageGeometry{
			PageIndex: i,
			Width:     d.Width,
			Height:    d.Height,
		}
	}

	logger.Info("opened PDF document",
		logger.String("file", filepath.Base(pdfPath)),
		logger.Int("pages", len(pages)),
		logger.Int("sizeBytes", int(fileInfo.Size())))

	return &Backend{
		pdfPath:  pdfPath,
		workDir:  workDir,
		pages:    pages,
		imageDir: filepath.Join(workDir, "images"),
	}, nil
}

// PageCount returns the number of pages in the document.
func (b *Backend) PageCount() int {
	return len(b.pages)
}

// PageGeometry returns the coordinate frame of the given page (0-based).
func (b *Backend) PageGeometry(pageIndex int) (slide.PageGeometry, error) {
	if pageIndex < 0 || pageIndex >= len(b.pages) {
		return slide.PageGeometry{}, slide.NewErrorWithPage(slide.ErrMalformedInput,
			"page index out of range", pageIndex, nil)
	}
	return b.pages[pageIndex], nil
}

// ExtractPage reads the raw text spans and embedded images of one page
// (0-based). The returned elements are in page space, in content-stream
// order, unfiltered; normalization happens downstream.
func (b *Backend) ExtractPage(pageIndex int) ([]slide.RawElement, error) {
	geom, err := b.PageGeometry(pageIndex)
	if err != nil {
		return nil, err
	}

	spans, err := b.extractSpans(pageIndex)
	if err != nil {
		return nil, err
	}

	images, err := b.extractImages(pageIndex, geom)
	if err != nil {
		// Image extraction failures degrade the page, they do not fail it.
		logger.Warn("embedded image extraction failed",
			logger.Int("page", pageIndex), logger.Err(err))
		images = nil
	}

	logger.Debug("extracted page",
		logger.Int("page", pageIndex),
		logger.Int("spans", len(spans)),
		logger.Int("images", len(images)))

	return append(spans, images...), nil
}

// extractSpans walks the page content stream and assembles glyph runs into
// text spans. A span breaks on font or size change, on a vertical jump, or on
// a horizontal gap wider than a word space.
func (b *Backend) extractSpans(pageIndex int) ([]slide.RawElement, error) {
	f, r, err := pdf.Open(b.pdfPath)
	if err != nil {
		return nil, slide.NewErrorWithPage(slide.ErrPDFInvalid, "cannot open PDF", pageIndex, err)
	}
	defer f.Close()

	page := r.Page(pageIndex + 1)
	if page.V.IsNull() {
		return nil, nil
	}
	if page.V.Key("Contents").Kind() == pdf.Null {
		return nil, nil
	}

	content := page.Content()
	return assembleSpans(content.Text), nil
}

// assembleSpans merges the extractor's per-glyph text records into spans.
func assembleSpans(glyphs []pdf.Text) []slide.RawElement {
	var spans []slide.RawElement

	var (
		builder  strings.Builder
		x0, x1   float64
		baseline float64
		fontName string
		fontSize float64
		open     bool
	)

	flush := func() {
		if !open {
			return
		}
		text := builder.String()
		if strings.TrimSpace(text) != "" {
			spans = append(spans, slide.RawElement{
				Kind:        slide.KindText,
				BBox:        spanBBox(x0, x1, baseline, fontSize),
				Content:     text,
				Granularity: slide.GranularitySpan,
				Style: slide.TextStyle{
					FontName: fontName,
					FontSize: fontSize,
					Bold:     fontLooksBold(fontName),
					Italic:   fontLooksItalic(fontName),
					Visible:  true,
				},
			})
		}
		builder.Reset()
		open = false
	}

	for _, g := range glyphs {
		if g.S == "" {
			continue
		}

		if open {
			sameStyle := g.Font == fontName && g.FontSize == fontSize
			sameLine := abs(g.Y-baseline) <= fontSize*0.3
			gap := g.X - x1
			if !sameStyle || !sameLine || gap > maxf(fontSize, 1)*1.5 || gap < -maxf(fontSize, 1) {
				flush()
			} else if gap > maxf(fontSize, 1)*0.25 && !strings.HasSuffix(builder.String(), " ") {
				builder.WriteString(" ")
			}
		}

		if !open {
			x0 = g.X
			x1 = g.X
			baseline = g.Y
			fontName = g.Font
			fontSize = g.FontSize
			open = true
		}

		builder.WriteString(g.S)
		if end := g.X + g.W; end > x1 {
			x1 = end
		} else if g.X > x1 {
			x1 = g.X
		}
	}
	flush()

	return spans
}

// spanBBox derives a span box from the baseline run. The Y coordinate
// reported by the extractor is the text baseline; the box extends by nominal
// ascent and descent fractions of the font size.
func spanBBox(x0, x1, baseline, fontSize float64) geometry.Rect {
	if fontSize <= 0 {
		fontSize = 10
	}
	if x1 <= x0 {
		x1 = x0 + fontSize*0.5
	}
	return geometry.NewRect(x0, baseline-fontSize*0.2, x1, baseline+fontSize*0.8)
}

// extractImages pulls the page's embedded image resources out through pdfcpu.
// pdfcpu reports image content but not placement, so each image is assigned
// the full page rectangle as an approximate box; the arbiter and resolver
// treat such boxes as placement hints only.
func (b *Backend) extractImages(pageIndex int, geom slide.PageGeometry) ([]slide.RawElement, error) {
	if err := os.MkdirAll(b.imageDir, 0755); err != nil {
		return nil, err
	}

	pageSel := []string{fmt.Sprintf("%d", pageIndex+1)}
	if err := api.ExtractImagesFile(b.pdfPath, b.imageDir, pageSel, nil); err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(b.pdfPath), filepath.Ext(b.pdfPath))
	pattern := filepath.Join(b.imageDir, fmt.Sprintf("%s_%d_*", base, pageIndex+1))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	var images []slide.RawElement
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read extracted image",
				logger.String("path", path), logger.Err(err))
			continue
		}
		images = append(images, slide.RawElement{
			Kind:      slide.KindImage,
			BBox:      geom.Bounds(),
			ImageRef:  path,
			ImageData: data,
		})
	}
	return images, nil
}

func fontLooksBold(name string) bool {
	return strings.Contains(strings.ToLower(name), "bold")
}

func fontLooksItalic(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "italic") || strings.Contains(lower, "oblique")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
