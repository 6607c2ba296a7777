package extract

import (
	"testing"

	"github.com/ledongthuc/pdf"

	"slide-reconstructor/internal/config"
	"slide-reconstructor/internal/geometry"
	"slide-reconstructor/internal/slide"
)

func testGeometry() slide.PageGeometry {
	return slide.PageGeometry{PageIndex: 0, Width: 960, Height: 540}
}

func rawText(content string, bbox geometry.Rect, size float64) slide.RawElement {
	return slide.RawElement{
		Kind:        slide.KindText,
		BBox:        bbox,
		Content:     content,
		Granularity: slide.GranularitySpan,
		Style:       slide.TextStyle{FontSize: size, Visible: true},
	}
}

// TestNormalize_InvalidPageGeometry tests that a zero-sized page is fatal
func TestNormalize_InvalidPageGeometry(t *testing.T) {
	n := NewNormalizer(config.Default())
	geom := slide.PageGeometry{PageIndex: 3, Width: 0, Height: 540}

	_, _, err := n.Normalize(geom, nil)
	if err == nil {
		t.Fatal("Expected error for invalid page geometry")
	}
	if slide.CodeOf(err) != slide.ErrMalformedInput {
		t.Errorf("Expected MALFORMED_INPUT, got %s", slide.CodeOf(err))
	}
}

// TestNormalize_ClipsToPageBounds tests clipping of partially out-of-bounds boxes
func TestNormalize_ClipsToPageBounds(t *testing.T) {
	n := NewNormalizer(config.Default())
	raws := []slide.RawElement{
		rawText("overflowing span", geometry.FromXYWH(900, 500, 200, 60), 18),
	}

	elements, _, err := n.Normalize(testGeometry(), raws)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(elements) != 1 {
		t.Fatalf("Expected 1 element, got %d", len(elements))
	}
	b := elements[0].BBox
	if b.X1 > 960 || b.Y1 > 540 {
		t.Errorf("Expected box clipped to page bounds, got %+v", b)
	}
}

// TestNormalize_DropsFullyOutsideWithWarning tests that boxes entirely off
// the page are dropped and reported
func TestNormalize_DropsFullyOutsideWithWarning(t *testing.T) {
	n := NewNormalizer(config.Default())
	raws := []slide.RawElement{
		rawText("ghost", geometry.FromXYWH(2000, 2000, 100, 20), 12),
	}

	elements, warnings, err := n.Normalize(testGeometry(), raws)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(elements) != 0 {
		t.Errorf("Expected no elements, got %d", len(elements))
	}
	if len(warnings) != 1 || warnings[0].Code != slide.WarnOutOfBounds {
		t.Errorf("Expected OUT_OF_BOUNDS warning, got %+v", warnings)
	}
}

// TestNormalize_DropsDegenerateText tests the minimum size filter
func TestNormalize_DropsDegenerateText(t *testing.T) {
	n := NewNormalizer(config.Default())
	// 10x5 px at 300 dpi is 2.4x1.2 pt; this box is smaller.
	raws := []slide.RawElement{
		rawText("x", geometry.FromXYWH(100, 100, 1, 0.5), 12),
	}

	elements, warnings, err := n.Normalize(testGeometry(), raws)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(elements) != 0 {
		t.Errorf("Expected degenerate text to be dropped, got %d elements", len(elements))
	}
	if len(warnings) != 1 || warnings[0].Code != slide.WarnDegenerateElement {
		t.Errorf("Expected DEGENERATE_ELEMENT warning, got %+v", warnings)
	}
}

// TestNormalize_FiltersWatermarkText tests the watermark pattern filter
func TestNormalize_FiltersWatermarkText(t *testing.T) {
	n := NewNormalizer(config.Default())
	raws := []slide.RawElement{
		rawText("Made with NotebookLM", geometry.FromXYWH(850, 10, 100, 20), 8),
		rawText("Quarterly results", geometry.FromXYWH(100, 400, 300, 30), 24),
	}

	elements, warnings, err := n.Normalize(testGeometry(), raws)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(elements) != 1 || elements[0].Content != "Quarterly results" {
		t.Errorf("Expected only the real text to survive, got %+v", elements)
	}
	found := false
	for _, w := range warnings {
		if w.Code == slide.WarnWatermarkText {
			found = true
		}
	}
	if !found {
		t.Error("Expected WATERMARK_TEXT warning")
	}
}

// TestNormalize_MarksTinyFontsInvisible tests the hidden-layer heuristic
func TestNormalize_MarksTinyFontsInvisible(t *testing.T) {
	n := NewNormalizer(config.Default())
	raws := []slide.RawElement{
		rawText("hidden ocr layer", geometry.FromXYWH(100, 100, 200, 10), 2),
	}

	elements, _, err := n.Normalize(testGeometry(), raws)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(elements) != 1 {
		t.Fatalf("Expected hidden span to be kept, got %d elements", len(elements))
	}
	if elements[0].Style.Visible {
		t.Error("Expected sub-minimum font size to be marked invisible")
	}
}

// TestNormalize_PreservesExtractionOrder tests that Order is dense and stable
func TestNormalize_PreservesExtractionOrder(t *testing.T) {
	n := NewNormalizer(config.Default())
	raws := []slide.RawElement{
		rawText("first", geometry.FromXYWH(100, 400, 100, 20), 12),
		rawText("", geometry.FromXYWH(100, 300, 100, 20), 12), // dropped, empty
		rawText("second", geometry.FromXYWH(100, 200, 100, 20), 12),
	}

	elements, _, err := n.Normalize(testGeometry(), raws)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(elements) != 2 {
		t.Fatalf("Expected 2 elements, got %d", len(elements))
	}
	if elements[0].Order != 0 || elements[1].Order != 1 {
		t.Errorf("Expected dense order 0,1; got %d,%d", elements[0].Order, elements[1].Order)
	}
	if elements[0].Content != "first" || elements[1].Content != "second" {
		t.Error("Expected extraction order preserved")
	}
}

// TestNormalize_FlagsApproximateImagePlacement tests the page-sized image hint
func TestNormalize_FlagsApproximateImagePlacement(t *testing.T) {
	n := NewNormalizer(config.Default())
	geom := testGeometry()
	raws := []slide.RawElement{
		{Kind: slide.KindImage, BBox: geom.Bounds(), ImageRef: "img.png"},
	}

	elements, warnings, err := n.Normalize(geom, raws)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(elements) != 1 {
		t.Fatalf("Expected 1 image element, got %d", len(elements))
	}
	found := false
	for _, w := range warnings {
		if w.Code == slide.WarnImageBBoxApprox {
			found = true
		}
	}
	if !found {
		t.Error("Expected IMAGE_BBOX_APPROXIMATE warning for page-sized image")
	}
}

// TestAssembleSpans_MergesGlyphRuns tests glyph-to-span assembly
func TestAssembleSpans_MergesGlyphRuns(t *testing.T) {
	glyphs := []pdf.Text{
		{Font: "Helvetica", FontSize: 12, X: 100, Y: 400, W: 7, S: "H"},
		{Font: "Helvetica", FontSize: 12, X: 107, Y: 400, W: 7, S: "i"},
		// Word gap, still the same span with an inserted space.
		{Font: "Helvetica", FontSize: 12, X: 119, Y: 400, W: 7, S: "t"},
		{Font: "Helvetica", FontSize: 12, X: 126, Y: 400, W: 7, S: "here"},
	}

	spans := assembleSpans(glyphs)
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	if spans[0].Content != "Hi there" {
		t.Errorf("Expected merged content %q, got %q", "Hi there", spans[0].Content)
	}
	if spans[0].Granularity != slide.GranularitySpan {
		t.Errorf("Expected span granularity, got %s", spans[0].Granularity)
	}
}

// TestAssembleSpans_BreaksOnStyleAndLine tests span break conditions
func TestAssembleSpans_BreaksOnStyleAndLine(t *testing.T) {
	glyphs := []pdf.Text{
		{Font: "Helvetica-Bold", FontSize: 24, X: 100, Y: 480, W: 14, S: "Title"},
		// Different font and a different baseline: new span.
		{Font: "Helvetica", FontSize: 12, X: 100, Y: 440, W: 7, S: "Body"},
		// Same style, far horizontal jump: new span.
		{Font: "Helvetica", FontSize: 12, X: 600, Y: 440, W: 7, S: "Column"},
	}

	spans := assembleSpans(glyphs)
	if len(spans) != 3 {
		t.Fatalf("Expected 3 spans, got %d", len(spans))
	}
	if !spans[0].Style.Bold {
		t.Error("Expected bold detection from font name")
	}
	if spans[0].Style.FontSize != 24 {
		t.Errorf("Expected title font size 24, got %f", spans[0].Style.FontSize)
	}
}
