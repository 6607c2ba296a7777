package resolver

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"slide-reconstructor/internal/arbiter"
	"slide-reconstructor/internal/config"
	"slide-reconstructor/internal/geometry"
	"slide-reconstructor/internal/slide"
)

func testGeom() slide.PageGeometry {
	return slide.PageGeometry{PageIndex: 0, Width: 960, Height: 540}
}

func testBlock(id, content string, bbox geometry.Rect, role slide.TextRole, textColor uint32) slide.Block {
	return slide.Block{
		ID:         id,
		BBox:       bbox,
		Source:     slide.SourceGeometry,
		Role:       role,
		Confidence: 1.0,
		Spans: []slide.Element{{
			ID:      id + "_s0",
			Kind:    slide.KindText,
			BBox:    bbox,
			Content: content,
			Style:   slide.TextStyle{FontName: "Helvetica", FontSize: 18, Color: textColor, Visible: true},
		}},
	}
}

// uniformImage builds a render filled with one color.
func uniformImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

// TestResolve_TextBoxWithinSlideBounds tests the bounds invariant and z-order
func TestResolve_TextBoxWithinSlideBounds(t *testing.T) {
	r := NewResolver(config.Default())
	geom := testGeom()
	res := arbiter.Result{
		Blocks: []slide.Block{
			testBlock("b0", "Title", geometry.FromXYWH(100, 480, 400, 40), slide.RoleTitle, 0x000000),
		},
	}

	record, warnings, err := r.Resolve(geom, res, nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("Expected no warnings, got %+v", warnings)
	}
	if len(record.TextBoxes) != 1 {
		t.Fatalf("Expected 1 text box, got %d", len(record.TextBoxes))
	}

	slideBounds := geometry.Rect{X1: record.SlideWidthEMU, Y1: record.SlideHeightEMU}
	box := record.TextBoxes[0]
	if !slideBounds.Contains(box.BBox) {
		t.Errorf("Expected text box within slide bounds, got %+v", box.BBox)
	}
	if box.ZOrder != zText {
		t.Errorf("Expected text z-order %d, got %d", zText, box.ZOrder)
	}
}

// TestResolve_YFlipPlacement tests that a block at the top of the page lands
// at the top of the slide
func TestResolve_YFlipPlacement(t *testing.T) {
	r := NewResolver(config.Default())
	geom := testGeom()
	// Top edge at pdf y 520 of 540: 20pt below the page top.
	res := arbiter.Result{
		Blocks: []slide.Block{
			testBlock("top", "Header", geometry.FromXYWH(0, 500, 200, 20), slide.RoleTitle, 0),
		},
	}

	record, _, err := r.Resolve(geom, res, nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	box := record.TextBoxes[0]
	// 20pt of a 540pt page maps to 20/540 of the slide height.
	wantTop := record.SlideHeightEMU * 20 / 540
	if diff := box.BBox.Y0 - wantTop; diff > 1 || diff < -1 {
		t.Errorf("Expected top at %f EMU, got %f", wantTop, box.BBox.Y0)
	}
}

// TestResolve_OutOfBoundsBlockDropped tests that a block outside the page is
// dropped with a warning, never emitted out of bounds
func TestResolve_OutOfBoundsBlockDropped(t *testing.T) {
	r := NewResolver(config.Default())
	geom := testGeom()
	res := arbiter.Result{
		Blocks: []slide.Block{
			testBlock("off", "ghost", geometry.FromXYWH(-500, -300, 100, 20), slide.RoleBody, 0),
		},
	}

	record, warnings, err := r.Resolve(geom, res, nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(record.TextBoxes) != 0 {
		t.Errorf("Expected no text boxes, got %d", len(record.TextBoxes))
	}
	if len(warnings) != 1 || warnings[0].Code != slide.WarnOutOfBounds {
		t.Errorf("Expected OUT_OF_BOUNDS warning, got %+v", warnings)
	}
}

// TestResolve_FontSizing tests the size fallbacks and clamping
func TestResolve_FontSizing(t *testing.T) {
	span := func(size float64) slide.Element {
		return slide.Element{Style: slide.TextStyle{FontSize: size}}
	}

	if got := runFontSize(span(20), slide.RoleBody); got != 19 {
		t.Errorf("Expected 20pt shrunk to 19, got %f", got)
	}
	if got := runFontSize(span(2), slide.RoleBody); got != minRunFontSize {
		t.Errorf("Expected tiny size clamped to %f, got %f", minRunFontSize, got)
	}
	if got := runFontSize(span(400), slide.RoleBody); got != maxRunFontSize {
		t.Errorf("Expected huge size clamped to %f, got %f", maxRunFontSize, got)
	}
	if got := runFontSize(span(0), slide.RoleTitle); got != 36 {
		t.Errorf("Expected title role default 36, got %f", got)
	}
	if got := runFontSize(span(0), slide.RoleUnknown); got != 14 {
		t.Errorf("Expected body default 14, got %f", got)
	}
}

// TestResolve_BackingFillForLowContrast tests that dark text on a dark
// background receives a light backing fill
func TestResolve_BackingFillForLowContrast(t *testing.T) {
	r := NewResolver(config.Default())
	geom := testGeom()
	render := uniformImage(1920, 1080, color.RGBA{30, 30, 30, 255})

	res := arbiter.Result{
		Blocks: []slide.Block{
			testBlock("dark", "hard to read", geometry.FromXYWH(100, 300, 300, 20), slide.RoleBody, 0x101010),
		},
	}

	record, _, err := r.Resolve(geom, res, render)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	box := record.TextBoxes[0]
	if box.Fill == nil {
		t.Fatal("Expected backing fill for low-contrast text")
	}
	if *box.Fill != lightFill {
		t.Errorf("Expected light fill for dark text, got %#x", *box.Fill)
	}
}

// TestResolve_NoFillForGoodContrast tests that readable text gets no fill
func TestResolve_NoFillForGoodContrast(t *testing.T) {
	r := NewResolver(config.Default())
	geom := testGeom()
	render := uniformImage(1920, 1080, color.RGBA{255, 255, 255, 255})

	res := arbiter.Result{
		Blocks: []slide.Block{
			testBlock("dark", "readable", geometry.FromXYWH(100, 300, 300, 20), slide.RoleBody, 0x000000),
		},
	}

	record, _, err := r.Resolve(geom, res, render)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if record.TextBoxes[0].Fill != nil {
		t.Error("Expected no fill for black text on white background")
	}
}

// TestResolve_BackgroundAndGraphicZOrder tests layering and image production
func TestResolve_BackgroundAndGraphicZOrder(t *testing.T) {
	r := NewResolver(config.Default())
	geom := testGeom()
	render := uniformImage(1920, 1080, color.RGBA{80, 120, 200, 255})

	res := arbiter.Result{
		Background: &arbiter.BackgroundChoice{
			Source: slide.SourceVision,
			BBox:   geom.Bounds(),
		},
		Graphics: []arbiter.GraphicCandidate{{
			BBox: geometry.FromXYWH(500, 100, 300, 200),
			Type: "chart", Confidence: 0.9,
		}},
		Blocks: []slide.Block{
			testBlock("b0", "Caption", geometry.FromXYWH(100, 480, 200, 20), slide.RoleCaption, 0x000000),
		},
	}

	record, _, err := r.Resolve(geom, res, render)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if record.Background == nil || len(record.Background.ImageData) == 0 {
		t.Fatal("Expected background with image data")
	}
	if len(record.Graphics) != 1 {
		t.Fatalf("Expected 1 graphic, got %d", len(record.Graphics))
	}
	if record.Graphics[0].ZOrder != zGraphic {
		t.Errorf("Expected graphic z-order %d, got %d", zGraphic, record.Graphics[0].ZOrder)
	}
	if len(record.Graphics[0].ImageData) == 0 {
		t.Error("Expected graphic image data")
	}
	if record.TextBoxes[0].ZOrder <= record.Graphics[0].ZOrder {
		t.Error("Expected text above graphics")
	}
}

// TestResolve_NoRenderSkipsImagery tests the text-only degradation
func TestResolve_NoRenderSkipsImagery(t *testing.T) {
	r := NewResolver(config.Default())
	geom := testGeom()
	res := arbiter.Result{
		Background: &arbiter.BackgroundChoice{Source: slide.SourceVision, BBox: geom.Bounds()},
		Graphics:   []arbiter.GraphicCandidate{{BBox: geometry.FromXYWH(10, 10, 100, 100)}},
		Blocks: []slide.Block{
			testBlock("b0", "still here", geometry.FromXYWH(100, 300, 300, 20), slide.RoleBody, 0),
		},
	}

	record, warnings, err := r.Resolve(geom, res, nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if record.Background != nil || len(record.Graphics) != 0 {
		t.Error("Expected no imagery without a render")
	}
	if len(record.TextBoxes) != 1 {
		t.Errorf("Expected text preserved, got %d boxes", len(record.TextBoxes))
	}
	found := false
	for _, w := range warnings {
		if w.Code == slide.WarnRenderFailed {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected RENDER_FAILED warning for dropped graphics, got %+v", warnings)
	}
}

// TestFixedRegionDetector tests watermark presence detection
func TestFixedRegionDetector(t *testing.T) {
	cfg := config.Default()
	d := NewFixedRegionDetector(cfg)

	// Clean white page: no watermark.
	clean := uniformImage(1000, 562, color.White)
	if _, found := d.Detect(clean); found {
		t.Error("Expected no watermark on a uniform page")
	}

	// Stamp dark pixels into the configured corner region.
	stamped := uniformImage(1000, 562, color.White)
	region := image.Rect(914, 537, 998, 560)
	draw.Draw(stamped, region, &image.Uniform{color.RGBA{90, 90, 90, 255}}, image.Point{}, draw.Src)

	got, found := d.Detect(stamped)
	if !found {
		t.Fatal("Expected watermark detected")
	}
	if !region.In(got) {
		t.Errorf("Expected detected region %v to cover the stamp %v", got, region)
	}
}

// TestInpaint_RemovesRegionDeterministically tests the interpolation fill
func TestInpaint_RemovesRegionDeterministically(t *testing.T) {
	img := uniformImage(100, 100, color.RGBA{200, 200, 200, 255})
	region := image.Rect(40, 40, 60, 60)
	draw.Draw(img, region, &image.Uniform{color.RGBA{0, 0, 0, 255}}, image.Point{}, draw.Src)

	out1 := Inpaint(img, region)
	out2 := Inpaint(img, region)

	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			r, g, b, _ := out1.At(x, y).RGBA()
			if r>>8 < 150 || g>>8 < 150 || b>>8 < 150 {
				t.Fatalf("Expected inpainted pixel near surround color at (%d,%d), got %d %d %d", x, y, r>>8, g>>8, b>>8)
			}
			if out1.At(x, y) != out2.At(x, y) {
				t.Fatal("Expected deterministic inpainting")
			}
		}
	}
}
