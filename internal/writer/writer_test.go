package writer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"slide-reconstructor/internal/geometry"
	"slide-reconstructor/internal/slide"
)

func sampleRecord(pageIndex int) *slide.LayoutRecord {
	return &slide.LayoutRecord{
		PageIndex:      pageIndex,
		SlideWidthEMU:  geometry.InchesToEMU(16),
		SlideHeightEMU: geometry.InchesToEMU(9),
		Background: &slide.Background{
			BBox:      geometry.FromXYWH(0, 0, geometry.InchesToEMU(16), geometry.InchesToEMU(9)),
			ImageData: []byte{0x89, 'P', 'N', 'G'},
		},
		TextBoxes: []slide.TextBox{{
			BBox:   geometry.FromXYWH(914400, 914400, 914400*4, 914400),
			Runs:   []slide.TextRun{{Text: "Hello", SizePt: 18}},
			Role:   slide.RoleTitle,
			ZOrder: 2,
		}},
		Graphics: []slide.Graphic{{
			BBox:      geometry.FromXYWH(914400*8, 914400*2, 914400*3, 914400*2),
			ZOrder:    1,
			ImageData: []byte{0x89, 'P', 'N', 'G', '2'},
		}},
	}
}

// TestWrite_LayoutAndAssets tests the full handoff: layout.json plus assets
func TestWrite_LayoutAndAssets(t *testing.T) {
	outDir := t.TempDir()
	w := NewJSONWriter(outDir)

	if err := w.Write([]*slide.LayoutRecord{sampleRecord(0)}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "layout.json"))
	if err != nil {
		t.Fatalf("Cannot read layout.json: %v", err)
	}

	var doc struct {
		Slides []*slide.LayoutRecord `json:"slides"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("layout.json is not valid JSON: %v", err)
	}
	if len(doc.Slides) != 1 {
		t.Fatalf("Expected 1 slide, got %d", len(doc.Slides))
	}

	rec := doc.Slides[0]
	if rec.Background == nil || rec.Background.ImagePath == "" {
		t.Error("Expected background image path in layout")
	}
	if len(rec.Graphics) != 1 || rec.Graphics[0].ImagePath == "" {
		t.Error("Expected graphic image path in layout")
	}

	// Assets must exist on disk where the layout points.
	for _, rel := range []string{rec.Background.ImagePath, rec.Graphics[0].ImagePath} {
		if _, err := os.Stat(filepath.Join(outDir, rel)); err != nil {
			t.Errorf("Expected asset %s to exist: %v", rel, err)
		}
	}
}

// TestWrite_RecordsSortedByPage tests page ordering in the handoff
func TestWrite_RecordsSortedByPage(t *testing.T) {
	outDir := t.TempDir()
	w := NewJSONWriter(outDir)

	records := []*slide.LayoutRecord{sampleRecord(2), sampleRecord(0), sampleRecord(1)}
	if err := w.Write(records); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(outDir, "layout.json"))
	var doc struct {
		Slides []*slide.LayoutRecord `json:"slides"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("layout.json is not valid JSON: %v", err)
	}
	for i, rec := range doc.Slides {
		if rec.PageIndex != i {
			t.Errorf("Expected slide %d at position %d, got page %d", i, i, rec.PageIndex)
		}
	}
}

// TestWrite_SingleConsumption tests that a second write is rejected
func TestWrite_SingleConsumption(t *testing.T) {
	w := NewJSONWriter(t.TempDir())
	if err := w.Write([]*slide.LayoutRecord{sampleRecord(0)}); err != nil {
		t.Fatalf("First write failed: %v", err)
	}

	err := w.Write([]*slide.LayoutRecord{sampleRecord(1)})
	if err == nil {
		t.Fatal("Expected second write to fail")
	}
	if slide.CodeOf(err) != slide.ErrWriteFailed {
		t.Errorf("Expected WRITE_FAILED, got %s", slide.CodeOf(err))
	}
}

// TestWrite_SkipsNilRecords tests that failed pages (nil records) are omitted
func TestWrite_SkipsNilRecords(t *testing.T) {
	outDir := t.TempDir()
	w := NewJSONWriter(outDir)

	if err := w.Write([]*slide.LayoutRecord{sampleRecord(0), nil, sampleRecord(2)}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(outDir, "layout.json"))
	var doc struct {
		Slides []*slide.LayoutRecord `json:"slides"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("layout.json is not valid JSON: %v", err)
	}
	if len(doc.Slides) != 2 {
		t.Errorf("Expected nil record skipped, got %d slides", len(doc.Slides))
	}
}
