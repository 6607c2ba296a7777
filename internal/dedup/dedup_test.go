package dedup

import (
	"reflect"
	"testing"

	"slide-reconstructor/internal/config"
	"slide-reconstructor/internal/geometry"
	"slide-reconstructor/internal/slide"
)

func textEl(id, content string, bbox geometry.Rect, order int, visible bool) slide.Element {
	return slide.Element{
		ID:      id,
		Kind:    slide.KindText,
		BBox:    bbox,
		Source:  slide.SourceGeometry,
		Order:   order,
		Content: content,
		Style:   slide.TextStyle{FontSize: 12, Visible: visible},
	}
}

// TestDedup_GhostLayerCollapsed tests the double-extraction scenario: the
// same string twice at near-identical positions collapses to one element
func TestDedup_GhostLayerCollapsed(t *testing.T) {
	d := NewDeduplicator(config.Default())
	elements := []slide.Element{
		textEl("a", "Revenue grew 40%", geometry.FromXYWH(100, 400, 200, 14), 0, true),
		textEl("b", "Revenue grew 40%", geometry.FromXYWH(101, 401, 200, 14), 1, false),
	}

	out := d.Dedup(elements)
	if len(out) != 1 {
		t.Fatalf("Expected 1 element after dedup, got %d", len(out))
	}
	if out[0].ID != "a" {
		t.Errorf("Expected visible element to survive, got %s", out[0].ID)
	}
}

// TestDedup_VisiblePreferredOverHidden tests that a later visible element
// replaces an earlier hidden one
func TestDedup_VisiblePreferredOverHidden(t *testing.T) {
	d := NewDeduplicator(config.Default())
	elements := []slide.Element{
		textEl("hidden", "Summary", geometry.FromXYWH(100, 400, 100, 14), 0, false),
		textEl("visible", "Summary", geometry.FromXYWH(100, 401, 100, 14), 1, true),
	}

	out := d.Dedup(elements)
	if len(out) != 1 {
		t.Fatalf("Expected 1 element, got %d", len(out))
	}
	if out[0].ID != "visible" {
		t.Errorf("Expected visible element to win, got %s", out[0].ID)
	}
}

// TestDedup_EarlierOrderBreaksTies tests the extraction order tie-break
func TestDedup_EarlierOrderBreaksTies(t *testing.T) {
	d := NewDeduplicator(config.Default())
	elements := []slide.Element{
		textEl("first", "Agenda", geometry.FromXYWH(100, 400, 100, 14), 0, true),
		textEl("second", "Agenda", geometry.FromXYWH(100, 400, 100, 14), 1, true),
	}

	out := d.Dedup(elements)
	if len(out) != 1 || out[0].ID != "first" {
		t.Errorf("Expected earlier element to survive, got %+v", out)
	}
}

// TestDedup_SameTextDifferentPlaces tests that repeated strings at distinct
// positions are all kept
func TestDedup_SameTextDifferentPlaces(t *testing.T) {
	d := NewDeduplicator(config.Default())
	elements := []slide.Element{
		textEl("a", "2024", geometry.FromXYWH(100, 400, 50, 14), 0, true),
		textEl("b", "2024", geometry.FromXYWH(500, 400, 50, 14), 1, true),
		textEl("c", "2024", geometry.FromXYWH(100, 100, 50, 14), 2, true),
	}

	out := d.Dedup(elements)
	if len(out) != 3 {
		t.Errorf("Expected all 3 distinct positions kept, got %d", len(out))
	}
}

// TestDedup_OverlapBelowThresholdKept tests that mere overlap without near
// coincidence is not deduplication
func TestDedup_OverlapBelowThresholdKept(t *testing.T) {
	d := NewDeduplicator(config.Default())
	elements := []slide.Element{
		textEl("a", "Notes", geometry.FromXYWH(100, 400, 100, 20), 0, true),
		// Overlaps about half of the smaller box.
		textEl("b", "Notes", geometry.FromXYWH(150, 400, 100, 20), 1, true),
	}

	out := d.Dedup(elements)
	if len(out) != 2 {
		t.Errorf("Expected both elements kept below threshold, got %d", len(out))
	}
}

// TestDedup_NormalizedContentMatch tests case, whitespace, and composition
// insensitivity of the content comparison
func TestDedup_NormalizedContentMatch(t *testing.T) {
	d := NewDeduplicator(config.Default())
	elements := []slide.Element{
		textEl("a", "Key Takeaways", geometry.FromXYWH(100, 400, 200, 14), 0, true),
		textEl("b", "KEY  TAKEAWAYS", geometry.FromXYWH(100, 400, 200, 14), 1, false),
	}

	out := d.Dedup(elements)
	if len(out) != 1 {
		t.Errorf("Expected normalized match to dedup, got %d elements", len(out))
	}
}

// TestDedup_DifferentContentKept tests that coincident boxes with different
// text are not duplicates
func TestDedup_DifferentContentKept(t *testing.T) {
	d := NewDeduplicator(config.Default())
	elements := []slide.Element{
		textEl("a", "Revenue", geometry.FromXYWH(100, 400, 100, 14), 0, true),
		textEl("b", "Expenses", geometry.FromXYWH(100, 400, 100, 14), 1, true),
	}

	out := d.Dedup(elements)
	if len(out) != 2 {
		t.Errorf("Expected different content kept, got %d", len(out))
	}
}

// TestDedup_Idempotent tests that applying dedup twice equals applying it once
func TestDedup_Idempotent(t *testing.T) {
	d := NewDeduplicator(config.Default())
	elements := []slide.Element{
		textEl("a", "Revenue grew 40%", geometry.FromXYWH(100, 400, 200, 14), 0, true),
		textEl("b", "Revenue grew 40%", geometry.FromXYWH(101, 401, 200, 14), 1, false),
		textEl("c", "Footer", geometry.FromXYWH(100, 20, 80, 10), 2, true),
	}

	once := d.Dedup(elements)
	twice := d.Dedup(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Expected idempotent dedup, got %+v vs %+v", once, twice)
	}
}

// TestDedup_BridgingDuplicateMergesCluster tests that an element duplicating
// several kept elements collapses the whole cluster, leaving no surviving
// pair at or above the overlap threshold with matching content
func TestDedup_BridgingDuplicateMergesCluster(t *testing.T) {
	d := NewDeduplicator(config.Default())
	// a and b overlap each other at 0.6 (below threshold); c overlaps each
	// of them at exactly 0.8, bridging them into one cluster.
	elements := []slide.Element{
		textEl("a", "Revenue Growth", geometry.NewRect(0, 100, 100, 110), 0, false),
		textEl("b", "Revenue Growth", geometry.NewRect(40, 100, 140, 110), 1, true),
		textEl("c", "Revenue Growth", geometry.NewRect(20, 100, 120, 110), 2, true),
	}

	out := d.Dedup(elements)
	if len(out) != 1 {
		t.Fatalf("Expected cluster collapsed to 1 element, got %d", len(out))
	}
	if out[0].ID != "b" {
		t.Errorf("Expected earliest visible element to survive, got %s", out[0].ID)
	}

	for i := range out {
		for j := i + 1; j < len(out); j++ {
			ratio := out[i].BBox.OverlapRatio(out[j].BBox)
			if ratio >= d.cfg.DedupOverlapThreshold &&
				contentMatches(normalizeContent(out[i].Content), normalizeContent(out[j].Content)) {
				t.Errorf("Pair (%s, %s) survives with overlap %.2f and matching content",
					out[i].ID, out[j].ID, ratio)
			}
		}
	}
}

// TestDedup_ImagesPassThrough tests that image elements are never deduplicated
func TestDedup_ImagesPassThrough(t *testing.T) {
	d := NewDeduplicator(config.Default())
	img := slide.Element{
		ID:   "img1",
		Kind: slide.KindImage,
		BBox: geometry.FromXYWH(0, 0, 960, 540),
	}
	img2 := img
	img2.ID = "img2"

	out := d.Dedup([]slide.Element{img, img2})
	if len(out) != 2 {
		t.Errorf("Expected image elements to pass through, got %d", len(out))
	}
}
