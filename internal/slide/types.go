// Package slide defines the data model shared by the slide reconstruction
// pipeline: page geometry, raw and canonical elements, the vision-model
// layout guess, and the final per-page layout record handed to the document
// writer.
package slide

import "slide-reconstructor/internal/geometry"

// PageGeometry describes the coordinate frame of a single PDF page. All
// per-page element boxes are expressed in this frame (points, bottom-left
// origin) until the Layer Resolver performs the final output conversion.
// Immutable once extracted.
type PageGeometry struct {
	PageIndex int     `json:"page_index"`
	Width     float64 `json:"width"`  // points
	Height    float64 `json:"height"` // points
}

// Bounds returns the page rectangle in page space.
func (g PageGeometry) Bounds() geometry.Rect {
	return geometry.Rect{X0: 0, Y0: 0, X1: g.Width, Y1: g.Height}
}

// IsValid reports whether the geometry defines a usable coordinate frame.
func (g PageGeometry) IsValid() bool {
	return g.Width > 0 && g.Height > 0
}

// ElementKind distinguishes the two element families produced by extraction.
type ElementKind string

const (
	KindText  ElementKind = "text"
	KindImage ElementKind = "image"
)

// Granularity records which extractor unit a raw text element came from.
// Span-granularity text is the unit of truth; extractor-provided block
// grouping is unreliable on flattened decks and is never trusted.
type Granularity string

const (
	GranularitySpan  Granularity = "span"
	GranularityBlock Granularity = "block"
)

// Source tags which signal an element's geometry and content came from.
// The arbiter's decision rule switches exhaustively over this tag.
type Source string

const (
	// SourceGeometry marks elements derived from the PDF's internal structure.
	SourceGeometry Source = "geometry"
	// SourceVision marks elements derived from the vision model's read of a
	// rendered page image.
	SourceVision Source = "vision"
	// SourceMerged marks geometry elements whose placement or role was
	// adjusted using a trusted vision match.
	SourceMerged Source = "merged"
)

// TextRole classifies a text element's function on the slide.
type TextRole string

const (
	RoleTitle    TextRole = "title"
	RoleSubtitle TextRole = "subtitle"
	RoleBody     TextRole = "body"
	RoleCaption  TextRole = "caption"
	RoleLabel    TextRole = "label"
	RoleUnknown  TextRole = "unknown"
)

// TextStyle carries the font metadata attached to a text span.
type TextStyle struct {
	FontName string  `json:"font_name,omitempty"`
	FontSize float64 `json:"font_size,omitempty"` // points
	Bold     bool    `json:"bold,omitempty"`
	Italic   bool    `json:"italic,omitempty"`
	Color    uint32  `json:"color,omitempty"` // 0xRRGGBB
	// Visible reports whether the span's rendering metadata indicates a
	// visible glyph run, as opposed to a hidden OCR/indexing layer.
	Visible bool `json:"visible"`
}

// RawElement is a single extraction record for one page as produced by the
// PDF backend, before normalization. Transient; consumed by the Normalizer.
type RawElement struct {
	Kind ElementKind   `json:"kind"`
	BBox geometry.Rect `json:"bbox"` // page points, bottom-left origin

	// Text payload
	Content     string      `json:"content,omitempty"`
	Style       TextStyle   `json:"style,omitempty"`
	Granularity Granularity `json:"granularity,omitempty"`

	// Image payload
	ImageRef  string `json:"image_ref,omitempty"`
	ImageData []byte `json:"-"`
}

// Element is the canonical, normalized per-page element. BBox is always
// well-formed and clipped to page bounds. Order preserves the original
// extraction order and is the stable tie-break key for all later sorts.
type Element struct {
	ID     string        `json:"id"`
	Kind   ElementKind   `json:"kind"`
	BBox   geometry.Rect `json:"bbox"`
	Source Source        `json:"source"`
	Order  int           `json:"order"`

	Content    string    `json:"content,omitempty"`
	Style      TextStyle `json:"style,omitempty"`
	Role       TextRole  `json:"role,omitempty"`
	Confidence float64   `json:"confidence"`

	ImageRef  string `json:"image_ref,omitempty"`
	ImageData []byte `json:"-"`
}

// LineHeight returns the nominal line height of a text element, falling back
// to the box height when font metadata is absent.
func (e Element) LineHeight() float64 {
	if e.Style.FontSize > 0 {
		return e.Style.FontSize * 1.2
	}
	return e.BBox.Height()
}

// Block is a coherent group of text spans forming one visual text block
// (a title, a bullet list, a caption). Produced by the span grouper,
// arbitrated against the vision guess, and resolved into a final text box.
type Block struct {
	ID         string        `json:"id"`
	BBox       geometry.Rect `json:"bbox"` // page space, union of span boxes
	Source     Source        `json:"source"`
	Order      int           `json:"order"` // lowest span order, stable tie-break
	Role       TextRole      `json:"role"`
	Confidence float64       `json:"confidence"`
	Spans      []Element     `json:"spans"`
}

// Text returns the block content with one line per span.
func (b Block) Text() string {
	switch len(b.Spans) {
	case 0:
		return ""
	case 1:
		return b.Spans[0].Content
	}
	out := b.Spans[0].Content
	for _, s := range b.Spans[1:] {
		out += "\n" + s.Content
	}
	return out
}

// MaxFontSize returns the largest span font size in the block.
func (b Block) MaxFontSize() float64 {
	var max float64
	for _, s := range b.Spans {
		if s.Style.FontSize > max {
			max = s.Style.FontSize
		}
	}
	return max
}

// VisionText is one text element in a vision-model layout guess. Boxes are
// in rendered-image pixel space (top-left origin) at the analysis DPI.
type VisionText struct {
	Text       string        `json:"text"`
	BBox       geometry.Rect `json:"bbox"`
	Role       TextRole      `json:"role"`
	FontSize   string        `json:"font_size,omitempty"` // large|medium|small
	Confidence float64       `json:"confidence"`
}

// VisionGraphic is one graphic element in a vision-model layout guess.
type VisionGraphic struct {
	Type        string        `json:"type"` // icon|diagram|chart|image|decoration
	BBox        geometry.Rect `json:"bbox"`
	Description string        `json:"description,omitempty"`
	Confidence  float64       `json:"confidence"`
}

// VisionBackground is the vision model's declared background region.
type VisionBackground struct {
	BBox        geometry.Rect `json:"bbox"`
	Description string        `json:"description,omitempty"`
	Confidence  float64       `json:"confidence"`
}

// VisionGuess is the optional, page-scoped semantic signal. It may be absent
// (API failure, vision disabled); absence is a normal input, never an error.
type VisionGuess struct {
	PageIndex         int               `json:"page_index"`
	ImageWidth        int               `json:"image_width"`  // analysis render, pixels
	ImageHeight       int               `json:"image_height"` // analysis render, pixels
	Background        *VisionBackground `json:"background,omitempty"`
	TextElements      []VisionText      `json:"text_elements"`
	Graphics          []VisionGraphic   `json:"graphics"`
	LayoutType        string            `json:"layout_type,omitempty"`
	OverallConfidence float64           `json:"overall_confidence"`
}

// TextRun is one styled run inside a final text box.
type TextRun struct {
	Text     string  `json:"text"`
	FontName string  `json:"font_name,omitempty"`
	SizePt   float64 `json:"size_pt"`
	Bold     bool    `json:"bold,omitempty"`
	Italic   bool    `json:"italic,omitempty"`
	Color    uint32  `json:"color,omitempty"`
}

// TextBox is one independently editable text box in the final layout.
// BBox is in output space (EMUs, top-left origin).
type TextBox struct {
	BBox   geometry.Rect `json:"bbox"`
	Runs   []TextRun     `json:"runs"`
	Role   TextRole      `json:"role"`
	ZOrder int           `json:"z_order"`
	// Fill, when non-nil, is a backing rectangle color (0xAARRGGBB) placed
	// behind the text for readability against the background image.
	Fill *uint32 `json:"fill,omitempty"`
}

// Graphic is a non-background image object (diagram, icon) placed above the
// background and below text.
type Graphic struct {
	BBox        geometry.Rect `json:"bbox"` // output space EMUs
	ZOrder      int           `json:"z_order"`
	ImagePath   string        `json:"image_path,omitempty"`
	ImageData   []byte        `json:"-"`
	Description string        `json:"description,omitempty"`
}

// Background is the single resolved background image of a slide.
type Background struct {
	BBox      geometry.Rect `json:"bbox"` // output space EMUs
	ImagePath string        `json:"image_path,omitempty"`
	ImageData []byte        `json:"-"`
}

// LayoutRecord is the final, per-page product of the pipeline, consumed
// exactly once by the external document writer. All boxes are in output
// space and lie within slide bounds; z-order places text above background.
type LayoutRecord struct {
	PageIndex      int         `json:"page_index"`
	SlideWidthEMU  float64     `json:"slide_width_emu"`
	SlideHeightEMU float64     `json:"slide_height_emu"`
	Background     *Background `json:"background,omitempty"`
	TextBoxes      []TextBox   `json:"text_boxes"`
	Graphics       []Graphic   `json:"graphics"`
}

// PageStatus summarizes how a page fared in the run.
type PageStatus string

const (
	// StatusOK means the page resolved with no warnings.
	StatusOK PageStatus = "ok"
	// StatusDegraded means the page resolved but with recoverable warnings
	// (vision absent, dropped elements, clipped boxes).
	StatusDegraded PageStatus = "degraded"
	// StatusFailed means the page could not be resolved and was skipped.
	StatusFailed PageStatus = "failed"
	// StatusSkipped means the run was cancelled before the page started.
	StatusSkipped PageStatus = "skipped"
)

// Warning is a recoverable degradation recorded against a page.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warning codes for degraded extraction.
const (
	WarnDegenerateElement = "DEGENERATE_ELEMENT"
	WarnWatermarkText     = "WATERMARK_TEXT"
	WarnVisionAbsent      = "VISION_ABSENT"
	WarnVisionLowTrust    = "VISION_LOW_TRUST"
	WarnOutOfBounds       = "OUT_OF_BOUNDS"
	WarnTextInGraphic     = "TEXT_IN_GRAPHIC"
	WarnImageBBoxApprox   = "IMAGE_BBOX_APPROXIMATE"
	WarnRenderFailed      = "RENDER_FAILED"
)

// PageResult is the per-page outcome collected into the run report.
type PageResult struct {
	PageIndex  int           `json:"page_index"`
	Status     PageStatus    `json:"status"`
	UsedVision bool          `json:"used_vision"`
	Warnings   []Warning     `json:"warnings,omitempty"`
	Error      string        `json:"error,omitempty"`
	Record     *LayoutRecord `json:"-"`
}
