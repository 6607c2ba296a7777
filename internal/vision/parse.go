package vision

import (
	"encoding/json"
	"fmt"
	"strings"

	"slide-reconstructor/internal/geometry"
	"slide-reconstructor/internal/slide"
)

// Wire types for the model's JSON response. Boxes arrive as [x0,y0,x1,y1]
// arrays in image pixel coordinates.
type wireGuess struct {
	TextElements      []wireText    `json:"text_elements"`
	Graphics          []wireGraphic `json:"graphics"`
	BackgroundImage   *wireRegion   `json:"background_image"`
	LayoutType        string        `json:"layout_type"`
	OverallConfidence float64       `json:"overall_confidence"`
}

type wireText struct {
	Text       string    `json:"text"`
	BBox       []float64 `json:"bbox"`
	Role       string    `json:"role"`
	FontSize   string    `json:"font_size"`
	Confidence float64   `json:"confidence"`
}

type wireGraphic struct {
	Type        string    `json:"type"`
	BBox        []float64 `json:"bbox"`
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence"`
}

type wireRegion struct {
	BBox        []float64 `json:"bbox"`
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence"`
}

// ParseGuess parses and validates a model response into a VisionGuess. The
// response may be wrapped in markdown code fences. A response that does not
// parse into the expected schema is an error; the caller treats it as an
// absent guess. Individual elements with malformed boxes are dropped rather
// than failing the whole guess.
func ParseGuess(raw string, pageIndex, imageWidth, imageHeight int) (*slide.VisionGuess, error) {
	if imageWidth <= 0 || imageHeight <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", imageWidth, imageHeight)
	}

	cleaned := stripCodeFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty vision response")
	}

	var wire wireGuess
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return nil, fmt.Errorf("vision response is not valid JSON: %w", err)
	}
	if len(wire.TextElements) == 0 && len(wire.Graphics) == 0 && wire.BackgroundImage == nil {
		return nil, fmt.Errorf("vision response contains no layout elements")
	}

	imageBounds := geometry.Rect{X1: float64(imageWidth), Y1: float64(imageHeight)}
	guess := &slide.VisionGuess{
		PageIndex:         pageIndex,
		ImageWidth:        imageWidth,
		ImageHeight:       imageHeight,
		LayoutType:        wire.LayoutType,
		OverallConfidence: clamp01(wire.OverallConfidence),
	}

	for _, t := range wire.TextElements {
		bbox, ok := parseBBox(t.BBox, imageBounds)
		if !ok || strings.TrimSpace(t.Text) == "" {
			continue
		}
		guess.TextElements = append(guess.TextElements, slide.VisionText{
			Text:       RepairSpacing(t.Text),
			BBox:       bbox,
			Role:       parseRole(t.Role),
			FontSize:   t.FontSize,
			Confidence: clamp01(t.Confidence),
		})
	}

	for _, g := range wire.Graphics {
		bbox, ok := parseBBox(g.BBox, imageBounds)
		if !ok {
			continue
		}
		guess.Graphics = append(guess.Graphics, slide.VisionGraphic{
			Type:        g.Type,
			BBox:        bbox,
			Description: g.Description,
			Confidence:  clamp01(g.Confidence),
		})
	}

	if wire.BackgroundImage != nil {
		if bbox, ok := parseBBox(wire.BackgroundImage.BBox, imageBounds); ok {
			guess.Background = &slide.VisionBackground{
				BBox:        bbox,
				Description: wire.BackgroundImage.Description,
				Confidence:  clamp01(wire.BackgroundImage.Confidence),
			}
		}
	}

	if len(guess.TextElements) == 0 && len(guess.Graphics) == 0 && guess.Background == nil {
		return nil, fmt.Errorf("vision response contains no usable elements")
	}
	return guess, nil
}

// stripCodeFences removes a surrounding markdown code fence, with or without
// a language tag, and falls back to the outermost JSON object when the model
// wraps its answer in prose.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		return strings.TrimSpace(s)
	}

	if !strings.HasPrefix(s, "{") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start >= 0 && end > start {
			return s[start : end+1]
		}
	}
	return s
}

// parseBBox converts a [x0,y0,x1,y1] array into a well-formed box clipped to
// the image bounds. Degenerate or out-of-image boxes are rejected.
func parseBBox(coords []float64, bounds geometry.Rect) (geometry.Rect, bool) {
	if len(coords) != 4 {
		return geometry.Rect{}, false
	}
	r := geometry.NewRect(coords[0], coords[1], coords[2], coords[3])
	if !r.IsValid() {
		return geometry.Rect{}, false
	}
	return r.Clip(bounds)
}

func parseRole(role string) slide.TextRole {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "title":
		return slide.RoleTitle
	case "subtitle":
		return slide.RoleSubtitle
	case "body":
		return slide.RoleBody
	case "caption":
		return slide.RoleCaption
	case "label":
		return slide.RoleLabel
	default:
		return slide.RoleUnknown
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
