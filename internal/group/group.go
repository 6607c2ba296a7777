// Package group clusters normalized text spans into coherent blocks. The
// extractor's own block structure is never trusted on flattened decks, so
// blocks are rebuilt from span positions alone: spans that read as one visual
// unit (a title, a bullet list) merge, spans across layout gaps stay apart.
package group

import (
	"fmt"
	"math"
	"sort"

	"slide-reconstructor/internal/config"
	"slide-reconstructor/internal/logger"
	"slide-reconstructor/internal/slide"
)

// Grouper merges text spans into blocks.
type Grouper struct {
	cfg *config.Config
}

// NewGrouper creates a Grouper with the given configuration.
func NewGrouper(cfg *config.Config) *Grouper {
	return &Grouper{cfg: cfg}
}

// Group clusters the page's text spans into blocks and returns the blocks
// in reading order (top to bottom, then left to right). Image elements are
// returned separately, untouched. The clustering is deterministic: spans are
// visited in reading order with extraction order as the tie-break, and each
// span joins the best-matching open block or starts its own. A span that
// matches nothing becomes a single-span block.
func (g *Grouper) Group(pageIndex int, elements []slide.Element) ([]slide.Block, []slide.Element) {
	var spans []slide.Element
	var images []slide.Element
	for _, el := range elements {
		if el.Kind == slide.KindText {
			spans = append(spans, el)
		} else {
			images = append(images, el)
		}
	}

	// Reading order in page space: larger Y is higher on the page.
	sort.SliceStable(spans, func(i, j int) bool {
		a, b := spans[i], spans[j]
		if a.BBox.Y1 != b.BBox.Y1 {
			return a.BBox.Y1 > b.BBox.Y1
		}
		if a.BBox.X0 != b.BBox.X0 {
			return a.BBox.X0 < b.BBox.X0
		}
		return a.Order < b.Order
	})

	var blocks []slide.Block
	for _, span := range spans {
		best := -1
		bestGap := math.MaxFloat64
		for i := range blocks {
			gap, ok := g.accepts(blocks[i], span)
			if !ok {
				continue
			}
			if gap < bestGap || (gap == bestGap && best >= 0 && blocks[i].Order < blocks[best].Order) {
				best = i
				bestGap = gap
			}
		}

		if best >= 0 {
			blocks[best].Spans = append(blocks[best].Spans, span)
			blocks[best].BBox = blocks[best].BBox.Union(span.BBox)
			if span.Order < blocks[best].Order {
				blocks[best].Order = span.Order
			}
			continue
		}

		blocks = append(blocks, slide.Block{
			BBox:       span.BBox,
			Source:     slide.SourceGeometry,
			Order:      span.Order,
			Role:       slide.RoleUnknown,
			Confidence: 1.0,
			Spans:      []slide.Element{span},
		})
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		a, b := blocks[i], blocks[j]
		if a.BBox.Y1 != b.BBox.Y1 {
			return a.BBox.Y1 > b.BBox.Y1
		}
		if a.BBox.X0 != b.BBox.X0 {
			return a.BBox.X0 < b.BBox.X0
		}
		return a.Order < b.Order
	})
	for i := range blocks {
		blocks[i].ID = fmt.Sprintf("block_%d_%d", pageIndex, i)
	}

	logger.Debug("grouped spans into blocks",
		logger.Int("page", pageIndex),
		logger.Int("spans", len(spans)),
		logger.Int("blocks", len(blocks)))

	return blocks, images
}

// accepts reports whether span continues block, returning the vertical gap
// used to rank competing blocks. A span continues a block either on the same
// line (centers aligned, horizontally adjacent) or as the next line (vertical
// gap within the line-height multiple, left edges aligned or x-ranges
// overlapping). A slight negative gap tolerates line boxes that overlap.
func (g *Grouper) accepts(b slide.Block, span slide.Element) (float64, bool) {
	last := b.Spans[len(b.Spans)-1]
	lineHeight := math.Max(last.LineHeight(), span.LineHeight())
	xTol := g.cfg.GroupXAlignTolerancePt

	// Same line continuation.
	_, lastCY := last.BBox.Center()
	_, spanCY := span.BBox.Center()
	if math.Abs(lastCY-spanCY) < lineHeight*0.5 {
		hGap := span.BBox.X0 - b.BBox.X1
		if hGap >= -xTol && hGap <= lineHeight {
			return 0, true
		}
		return 0, false
	}

	// Next line: measured from the block's bottom edge to the span's top.
	vGap := b.BBox.Y0 - span.BBox.Y1
	if vGap < -5 || vGap > lineHeight*g.cfg.LineHeightMultiple {
		return 0, false
	}

	leftAligned := math.Abs(b.BBox.X0-span.BBox.X0) <= xTol
	xOverlap := span.BBox.X0 < b.BBox.X1 && span.BBox.X1 > b.BBox.X0
	if !leftAligned && !xOverlap {
		return 0, false
	}
	return math.Max(vGap, 0), true
}
