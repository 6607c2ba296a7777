// Package dedup removes duplicate text elements produced by redundant PDF
// layers. Flattened slide exports frequently carry a hidden OCR or indexing
// text layer sitting almost exactly on top of the visible one; extraction
// yields each string twice at nearly the same position.
package dedup

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"slide-reconstructor/internal/config"
	"slide-reconstructor/internal/logger"
	"slide-reconstructor/internal/slide"
)

// Deduplicator collapses near-coincident duplicate text elements.
type Deduplicator struct {
	cfg *config.Config
}

// NewDeduplicator creates a Deduplicator with the given configuration.
func NewDeduplicator(cfg *config.Config) *Deduplicator {
	return &Deduplicator{cfg: cfg}
}

// Dedup returns the elements with duplicate text collapsed. Two text elements
// are duplicates when their boxes overlap by at least the configured ratio
// (intersection over the smaller area) and their normalized content is
// near-identical. An element that duplicates several kept elements links them
// into one cluster; a cluster keeps exactly one survivor. Among duplicates
// the visible element survives; when both or neither are visible, the earlier
// extraction order wins. Image elements pass through untouched. The operation
// is idempotent and order-preserving.
func (d *Deduplicator) Dedup(elements []slide.Element) []slide.Element {
	kept := make([]slide.Element, 0, len(elements))
	keys := make([]string, 0, len(elements))
	dropped := 0

	for _, el := range elements {
		if el.Kind != slide.KindText {
			kept = append(kept, el)
			keys = append(keys, "")
			continue
		}

		key := normalizeContent(el.Content)
		var matches []int

		for i := range kept {
			if kept[i].Kind != slide.KindText {
				continue
			}
			if kept[i].BBox.OverlapRatio(el.BBox) < d.cfg.DedupOverlapThreshold {
				continue
			}
			if !contentMatches(keys[i], key) {
				continue
			}
			matches = append(matches, i)
		}

		if len(matches) == 0 {
			kept = append(kept, el)
			keys = append(keys, key)
			continue
		}

		// The cluster of matched elements plus the newcomer keeps one
		// survivor. Kept entries never duplicate each other, so the
		// survivor cannot pair with anything that remains.
		win := matches[0]
		for _, i := range matches[1:] {
			if preferSecond(kept[win], kept[i]) {
				win = i
			}
		}
		if preferSecond(kept[win], el) {
			kept[win] = el
			keys[win] = key
		}
		dropped++

		if len(matches) > 1 {
			remove := make(map[int]bool, len(matches)-1)
			for _, i := range matches {
				if i != win {
					remove[i] = true
				}
			}
			j := 0
			for i := range kept {
				if remove[i] {
					continue
				}
				kept[j] = kept[i]
				keys[j] = keys[i]
				j++
			}
			kept = kept[:j]
			keys = keys[:j]
			dropped += len(matches) - 1
		}
	}

	if dropped > 0 {
		logger.Debug("deduplicated text elements",
			logger.Int("in", len(elements)),
			logger.Int("dropped", dropped))
	}
	return kept
}

// preferSecond reports whether the later duplicate should replace the kept
// one. Visibility wins first; extraction order breaks ties, which means the
// kept (earlier) element stays unless the newcomer is strictly better.
func preferSecond(kept, candidate slide.Element) bool {
	if kept.Style.Visible != candidate.Style.Visible {
		return candidate.Style.Visible
	}
	return false
}

// normalizeContent canonicalizes text for duplicate comparison: Unicode NFC,
// case folding, and removal of all whitespace. OCR layers often differ from
// the visible layer only in spacing and composition form.
func normalizeContent(s string) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// contentMatches reports whether two normalized strings are near-identical:
// equal, or one wholly contains the other (a layer may carry a truncated or
// padded variant of the same string).
func contentMatches(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	// The shorter string must cover most of the longer one to count.
	if float64(len(a)) < 0.8*float64(len(b)) {
		return false
	}
	return strings.Contains(b, a)
}
