package vision

import "regexp"

// Vision models reading rendered text often drop the spaces between words
// that were kerned tightly in the render ("QuarterlyReview", "grew40%").
// These boundaries are safe to repair mechanically. Geometry-extracted text
// is never touched; its spacing comes from the PDF itself.
var spacingFixes = []struct {
	re   *regexp.Regexp
	repl string
}{
	// lowercase directly followed by uppercase: word boundary in camel-cased runs
	{regexp.MustCompile(`([a-z])([A-Z])`), `$1 $2`},
	// lowercase letter directly followed by a digit; uppercase stays attached
	// so designators like "Q3" survive
	{regexp.MustCompile(`([a-z])(\d)`), `$1 $2`},
	// sentence punctuation directly followed by a letter
	{regexp.MustCompile(`([.,;:!?])([a-zA-Z])`), `$1 $2`},
}

// RepairSpacing inserts the word spaces a vision model tends to drop when
// transcribing rendered slide text.
func RepairSpacing(s string) string {
	for _, f := range spacingFixes {
		s = f.re.ReplaceAllString(s, f.repl)
	}
	return s
}
