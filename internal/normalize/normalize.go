// Package normalize turns raw extracted text into a canonical plain-text
// form, independent of the source format. Normalize is pure, total, and
// idempotent: Normalize(Normalize(x)) == Normalize(x) for all x.
package normalize

import (
	"regexp"
	"strings"
)

var (
	carriageReturns = regexp.MustCompile(`\r+`)
	tabRuns         = regexp.MustCompile(`\t+`)
	spaceRuns       = regexp.MustCompile(` {2,}`)
	pageNofM        = regexp.MustCompile(`(?i)Page \d+ of \d+`)
	pageN           = regexp.MustCompile(`(?i)Page \d+`)
	dotRuns         = regexp.MustCompile(`\.{3,}`)
	dashRuns        = regexp.MustCompile(`-{2,}`)
	urls            = regexp.MustCompile(`https?://[^\s]+`)
	emails          = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	bulletGlyphs    = regexp.MustCompile(`(?m)^[ \t]*[•·▪▫‣⁃][ \t]*`)
	bulletMarkers   = regexp.MustCompile(`(?m)^[ \t]*[*-][ \t]+`)
	blankLineRuns   = regexp.MustCompile(`\n[ \t]*\n([ \t]*\n)+`)
	trailingSpace   = regexp.MustCompile(`(?m)[ \t]+$`)
	leadingSpace    = regexp.MustCompile(`(?m)^[ \t]+`)
)

// Normalize cleans raw text into its canonical form. The transformation
// order matters: page-marker stripping must run before whitespace collapse
// would merge the surrounding lines, and blank-line collapse runs last so
// earlier removals cannot reintroduce empty runs.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	text := carriageReturns.ReplaceAllString(raw, "")
	text = tabRuns.ReplaceAllString(text, " ")

	text = pageNofM.ReplaceAllString(text, "")
	text = pageN.ReplaceAllString(text, "")

	text = dotRuns.ReplaceAllString(text, "...")
	text = dashRuns.ReplaceAllString(text, "--")

	text = urls.ReplaceAllString(text, "")
	text = emails.ReplaceAllString(text, "")

	text = bulletGlyphs.ReplaceAllString(text, "• ")
	text = bulletMarkers.ReplaceAllString(text, "• ")

	text = spaceRuns.ReplaceAllString(text, " ")
	text = trailingSpace.ReplaceAllString(text, "")
	text = leadingSpace.ReplaceAllString(text, "")
	text = blankLineRuns.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
