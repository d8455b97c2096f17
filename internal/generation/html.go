package generation

import (
	"html"
	"regexp"
	"strings"
)

var spaceRun = regexp.MustCompile(` {2,}`)

// NormalizeContent escapes markup and converts whitespace into HTML that
// renders the same way: runs of two or more spaces become &nbsp; entities,
// tabs become &emsp; and newlines become <br>.
func NormalizeContent(text string) string {
	out := html.EscapeString(text)
	out = strings.ReplaceAll(out, "\r\n", "\n")
	out = spaceRun.ReplaceAllStringFunc(out, func(run string) string {
		return strings.Repeat("&nbsp;", len(run))
	})
	out = strings.ReplaceAll(out, "\t", "&emsp;")
	out = strings.ReplaceAll(out, "\n", "<br>")
	return out
}
