// Package sanitize turns user-supplied text into plain text.
//
// Input is run through an allow-list policy that keeps no markup at all,
// then entity-decoded so the stored value is what the user typed minus any
// tags. Output escaping is left to the renderer (encoding/json escapes <, >
// and & by default).
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Text strips all markup and surrounding whitespace.
func Text(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// Line is Text with every whitespace run collapsed to one space, for
// single-line fields such as names and subjects.
func Line(s string) string {
	return strings.Join(strings.Fields(Text(s)), " ")
}
