package importer

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var cellPolicy = bluemonday.StrictPolicy()

// CleanCell strips markup and collapses whitespace in a spreadsheet cell.
func CleanCell(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	sanitized := html.UnescapeString(cellPolicy.Sanitize(value))
	return strings.Join(strings.Fields(sanitized), " ")
}
