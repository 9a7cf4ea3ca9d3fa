// Package overpass queries the public OpenStreetMap Overpass API for
// businesses inside a bounding box and maps them to canonical records.
package overpass

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sells-group/mapvia/internal/model"
)

// Categories are the OSM keys whose presence marks a feature as a business.
var Categories = []string{"office", "shop", "craft", "industrial"}

// DefaultResultLimit caps the number of features returned per query.
const DefaultResultLimit = 200

// regexMeta lists the characters EscapeRegex prefixes with a backslash.
const regexMeta = `.*+?^${}()|[]\`

// EscapeRegex escapes every regular-expression metacharacter in s so it
// matches literally.
func EscapeRegex(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(regexMeta, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// QuoteString escapes s for use inside a double-quoted OverpassQL string.
func QuoteString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Query describes one Overpass lookup.
type Query struct {
	BBox model.BBox
	// Term is the raw user search term; empty matches any named feature.
	Term string
	// Limit caps the result count. 0 means DefaultResultLimit.
	Limit int
	// TimeoutSecs is the server-side timeout. 0 means 10.
	TimeoutSecs int
}

// Pattern returns the regex-escaped search term.
func (q Query) Pattern() string {
	return EscapeRegex(strings.TrimSpace(q.Term))
}

// CacheKey identifies the query for result caching.
func (q Query) CacheKey() string {
	return q.BBox.String() + "|" + q.Pattern()
}

// nameFilter matches features whose name contains the term, ignoring case.
func (q Query) nameFilter() string {
	p := q.Pattern()
	if p == "" {
		return `["name"]`
	}
	return `["name"~"` + QuoteString(p) + `",i]`
}

// String renders the OverpassQL program.
func (q Query) String() string {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultResultLimit
	}
	timeout := q.TimeoutSecs
	if timeout <= 0 {
		timeout = 10
	}

	// Overpass bboxes are (south,west,north,east).
	bbox := strings.Join([]string{
		formatCoord(q.BBox.MinLat()),
		formatCoord(q.BBox.MinLng()),
		formatCoord(q.BBox.MaxLat()),
		formatCoord(q.BBox.MaxLng()),
	}, ",")

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", timeout)
	name := q.nameFilter()
	for _, cat := range Categories {
		fmt.Fprintf(&b, "  nwr%s[%q](%s);\n", name, cat, bbox)
	}
	fmt.Fprintf(&b, ");\nout center %d;\n", limit)
	return b.String()
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
