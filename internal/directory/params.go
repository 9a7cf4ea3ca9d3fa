// Package directory answers company queries: it picks a record source,
// filters by bounding box, keyword and tags, and paginates the result.
package directory

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mapvia/internal/model"
)

// SourceOverpass is the source parameter value that forces a live lookup.
const SourceOverpass = "overpass"

// ErrInvalidBBox is the only client-facing error.
var ErrInvalidBBox = eris.New("Invalid bbox format. Expected minLng,minLat,maxLng,maxLat.")

// Limits bounds the page size.
type Limits struct {
	Default int
	Max     int
}

// DefaultLimits is 20 per page, at most 50.
var DefaultLimits = Limits{Default: 20, Max: 50}

// Request is a parsed company query.
type Request struct {
	// BBox is zero when no box was supplied.
	BBox model.BBox
	// Keyword is trimmed and lower-cased; empty disables the filter.
	Keyword string
	// Tags are trimmed and lower-cased; empty disables the filter.
	Tags      []string
	Limit     int
	Offset    int
	ForceLive bool
}

// HasBBox reports whether the request carries a bounding box.
func (r Request) HasBBox() bool {
	return !r.BBox.IsZero()
}

// ParseRequest reads query parameters. Only a present but malformed bbox is
// an error; every other bad value falls back to its default.
func ParseRequest(v url.Values, limits Limits) (Request, error) {
	if limits.Default <= 0 {
		limits.Default = DefaultLimits.Default
	}
	if limits.Max <= 0 {
		limits.Max = DefaultLimits.Max
	}

	var req Request
	if raw := v.Get("bbox"); raw != "" {
		b, err := model.ParseBBox(raw)
		if err != nil {
			return Request{}, eris.Wrap(ErrInvalidBBox, err.Error())
		}
		req.BBox = b
	}

	req.Limit = parseLimit(v.Get("limit"), limits)
	req.Offset = parseOffset(v.Get("cursor"))
	req.Keyword = strings.ToLower(strings.TrimSpace(v.Get("q")))
	req.Tags = ParseTags(v.Get("tags"))
	req.ForceLive = v.Get("source") == SourceOverpass
	return req, nil
}

// ParseTags splits a comma-separated tag list, lower-casing and dropping empties.
func ParseTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func parseLimit(raw string, limits Limits) int {
	n, ok := parseNonNegative(raw)
	if !ok || n < 1 {
		return limits.Default
	}
	if n > limits.Max {
		return limits.Max
	}
	return n
}

func parseOffset(raw string) int {
	n, ok := parseNonNegative(raw)
	if !ok {
		return 0
	}
	return n
}

// parseNonNegative accepts any finite decimal, truncated toward zero.
func parseNonNegative(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	if f > math.MaxInt32 {
		f = math.MaxInt32
	}
	return int(f), true
}
