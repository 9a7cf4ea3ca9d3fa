// Package dataset turns the flat-file company snapshot into canonical records.
package dataset

import (
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/mapvia/internal/model"
)

// Column names looked up in the header row.
const (
	ColName       = "name"
	ColLat        = "lat"
	ColLng        = "lng"
	ColAddress    = "address"
	ColCity       = "city"
	ColState      = "state"
	ColWebsite    = "website"
	ColCareersURL = "careers_url"
	ColTags       = "tags"
)

// TagSeparator joins tags inside the tags column.
const TagSeparator = "|"

// Stats describes one normalization pass.
type Stats struct {
	Rows    int `json:"rows"`
	Kept    int `json:"kept"`
	Dropped int `json:"dropped"`
}

// Result is the output of Normalize.
type Result struct {
	Companies []model.Company
	Stats     Stats
}

// header resolves column names to indexes. Missing columns resolve to -1.
type header map[string]int

func newHeader(row []string) header {
	h := make(header, len(row))
	for i, name := range row {
		h[strings.TrimSpace(name)] = i
	}
	return h
}

// cell returns the trimmed cell for column, or "" if the column or cell is absent.
func (h header) cell(row []string, column string) string {
	idx, ok := h[column]
	if !ok || idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Normalize maps parsed rows to companies, treating rows[0] as the header.
// Rows without a name or with unusable coordinates are dropped and counted.
func Normalize(rows [][]string) Result {
	if len(rows) == 0 {
		return Result{}
	}
	h := newHeader(rows[0])

	res := Result{Companies: make([]model.Company, 0, len(rows)-1)}
	for i := 1; i < len(rows); i++ {
		res.Stats.Rows++
		c, ok := normalizeRow(h, rows[i], i)
		if !ok {
			res.Stats.Dropped++
			continue
		}
		res.Companies = append(res.Companies, c)
	}
	res.Stats.Kept = len(res.Companies)
	return res
}

func normalizeRow(h header, row []string, pos int) (model.Company, bool) {
	name := h.cell(row, ColName)
	latRaw := h.cell(row, ColLat)
	lngRaw := h.cell(row, ColLng)
	if name == "" || latRaw == "" || lngRaw == "" {
		return model.Company{}, false
	}

	lat, ok := parseCoord(latRaw)
	if !ok {
		return model.Company{}, false
	}
	lng, ok := parseCoord(lngRaw)
	if !ok {
		return model.Company{}, false
	}
	// (0,0) marks a row that was never geocoded.
	if lat == 0 && lng == 0 {
		return model.Company{}, false
	}

	address := h.cell(row, ColAddress)
	if address == "" {
		address = model.JoinNonEmpty(", ", h.cell(row, ColCity), h.cell(row, ColState))
	}
	if address == "" {
		address = model.DefaultAddress
	}

	website := model.NormalizeURL(h.cell(row, ColWebsite))
	careers := h.cell(row, ColCareersURL)
	if careers == "" {
		careers = website
	}

	return model.Company{
		ID:         "osm-" + strconv.Itoa(pos),
		Name:       name,
		Lat:        lat,
		Lng:        lng,
		Address:    address,
		Website:    website,
		CareersURL: careers,
		Tags:       SplitTags(h.cell(row, ColTags)),
	}, true
}

func parseCoord(raw string) (float64, bool) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// SplitTags splits a "|"-joined tag string, trimming and dropping empties.
func SplitTags(raw string) []string {
	tags := []string{}
	for _, t := range strings.Split(raw, TagSeparator) {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// JoinTags is the inverse of SplitTags for already-clean tags.
func JoinTags(tags []string) string {
	return strings.Join(tags, TagSeparator)
}
