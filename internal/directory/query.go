package directory

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/mapvia/internal/model"
)

// Filter selects records. Each zero-valued field is a no-op; set fields
// combine with AND.
type Filter struct {
	BBox    model.BBox
	Keyword string
	Tags    []string
}

// Page is the query response body.
type Page struct {
	Data       []model.Company `json:"data"`
	NextCursor *string         `json:"nextCursor"`
	Total      int             `json:"total"`
	Source     string          `json:"-"`
}

// Apply returns the records that pass every active filter, in input order.
// The input slice is never modified.
func Apply(companies []model.Company, f Filter) []model.Company {
	fold := cases.Fold()

	keyword := ""
	if f.Keyword != "" {
		keyword = fold.String(f.Keyword)
	}

	var wanted map[string]struct{}
	if len(f.Tags) > 0 {
		wanted = make(map[string]struct{}, len(f.Tags))
		for _, t := range f.Tags {
			wanted[fold.String(t)] = struct{}{}
		}
	}

	out := make([]model.Company, 0, len(companies))
	for _, c := range companies {
		if !f.BBox.IsZero() && !f.BBox.Contains(c.Lat, c.Lng) {
			continue
		}
		if keyword != "" && !strings.Contains(fold.String(c.Name), keyword) {
			continue
		}
		if wanted != nil && !anyTag(c.Tags, wanted, fold) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func anyTag(tags []string, wanted map[string]struct{}, fold cases.Caser) bool {
	for _, t := range tags {
		if _, ok := wanted[fold.String(t)]; ok {
			return true
		}
	}
	return false
}

// Paginate slices items starting at offset. NextCursor is set only when
// records remain past the page; Total counts every item.
func Paginate(items []model.Company, offset, limit int) Page {
	total := len(items)
	start := min(max(offset, 0), total)
	end := min(start+max(limit, 0), total)

	page := Page{
		Data:  make([]model.Company, 0, end-start),
		Total: total,
	}
	page.Data = append(page.Data, items[start:end]...)
	if next := offset + limit; next < total {
		cursor := strconv.Itoa(next)
		page.NextCursor = &cursor
	}
	return page
}
