package dataset

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/mapvia/internal/geocode"
	"github.com/sells-group/mapvia/internal/model"
)

// DefaultBuildBBox bounds accepted geocoder results around Los Angeles.
var DefaultBuildBBox = model.NewBBox(-118.7, 33.7, -118.1, 34.4)

// Failure reasons recorded by Build.
const (
	ReasonNoResults = "no_results"
	ReasonOutOfBBox = "out_of_bbox"
	ReasonError     = "error"
)

// legalSuffixes are dropped when comparing company names.
var legalSuffixes = map[string]struct{}{
	"inc": {}, "llc": {}, "ltd": {}, "corp": {}, "corporation": {},
	"company": {}, "co": {}, "incorporated": {},
}

// RawCompany is one crawled record, before cleaning and geocoding.
type RawCompany struct {
	Name       string  `json:"name"`
	Website    string  `json:"website"`
	CareersURL string  `json:"careers_url"`
	Tags       RawTags `json:"tags"`
}

// RawTags accepts either a JSON list of strings or a single "|"-joined string.
type RawTags []string

// UnmarshalJSON implements json.Unmarshaler.
func (t *RawTags) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return eris.Wrap(err, "dataset: tags must be a string or a list of strings")
	}
	*t = SplitTags(s)
	return nil
}

// ReadRaw decodes a JSON array of crawled records.
func ReadRaw(r io.Reader) ([]RawCompany, error) {
	var raw []RawCompany
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "dataset: decode raw companies")
	}
	return raw, nil
}

// NormalizeName folds a company name for duplicate detection: lowercase,
// punctuation replaced by spaces, legal suffixes removed, whitespace collapsed.
func NormalizeName(name string) string {
	lowered := cases.Lower(language.Und).String(name)
	spaced := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return ' '
	}, lowered)

	words := strings.Fields(spaced)
	kept := words[:0]
	for _, w := range words {
		if _, ok := legalSuffixes[w]; !ok {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// Dedupe drops records with a blank name and keeps the first record for
// each normalized name.
func Dedupe(raw []RawCompany) []RawCompany {
	seen := make(map[string]struct{}, len(raw))
	out := make([]RawCompany, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.Name) == "" {
			continue
		}
		key := NormalizeName(r.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// CleanURL returns the normalized value when it is an absolute http(s) URL
// with a host, and "" otherwise.
func CleanURL(value string) string {
	v := model.NormalizeURL(value)
	if v == "" {
		return ""
	}
	u, err := url.Parse(v)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return v
}

// Resolver geocodes a query, reporting whether the answer was cached.
type Resolver interface {
	Resolve(ctx context.Context, query string) (geocode.Result, bool, error)
}

// BuildRow is one output row. Located is false when no accepted coordinates
// were found.
type BuildRow struct {
	Name       string
	Lat        float64
	Lng        float64
	Located    bool
	Address    string
	City       string
	State      string
	Website    string
	CareersURL string
	Tags       []string
}

// Failure records a record that could not be placed on the map.
type Failure struct {
	Name   string
	Query  string
	Reason string
}

// BuildStats summarizes a Build run.
type BuildStats struct {
	Input int
	// Skipped counts blank-named and duplicate records.
	Skipped   int
	Located   int
	CacheHits int
	Failed    int
}

// BuildResult is the output of Build.
type BuildResult struct {
	Rows     []BuildRow
	Failures []Failure
	Stats    BuildStats
}

// BuildOption configures a Builder.
type BuildOption func(*Builder)

// WithBuildBBox sets the area geocoder results must fall inside.
func WithBuildBBox(b model.BBox) BuildOption {
	return func(bl *Builder) {
		bl.bbox = b
	}
}

// WithLocality sets the city and state appended to geocoder queries and
// written to every row.
func WithLocality(city, state string) BuildOption {
	return func(bl *Builder) {
		bl.city = city
		bl.state = state
	}
}

// Builder turns crawled records into a dataset snapshot.
type Builder struct {
	resolver Resolver
	bbox     model.BBox
	city     string
	state    string
}

// NewBuilder creates a Builder. A nil resolver skips geocoding; rows are
// then written without coordinates.
func NewBuilder(resolver Resolver, opts ...BuildOption) *Builder {
	b := &Builder{
		resolver: resolver,
		bbox:     DefaultBuildBBox,
		city:     "Los Angeles",
		state:    "CA",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build dedupes, cleans and geocodes raw. Records that fail to geocode are
// still emitted without coordinates and listed in Failures. It stops early
// only when ctx is done.
func (b *Builder) Build(ctx context.Context, raw []RawCompany) (BuildResult, error) {
	unique := Dedupe(raw)
	res := BuildResult{
		Rows:  make([]BuildRow, 0, len(unique)),
		Stats: BuildStats{Input: len(raw), Skipped: len(raw) - len(unique)},
	}

	for _, r := range unique {
		row := BuildRow{
			Name:       strings.TrimSpace(r.Name),
			City:       b.city,
			State:      b.state,
			Website:    CleanURL(r.Website),
			CareersURL: CleanURL(r.CareersURL),
			Tags:       cleanTags(r.Tags),
		}

		if b.resolver != nil {
			if err := b.locate(ctx, &row, &res); err != nil {
				return res, err
			}
		}
		res.Rows = append(res.Rows, row)
	}

	res.Stats.Failed = len(res.Failures)
	zap.L().Info("dataset: build complete",
		zap.Int("input", res.Stats.Input),
		zap.Int("skipped", res.Stats.Skipped),
		zap.Int("rows", len(res.Rows)),
		zap.Int("located", res.Stats.Located),
		zap.Int("cache_hits", res.Stats.CacheHits),
		zap.Int("failed", res.Stats.Failed),
	)
	return res, nil
}

func (b *Builder) locate(ctx context.Context, row *BuildRow, res *BuildResult) error {
	query := model.JoinNonEmpty(", ", row.Name, b.city, b.state)
	fail := func(reason string) {
		res.Failures = append(res.Failures, Failure{Name: row.Name, Query: query, Reason: reason})
	}

	g, cached, err := b.resolver.Resolve(ctx, query)
	if cached {
		res.Stats.CacheHits++
	}
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "dataset: build cancelled")
		}
		zap.L().Warn("dataset: geocode failed", zap.String("query", query), zap.Error(err))
		fail(ReasonError)
	case !g.Found:
		fail(ReasonNoResults)
	case !b.bbox.Contains(g.Lat, g.Lng):
		fail(ReasonOutOfBBox)
	default:
		row.Lat, row.Lng, row.Located = g.Lat, g.Lng, true
		row.Address = g.Address
		res.Stats.Located++
	}
	return nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// WriteRows writes rows in the snapshot layout read by Normalize.
// Coordinates carry six decimals; unlocated rows leave them blank.
func WriteRows(w io.Writer, rows []BuildRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		ColName, ColLat, ColLng, ColAddress, ColCity, ColState, ColWebsite, ColCareersURL, ColTags,
	}); err != nil {
		return eris.Wrap(err, "dataset: write header")
	}
	for _, r := range rows {
		var lat, lng string
		if r.Located {
			lat = strconv.FormatFloat(r.Lat, 'f', 6, 64)
			lng = strconv.FormatFloat(r.Lng, 'f', 6, 64)
		}
		if err := cw.Write([]string{
			r.Name, lat, lng, r.Address, r.City, r.State, r.Website, r.CareersURL, JoinTags(r.Tags),
		}); err != nil {
			return eris.Wrap(err, "dataset: write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "dataset: flush rows")
	}
	return nil
}

// WriteFailures writes the name,query,reason failure log.
func WriteFailures(w io.Writer, failures []Failure) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "query", "reason"}); err != nil {
		return eris.Wrap(err, "dataset: write failures header")
	}
	for _, f := range failures {
		if err := cw.Write([]string{f.Name, f.Query, f.Reason}); err != nil {
			return eris.Wrap(err, "dataset: write failure")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "dataset: flush failures")
	}
	return nil
}
