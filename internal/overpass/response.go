package overpass

import (
	"strconv"
	"strings"

	"github.com/sells-group/mapvia/internal/model"
)

// tagKeys are copied into Company.Tags, in this order, when present.
var tagKeys = []string{"office", "shop", "craft", "amenity", "industrial"}

type response struct {
	Remark   string    `json:"remark,omitempty"`
	Elements []element `json:"elements"`
}

type element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat,omitempty"`
	Lon    *float64          `json:"lon,omitempty"`
	Center *center           `json:"center,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

type center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// coords resolves point coordinates, falling back to the area centroid.
func (e element) coords() (lat, lon float64, ok bool) {
	switch {
	case e.Lat != nil:
		lat = *e.Lat
	case e.Center != nil:
		lat = e.Center.Lat
	default:
		return 0, 0, false
	}
	switch {
	case e.Lon != nil:
		lon = *e.Lon
	case e.Center != nil:
		lon = e.Center.Lon
	default:
		return 0, 0, false
	}
	return lat, lon, true
}

// toCompanies maps elements to records, dropping unnamed or unplaced features.
func toCompanies(elements []element) []model.Company {
	out := make([]model.Company, 0, len(elements))
	for _, e := range elements {
		c, ok := toCompany(e)
		if !ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

func toCompany(e element) (model.Company, bool) {
	name := strings.TrimSpace(e.Tags["name"])
	if name == "" {
		return model.Company{}, false
	}
	lat, lon, ok := e.coords()
	if !ok {
		return model.Company{}, false
	}

	website := e.Tags["website"]
	if strings.TrimSpace(website) == "" {
		website = e.Tags["contact:website"]
	}

	tags := []string{}
	for _, k := range tagKeys {
		if v := strings.TrimSpace(e.Tags[k]); v != "" {
			tags = append(tags, v)
		}
	}

	c := model.Company{
		ID:         "osm-" + e.Type + "-" + strconv.FormatInt(e.ID, 10),
		Name:       name,
		Lat:        lat,
		Lng:        lon,
		Address:    buildAddress(e.Tags),
		Website:    model.NormalizeURL(website),
		CareersURL: "",
		Tags:       tags,
	}
	return c, c.Valid()
}

// buildAddress prefers addr:full, then assembles street, city, state and
// postcode, then falls back to the placeholder.
func buildAddress(tags map[string]string) string {
	if full := strings.TrimSpace(tags["addr:full"]); full != "" {
		return full
	}
	street := model.JoinNonEmpty(" ", tags["addr:housenumber"], tags["addr:street"])
	addr := model.JoinNonEmpty(", ", street, tags["addr:city"], tags["addr:state"], tags["addr:postcode"])
	if addr == "" {
		return model.DefaultAddress
	}
	return addr
}
