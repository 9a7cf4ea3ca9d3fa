// Package model defines the canonical company record shared by every data source.
package model

import (
	"math"
	"strings"
)

// DefaultAddress is used when a source carries no address information at all.
const DefaultAddress = "Los Angeles, CA"

// Company is the canonical, source-independent company record.
type Company struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Lat        float64  `json:"lat"`
	Lng        float64  `json:"lng"`
	Address    string   `json:"address"`
	Website    string   `json:"website,omitempty"`
	CareersURL string   `json:"careers_url"`
	Tags       []string `json:"tags"`
}

// Valid reports whether the record satisfies the invariants every result set
// relies on: a non-empty name and finite coordinates.
func (c Company) Valid() bool {
	if strings.TrimSpace(c.Name) == "" {
		return false
	}
	return isFinite(c.Lat) && isFinite(c.Lng)
}

// NormalizeURL trims the value, prefixes bare "www." hosts with https://,
// and passes everything else through unchanged.
func NormalizeURL(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "www.") {
		return "https://" + trimmed
	}
	return trimmed
}

// JoinNonEmpty trims each part and joins the non-empty ones with sep.
func JoinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
