package models

import "strings"

// Region is one node of the catalog hierarchy as discovered from a listing page.
type Region struct {
	Name       string `json:"name" yaml:"name"`
	ListingURL string `json:"listing_url" yaml:"listing_url"`
	SourceURL  string `json:"source_url,omitempty" yaml:"source_url,omitempty"` // empty when the row has no extract link
	Directory  string `json:"directory" yaml:"directory"`
	Depth      int    `json:"depth" yaml:"depth"`
}

// HasSource reports whether the region exposes a raw extract.
func (r Region) HasSource() bool {
	return r.SourceURL != ""
}

// CleanRegionName trims whitespace and enclosing parentheses from a listing label.
// Example: "(Baden-Württemberg)" -> "Baden-Württemberg"
func CleanRegionName(label string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(label), "()"))
}
