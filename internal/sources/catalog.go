// Package sources describes the external licensing boards and directories
// the pipeline scrapes. Each source is identified by a stable code that
// appears in work items, queue state, and rate-limit rows.
package sources

import (
	"fmt"
	"sort"
	"strings"
)

// Source describes one external board or directory.
type Source struct {
	Code              string
	Name              string
	URLTemplate       string
	RequestsPerSecond float64
	Render            bool
	WaitCondition     string
	Category          string
	Regions           []string
}

// TargetURL resolves the query URL for a region and geo code.
func (s Source) TargetURL(regionCode, geoCode string) string {
	r := strings.NewReplacer("{region}", regionCode, "{geo}", geoCode)
	return r.Replace(s.URLTemplate)
}

// ServesRegion reports whether the source covers the region.
func (s Source) ServesRegion(regionCode string) bool {
	for _, r := range s.Regions {
		if r == regionCode {
			return true
		}
	}
	return false
}

// Catalog is a read-only registry of configured sources.
type Catalog struct {
	sources map[string]Source
}

// NewCatalog builds a catalog from the given sources.
func NewCatalog(srcs []Source) (*Catalog, error) {
	m := make(map[string]Source, len(srcs))
	for _, s := range srcs {
		if s.Code == "" {
			return nil, fmt.Errorf("source code is required")
		}
		if _, dup := m[s.Code]; dup {
			return nil, fmt.Errorf("duplicate source code %q", s.Code)
		}
		if s.RequestsPerSecond <= 0 {
			s.RequestsPerSecond = 1
		}
		m[s.Code] = s
	}
	return &Catalog{sources: m}, nil
}

// Default returns the built-in catalog of boards and directories.
func Default() *Catalog {
	c, err := NewCatalog([]Source{
		{
			Code:              "fl-dbpr",
			Name:              "Florida Department of Business and Professional Regulation",
			URLTemplate:       "https://www.myfloridalicense.com/wl11.asp?mode=2&search=County&county={geo}",
			RequestsPerSecond: 0.5,
			Render:            true,
			WaitCondition:     "table.license-results",
			Category:          "contractor",
			Regions:           []string{"FL"},
		},
		{
			Code:              "tx-tdlr",
			Name:              "Texas Department of Licensing and Regulation",
			URLTemplate:       "https://www.tdlr.texas.gov/LicenseSearch/licsearch.asp?county={geo}",
			RequestsPerSecond: 1,
			Category:          "contractor",
			Regions:           []string{"TX"},
		},
		{
			Code:              "ca-cslb",
			Name:              "California Contractors State License Board",
			URLTemplate:       "https://www.cslb.ca.gov/OnlineServices/CheckLicenseII/ZipCodeSearch.aspx?zip={geo}",
			RequestsPerSecond: 0.5,
			Category:          "contractor",
			Regions:           []string{"CA"},
		},
		{
			Code:              "bizdir",
			Name:              "Regional business directory",
			URLTemplate:       "https://directory.example.com/{region}/area/{geo}/home-services",
			RequestsPerSecond: 2,
			Category:          "home_services",
			Regions:           []string{"FL", "TX", "CA"},
		},
	})
	if err != nil {
		// The built-in catalog is static; a failure here is a programming error.
		panic(err)
	}
	return c
}

// Get returns the source for a code.
func (c *Catalog) Get(code string) (Source, bool) {
	s, ok := c.sources[code]
	return s, ok
}

// ForRegion lists sources covering the region, in stable code order.
func (c *Catalog) ForRegion(regionCode string) []Source {
	var out []Source
	for _, s := range c.sources {
		if s.ServesRegion(regionCode) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Codes lists all source codes in stable order.
func (c *Catalog) Codes() []string {
	out := make([]string, 0, len(c.sources))
	for code := range c.sources {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
