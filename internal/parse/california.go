package parse

import (
	"regexp"

	"github.com/leadharvest/leadscraper/internal/scrape"
)

// California parses CSLB zip-code search results: runs of a bare numeric
// license number, the business name, and a single city/ZIP line.
type California struct {
	license *regexp.Regexp
}

// NewCalifornia builds the CSLB parser.
func NewCalifornia() *California {
	// CSLB numbers are purely numeric, currently 6-7 digits. A bare
	// 5-digit line would collide with ZIP codes, so those never anchor.
	return &California{
		license: regexp.MustCompile(`^\d{6,7}$`),
	}
}

// Parse scans the flattened document for license-number anchors.
func (p *California) Parse(raw []byte) ([]scrape.Licensee, error) {
	lines := textLines(raw)
	var out []scrape.Licensee
	for i := 0; i < len(lines); i++ {
		if !p.license.MatchString(lines[i]) {
			continue
		}
		rec := scrape.Licensee{LicenseNumber: lines[i]}
		j := i + 1
		if j < len(lines) && !p.license.MatchString(lines[j]) {
			// CSLB lists the business, not an individual.
			rec.Company = lines[j]
			rec.Name = lines[j]
			j++
		}
		if j < len(lines) && !p.license.MatchString(lines[j]) {
			rec.City, rec.Zip = splitCityZip(lines[j])
			j++
		}
		if rec.Name != "" {
			out = append(out, rec)
		}
		i = j - 1
	}
	return out, nil
}

var _ Parser = (*California)(nil)
