package parse

import (
	"regexp"
	"strings"

	"github.com/leadharvest/leadscraper/internal/scrape"
)

// Florida parses DBPR license search results. The rendered results table
// flattens to a repeating run of lines: license number, licensee name,
// optional DBA line, street address, then city and ZIP.
type Florida struct {
	license *regexp.Regexp
}

// NewFlorida builds the DBPR parser.
func NewFlorida() *Florida {
	// DBPR numbers are a 2-4 letter class prefix and 4-8 digits, e.g.
	// CGC1513717 or EC13003500.
	return &Florida{
		license: regexp.MustCompile(`^[A-Z]{2,4}\d{4,8}$`),
	}
}

// Parse scans the flattened document for license-number anchors.
func (p *Florida) Parse(raw []byte) ([]scrape.Licensee, error) {
	lines := textLines(raw)
	var out []scrape.Licensee
	for i := 0; i < len(lines); i++ {
		if !p.license.MatchString(lines[i]) {
			continue
		}
		rec := scrape.Licensee{LicenseNumber: lines[i]}
		j := i + 1
		if j < len(lines) && !p.license.MatchString(lines[j]) {
			rec.Name = lines[j]
			j++
		}
		if j < len(lines) && strings.HasPrefix(strings.ToUpper(lines[j]), "DBA ") {
			rec.Company = strings.TrimSpace(lines[j][4:])
			j++
		}
		if j < len(lines) && !p.license.MatchString(lines[j]) {
			rec.Address = lines[j]
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

var _ Parser = (*Florida)(nil)
