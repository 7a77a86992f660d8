package parse

import (
	"regexp"
	"strings"

	"github.com/leadharvest/leadscraper/internal/scrape"
)

// Directory parses business-directory listing pages. Listings carry no
// license number; identity comes from the directory's own listing ID,
// which appears as a data-listing-id attribute on each card.
type Directory struct{}

// NewDirectory builds the directory parser.
func NewDirectory() *Directory {
	return &Directory{}
}

var (
	listingIDAttr  = regexp.MustCompile(`data-listing-id="([^"]+)"`)
	listingIDLine  = regexp.MustCompile(`^listing-id:(.+)$`)
	phonePattern   = regexp.MustCompile(`\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`)
	addressPattern = regexp.MustCompile(`^\d+\s`)
)

// Parse extracts one record per listing card. The ID attribute is lifted
// out of its tag before flattening so it survives tag stripping and marks
// where each card begins.
func (p *Directory) Parse(raw []byte) ([]scrape.Licensee, error) {
	marked := listingIDAttr.ReplaceAll(raw, []byte(`>listing-id:$1<`))
	lines := textLines(marked)

	var out []scrape.Licensee
	var cur *scrape.Licensee
	flush := func() {
		if cur != nil && cur.Name != "" {
			out = append(out, *cur)
		}
		cur = nil
	}
	for _, line := range lines {
		if m := listingIDLine.FindStringSubmatch(line); m != nil {
			flush()
			cur = &scrape.Licensee{SourceID: strings.TrimSpace(m[1])}
			continue
		}
		if cur == nil {
			continue
		}
		switch {
		case phonePattern.MatchString(line):
			cur.Phone = phonePattern.FindString(line)
		case cur.Name == "":
			cur.Name = line
			cur.Company = line
		case cur.Address == "" && addressPattern.MatchString(line):
			cur.Address = line
		case cur.City == "":
			cur.City, cur.Zip = splitCityZip(line)
		}
	}
	flush()
	return out, nil
}

var _ Parser = (*Directory)(nil)
