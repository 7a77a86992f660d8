package parse

import (
	"regexp"
	"strings"

	"github.com/leadharvest/leadscraper/internal/scrape"
)

// Texas parses TDLR license search results. Records render as labeled
// lines ("License #12345", "Name: ...") rather than the positional runs
// the other boards use.
type Texas struct {
	license *regexp.Regexp
}

// NewTexas builds the TDLR parser.
func NewTexas() *Texas {
	return &Texas{
		license: regexp.MustCompile(`^License\s*#?\s*(\d{4,8})$`),
	}
}

// Parse scans for "License #" anchors and reads the labeled lines that
// follow until the next anchor.
func (p *Texas) Parse(raw []byte) ([]scrape.Licensee, error) {
	lines := textLines(raw)
	var out []scrape.Licensee
	var cur *scrape.Licensee
	flush := func() {
		if cur != nil && cur.Name != "" {
			out = append(out, *cur)
		}
		cur = nil
	}
	for _, line := range lines {
		if m := p.license.FindStringSubmatch(line); m != nil {
			flush()
			cur = &scrape.Licensee{LicenseNumber: m[1]}
			continue
		}
		if cur == nil {
			continue
		}
		switch label, value := splitLabel(line); label {
		case "name":
			cur.Name = value
		case "company", "business name":
			cur.Company = value
		case "address":
			cur.Address = value
		case "city":
			cur.City, cur.Zip = splitCityZip(value)
		case "phone":
			cur.Phone = value
		}
	}
	flush()
	return out, nil
}

// splitLabel splits "Label: value" lines; label comes back lowercased.
func splitLabel(line string) (label, value string) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", ""
	}
	return strings.ToLower(strings.TrimSpace(line[:idx])), strings.TrimSpace(line[idx+1:])
}

var _ Parser = (*Texas)(nil)
