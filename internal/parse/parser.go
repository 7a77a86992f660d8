// Package parse extracts licensee records from raw roster documents.
//
// Each known board format has its own parser; none of them has a declared
// grammar. They pattern-match a license-number-like token to open a record
// and accumulate the following lines as name, company, and address until
// the next record marker. On format drift they under-extract silently
// rather than fail, which is the accepted trade-off for these sources.
package parse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/leadharvest/leadscraper/internal/scrape"
)

// ErrUnsupportedRegion is returned when no parser is registered for the
// work item's source and region.
var ErrUnsupportedRegion = errors.New("unsupported region")

// Parser extracts zero or more licensees from a raw document.
type Parser interface {
	Parse(raw []byte) ([]scrape.Licensee, error)
}

// Registry resolves parsers by source and region. Sources with a single
// cross-region format register under the "*" region.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register binds a parser to a source and region. Region "*" matches any
// region for the source.
func (r *Registry) Register(source, region string, p Parser) {
	r.parsers[source+"/"+region] = p
}

// For resolves the parser for a source/region pair.
func (r *Registry) For(source, region string) (Parser, error) {
	if p, ok := r.parsers[source+"/"+region]; ok {
		return p, nil
	}
	if p, ok := r.parsers[source+"/*"]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: source %q region %q", ErrUnsupportedRegion, source, region)
}

// Default returns the registry of known board and directory formats.
func Default() *Registry {
	r := NewRegistry()
	r.Register("fl-dbpr", "FL", NewFlorida())
	r.Register("tx-tdlr", "TX", NewTexas())
	r.Register("ca-cslb", "CA", NewCalifornia())
	r.Register("bizdir", "*", NewDirectory())
	return r
}

var (
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
	spacesPattern = regexp.MustCompile(`[ \t]+`)
)

// textLines flattens raw HTML or text into trimmed, non-empty lines.
// Tags become line breaks so table cells and divs scan as separate lines.
func textLines(raw []byte) []string {
	text := tagPattern.ReplaceAllString(string(raw), "\n")
	text = strings.NewReplacer(
		"&amp;", "&",
		"&nbsp;", " ",
		"&#39;", "'",
		"&quot;", `"`,
		"&lt;", "<",
		"&gt;", ">",
	).Replace(text)

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(spacesPattern.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

var zipPattern = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b\s*$`)

// splitCityZip pulls a trailing ZIP off an address-ish line.
func splitCityZip(line string) (city, zip string) {
	m := zipPattern.FindStringSubmatch(line)
	if m == nil {
		return strings.TrimSpace(line), ""
	}
	city = strings.TrimSpace(strings.TrimSuffix(line, m[0]))
	city = strings.TrimRight(city, ", ")
	return city, m[1]
}
