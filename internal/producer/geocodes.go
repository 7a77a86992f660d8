package producer

import "sort"

// Geography rosters per region. Florida and Texas boards search by
// county; California's searches by ZIP. The rosters are deliberately
// short lists of the highest-volume geographies, not exhaustive ones;
// coverage grows by extending them.
var geoCodes = map[string][]string{
	"FL": {
		"Miami-Dade", "Broward", "Palm Beach", "Hillsborough", "Orange",
		"Duval", "Pinellas", "Lee", "Polk", "Brevard",
	},
	"TX": {
		"Harris", "Dallas", "Tarrant", "Bexar", "Travis",
		"Collin", "Denton", "Hidalgo", "El Paso", "Fort Bend",
	},
	"CA": {
		"90001", "90210", "91601", "92101", "92618",
		"94102", "94601", "95113", "95814", "92501",
	},
}

// Regions lists the known region codes in stable order.
func Regions() []string {
	out := make([]string, 0, len(geoCodes))
	for r := range geoCodes {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// GeoCodes returns the roster for a region, nil when unknown.
func GeoCodes(region string) []string {
	return geoCodes[region]
}
