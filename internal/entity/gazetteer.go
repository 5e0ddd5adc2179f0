package entity

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// DefaultCities are the large US cities recognised without a state suffix.
var DefaultCities = []string{
	"Chicago", "Boston", "Atlanta", "Seattle", "San Francisco", "Los Angeles",
	"San Diego", "Philadelphia", "Phoenix", "Houston", "Dallas", "Miami", "Las Vegas",
	"Austin", "Denver", "Minneapolis", "Orlando", "San Jose", "Portland", "New Orleans",
	"Tampa", "Charlotte", "New York", "Newark", "Jersey City",
}

// StateNames maps USPS abbreviations to state names.
var StateNames = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas", "CA": "California",
	"CO": "Colorado", "CT": "Connecticut", "DE": "Delaware", "FL": "Florida", "GA": "Georgia",
	"HI": "Hawaii", "ID": "Idaho", "IL": "Illinois", "IN": "Indiana", "IA": "Iowa",
	"KS": "Kansas", "KY": "Kentucky", "LA": "Louisiana", "ME": "Maine", "MD": "Maryland",
	"MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota", "MS": "Mississippi", "MO": "Missouri",
	"MT": "Montana", "NE": "Nebraska", "NV": "Nevada", "NH": "New Hampshire", "NJ": "New Jersey",
	"NM": "New Mexico", "NY": "New York", "NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio",
	"OK": "Oklahoma", "OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina",
	"SD": "South Dakota", "TN": "Tennessee", "TX": "Texas", "UT": "Utah", "VT": "Vermont",
	"VA": "Virginia", "WA": "Washington", "WV": "West Virginia", "WI": "Wisconsin", "WY": "Wyoming",
}

const capWord = `[A-Z][A-Za-z.'-]*`

var (
	metroPattern = regexp.MustCompile(`\bGreater(?:\s+` + capWord + `)+\s+(?:Metropolitan\s+)?Area\b|\b` +
		capWord + `(?:\s+` + capWord + `){0,2}\s+Metropolitan\s+Area\b`)
	cityStatePattern = regexp.MustCompile(`\b(` + capWord + `(?:\s+` + capWord + `){0,2}),\s*([A-Z]{2})\b`)
	orgPattern       = regexp.MustCompile(`\b(?:University\s+of(?:\s+` + capWord + `){1,3}|(?:` + capWord +
		`\s+){1,4}(?:University|College|Institute|School|Hospital|Bank|Group|Labs?|Technologies|Partners|Corporation|Company|Inc\.?|LLC|Corp\.?|Co\.))`)
	personPattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z]\.)?\s+[A-Z][a-z]+(?:-[A-Z][a-z]+)?\b`)
)

// personStopwords are words that never start or end a person name.
var personStopwords = map[string]struct{}{
	"Senior": {}, "Junior": {}, "Software": {}, "Data": {}, "Product": {}, "Project": {},
	"Engineer": {}, "Manager": {}, "Director": {}, "Analyst": {}, "Student": {}, "Professor": {},
	"Assistant": {}, "Associate": {}, "Vice": {}, "President": {}, "Chief": {}, "Officer": {},
	"Greater": {}, "Area": {}, "Metropolitan": {}, "United": {}, "States": {}, "View": {},
	"Experience": {}, "Education": {}, "Location": {}, "Profile": {}, "Connections": {},
}

// Gazetteer extracts entities with word lists and capitalisation patterns.
type Gazetteer struct {
	cities []*regexp.Regexp
	states []*regexp.Regexp
}

// NewGazetteer builds a Gazetteer recognising cities plus all US state
// names. A nil cities slice uses DefaultCities.
func NewGazetteer(cities []string) *Gazetteer {
	if cities == nil {
		cities = DefaultCities
	}
	g := &Gazetteer{}
	for _, c := range cities {
		g.cities = append(g.cities, regexp.MustCompile(`\b`+regexp.QuoteMeta(c)+`\b`))
	}
	names := make([]string, 0, len(StateNames))
	for _, n := range StateNames {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		g.states = append(g.states, regexp.MustCompile(`\b`+regexp.QuoteMeta(n)+`\b`))
	}
	return g
}

type span struct {
	start, end int
	value      string
}

// Extract never fails; the error is always nil.
func (g *Gazetteer) Extract(ctx context.Context, text string) (Entities, error) {
	if err := ctx.Err(); err != nil {
		return Entities{}, err
	}

	var orgs []span
	for _, m := range orgPattern.FindAllStringIndex(text, -1) {
		orgs = append(orgs, span{m[0], m[1], strings.TrimSpace(text[m[0]:m[1]])})
	}
	orgs = nonOverlapping(orgs)

	var locs []span
	for _, m := range metroPattern.FindAllStringIndex(text, -1) {
		locs = append(locs, span{m[0], m[1], text[m[0]:m[1]]})
	}
	for _, m := range cityStatePattern.FindAllStringSubmatchIndex(text, -1) {
		abbr := text[m[4]:m[5]]
		if _, ok := StateNames[abbr]; !ok {
			continue
		}
		locs = append(locs, span{m[0], m[1], text[m[2]:m[3]] + ", " + abbr})
	}
	for _, re := range g.cities {
		for _, m := range re.FindAllStringIndex(text, -1) {
			locs = append(locs, span{m[0], m[1], text[m[0]:m[1]]})
		}
	}
	for _, re := range g.states {
		for _, m := range re.FindAllStringIndex(text, -1) {
			locs = append(locs, span{m[0], m[1], text[m[0]:m[1]]})
		}
	}
	locs = nonOverlapping(locs)

	// A place name inside an organisation ("Boston College") is not a location.
	kept := locs[:0]
	for _, l := range locs {
		if !overlapsAny(l, orgs) {
			kept = append(kept, l)
		}
	}
	locs = kept

	var persons []span
	for _, m := range personPattern.FindAllStringIndex(text, -1) {
		s := span{m[0], m[1], text[m[0]:m[1]]}
		if overlapsAny(s, locs) || overlapsAny(s, orgs) || hasStopword(s.value) {
			continue
		}
		persons = append(persons, s)
	}

	return Entities{
		Locations:     dedupe(values(locs)),
		Organizations: dedupe(values(orgs)),
		Persons:       dedupe(values(persons)),
	}, nil
}

// nonOverlapping sorts spans by position, longest first at equal starts, and
// drops any span overlapping an earlier kept one.
func nonOverlapping(spans []span) []span {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})
	out := spans[:0]
	end := -1
	for _, s := range spans {
		if s.start < end {
			continue
		}
		out = append(out, s)
		end = s.end
	}
	return out
}

func overlapsAny(s span, others []span) bool {
	for _, o := range others {
		if s.start < o.end && o.start < s.end {
			return true
		}
	}
	return false
}

func hasStopword(name string) bool {
	for _, w := range strings.Fields(name) {
		if _, ok := personStopwords[w]; ok {
			return true
		}
	}
	return false
}

func values(spans []span) []string {
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.value
	}
	return out
}
