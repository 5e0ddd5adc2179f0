package model

import "strings"

// DefaultAffiliationAliases maps abbreviations seen in uploaded rosters to the
// names used in search queries.
var DefaultAffiliationAliases = map[string]string{
	"KU":   "Kean University",
	"RUN":  "Rutgers University - Newark",
	"RUNB": "Rutgers University - Newark",
	"WPU":  "William Paterson University",
	"FDU":  "Fairleigh Dickinson University",
	"MSU":  "Montclair State University",
	"NJCU": "New Jersey City University",
	"BC":   "Bloomfield College",
}

// ExpandAffiliation resolves an abbreviation through aliases. Lookup is
// case-insensitive; unknown values are returned trimmed and unchanged.
func ExpandAffiliation(affiliation string, aliases map[string]string) string {
	a := strings.TrimSpace(affiliation)
	if full, ok := aliases[a]; ok {
		return full
	}
	upper := strings.ToUpper(a)
	for k, v := range aliases {
		if strings.ToUpper(k) == upper {
			return v
		}
	}
	return a
}
