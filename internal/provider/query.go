package provider

import (
	"fmt"
	"strings"

	"github.com/sells-group/profile-finder/internal/model"
)

// DefaultTargetDomain is the site searches are restricted to.
const DefaultTargetDomain = "linkedin.com"

// BuildQuery renders the search query for q:
// "first last" "affiliation" site:domain. The affiliation is expanded
// through aliases first. An empty domain omits the site filter.
func BuildQuery(q model.PersonQuery, aliases map[string]string, domain string) string {
	parts := []string{fmt.Sprintf("%q", q.FullName())}
	if aff := model.ExpandAffiliation(q.Affiliation, aliases); aff != "" {
		parts = append(parts, fmt.Sprintf("%q", aff))
	}
	if d := strings.TrimSpace(domain); d != "" {
		parts = append(parts, "site:"+d)
	}
	return strings.Join(parts, " ")
}

// baseQuery is BuildQuery without the site filter, for backends that take
// the domain as a separate parameter.
func baseQuery(q model.PersonQuery, aliases map[string]string) string {
	return BuildQuery(q, aliases, "")
}
