// Package estimate provides placeholder income estimation from job titles.
package estimate

import (
	"math/rand/v2"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Band is an inclusive annual income range keyed by a title keyword.
type Band struct {
	Keyword string `yaml:"keyword" json:"keyword"`
	Low     int    `yaml:"low" json:"low"`
	High    int    `yaml:"high" json:"high"`
}

// IncomeTable is an ordered keyword table; the first keyword contained in a
// title wins, so more general keywords must come after specific ones that
// should take precedence.
type IncomeTable struct {
	Bands   []Band `yaml:"bands"`
	Default Band   `yaml:"default"`
}

// DefaultIncomeTable returns the built-in table.
func DefaultIncomeTable() *IncomeTable {
	return &IncomeTable{
		Bands: []Band{
			// Engineering
			{"engineer", 85000, 150000},
			{"software", 110000, 180000},
			{"developer", 95000, 160000},
			{"architect", 130000, 190000},
			{"data scientist", 120000, 180000},
			{"devops", 115000, 170000},
			{"product manager", 125000, 190000},

			// Business and finance
			{"analyst", 75000, 120000},
			{"manager", 90000, 150000},
			{"director", 140000, 220000},
			{"executive", 180000, 300000},
			{"ceo", 200000, 500000},
			{"cfo", 180000, 350000},
			{"cto", 160000, 300000},
			{"vp", 150000, 280000},
			{"finance", 90000, 160000},
			{"accountant", 70000, 120000},

			// Marketing and sales
			{"marketing", 75000, 130000},
			{"sales", 65000, 140000},
			{"account manager", 80000, 130000},
			{"customer", 60000, 100000},

			// Healthcare
			{"doctor", 180000, 350000},
			{"physician", 200000, 400000},
			{"nurse", 75000, 120000},
			{"healthcare", 80000, 150000},

			// Legal
			{"attorney", 130000, 250000},
			{"lawyer", 120000, 240000},
			{"legal", 100000, 200000},

			// Education
			{"professor", 80000, 150000},
			{"teacher", 50000, 85000},
			{"educator", 55000, 90000},

			{"consultant", 90000, 170000},
			{"advisor", 85000, 150000},
			{"specialist", 70000, 120000},
			{"researcher", 75000, 130000},
			{"student", 0, 30000},
			{"intern", 30000, 60000},
			{"associate", 65000, 110000},
		},
		Default: Band{Keyword: "default", Low: 60000, High: 100000},
	}
}

// LoadIncomeTable reads an ordered table from a YAML file.
func LoadIncomeTable(path string) (*IncomeTable, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, eris.Wrapf(err, "estimate: read income table %s", path)
	}
	var t IncomeTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrapf(err, "estimate: parse income table %s", path)
	}
	if t.Default.High == 0 {
		t.Default = DefaultIncomeTable().Default
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks every band has a keyword and low <= high.
func (t *IncomeTable) Validate() error {
	for i, b := range t.Bands {
		if strings.TrimSpace(b.Keyword) == "" {
			return eris.Errorf("estimate: band %d has no keyword", i)
		}
		if b.Low < 0 || b.Low > b.High {
			return eris.Errorf("estimate: band %q has invalid range %d-%d", b.Keyword, b.Low, b.High)
		}
	}
	if t.Default.Low < 0 || t.Default.Low > t.Default.High {
		return eris.Errorf("estimate: default band has invalid range %d-%d", t.Default.Low, t.Default.High)
	}
	return nil
}

// Band returns the first band whose keyword occurs in title,
// case-insensitively, or the default band.
func (t *IncomeTable) Band(title string) Band {
	lower := strings.ToLower(title)
	for _, b := range t.Bands {
		if strings.Contains(lower, strings.ToLower(b.Keyword)) {
			return b
		}
	}
	return t.Default
}

// Rand is the random source used by Draw.
type Rand interface {
	IntN(n int) int
}

// Draw returns a uniform integer within the band for title. A nil rng uses
// the global source.
func (t *IncomeTable) Draw(title string, rng Rand) int {
	b := t.Band(title)
	span := b.High - b.Low + 1
	if span <= 1 {
		return b.Low
	}
	if rng == nil {
		return b.Low + rand.IntN(span) //nolint:gosec
	}
	return b.Low + rng.IntN(span)
}

// FormatIncome renders an income as "$85,000".
func FormatIncome(amount int) string {
	return "$" + humanize.Comma(int64(amount))
}
