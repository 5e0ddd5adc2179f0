package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/profile-finder/internal/model"
)

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	aliases := map[string]string{"KU": "Kean University"}

	tests := []struct {
		name   string
		q      model.PersonQuery
		domain string
		want   string
	}{
		{
			name:   "alias expanded",
			q:      model.PersonQuery{FirstName: "Alice", LastName: "Smith", Affiliation: "ku"},
			domain: "linkedin.com",
			want:   `"Alice Smith" "Kean University" site:linkedin.com`,
		},
		{
			name:   "unknown affiliation kept",
			q:      model.PersonQuery{FirstName: " Bob ", LastName: "Jones", Affiliation: "Drew University"},
			domain: "linkedin.com",
			want:   `"Bob Jones" "Drew University" site:linkedin.com`,
		},
		{
			name: "no domain",
			q:    model.PersonQuery{FirstName: "Bob", LastName: "Jones", Affiliation: "Drew University"},
			want: `"Bob Jones" "Drew University"`,
		},
		{
			name:   "no affiliation",
			q:      model.PersonQuery{FirstName: "Bob", LastName: "Jones"},
			domain: "linkedin.com",
			want:   `"Bob Jones" site:linkedin.com`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, BuildQuery(tt.q, aliases, tt.domain))
		})
	}
}
