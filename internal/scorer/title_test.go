package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/profile-finder/internal/model"
)

func TestBestTitleFragment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		exclude []string
		want    string
	}{
		{
			name:    "name and affiliation excluded",
			raw:     "Alice Smith - Example University - Software Engineer",
			exclude: []string{"Alice Smith", "Example University"},
			want:    "Software Engineer",
		},
		{
			name:    "linkedin boilerplate",
			raw:     "Bob Jones - Data Analyst - Acme Corp | LinkedIn",
			exclude: []string{"Bob Jones", "Kean University"},
			want:    "Data Analyst",
		},
		{
			name: "no exclusions keeps first",
			raw:  "Product Manager | Globex",
			want: "Product Manager",
		},
		{
			name:    "everything excluded falls back",
			raw:     "Alice Smith",
			exclude: []string{"Alice Smith"},
			want:    "Alice Smith",
		},
		{
			name: "connections noise",
			raw:  "Nurse at Mercy Hospital · 500+ connections",
			want: "Nurse at Mercy Hospital",
		},
		{
			name: "hyphenated name is not split",
			raw:  "Mary-Jane Watson - Reporter",
			want: "Mary-Jane Watson",
		},
		{
			name: "empty",
			raw:  "",
			want: model.TitleNotFound,
		},
		{
			name: "only boilerplate",
			raw:  "LinkedIn | United States",
			want: model.TitleNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, BestTitleFragment(tt.raw, tt.exclude...))
		})
	}
}
