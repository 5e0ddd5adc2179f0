package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-finder/internal/entity"
	"github.com/sells-group/profile-finder/internal/model"
	"github.com/sells-group/profile-finder/internal/scorer"
)

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, string) (entity.Entities, error) {
	return entity.Entities{}, errors.New("ner offline")
}

// fixedScorer returns preset scores keyed by candidate title.
type fixedScorer map[string]scorer.Score

func (f fixedScorer) Score(_ context.Context, _, title string) (scorer.Score, error) {
	return f[title], nil
}

func TestSelector_Best_FixedScores(t *testing.T) {
	t.Parallel()

	const aliceTitle = "Alice Smith - Example University - Software Engineer"
	tests := []struct {
		name       string
		scores     fixedScorer
		candidates []model.SearchCandidate
		th         model.Thresholds
		wantURL    string
		wantTitle  string
		wantConf   int
	}{
		{
			name:   "fuzzy carries the confidence",
			scores: fixedScorer{aliceTitle: {Cosine: 0.6, Fuzzy: 0.9}},
			candidates: []model.SearchCandidate{
				{Title: aliceTitle, URL: "https://linkedin.com/in/alice"},
			},
			th:        model.Thresholds{Cosine: 0.4, Fuzzy: 0.75},
			wantURL:   "https://linkedin.com/in/alice",
			wantTitle: "Software Engineer",
			wantConf:  90,
		},
		{
			name:   "fuzzy alone passes when cosine misses",
			scores: fixedScorer{aliceTitle: {Cosine: 0.10, Fuzzy: 0.80}},
			candidates: []model.SearchCandidate{
				{Title: aliceTitle, URL: "https://linkedin.com/in/alice"},
			},
			th:        model.Thresholds{Cosine: 0.50, Fuzzy: 0.75},
			wantURL:   "https://linkedin.com/in/alice",
			wantTitle: "Software Engineer",
			wantConf:  80,
		},
		{
			name: "identical scores keep the first candidate",
			scores: fixedScorer{
				"Alice Smith - Data Analyst": {Cosine: 0.7, Fuzzy: 0.85},
				"Alice Smith - Nurse":        {Cosine: 0.7, Fuzzy: 0.85},
			},
			candidates: []model.SearchCandidate{
				{Title: "Alice Smith - Data Analyst", URL: "https://linkedin.com/in/alice-1"},
				{Title: "Alice Smith - Nurse", URL: "https://linkedin.com/in/alice-2"},
			},
			th:        model.DefaultThresholds(),
			wantURL:   "https://linkedin.com/in/alice-1",
			wantTitle: "Data Analyst",
			wantConf:  85,
		},
		{
			name: "higher effective score wins over order",
			scores: fixedScorer{
				"Alice Smith - Data Analyst": {Cosine: 0.45, Fuzzy: 0.5},
				"Alice Smith - Nurse":        {Cosine: 0.3, Fuzzy: 0.95},
			},
			candidates: []model.SearchCandidate{
				{Title: "Alice Smith - Data Analyst", URL: "https://linkedin.com/in/alice-1"},
				{Title: "Alice Smith - Nurse", URL: "https://linkedin.com/in/alice-2"},
			},
			th:        model.DefaultThresholds(),
			wantURL:   "https://linkedin.com/in/alice-2",
			wantTitle: "Nurse",
			wantConf:  95,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := NewSelector(tt.scores, nil).Best(context.Background(), alice, tt.candidates, tt.th, false)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, model.StatusMatchFound, got.Status)
			assert.Equal(t, tt.wantURL, got.ProfileURL)
			assert.Equal(t, tt.wantTitle, got.MatchedTitle)
			assert.Equal(t, tt.wantConf, got.ConfidencePercent)
		})
	}
}

func TestSelector_Best_FixedScoresBelowBothThresholds(t *testing.T) {
	t.Parallel()

	sel := NewSelector(fixedScorer{"Alice Smith - Nurse": {Cosine: 0.39, Fuzzy: 0.74}}, nil)
	got, err := sel.Best(context.Background(), alice,
		[]model.SearchCandidate{{Title: "Alice Smith - Nurse", URL: "https://linkedin.com/in/alice"}},
		model.Thresholds{Cosine: 0.4, Fuzzy: 0.75}, false)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSelector_Best_AliceSmith(t *testing.T) {
	t.Parallel()

	sel := NewSelector(nil, nil)
	candidates := []model.SearchCandidate{
		{Title: "Bob Jones - Manager - Globex", URL: "https://linkedin.com/in/bob", Snippet: "Chicago, IL"},
		{
			Title:   "Alice Smith - Example University - Software Engineer",
			URL:     "https://linkedin.com/in/alice",
			Snippet: "Greater Boston Area · Software Engineer",
		},
	}

	got, err := sel.Best(context.Background(), alice, candidates, model.DefaultThresholds(), false)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "https://linkedin.com/in/alice", got.ProfileURL)
	assert.Equal(t, "Software Engineer", got.MatchedTitle)
	assert.Equal(t, 100, got.ConfidencePercent)
	assert.Equal(t, "Greater Boston Area", got.EstimatedLocation)
	assert.Equal(t, alice.Identity(), got.Identity())
}

func TestSelector_Best_TieKeepsFirst(t *testing.T) {
	t.Parallel()

	sel := NewSelector(nil, nil)
	candidates := []model.SearchCandidate{
		{Title: "Alice Smith | LinkedIn", URL: "https://linkedin.com/in/alice-1"},
		{Title: "Alice Smith - LinkedIn", URL: "https://linkedin.com/in/alice-2"},
	}

	got, err := sel.Best(context.Background(), alice, candidates, model.DefaultThresholds(), false)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "https://linkedin.com/in/alice-1", got.ProfileURL)
}

func TestSelector_Best_NoneAcceptable(t *testing.T) {
	t.Parallel()

	sel := NewSelector(nil, nil)
	candidates := []model.SearchCandidate{
		{Title: "Bob Jones - Manager - Globex", URL: "https://linkedin.com/in/bob"},
		{Title: "Carol White - Nurse", URL: "https://linkedin.com/in/carol"},
	}

	got, err := sel.Best(context.Background(), alice, candidates, model.DefaultThresholds(), false)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSelector_Rank_Prefilter(t *testing.T) {
	t.Parallel()

	sel := NewSelector(nil, nil)
	candidates := []model.SearchCandidate{
		{Title: "Software Engineer at Acme", Snippet: "Profile of alice smith, Boston"},
		{Title: "Engineer at Acme", Snippet: "nothing here"},
		{Title: "ALICE SMITH - Engineer"},
	}

	ranked, err := sel.Rank(context.Background(), alice, candidates, model.DefaultThresholds(), true)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "Software Engineer at Acme", ranked[0].Title)
	assert.Equal(t, "ALICE SMITH - Engineer", ranked[1].Title)
	assert.True(t, ranked[1].Matched)
	assert.InDelta(t, 1.0, ranked[1].Score, 1e-9)

	ranked, err = sel.Rank(context.Background(), alice, candidates, model.DefaultThresholds(), false)
	require.NoError(t, err)
	assert.Len(t, ranked, 3)
}

func TestSelector_Best_ExtractorFailureLeavesLocationUnknown(t *testing.T) {
	t.Parallel()

	sel := NewSelector(nil, failingExtractor{})
	candidates := []model.SearchCandidate{
		{Title: "Alice Smith - Engineer", URL: "https://linkedin.com/in/alice", Snippet: "Chicago, IL"},
	}

	got, err := sel.Best(context.Background(), alice, candidates, model.DefaultThresholds(), false)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.LocationUnknown, got.EstimatedLocation)
}

func TestSelector_Rank_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSelector(nil, nil).Rank(ctx, alice, []model.SearchCandidate{{Title: "Alice Smith"}}, model.DefaultThresholds(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
