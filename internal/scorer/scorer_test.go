package scorer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-finder/internal/model"
)

func TestTokenSetRatio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "Alice Smith", "Alice Smith", 1},
		{"case and order", "smith ALICE", "Alice Smith", 1},
		{"subset", "Alice Smith", "Alice Smith - Software Engineer | LinkedIn", 1},
		{"punctuation glued to words", "Alice Smith", "Smith, Alice (PhD)", 1},
		{"empty", "", "Alice", 0},
		{"punctuation only", "--", "Alice", 0},
		{"disjoint same length", "abc", "xyz", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, TokenSetRatio(tt.a, tt.b), 1e-9)
		})
	}
}

func TestTokenSetRatio_PartialOverlap(t *testing.T) {
	t.Parallel()

	// intersection "alice", diffs "smith" / "smyth".
	got := TokenSetRatio("Alice Smith", "Alice Smyth")
	assert.Greater(t, got, 0.7)
	assert.Less(t, got, 1.0)

	// Symmetric.
	assert.InDelta(t, got, TokenSetRatio("Alice Smyth", "Alice Smith"), 1e-9)
}

func TestRatio(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, ratio("", ""), 1e-9)
	assert.InDelta(t, 0.0, ratio("ab", "cd"), 1e-9)
	// "abc" vs "abd": one substitution costs 2 of 6.
	assert.InDelta(t, 1-2.0/6.0, ratio("abc", "abd"), 1e-9)
}

func TestScorer_SelfSimilarity(t *testing.T) {
	t.Parallel()

	s := New(nil)
	ctx := context.Background()
	for _, text := range []string{"Alice Smith", "Dr. José Núñez-García", "Bob"} {
		sim, err := s.Similarity(ctx, text, text)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, sim, 0.999, text)
	}
}

func TestScorer_IsAcceptableMatch_OR(t *testing.T) {
	t.Parallel()

	s := New(nil)
	ctx := context.Background()

	sc, err := s.Score(ctx, "Alice Smith", "Alice Smith - Software Engineer")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sc.Fuzzy, 1e-9)
	assert.InDelta(t, sc.Fuzzy, sc.Effective(), 1e-9)

	// Fuzzy alone clears its threshold even with an unreachable cosine one.
	ok, err := s.IsAcceptableMatch(ctx, "Alice Smith", "Alice Smith - Software Engineer",
		model.Thresholds{Cosine: 0.9, Fuzzy: 0.6})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsAcceptableMatch(ctx, "Alice Smith", "Zebra Quantum Logistics",
		model.DefaultThresholds())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScore_Accepts(t *testing.T) {
	t.Parallel()

	th := model.Thresholds{Cosine: 0.5, Fuzzy: 0.8}
	assert.True(t, Score{Cosine: 0.5, Fuzzy: 0}.Accepts(th))
	assert.True(t, Score{Cosine: 0, Fuzzy: 0.8}.Accepts(th))
	assert.False(t, Score{Cosine: 0.49, Fuzzy: 0.79}.Accepts(th))
}

func TestScorer_EmptyInput(t *testing.T) {
	t.Parallel()

	s := New(nil)
	ok, err := s.IsAcceptableMatch(context.Background(), "", "Alice Smith", model.DefaultThresholds())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.IsAcceptableMatch(context.Background(), "Alice Smith", "  ", model.DefaultThresholds())
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingEncoder struct{}

func (failingEncoder) Encode(context.Context, string) ([]float32, error) {
	return nil, errors.New("model unavailable")
}
func (failingEncoder) ModelID() string { return "failing" }
func (failingEncoder) Close() error    { return nil }

func TestScorer_EncoderFailureKeepsFuzzy(t *testing.T) {
	t.Parallel()

	s := New(failingEncoder{})
	sc, err := s.Score(context.Background(), "Alice Smith", "Alice Smith | LinkedIn")
	require.Error(t, err)
	assert.InDelta(t, 1.0, sc.Fuzzy, 1e-9)
	assert.Zero(t, sc.Cosine)
}

func TestConfidence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 100, Confidence(1))
	assert.Equal(t, 87, Confidence(0.879))
	assert.Equal(t, 29, Confidence(0.29))
	assert.Equal(t, 0, Confidence(-0.2))
}
