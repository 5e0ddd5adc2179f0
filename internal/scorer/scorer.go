// Package scorer rates how well a search-result title matches a person's
// name and picks the meaningful fragment of a profile title.
package scorer

import (
	"context"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-finder/internal/embed"
	"github.com/sells-group/profile-finder/internal/model"
)

// Score holds both similarity measures for one name/title pair.
type Score struct {
	Cosine float64 `json:"cosine"`
	Fuzzy  float64 `json:"fuzzy"`
}

// Effective is the larger of the two measures.
func (s Score) Effective() float64 {
	return math.Max(s.Cosine, s.Fuzzy)
}

// Accepts reports whether either measure reaches its threshold.
func (s Score) Accepts(th model.Thresholds) bool {
	return s.Cosine >= th.Cosine || s.Fuzzy >= th.Fuzzy
}

// Confidence converts an effective score to a whole percentage, truncated.
func Confidence(score float64) int {
	c := int(math.Floor(score*100 + 1e-9))
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}

// Scorer computes semantic and fuzzy similarity. It is safe for concurrent
// use when its encoder is.
type Scorer struct {
	enc embed.Encoder
}

// New returns a Scorer using enc for semantic similarity. A nil encoder
// falls back to the n-gram encoder.
func New(enc embed.Encoder) *Scorer {
	if enc == nil {
		enc = embed.NewNgramEncoder(embed.DefaultNgramDim)
	}
	return &Scorer{enc: enc}
}

// Score computes both measures for name against title. When the encoder
// fails the fuzzy measure is still returned along with the error.
func (s *Scorer) Score(ctx context.Context, name, title string) (Score, error) {
	var sc Score
	if strings.TrimSpace(name) == "" || strings.TrimSpace(title) == "" {
		return sc, nil
	}
	sc.Fuzzy = TokenSetRatio(name, title)

	a, err := s.enc.Encode(ctx, name)
	if err != nil {
		return sc, eris.Wrap(err, "scorer: encode name")
	}
	b, err := s.enc.Encode(ctx, title)
	if err != nil {
		return sc, eris.Wrap(err, "scorer: encode title")
	}
	sc.Cosine = embed.Cosine(a, b)
	return sc, nil
}

// Similarity returns the effective score of a against b.
func (s *Scorer) Similarity(ctx context.Context, a, b string) (float64, error) {
	sc, err := s.Score(ctx, a, b)
	return sc.Effective(), err
}

// IsAcceptableMatch reports whether title is close enough to name under th.
// Empty input never matches.
func (s *Scorer) IsAcceptableMatch(ctx context.Context, name, title string, th model.Thresholds) (bool, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(title) == "" {
		return false, nil
	}
	sc, err := s.Score(ctx, name, title)
	return sc.Accepts(th), err
}
