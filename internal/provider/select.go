package provider

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-finder/internal/entity"
	"github.com/sells-group/profile-finder/internal/model"
	"github.com/sells-group/profile-finder/internal/scorer"
)

// TitleScorer scores a candidate title against a person's name.
// *scorer.Scorer implements it.
type TitleScorer interface {
	Score(ctx context.Context, name, title string) (scorer.Score, error)
}

// Selector ranks search candidates against a person and builds the match
// result for the winner. It is shared by every provider.
type Selector struct {
	scorer    TitleScorer
	extractor entity.Extractor
}

// NewSelector creates a Selector. A nil scorer uses the n-gram encoder and
// a nil extractor uses the gazetteer.
func NewSelector(sc TitleScorer, ex entity.Extractor) *Selector {
	if sc == nil {
		sc = scorer.New(nil)
	}
	if ex == nil {
		ex = entity.NewGazetteer(nil)
	}
	return &Selector{scorer: sc, extractor: ex}
}

// Rank scores every candidate against the person's full name. With
// prefilter set, candidates whose title and snippet do not contain the full
// name are dropped before scoring.
func (s *Selector) Rank(ctx context.Context, q model.PersonQuery, candidates []model.SearchCandidate, th model.Thresholds, prefilter bool) ([]model.ScoredCandidate, error) {
	name := q.FullName()
	lname := strings.ToLower(name)

	ranked := make([]model.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "select: rank")
		}
		if prefilter && !mentions(c, lname) {
			continue
		}
		sc, err := s.scorer.Score(ctx, name, c.Title)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(err, "select: rank")
			}
			// Fuzzy part is still valid.
			zap.L().Warn("select: semantic score failed, using fuzzy only",
				zap.String("title", c.Title),
				zap.Error(err),
			)
		}
		ranked = append(ranked, model.ScoredCandidate{
			SearchCandidate: c,
			Cosine:          sc.Cosine,
			Fuzzy:           sc.Fuzzy,
			Score:           sc.Effective(),
			Matched:         sc.Accepts(th),
		})
	}
	return ranked, nil
}

// Best returns the match result for the highest scoring acceptable
// candidate, or nil when none passes the thresholds. Ties keep the earlier
// candidate.
func (s *Selector) Best(ctx context.Context, q model.PersonQuery, candidates []model.SearchCandidate, th model.Thresholds, prefilter bool) (*model.MatchResult, error) {
	ranked, err := s.Rank(ctx, q, candidates, th, prefilter)
	if err != nil {
		return nil, err
	}

	best := -1
	for i, c := range ranked {
		if !c.Matched {
			continue
		}
		if best < 0 || c.Score > ranked[best].Score {
			best = i
		}
	}
	if best < 0 {
		return nil, nil
	}
	win := ranked[best]

	location := model.LocationUnknown
	ents, err := s.extractor.Extract(ctx, win.Title+". "+win.Snippet)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, eris.Wrap(err, "select: extract location")
	case err != nil:
		zap.L().Warn("select: location extraction failed", zap.Error(err))
	default:
		location = ents.FirstLocation()
	}

	title := scorer.BestTitleFragment(win.Title, q.FullName(), q.Affiliation)
	r := model.NewMatch(q, title, win.URL, scorer.Confidence(win.Score), location)
	return &r, nil
}

func mentions(c model.SearchCandidate, lname string) bool {
	if lname == "" {
		return false
	}
	return strings.Contains(strings.ToLower(c.Title), lname) ||
		strings.Contains(strings.ToLower(c.Snippet), lname)
}
