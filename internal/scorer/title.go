package scorer

import (
	"regexp"
	"strings"

	"github.com/sells-group/profile-finder/internal/model"
)

// boilerplate phrases removed from profile titles before splitting.
var boilerplate = regexp.MustCompile(`(?i)united states|professional profile|\d*\+?\s*connections|linkedin`)

var fragmentSep = regexp.MustCompile(`\s*\|\s*|\s+[-–—]\s+`)

// excludeCutoff is the token-set ratio at which a fragment is treated as a
// restatement of an excluded term.
const excludeCutoff = 0.9

// BestTitleFragment extracts the most informative piece of a search-result
// title such as "Alice Smith - Software Engineer - Acme | LinkedIn".
// Fragments that restate any of exclude (the person's name, the
// affiliation) are skipped unless nothing else remains. Returns
// model.TitleNotFound when no fragment survives.
func BestTitleFragment(rawTitle string, exclude ...string) string {
	cleaned := strings.TrimSpace(boilerplate.ReplaceAllString(rawTitle, ""))
	if cleaned == "" {
		return model.TitleNotFound
	}

	var frags []string
	for _, f := range fragmentSep.Split(cleaned, -1) {
		f = strings.Trim(f, " \t.,;:·-–—|")
		if f != "" {
			frags = append(frags, f)
		}
	}
	if len(frags) == 0 {
		return model.TitleNotFound
	}

	if kept := dropRestated(frags, exclude); len(kept) > 0 {
		frags = kept
	}

	whole := cleaned
	best, bestScore := frags[0], -1.0
	for _, f := range frags {
		if s := TokenSetRatio(f, whole); s > bestScore {
			best, bestScore = f, s
		}
	}
	return best
}

func dropRestated(frags, exclude []string) []string {
	kept := make([]string, 0, len(frags))
	for _, f := range frags {
		restated := false
		for _, ex := range exclude {
			if strings.TrimSpace(ex) == "" {
				continue
			}
			if TokenSetRatio(f, ex) >= excludeCutoff {
				restated = true
				break
			}
		}
		if !restated {
			kept = append(kept, f)
		}
	}
	return kept
}
