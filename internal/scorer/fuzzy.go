package scorer

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"

	"github.com/sells-group/profile-finder/internal/embed"
)

// indel weighs a substitution as one deletion plus one insertion, so the
// distance is the Indel distance used by normalised similarity ratios.
var indel = levenshtein.NewParams().SubCost(2)

// ratio returns 1 - indel(a,b)/(len(a)+len(b)) in [0,1]. Two empty strings
// score 1.
func ratio(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	if la+lb == 0 {
		return 1
	}
	d := levenshtein.Distance(a, b, indel)
	return 1 - float64(d)/float64(la+lb)
}

// tokens lowercases s, replaces non-alphanumerics with spaces and returns the
// de-duplicated word set. Splitting on punctuation as well as whitespace is
// intentional: "Smith," and "smith" are the same token here, so search-result
// titles like "Alice Smith, PhD | LinkedIn" still share the name tokens.
func tokens(s string) map[string]struct{} {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, embed.Normalize(s))
	set := make(map[string]struct{})
	for _, w := range strings.Fields(cleaned) {
		set[w] = struct{}{}
	}
	return set
}

func sortedJoin(set map[string]struct{}) (string, int) {
	words := make([]string, 0, len(set))
	for w := range set {
		words = append(words, w)
	}
	sort.Strings(words)
	s := strings.Join(words, " ")
	return s, len([]rune(s))
}

// TokenSetRatio compares the word sets of a and b in [0,1]. Word order and
// repetition are ignored; when every word of one side appears in the other
// the ratio is 1.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter := make(map[string]struct{})
	onlyA := make(map[string]struct{})
	onlyB := make(map[string]struct{})
	for w := range ta {
		if _, ok := tb[w]; ok {
			inter[w] = struct{}{}
		} else {
			onlyA[w] = struct{}{}
		}
	}
	for w := range tb {
		if _, ok := ta[w]; !ok {
			onlyB[w] = struct{}{}
		}
	}

	if len(inter) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 1
	}

	_, sectLen := sortedJoin(inter)
	diffA, lenA := sortedJoin(onlyA)
	diffB, lenB := sortedJoin(onlyB)

	best := ratio(diffA, diffB)
	if sectLen == 0 {
		return best
	}

	// sect vs sect+" "+diff reduces to the diff length as the distance.
	sectALen := sectLen + 1 + lenA
	sectBLen := sectLen + 1 + lenB
	if r := 1 - float64(1+lenA)/float64(sectLen+sectALen); r > best {
		best = r
	}
	if r := 1 - float64(1+lenB)/float64(sectLen+sectBLen); r > best {
		best = r
	}
	return best
}
