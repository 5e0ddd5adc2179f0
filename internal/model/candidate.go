package model

// SearchCandidate is one raw search result returned by a provider.
type SearchCandidate struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// ScoredCandidate is a candidate with its similarity scores against the
// person's full name.
type ScoredCandidate struct {
	SearchCandidate
	Cosine  float64 `json:"cosine"`
	Fuzzy   float64 `json:"fuzzy"`
	Score   float64 `json:"score"`
	Matched bool    `json:"matched"`
}
