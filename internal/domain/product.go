package domain

// Product is a catalog item supplied by the caller of the fuzzy matcher.
// The catalog itself lives in the dashboard database; the orchestrator only
// ever sees the slice handed to it per request.
type Product struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	Price           float64 `json:"price"`
	Stock           int     `json:"stock"`
	DiscountPercent float64 `json:"discount_percent,omitempty"`
}

// MatchType describes how a product matched a search query.
type MatchType string

const (
	// MatchExact means the normalized strings were equal.
	MatchExact MatchType = "exact"
	// MatchContains means one normalized string contained the other.
	MatchContains MatchType = "contains"
	// MatchFuzzy means whole-string Levenshtein similarity matched.
	MatchFuzzy MatchType = "fuzzy"
	// MatchToken means token-level similarity matched.
	MatchToken MatchType = "token"
)

// FuzzyMatchResult is one scored hit from a product search.
// Result lists are ordered descending by score.
type FuzzyMatchResult struct {
	Product   Product   `json:"product"`
	Score     float64   `json:"score"`
	MatchType MatchType `json:"match_type"`
}
