// Package fuzzy implements typo-tolerant product search over an in-memory
// catalog slice. Matching is a pure function: no I/O, no errors, an empty
// catalog yields an empty result.
package fuzzy

import (
	"sort"
	"strings"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
)

// Scoring tiers and thresholds.
const (
	containsBase      = 0.7 // contains score floor
	containsSpan      = 0.2 // scaled by shorter/longer length ratio
	tokenWeight       = 0.7 // token-tier score multiplier
	fuzzyWeight       = 0.6 // whole-string fallback multiplier
	descriptionWeight = 0.4 // description evidence multiplier
	tokenPairMin      = 0.6 // minimum per-token-pair similarity
	tokenAvgMin       = 0.5 // minimum average token score
	descTriggerBelow  = 0.5 // description is consulted under this name score
	minTokenLen       = 2
)

// Options tunes a fuzzy search.
type Options struct {
	MaxResults        int
	MinScore          float64
	SearchDescription bool
}

// DefaultOptions mirrors the chat pipeline's defaults.
func DefaultOptions() Options {
	return Options{MaxResults: 5, MinScore: 0.3, SearchDescription: true}
}

// Match scores every product against the query and returns hits at or above
// MinScore, ordered descending by score and truncated to MaxResults.
func Match(query string, products []domain.Product, opts Options) []domain.FuzzyMatchResult {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}

	q := Normalize(query)
	if q == "" {
		return nil
	}

	results := make([]domain.FuzzyMatchResult, 0, len(products))
	for _, p := range products {
		score, matchType := scoreProduct(q, p, opts.SearchDescription)
		if score < opts.MinScore {
			continue
		}
		results = append(results, domain.FuzzyMatchResult{
			Product:   p,
			Score:     score,
			MatchType: matchType,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > opts.MaxResults {
		results = results[:opts.MaxResults]
	}
	return results
}

// FindBestMatch returns the single best hit at score >= 0.5, or nil.
func FindBestMatch(query string, products []domain.Product) *domain.FuzzyMatchResult {
	hits := Match(query, products, Options{MaxResults: 1, MinScore: 0.5, SearchDescription: true})
	if len(hits) == 0 {
		return nil
	}
	return &hits[0]
}

// FindMatchingProducts returns all hits at score >= 0.4.
func FindMatchingProducts(query string, products []domain.Product) []domain.FuzzyMatchResult {
	return Match(query, products, Options{MaxResults: len(products), MinScore: 0.4, SearchDescription: true})
}

// Suggest returns up to limit products for autocomplete: name-prefix matches
// first, then fuzzy hits, deduplicated by product ID.
func Suggest(query string, products []domain.Product, limit int) []domain.Product {
	if limit <= 0 {
		limit = 5
	}
	q := Normalize(query)
	if q == "" {
		return nil
	}

	seen := make(map[string]bool, limit)
	out := make([]domain.Product, 0, limit)

	for _, p := range products {
		if len(out) >= limit {
			return out
		}
		if strings.HasPrefix(Normalize(p.Name), q) {
			seen[p.ID] = true
			out = append(out, p)
		}
	}

	for _, hit := range Match(q, products, Options{MaxResults: limit, MinScore: 0.3, SearchDescription: false}) {
		if len(out) >= limit {
			break
		}
		if seen[hit.Product.ID] {
			continue
		}
		seen[hit.Product.ID] = true
		out = append(out, hit.Product)
	}
	return out
}

// scoreProduct classifies the match in priority order: exact, contains,
// token, then whole-string fuzzy. When the name score stays weak the
// description is consulted as down-weighted extra evidence.
func scoreProduct(query string, p domain.Product, searchDescription bool) (float64, domain.MatchType) {
	name := Normalize(p.Name)

	score, matchType := scoreText(query, name)

	if searchDescription && score < descTriggerBelow && p.Description != "" {
		desc := Normalize(p.Description)
		if descScore := secondaryScore(query, desc) * descriptionWeight; descScore > score {
			score = descScore
			matchType = domain.MatchContains
		}
	}

	return score, matchType
}

func scoreText(query, candidate string) (float64, domain.MatchType) {
	if candidate == "" {
		return 0, domain.MatchFuzzy
	}

	if query == candidate {
		return 1.0, domain.MatchExact
	}

	if strings.Contains(candidate, query) || strings.Contains(query, candidate) {
		return containsScore(query, candidate), domain.MatchContains
	}

	if tokenScore := tokenSimilarity(query, candidate); tokenScore > tokenAvgMin {
		return tokenScore * tokenWeight, domain.MatchToken
	}

	return similarity(query, candidate) * fuzzyWeight, domain.MatchFuzzy
}

// secondaryScore applies only the contains/token logic, used for
// description evidence where exact equality is meaningless.
func secondaryScore(query, text string) float64 {
	if text == "" {
		return 0
	}
	if strings.Contains(text, query) || strings.Contains(query, text) {
		return containsScore(query, text)
	}
	if tokenScore := tokenSimilarity(query, text); tokenScore > tokenAvgMin {
		return tokenScore
	}
	return 0
}

// containsScore scales [0.7, 0.9] by the length ratio of the shorter to the
// longer string, so near-complete overlap ranks above a short fragment hit.
func containsScore(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	shorter, longer := la, lb
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	if longer == 0 {
		return containsBase
	}
	return containsBase + containsSpan*float64(shorter)/float64(longer)
}

// tokenSimilarity averages each query token's best similarity against the
// candidate tokens. Pairs at or below tokenPairMin contribute nothing.
func tokenSimilarity(query, candidate string) float64 {
	queryTokens := tokenize(query)
	candidateTokens := tokenize(candidate)
	if len(queryTokens) == 0 || len(candidateTokens) == 0 {
		return 0
	}

	var total float64
	for _, qt := range queryTokens {
		var best float64
		for _, ct := range candidateTokens {
			if sim := similarity(qt, ct); sim > tokenPairMin && sim > best {
				best = sim
			}
		}
		total += best
	}
	return total / float64(len(queryTokens))
}

func tokenize(s string) []string {
	fields := strings.Fields(s)
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= minTokenLen {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// cyrillicFolds maps commonly-confused Mongolian Cyrillic vowels to their
// base forms so хүрэм/хурэм style typos still match.
var cyrillicFolds = strings.NewReplacer(
	"ө", "о",
	"ү", "у",
	"ё", "е",
)

// Normalize lowercases, trims, collapses internal whitespace, and folds
// Cyrillic vowel variants.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	return cyrillicFolds.Replace(s)
}
