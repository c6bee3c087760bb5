// Package automation matches incoming social comments against merchant
// configured comment automations and executes the configured actions.
package automation

import (
	"strings"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
)

// CommentEvent is one inbound comment from a webhook, reduced to the fields
// the automation pipeline needs.
type CommentEvent struct {
	ShopID    string
	Platform  domain.Platform
	PostID    string
	CommentID string
	UserID    string
	Username  string
	Text      string
}

// FindMatch walks the automations in their stored order and returns the
// first one whose filters accept the event, or nil. Earlier rows win ties,
// so callers must pass a slice ordered by creation time.
func FindMatch(automations []domain.CommentAutomation, event CommentEvent) *domain.CommentAutomation {
	text := strings.ToLower(strings.TrimSpace(event.Text))

	for i := range automations {
		a := &automations[i]
		if !a.IsActive {
			continue
		}
		if !platformAccepts(a.Platform, event.Platform) {
			continue
		}
		// Post scope only applies when the event actually carries a post id;
		// events without one (eg. some Instagram deliveries) pass through.
		if a.PostID != nil && event.PostID != "" && *a.PostID != event.PostID {
			continue
		}
		if matchesKeywords(text, a.TriggerKeywords, a.MatchType) {
			return a
		}
	}
	return nil
}

func platformAccepts(configured, incoming domain.Platform) bool {
	return configured == domain.PlatformBoth || configured == incoming
}

// matchesKeywords reports whether any trigger keyword hits the comment.
// Contains matching looks for the keyword anywhere in the text; exact
// matching requires the whole comment to equal the keyword.
func matchesKeywords(text string, keywords []string, matchType domain.KeywordMatch) bool {
	if text == "" {
		return false
	}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		switch matchType {
		case domain.KeywordMatchExact:
			if text == kw {
				return true
			}
		default:
			if strings.Contains(text, kw) {
				return true
			}
		}
	}
	return false
}
