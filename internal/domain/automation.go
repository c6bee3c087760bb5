package domain

import "time"

// Platform identifies the social platform an event came from.
type Platform string

const (
	// PlatformFacebook is a Facebook page event.
	PlatformFacebook Platform = "facebook"
	// PlatformInstagram is an Instagram business account event.
	PlatformInstagram Platform = "instagram"
	// PlatformBoth matches events from either platform.
	PlatformBoth Platform = "both"
)

// KeywordMatch selects how trigger keywords are compared to a comment.
type KeywordMatch string

const (
	// KeywordMatchContains matches when the comment contains the keyword.
	KeywordMatchContains KeywordMatch = "contains"
	// KeywordMatchExact matches when the normalized comment equals the keyword.
	KeywordMatchExact KeywordMatch = "exact"
)

// ActionType selects which side effects an automation performs.
type ActionType string

const (
	// ActionSendDM sends a direct message to the commenter.
	ActionSendDM ActionType = "send_dm"
	// ActionReplyComment replies publicly under the comment.
	ActionReplyComment ActionType = "reply_comment"
	// ActionBoth performs both actions.
	ActionBoth ActionType = "both"
)

// WantsDM reports whether the action type includes a direct message.
func (a ActionType) WantsDM() bool {
	return a == ActionSendDM || a == ActionBoth
}

// WantsReply reports whether the action type includes a comment reply.
func (a ActionType) WantsReply() bool {
	return a == ActionReplyComment || a == ActionBoth
}

// CommentAutomation is a shop-scoped rule that turns matching comments
// into automated DMs and/or public replies.
type CommentAutomation struct {
	ID              string       `json:"id"`
	ShopID          string       `json:"shop_id"`
	IsActive        bool         `json:"is_active"`
	PostID          *string      `json:"post_id,omitempty"`
	PostURL         *string      `json:"post_url,omitempty"`
	TriggerKeywords []string     `json:"trigger_keywords"`
	MatchType       KeywordMatch `json:"match_type"`
	ActionType      ActionType   `json:"action_type"`
	DMMessage       *string      `json:"dm_message,omitempty"`
	ReplyMessage    *string      `json:"reply_message,omitempty"`
	Platform        Platform     `json:"platform"`
	TriggerCount    int          `json:"trigger_count"`
	LastTriggeredAt *time.Time   `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// ExecutionResult reports which automation side effects actually happened.
type ExecutionResult struct {
	DMSent    bool `json:"dm_sent"`
	ReplySent bool `json:"reply_sent"`
}
