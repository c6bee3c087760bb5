package automation

import (
	"context"
	"fmt"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
	"github.com/aagii9912/smarthub-sub002/internal/logger"
)

// SocialSender delivers outbound messages on the comment's platform.
type SocialSender interface {
	SendDM(ctx context.Context, platform domain.Platform, recipientID, message string) error
	ReplyToComment(ctx context.Context, platform domain.Platform, commentID, message string) error
}

// Repository is the slice of automation storage the executor needs.
type Repository interface {
	ListActive(ctx context.Context, shopID string, platform domain.Platform) ([]domain.CommentAutomation, error)
	IncrementTrigger(ctx context.Context, automationID string) error
}

// ChatRecorder appends outbound messages to the shop's chat history.
type ChatRecorder interface {
	Record(ctx context.Context, rec domain.ChatRecord) error
}

// Executor runs matched automations. Send failures are isolated: a failed
// DM never blocks the public reply and vice versa, and the trigger counter
// and chat history append happen regardless of delivery outcome.
type Executor struct {
	social SocialSender
	repo   Repository
	chat   ChatRecorder
	log    logger.Logger
}

func NewExecutor(social SocialSender, repo Repository, chat ChatRecorder, log logger.Logger) *Executor {
	return &Executor{social: social, repo: repo, chat: chat, log: log}
}

// HandleComment loads the shop's automations, matches the event, and
// executes the first hit. A nil result with nil error means no automation
// matched.
func (e *Executor) HandleComment(ctx context.Context, event CommentEvent) (*domain.ExecutionResult, error) {
	automations, err := e.repo.ListActive(ctx, event.ShopID, event.Platform)
	if err != nil {
		return nil, fmt.Errorf("listing automations for shop %s: %w", event.ShopID, err)
	}

	matched := FindMatch(automations, event)
	if matched == nil {
		return nil, nil
	}

	result := e.Execute(ctx, matched, event)
	return &result, nil
}

// Execute performs the automation's configured actions for one comment.
func (e *Executor) Execute(ctx context.Context, a *domain.CommentAutomation, event CommentEvent) domain.ExecutionResult {
	var result domain.ExecutionResult

	dmMessage := deref(a.DMMessage)
	replyMessage := deref(a.ReplyMessage)

	if a.ActionType.WantsDM() && dmMessage != "" {
		if err := e.social.SendDM(ctx, event.Platform, event.UserID, dmMessage); err != nil {
			e.log.Warn("automation DM failed",
				logger.String("automation_id", a.ID),
				logger.String("comment_id", event.CommentID),
				logger.Error(err))
		} else {
			result.DMSent = true
		}
	}

	if a.ActionType.WantsReply() && replyMessage != "" {
		if err := e.social.ReplyToComment(ctx, event.Platform, event.CommentID, replyMessage); err != nil {
			e.log.Warn("automation comment reply failed",
				logger.String("automation_id", a.ID),
				logger.String("comment_id", event.CommentID),
				logger.Error(err))
		} else {
			result.ReplySent = true
		}
	}

	// Counter and history log track triggers, not deliveries, so both move
	// even when every send fails.
	if err := e.repo.IncrementTrigger(ctx, a.ID); err != nil {
		e.log.Warn("automation trigger count update failed",
			logger.String("automation_id", a.ID),
			logger.Error(err))
	}

	message := dmMessage
	if message == "" {
		message = replyMessage
	}
	e.recordChat(ctx, event, message, "automation")

	return result
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (e *Executor) recordChat(ctx context.Context, event CommentEvent, message, source string) {
	if e.chat == nil {
		return
	}
	err := e.chat.Record(ctx, domain.ChatRecord{
		ShopID:     event.ShopID,
		CustomerID: event.UserID,
		Platform:   event.Platform,
		Role:       domain.RoleAssistant,
		Message:    message,
		Source:     source,
	})
	if err != nil {
		e.log.Warn("chat history append failed",
			logger.String("shop_id", event.ShopID),
			logger.Error(err))
	}
}
