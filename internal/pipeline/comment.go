package pipeline

import (
	"context"
	"fmt"

	"github.com/aagii9912/smarthub-sub002/internal/automation"
	"github.com/aagii9912/smarthub-sub002/internal/comment"
	"github.com/aagii9912/smarthub-sub002/internal/domain"
	"github.com/aagii9912/smarthub-sub002/internal/logger"
	"github.com/aagii9912/smarthub-sub002/internal/metrics"
)

// AutomationRunner executes merchant automations for a comment.
type AutomationRunner interface {
	HandleComment(ctx context.Context, event automation.CommentEvent) (*domain.ExecutionResult, error)
}

// ReplyGuard claims idempotency keys for comment replies.
type ReplyGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// CommentReplier posts the detector's templated public reply.
type CommentReplier interface {
	ReplyToComment(ctx context.Context, platform domain.Platform, commentID, message string) error
}

// ShopInfo resolves the display name and page username used in templated
// replies.
type ShopInfo interface {
	ShopProfile(ctx context.Context, shopID string) (name, pageUsername string, err error)
}

// CommentPipeline decides what happens to one inbound comment: merchant
// automations take precedence, then the inquiry detector's templated reply.
type CommentPipeline struct {
	automations AutomationRunner
	guard       ReplyGuard
	replier     CommentReplier
	shops       ShopInfo
	metrics     *metrics.Metrics
	log         logger.Logger
}

func NewCommentPipeline(
	automations AutomationRunner,
	guard ReplyGuard,
	replier CommentReplier,
	shops ShopInfo,
	m *metrics.Metrics,
	log logger.Logger,
) *CommentPipeline {
	return &CommentPipeline{
		automations: automations,
		guard:       guard,
		replier:     replier,
		shops:       shops,
		metrics:     m,
		log:         log,
	}
}

// CommentDecision names the pipeline's outcome for metrics and logs.
type CommentDecision string

const (
	DecisionAutomation CommentDecision = "automation"
	DecisionReplied    CommentDecision = "detector_reply"
	DecisionDuplicate  CommentDecision = "duplicate"
	DecisionSkipped    CommentDecision = "skipped"
)

// HandleComment processes one inbound comment and reports the decision.
func (p *CommentPipeline) HandleComment(ctx context.Context, event automation.CommentEvent) (CommentDecision, error) {
	decision, err := p.handle(ctx, event)
	p.metrics.CommentsHandled.WithLabelValues(string(decision)).Inc()
	return decision, err
}

func (p *CommentPipeline) handle(ctx context.Context, event automation.CommentEvent) (CommentDecision, error) {
	result, err := p.automations.HandleComment(ctx, event)
	if err != nil {
		return DecisionSkipped, fmt.Errorf("running automations: %w", err)
	}
	if result != nil {
		return DecisionAutomation, nil
	}

	if !comment.ShouldReply(event.Text) {
		return DecisionSkipped, nil
	}

	// Webhooks are redelivered at-least-once; the claim makes the public
	// reply at-most-once per post and commenter.
	key := comment.ReplyKey(event.PostID, event.UserID)
	claimed, err := p.guard.Claim(ctx, key)
	if err != nil {
		return DecisionSkipped, fmt.Errorf("claiming reply key: %w", err)
	}
	if !claimed {
		return DecisionDuplicate, nil
	}

	shopName, pageUsername, err := p.shops.ShopProfile(ctx, event.ShopID)
	if err != nil {
		p.log.Warn("shop profile lookup failed",
			logger.String("shop_id", event.ShopID),
			logger.Error(err))
	}

	reply := comment.GenerateReply(shopName, pageUsername)
	if err := p.replier.ReplyToComment(ctx, event.Platform, event.CommentID, reply); err != nil {
		// Free the key so a webhook redelivery can retry the reply.
		if releaseErr := p.guard.Release(ctx, key); releaseErr != nil {
			p.log.Warn("reply key release failed",
				logger.String("key", key),
				logger.Error(releaseErr))
		}
		return DecisionSkipped, fmt.Errorf("posting comment reply: %w", err)
	}

	return DecisionReplied, nil
}
