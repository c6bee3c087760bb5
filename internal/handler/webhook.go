// Package handler holds the gin HTTP handlers: the social webhook intake
// and the admin/observability API.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aagii9912/smarthub-sub002/internal/automation"
	"github.com/aagii9912/smarthub-sub002/internal/domain"
	"github.com/aagii9912/smarthub-sub002/internal/jobqueue"
	"github.com/aagii9912/smarthub-sub002/internal/logger"
	"github.com/aagii9912/smarthub-sub002/internal/pipeline"
)

// SendMessagePayload is the job payload for an outbound DM.
type SendMessagePayload struct {
	Platform    domain.Platform `json:"platform"`
	RecipientID string          `json:"recipient_id"`
	Text        string          `json:"text"`
}

// webhookEnvelope is the Graph webhook wire shape, reduced to the fields
// the pipeline consumes.
type webhookEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string `json:"id"`
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Message struct {
				Text string `json:"text"`
			} `json:"message"`
		} `json:"messaging"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				PostID    string `json:"post_id"`
				CommentID string `json:"comment_id"`
				Message   string `json:"message"`
				From      struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"from"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ShopResolver maps a platform page/account id to the owning shop.
type ShopResolver interface {
	ShopIDForPage(ctx context.Context, pageID string) (string, error)
}

// WebhookHandler ingests Graph webhook deliveries.
type WebhookHandler struct {
	orchestrator *pipeline.Orchestrator
	comments     *pipeline.CommentPipeline
	jobs         *jobqueue.Service
	shops        ShopResolver
	verifyToken  string
	log          logger.Logger
}

func NewWebhookHandler(
	orchestrator *pipeline.Orchestrator,
	comments *pipeline.CommentPipeline,
	jobs *jobqueue.Service,
	shops ShopResolver,
	verifyToken string,
	log logger.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		orchestrator: orchestrator,
		comments:     comments,
		jobs:         jobs,
		shops:        shops,
		verifyToken:  verifyToken,
		log:          log,
	}
}

// Verify answers the Graph webhook subscription challenge.
func (h *WebhookHandler) Verify(c *gin.Context) {
	if c.Query("hub.mode") == "subscribe" && c.Query("hub.verify_token") == h.verifyToken {
		c.String(http.StatusOK, c.Query("hub.challenge"))
		return
	}
	c.Status(http.StatusForbidden)
}

// Receive processes one webhook delivery. It always answers 200 once the
// payload parses; failures are retried through the job queue, not by
// making the platform redeliver.
func (h *WebhookHandler) Receive(c *gin.Context) {
	var envelope webhookEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed webhook payload"})
		return
	}

	platform := domain.PlatformFacebook
	if envelope.Object == "instagram" {
		platform = domain.PlatformInstagram
	}

	for _, entry := range envelope.Entry {
		shopID, err := h.shops.ShopIDForPage(c.Request.Context(), entry.ID)
		if err != nil {
			h.log.Warn("webhook for unknown page",
				logger.String("page_id", entry.ID),
				logger.Error(err))
			continue
		}

		for _, m := range entry.Messaging {
			if m.Message.Text == "" {
				continue
			}
			h.handleMessage(c, pipeline.InboundMessage{
				ShopID:     shopID,
				CustomerID: m.Sender.ID,
				Platform:   platform,
				Text:       m.Message.Text,
			})
		}

		for _, change := range entry.Changes {
			if change.Field != "feed" && change.Field != "comments" {
				continue
			}
			event := automation.CommentEvent{
				ShopID:    shopID,
				Platform:  platform,
				PostID:    change.Value.PostID,
				CommentID: change.Value.CommentID,
				UserID:    change.Value.From.ID,
				Username:  change.Value.From.Name,
				Text:      change.Value.Message,
			}
			if _, err := h.comments.HandleComment(c.Request.Context(), event); err != nil {
				h.log.Error("comment handling failed",
					logger.String("comment_id", event.CommentID),
					logger.Error(err))
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// handleMessage runs the pipeline and queues the reply for delivery.
// Sending through the job queue makes delivery survive crashes and Graph
// API hiccups.
func (h *WebhookHandler) handleMessage(c *gin.Context, msg pipeline.InboundMessage) {
	reply, err := h.orchestrator.HandleMessage(c.Request.Context(), msg)
	if err != nil {
		h.log.Error("message pipeline failed",
			logger.String("customer_id", msg.CustomerID),
			logger.Error(err))
		return
	}

	_, err = h.jobs.Enqueue(c.Request.Context(), domain.JobMessage, SendMessagePayload{
		Platform:    msg.Platform,
		RecipientID: msg.CustomerID,
		Text:        reply.Text,
	})
	if err != nil {
		h.log.Error("reply enqueue failed",
			logger.String("customer_id", msg.CustomerID),
			logger.Error(err))
	}
}
