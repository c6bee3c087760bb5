package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/aagii9912/smarthub-sub002/internal/config"
	"github.com/aagii9912/smarthub-sub002/internal/domain"
)

// TokenSource resolves the page access token to use for a platform.
type TokenSource func(platform domain.Platform) (string, error)

// SocialClient sends DMs and comment replies through the Graph API.
// Outbound sends go through a token bucket so webhook bursts cannot trip
// the platform's rate limits.
type SocialClient struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	accessToken TokenSource
}

func NewSocialClient(cfg config.SocialConfig, tokens TokenSource) *SocialClient {
	return &SocialClient{
		baseURL:     cfg.GraphBaseURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(cfg.SendRPS), cfg.SendBurst),
		accessToken: tokens,
	}
}

// SendDM delivers a direct message to a user. Facebook and Instagram share
// the same messages endpoint shape.
func (c *SocialClient) SendDM(ctx context.Context, platform domain.Platform, recipientID, message string) error {
	payload := map[string]any{
		"recipient": map[string]string{"id": recipientID},
		"message":   map[string]string{"text": message},
	}
	return c.post(ctx, platform, "/me/messages", payload)
}

// ReplyToComment posts a public reply under a comment.
func (c *SocialClient) ReplyToComment(ctx context.Context, platform domain.Platform, commentID, message string) error {
	path := "/" + url.PathEscape(commentID)
	if platform == domain.PlatformInstagram {
		path += "/replies"
	} else {
		path += "/comments"
	}
	return c.post(ctx, platform, path, map[string]any{"message": message})
}

func (c *SocialClient) post(ctx context.Context, platform domain.Platform, path string, payload any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for send slot: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding graph payload: %w", err)
	}

	endpoint := c.baseURL + path
	if c.accessToken != nil {
		token, err := c.accessToken(platform)
		if err != nil {
			return fmt.Errorf("resolving page token: %w", err)
		}
		endpoint += "?access_token=" + url.QueryEscape(token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building graph request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling graph api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return upstreamError("graph api", resp)
	}
	return nil
}
