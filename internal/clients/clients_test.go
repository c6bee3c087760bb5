package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aagii9912/smarthub-sub002/internal/config"
	"github.com/aagii9912/smarthub-sub002/internal/domain"
	"github.com/aagii9912/smarthub-sub002/internal/retry"
)

func TestLLMClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var wire map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&wire))
		assert.Equal(t, "gemini-2.0-flash", wire["model"])

		json.NewEncoder(w).Encode(map[string]string{"content": "Сайн байна уу!"})
	}))
	defer srv.Close()

	client := NewLLMClient(config.LLMConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "gemini-2.0-flash",
		Timeout: 5 * time.Second,
	})

	reply, err := client.Complete(context.Background(), CompletionRequest{
		SystemPrompt: "You are a shop assistant.",
		Messages:     []ChatMessage{{Role: "user", Content: "hi"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "Сайн байна уу!", reply)
}

func TestLLMClient_OverloadErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"overloaded"}`))
	}))
	defer srv.Close()

	client := NewLLMClient(config.LLMConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})

	_, err := client.Complete(context.Background(), CompletionRequest{})

	require.Error(t, err)
	// The retry layer classifies by message content; 503s must qualify.
	assert.True(t, retry.DefaultIsRetryable(err))
}

func TestSocialClient_SendDM(t *testing.T) {
	var gotPath, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("access_token")

		var payload map[string]map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "user-1", payload["recipient"]["id"])
		assert.Equal(t, "hello", payload["message"]["text"])

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewSocialClient(
		config.SocialConfig{GraphBaseURL: srv.URL, SendRPS: 100, SendBurst: 100},
		func(domain.Platform) (string, error) { return "page-token", nil },
	)

	err := client.SendDM(context.Background(), domain.PlatformFacebook, "user-1", "hello")

	require.NoError(t, err)
	assert.Equal(t, "/me/messages", gotPath)
	assert.Equal(t, "page-token", gotToken)
}

func TestSocialClient_ReplyEndpointPerPlatform(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewSocialClient(
		config.SocialConfig{GraphBaseURL: srv.URL, SendRPS: 100, SendBurst: 100},
		nil,
	)

	require.NoError(t, client.ReplyToComment(context.Background(), domain.PlatformFacebook, "c1", "reply"))
	require.NoError(t, client.ReplyToComment(context.Background(), domain.PlatformInstagram, "c1", "reply"))

	assert.Equal(t, []string{"/c1/comments", "/c1/replies"}, paths)
}

func TestSocialClient_RateLimiterHonorsContext(t *testing.T) {
	client := NewSocialClient(
		// One send per second: after the burst token is gone the limiter
		// cannot admit another call before the 10ms deadline.
		config.SocialConfig{GraphBaseURL: "http://unreachable.invalid", SendRPS: 1, SendBurst: 1},
		nil,
	)
	// Drain the single burst token.
	client.limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := client.SendDM(ctx, domain.PlatformFacebook, "user-1", "hello")
	assert.Error(t, err)
}

func TestPaymentClient_CreateInvoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "merchant", user)
		assert.Equal(t, "secret", pass)

		json.NewEncoder(w).Encode(Invoice{
			ID:         "inv-1",
			Amount:     120000,
			PaymentURL: "https://pay.example/inv-1",
		})
	}))
	defer srv.Close()

	client := NewPaymentClient(config.PaymentConfig{
		BaseURL:  srv.URL,
		Username: "merchant",
		Password: "secret",
	})

	invoice, err := client.CreateInvoice(context.Background(), "order-1", 120000, "2x хүрэм")

	require.NoError(t, err)
	assert.Equal(t, "inv-1", invoice.ID)
	assert.Equal(t, "https://pay.example/inv-1", invoice.PaymentURL)
}

func TestPaymentClient_GatewayErrorSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewPaymentClient(config.PaymentConfig{BaseURL: srv.URL})

	_, err := client.CreateInvoice(context.Background(), "order-1", 1000, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
