// Package pipeline orchestrates one inbound social message end to end:
// intent detection, product matching, experiment-tuned LLM completion with
// breaker and retry protection, and templated fallbacks when the LLM is
// unavailable.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aagii9912/smarthub-sub002/internal/circuitbreaker"
	"github.com/aagii9912/smarthub-sub002/internal/clients"
	"github.com/aagii9912/smarthub-sub002/internal/discount"
	"github.com/aagii9912/smarthub-sub002/internal/domain"
	"github.com/aagii9912/smarthub-sub002/internal/fuzzy"
	"github.com/aagii9912/smarthub-sub002/internal/intent"
	"github.com/aagii9912/smarthub-sub002/internal/logger"
	"github.com/aagii9912/smarthub-sub002/internal/metrics"
	"github.com/aagii9912/smarthub-sub002/internal/retry"
)

// historyWindow is how many prior messages feed the LLM context.
const historyWindow = 10

// maxSuggestions caps the alternatives offered when nothing matched.
const maxSuggestions = 3

// InboundMessage is one customer message from a webhook.
type InboundMessage struct {
	ShopID     string
	CustomerID string
	Platform   domain.Platform
	Text       string
}

// Reply is the pipeline's outcome for one message.
type Reply struct {
	Text     string
	Intent   domain.Intent
	Product  *domain.Product
	Fallback bool
}

// LLM completes a conversation.
type LLM interface {
	Complete(ctx context.Context, req clients.CompletionRequest) (string, error)
}

// ProductSource lists a shop's catalog for matching.
type ProductSource interface {
	ListProducts(ctx context.Context, shopID string) ([]domain.Product, error)
}

// ChatStore reads and appends chat history.
type ChatStore interface {
	Record(ctx context.Context, rec domain.ChatRecord) error
	Recent(ctx context.Context, shopID, customerID string, limit int) ([]domain.ChatRecord, error)
}

// Experiments assigns variants for the prompt experiment and records
// funnel events against them.
type Experiments interface {
	VariantFor(ctx context.Context, expType domain.ExperimentType, shopID, customerID string) (*domain.Experiment, *domain.Variant, error)
	TrackEvent(ctx context.Context, event domain.ExperimentResult)
}

// Discounts resolves the effective discount for a matched product.
type Discounts interface {
	EnrichProduct(ctx context.Context, p domain.Product) (domain.DiscountedProduct, error)
}

// Orchestrator runs the message pipeline.
type Orchestrator struct {
	intents     *intent.Detector
	products    ProductSource
	chat        ChatStore
	llm         LLM
	discounts   Discounts
	breakers    *circuitbreaker.Registry
	retrier     *retry.Service
	experiments Experiments
	metrics     *metrics.Metrics
	log         logger.Logger
}

func NewOrchestrator(
	products ProductSource,
	chat ChatStore,
	llm LLM,
	discounts Discounts,
	breakers *circuitbreaker.Registry,
	retrier *retry.Service,
	experiments Experiments,
	m *metrics.Metrics,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		intents:     intent.NewDetector(),
		products:    products,
		chat:        chat,
		llm:         llm,
		discounts:   discounts,
		breakers:    breakers,
		retrier:     retrier,
		experiments: experiments,
		metrics:     m,
		log:         log,
	}
}

// variantConfig is the JSON shape carried by prompt/model experiment
// variants.
type variantConfig struct {
	SystemPrompt string `json:"system_prompt"`
	Model        string `json:"model"`
}

// HandleMessage runs one customer message through the pipeline and returns
// the reply to send. The reply is always non-empty: when the LLM path is
// down the intent-keyed fallback template answers instead.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg InboundMessage) (Reply, error) {
	o.recordChat(ctx, msg, domain.RoleCustomer, msg.Text, "webhook")

	result := o.intents.Detect(msg.Text)
	o.metrics.IntentDetected.WithLabelValues(string(result.Intent)).Inc()

	var exp *domain.Experiment
	var variant *domain.Variant
	if o.experiments != nil {
		var err error
		exp, variant, err = o.experiments.VariantFor(ctx, domain.ExperimentPrompt, msg.ShopID, msg.CustomerID)
		if err != nil {
			o.log.Warn("experiment lookup failed", logger.Error(err))
		}
	}

	matched, suggestions := o.matchProduct(ctx, msg, result)

	if result.Intent == domain.IntentOrderCreate && exp != nil && variant != nil {
		o.experiments.TrackEvent(ctx, domain.ExperimentResult{
			ExperimentID: exp.ID,
			VariantID:    variant.ID,
			ShopID:       msg.ShopID,
			CustomerID:   msg.CustomerID,
			EventType:    domain.EventCheckout,
		})
	}

	reply, usedFallback := o.generate(ctx, msg, result, matched, suggestions, variant)

	source := "llm"
	outcome := "replied"
	if usedFallback {
		source = "fallback"
		outcome = "fallback"
	}
	o.recordChat(ctx, msg, domain.RoleAssistant, reply, source)
	o.metrics.MessagesProcessed.WithLabelValues(string(msg.Platform), outcome).Inc()

	out := Reply{
		Text:     reply,
		Intent:   result.Intent,
		Fallback: usedFallback,
	}
	if matched != nil {
		out.Product = &matched.Product
	}
	return out, nil
}

// matchProduct resolves the message to a catalog product for intents that
// reference one, enriched with its effective discount. When nothing clears
// the match threshold it returns autocomplete-style suggestions instead.
// Catalog errors degrade to no match; the LLM can still answer generically.
func (o *Orchestrator) matchProduct(ctx context.Context, msg InboundMessage, result domain.IntentResult) (*domain.DiscountedProduct, []domain.Product) {
	switch result.Intent {
	case domain.IntentPriceCheck, domain.IntentStockCheck, domain.IntentOrderCreate, domain.IntentProductInquiry:
	default:
		return nil, nil
	}

	products, err := o.products.ListProducts(ctx, msg.ShopID)
	if err != nil {
		o.log.Warn("catalog load failed, matching skipped",
			logger.String("shop_id", msg.ShopID),
			logger.Error(err))
		return nil, nil
	}

	hit := fuzzy.FindBestMatch(msg.Text, products)
	if hit == nil {
		return nil, suggestNear(msg.Text, products)
	}

	if o.discounts != nil {
		enriched, err := o.discounts.EnrichProduct(ctx, hit.Product)
		if err != nil {
			o.log.Warn("discount lookup failed",
				logger.String("product_id", hit.Product.ID),
				logger.Error(err))
		} else {
			return &enriched, nil
		}
	}
	return &domain.DiscountedProduct{
		Product:         hit.Product,
		DiscountedPrice: hit.Product.Price,
	}, nil
}

// generate produces the reply text, falling back to templates when the
// breaker is open or retries are exhausted.
func (o *Orchestrator) generate(
	ctx context.Context,
	msg InboundMessage,
	result domain.IntentResult,
	matched *domain.DiscountedProduct,
	suggestions []domain.Product,
	variant *domain.Variant,
) (string, bool) {
	req := o.buildRequest(ctx, msg, matched, variant)

	var reply string
	breaker := o.breakers.Get(circuitbreaker.ServiceLLM)
	err := o.retrier.Do(ctx, "llm completion", func() error {
		return breaker.Execute(ctx, func() error {
			start := time.Now()
			text, llmErr := o.llm.Complete(ctx, req)
			if llmErr != nil {
				return llmErr
			}
			o.metrics.LLMLatency.Observe(time.Since(start).Seconds())
			reply = text
			return nil
		})
	})
	if err == nil && strings.TrimSpace(reply) != "" {
		return reply, false
	}

	if err != nil && !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		o.log.Warn("llm completion failed, using fallback",
			logger.String("shop_id", msg.ShopID),
			logger.String("intent", string(result.Intent)),
			logger.Error(err))
	}
	return fallbackReply(result.Intent, matched, suggestions), true
}

// buildRequest assembles the LLM call: experiment-tuned system prompt and
// model, recent history, and the matched product as grounding context.
func (o *Orchestrator) buildRequest(ctx context.Context, msg InboundMessage, matched *domain.DiscountedProduct, variant *domain.Variant) clients.CompletionRequest {
	req := clients.CompletionRequest{
		SystemPrompt: defaultSystemPrompt,
	}

	if variant != nil && len(variant.Config) > 0 {
		var vc variantConfig
		if err := json.Unmarshal(variant.Config, &vc); err == nil {
			if vc.SystemPrompt != "" {
				req.SystemPrompt = vc.SystemPrompt
			}
			req.Model = vc.Model
		}
	}

	if matched != nil {
		req.SystemPrompt += groundingLine(matched)
	}

	history, err := o.chat.Recent(ctx, msg.ShopID, msg.CustomerID, historyWindow)
	if err != nil {
		o.log.Warn("chat history load failed", logger.Error(err))
	}
	for _, rec := range history {
		role := "user"
		if rec.Role == domain.RoleAssistant {
			role = "assistant"
		}
		req.Messages = append(req.Messages, clients.ChatMessage{Role: role, Content: rec.Message})
	}
	req.Messages = append(req.Messages, clients.ChatMessage{Role: "user", Content: msg.Text})
	return req
}

func (o *Orchestrator) recordChat(ctx context.Context, msg InboundMessage, role domain.ChatRole, text, source string) {
	err := o.chat.Record(ctx, domain.ChatRecord{
		ShopID:     msg.ShopID,
		CustomerID: msg.CustomerID,
		Platform:   msg.Platform,
		Role:       role,
		Message:    text,
		Source:     source,
	})
	if err != nil {
		o.log.Warn("chat record failed",
			logger.String("customer_id", msg.CustomerID),
			logger.Error(err))
	}
}

const defaultSystemPrompt = "Чи Монгол онлайн дэлгүүрийн туслах. Худалдан авагчид эелдэг, товч хариул."

// discountInEffect reports whether the enriched product carries a live
// discount worth surfacing to the customer.
func discountInEffect(m *domain.DiscountedProduct) bool {
	if m.DiscountPercent <= 0 {
		return false
	}
	return m.Status == domain.DiscountActive || m.Status == domain.DiscountExpiringSoon
}

// groundingLine renders the matched product for the system prompt,
// including live discount pricing and urgency when the window is closing.
func groundingLine(m *domain.DiscountedProduct) string {
	if !discountInEffect(m) {
		return fmt.Sprintf(
			"\n\nХолбогдох бараа: %s, үнэ %.0f₮, үлдэгдэл %d ширхэг.",
			m.Product.Name, m.Product.Price, m.Product.Stock)
	}

	line := fmt.Sprintf(
		"\n\nХолбогдох бараа: %s, хямдралтай үнэ %.0f₮ (%.0f%% хямдрал, энгийн үнэ %.0f₮), үлдэгдэл %d ширхэг.",
		m.Product.Name, m.DiscountedPrice, m.DiscountPercent, m.Product.Price, m.Product.Stock)
	if m.Status == domain.DiscountExpiringSoon {
		line += " " + discount.UrgencyCopy(m.HoursRemaining, "mn")
	}
	return line
}

// fallbackReply answers from templates when the LLM path is unavailable.
// Product-specific intents use the matched product's data directly; when
// nothing matched, near-miss suggestions are offered instead.
func fallbackReply(detected domain.Intent, matched *domain.DiscountedProduct, suggestions []domain.Product) string {
	switch detected {
	case domain.IntentGreeting:
		return "Сайн байна уу! 😊 Танд юугаар туслах вэ?"
	case domain.IntentPriceCheck:
		if matched != nil {
			if discountInEffect(matched) {
				text := fmt.Sprintf("%s барааны хямдралтай үнэ %.0f₮ байна (энгийн үнэ %.0f₮).",
					matched.Product.Name, matched.DiscountedPrice, matched.Product.Price)
				if matched.Status == domain.DiscountExpiringSoon {
					text += " " + discount.UrgencyCopy(matched.HoursRemaining, "mn")
				}
				return text
			}
			return fmt.Sprintf("%s барааны үнэ %.0f₮ байна.", matched.Product.Name, matched.Product.Price)
		}
		return withSuggestions("Аль барааны үнийг сонирхож байна вэ? Нэрийг нь бичээрэй.", suggestions)
	case domain.IntentStockCheck:
		if matched != nil {
			if matched.Product.Stock > 0 {
				return fmt.Sprintf("%s бэлэн байгаа, үлдэгдэл %d ширхэг.", matched.Product.Name, matched.Product.Stock)
			}
			return fmt.Sprintf("Уучлаарай, %s одоогоор дууссан байна.", matched.Product.Name)
		}
		return withSuggestions("Аль барааны үлдэгдлийг шалгах вэ?", suggestions)
	case domain.IntentProductInquiry:
		if matched != nil {
			return fmt.Sprintf("%s: үнэ %.0f₮, үлдэгдэл %d ширхэг.",
				matched.Product.Name, matched.Product.Price, matched.Product.Stock)
		}
		return withSuggestions("Ямар бараа сонирхож байна вэ?", suggestions)
	case domain.IntentOrderCreate:
		return "Захиалга өгөхийн тулд барааны нэр, тоо ширхэгээ бичээрэй."
	case domain.IntentOrderStatus:
		return "Захиалгын дугаараа илгээвэл төлөвийг нь шалгаж өгье."
	case domain.IntentThankYou:
		return "Баярлалаа! Дахин хандаарай 😊"
	case domain.IntentComplaint:
		return "Уучлаарай, таны гомдлыг хүлээн авлаа. Манай ажилтан тун удахгүй холбогдоно."
	default:
		return "Би танд туслахад бэлэн байна. Асуултаа бичээрэй."
	}
}

// suggestNear offers close catalog names when nothing cleared the match
// threshold. Whole sentences score poorly against short product names, so
// after one pass over the full text each word is tried separately.
func suggestNear(text string, products []domain.Product) []domain.Product {
	seen := make(map[string]bool, maxSuggestions)
	out := make([]domain.Product, 0, maxSuggestions)

	collect := func(candidates []domain.Product) bool {
		for _, p := range candidates {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			out = append(out, p)
			if len(out) == maxSuggestions {
				return true
			}
		}
		return false
	}

	for _, hit := range fuzzy.FindMatchingProducts(text, products) {
		if collect([]domain.Product{hit.Product}) {
			return out
		}
	}
	for _, token := range strings.Fields(fuzzy.Normalize(text)) {
		if len([]rune(token)) < 3 {
			continue
		}
		if collect(fuzzy.Suggest(token, products, maxSuggestions)) {
			return out
		}
	}
	return out
}

// withSuggestions appends near-miss product names to a no-match prompt.
func withSuggestions(base string, suggestions []domain.Product) string {
	if len(suggestions) == 0 {
		return base
	}
	names := make([]string, len(suggestions))
	for i, p := range suggestions {
		names[i] = p.Name
	}
	return base + " Магадгүй эдгээрээс: " + strings.Join(names, ", ") + "?"
}
