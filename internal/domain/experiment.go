package domain

import (
	"encoding/json"
	"time"
)

// ExperimentType categorizes what an experiment is tuning.
type ExperimentType string

const (
	// ExperimentPrompt tunes the LLM system prompt.
	ExperimentPrompt ExperimentType = "prompt"
	// ExperimentModel tunes which model is called.
	ExperimentModel ExperimentType = "model"
	// ExperimentTactic tunes a sales tactic (urgency copy, upsell, etc).
	ExperimentTactic ExperimentType = "tactic"
)

// Variant is one configuration option within an experiment.
// Weight is a traffic share in [0,100]; weights are intended (but not
// required) to sum to 100 per experiment.
type Variant struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Weight int             `json:"weight"`
	Config json.RawMessage `json:"config"`
}

// Experiment is a traffic-splitting A/B test over prompt/model/tactic
// variants. An empty TargetShopIDs list means the experiment is global.
type Experiment struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Type          ExperimentType `json:"type"`
	Description   string         `json:"description,omitempty"`
	Variants      []Variant      `json:"variants"`
	StartDate     time.Time      `json:"start_date"`
	EndDate       *time.Time     `json:"end_date,omitempty"`
	IsActive      bool           `json:"is_active"`
	TargetShopIDs []string       `json:"target_shop_ids,omitempty"`
}

// ExperimentEventType is the kind of tracked experiment event.
type ExperimentEventType string

const (
	// EventImpression is recorded when a variant is served.
	EventImpression ExperimentEventType = "impression"
	// EventConversion is recorded on a completed purchase.
	EventConversion ExperimentEventType = "conversion"
	// EventCartAdd is recorded when a product is added to a cart.
	EventCartAdd ExperimentEventType = "cart_add"
	// EventCheckout is recorded when checkout starts.
	EventCheckout ExperimentEventType = "checkout"
)

// ExperimentResult is one row in the append-only experiment event log.
type ExperimentResult struct {
	ExperimentID string              `json:"experiment_id"`
	VariantID    string              `json:"variant_id"`
	ShopID       string              `json:"shop_id"`
	CustomerID   string              `json:"customer_id,omitempty"`
	EventType    ExperimentEventType `json:"event_type"`
	Metadata     json.RawMessage     `json:"metadata,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
}

// VariantReport aggregates the event log for one variant.
type VariantReport struct {
	VariantID      string  `json:"variant_id"`
	VariantName    string  `json:"variant_name"`
	Impressions    int     `json:"impressions"`
	Conversions    int     `json:"conversions"`
	CartAdds       int     `json:"cart_adds"`
	Checkouts      int     `json:"checkouts"`
	ConversionRate float64 `json:"conversion_rate"`
}
