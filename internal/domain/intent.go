// Package domain defines the core entities shared across the chat
// orchestrator service.
package domain

// Intent is a coarse classification of a chat message's purpose.
type Intent string

const (
	// IntentGreeting is a salutation with no actionable request.
	IntentGreeting Intent = "greeting"
	// IntentPriceCheck asks for the price of a product.
	IntentPriceCheck Intent = "price_check"
	// IntentStockCheck asks whether a product is available.
	IntentStockCheck Intent = "stock_check"
	// IntentOrderCreate expresses a wish to buy/order.
	IntentOrderCreate Intent = "order_create"
	// IntentOrderStatus asks about an existing order.
	IntentOrderStatus Intent = "order_status"
	// IntentProductInquiry asks for details about a product.
	IntentProductInquiry Intent = "product_inquiry"
	// IntentThankYou is an acknowledgment/thanks message.
	IntentThankYou Intent = "thank_you"
	// IntentComplaint expresses dissatisfaction.
	IntentComplaint Intent = "complaint"
	// IntentGeneralChat is the fallback for anything unmatched.
	IntentGeneralChat Intent = "general_chat"
)

// Entities holds structured values extracted from free text.
// A nil/empty field means the entity was not present in the message.
type Entities struct {
	Quantity *int   `json:"quantity,omitempty"`
	Color    string `json:"color,omitempty"`
	Size     string `json:"size,omitempty"`
}

// IntentResult is the ephemeral output of message classification.
// It is created per message and never persisted.
type IntentResult struct {
	Intent     Intent   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Entities   Entities `json:"entities"`
}
