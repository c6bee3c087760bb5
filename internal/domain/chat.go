package domain

import "time"

// ChatRole identifies who produced a chat history record.
type ChatRole string

const (
	// RoleCustomer is an inbound customer message.
	RoleCustomer ChatRole = "customer"
	// RoleAssistant is an outbound automated response.
	RoleAssistant ChatRole = "assistant"
)

// ChatRecord is one entry in a shop's conversation history.
type ChatRecord struct {
	ID         string    `json:"id"`
	ShopID     string    `json:"shop_id"`
	CustomerID string    `json:"customer_id"`
	Platform   Platform  `json:"platform"`
	Role       ChatRole  `json:"role"`
	Message    string    `json:"message"`
	Source     string    `json:"source,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
