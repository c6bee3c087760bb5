package domain

import "time"

// DiscountStatus is the derived lifecycle state of a discount schedule.
// It is always computed from the current time, never stored.
type DiscountStatus string

const (
	// DiscountScheduled means the discount has not started yet.
	DiscountScheduled DiscountStatus = "scheduled"
	// DiscountActive means the discount is currently in effect.
	DiscountActive DiscountStatus = "active"
	// DiscountExpiringSoon means the discount ends within 24 hours.
	DiscountExpiringSoon DiscountStatus = "expiring_soon"
	// DiscountExpired means the discount window has passed.
	DiscountExpired DiscountStatus = "expired"
)

// DiscountSchedule is a time-boxed discount for a single product.
// At most one schedule per product is active at a time; creating a new one
// deactivates prior schedules for the same product.
type DiscountSchedule struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"product_id"`
	DiscountPercent float64   `json:"discount_percent"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// DiscountedProduct is a product enriched with its effective discount,
// ready for prompt building or templated responses.
type DiscountedProduct struct {
	Product         Product        `json:"product"`
	Status          DiscountStatus `json:"status"`
	DiscountPercent float64        `json:"discount_percent"`
	DiscountedPrice float64        `json:"discounted_price"`
	HoursRemaining  float64        `json:"hours_remaining,omitempty"`
}
