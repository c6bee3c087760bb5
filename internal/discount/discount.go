// Package discount derives discount lifecycle state from schedule windows
// and enriches products with effective pricing and urgency copy. Status is
// never stored; it is recomputed from the clock on every read.
package discount

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
	"github.com/aagii9912/smarthub-sub002/internal/logger"
)

// expiringSoonWindow is how close to the end date a discount counts as
// expiring. A discount ending in exactly 24h is already expiring_soon.
const expiringSoonWindow = 24 * time.Hour

// Repository is the schedule storage surface the service needs.
type Repository interface {
	Insert(ctx context.Context, s domain.DiscountSchedule) error
	ActiveSchedules(ctx context.Context) ([]domain.DiscountSchedule, error)
	ActiveScheduleForProduct(ctx context.Context, productID string) (*domain.DiscountSchedule, error)
	DeactivateForProduct(ctx context.Context, productID string) error
	DeactivateExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Status derives the lifecycle state of a schedule at the given instant.
func Status(s domain.DiscountSchedule, now time.Time) domain.DiscountStatus {
	switch {
	case now.Before(s.StartDate):
		return domain.DiscountScheduled
	case !now.Before(s.EndDate):
		return domain.DiscountExpired
	case s.EndDate.Sub(now) <= expiringSoonWindow:
		return domain.DiscountExpiringSoon
	default:
		return domain.DiscountActive
	}
}

// HoursRemaining is the time left until the schedule ends, zero once past.
func HoursRemaining(s domain.DiscountSchedule, now time.Time) float64 {
	remaining := s.EndDate.Sub(now).Hours()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Enrich combines a product with its schedule into a DiscountedProduct.
// A nil, inactive, or not-yet-effective schedule falls back to the product's
// static discount percent. Prices are in whole MNT, so the discounted price
// is rounded to the nearest integer.
func Enrich(p domain.Product, s *domain.DiscountSchedule, now time.Time) domain.DiscountedProduct {
	out := domain.DiscountedProduct{
		Product:         p,
		Status:          domain.DiscountExpired,
		DiscountPercent: p.DiscountPercent,
	}

	if s != nil && s.IsActive {
		status := Status(*s, now)
		if status == domain.DiscountActive || status == domain.DiscountExpiringSoon {
			out.Status = status
			out.DiscountPercent = s.DiscountPercent
			out.HoursRemaining = HoursRemaining(*s, now)
			out.DiscountedPrice = applyDiscount(p.Price, s.DiscountPercent)
			return out
		}
		if status == domain.DiscountScheduled {
			out.Status = status
		}
	}

	if out.DiscountPercent > 0 && out.Status != domain.DiscountScheduled {
		out.Status = domain.DiscountActive
	}
	out.DiscountedPrice = applyDiscount(p.Price, out.DiscountPercent)
	return out
}

func applyDiscount(price, percent float64) float64 {
	return math.Round(price * (1 - percent/100))
}

// UrgencyCopy returns localized urgency text for the remaining window.
// Supported languages are mn, en, and ru; anything else falls back to mn.
func UrgencyCopy(hoursRemaining float64, lang string) string {
	tier := 2
	switch {
	case hoursRemaining <= 1:
		tier = 0
	case hoursRemaining <= 6:
		tier = 1
	}

	copies, ok := urgencyByLang[lang]
	if !ok {
		copies = urgencyByLang["mn"]
	}
	return copies[tier]
}

var urgencyByLang = map[string][3]string{
	"mn": {
		"⏰ Хямдрал 1 цагийн дотор дуусна! Яараарай!",
		"⏰ Хямдрал хэдхэн цагийн дараа дуусна!",
		"🔥 Хязгаарлагдмал хугацааны хямдрал!",
	},
	"en": {
		"⏰ Sale ends within the hour! Hurry!",
		"⏰ Sale ends in just a few hours!",
		"🔥 Limited-time discount!",
	},
	"ru": {
		"⏰ Скидка закончится в течение часа! Спешите!",
		"⏰ Скидка закончится через несколько часов!",
		"🔥 Скидка ограничена по времени!",
	},
}

// Service manages schedule lifecycle on top of the repository.
type Service struct {
	repo Repository
	log  logger.Logger
	now  func() time.Time
}

func NewService(repo Repository, log logger.Logger) *Service {
	return &Service{repo: repo, log: log, now: time.Now}
}

// CreateSchedule persists a new schedule after deactivating any prior
// schedule for the same product, keeping at most one active per product.
func (s *Service) CreateSchedule(ctx context.Context, schedule domain.DiscountSchedule) (domain.DiscountSchedule, error) {
	if schedule.ProductID == "" {
		return domain.DiscountSchedule{}, fmt.Errorf("discount schedule needs a product id")
	}
	if schedule.DiscountPercent <= 0 || schedule.DiscountPercent >= 100 {
		return domain.DiscountSchedule{}, fmt.Errorf("discount percent %.1f out of range (0,100)", schedule.DiscountPercent)
	}
	if !schedule.EndDate.After(schedule.StartDate) {
		return domain.DiscountSchedule{}, fmt.Errorf("discount end date must be after start date")
	}

	if err := s.repo.DeactivateForProduct(ctx, schedule.ProductID); err != nil {
		return domain.DiscountSchedule{}, fmt.Errorf("deactivating prior schedules for product %s: %w", schedule.ProductID, err)
	}

	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	schedule.IsActive = true
	schedule.CreatedAt = s.now()

	if err := s.repo.Insert(ctx, schedule); err != nil {
		return domain.DiscountSchedule{}, fmt.Errorf("inserting discount schedule: %w", err)
	}
	return schedule, nil
}

// EnrichProduct loads the product's active schedule and applies it.
func (s *Service) EnrichProduct(ctx context.Context, p domain.Product) (domain.DiscountedProduct, error) {
	schedule, err := s.repo.ActiveScheduleForProduct(ctx, p.ID)
	if err != nil {
		return domain.DiscountedProduct{}, fmt.Errorf("loading schedule for product %s: %w", p.ID, err)
	}
	return Enrich(p, schedule, s.now()), nil
}

// ExpireSweep deactivates schedules whose end date has passed. Running it
// twice in a row is harmless; the second pass touches zero rows.
func (s *Service) ExpireSweep(ctx context.Context) (int64, error) {
	n, err := s.repo.DeactivateExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expiring discount schedules: %w", err)
	}
	if n > 0 {
		s.log.Info("expired discount schedules deactivated", logger.Int64("count", n))
	}
	return n, nil
}
