package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
)

// DiscountRepository persists discount schedules.
type DiscountRepository struct {
	db *sql.DB
}

func NewDiscountRepository(db *sql.DB) *DiscountRepository {
	return &DiscountRepository{db: db}
}

const discountColumns = `id, product_id, discount_percent, start_date, end_date, is_active, created_at`

// Insert stores a new schedule.
func (r *DiscountRepository) Insert(ctx context.Context, s domain.DiscountSchedule) error {
	query := `INSERT INTO discount_schedules (` + discountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.ProductID, s.DiscountPercent, s.StartDate, s.EndDate, s.IsActive, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting discount schedule %s: %w", s.ID, err)
	}
	return nil
}

// ActiveSchedules returns all active schedules.
func (r *DiscountRepository) ActiveSchedules(ctx context.Context) ([]domain.DiscountSchedule, error) {
	query := `SELECT ` + discountColumns + `
		FROM discount_schedules
		WHERE is_active = TRUE
		ORDER BY end_date ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying active discount schedules: %w", err)
	}
	defer rows.Close()

	var out []domain.DiscountSchedule
	for rows.Next() {
		var s domain.DiscountSchedule
		err := rows.Scan(&s.ID, &s.ProductID, &s.DiscountPercent, &s.StartDate, &s.EndDate, &s.IsActive, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning discount schedule row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ActiveScheduleForProduct returns the product's single active schedule, or
// nil when none exists.
func (r *DiscountRepository) ActiveScheduleForProduct(ctx context.Context, productID string) (*domain.DiscountSchedule, error) {
	query := `SELECT ` + discountColumns + `
		FROM discount_schedules
		WHERE product_id = $1 AND is_active = TRUE
		ORDER BY created_at DESC
		LIMIT 1`

	var s domain.DiscountSchedule
	err := r.db.QueryRowContext(ctx, query, productID).Scan(
		&s.ID, &s.ProductID, &s.DiscountPercent, &s.StartDate, &s.EndDate, &s.IsActive, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying schedule for product %s: %w", productID, err)
	}
	return &s, nil
}

// DeactivateForProduct turns off every active schedule of a product.
func (r *DiscountRepository) DeactivateForProduct(ctx context.Context, productID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE discount_schedules SET is_active = FALSE WHERE product_id = $1 AND is_active = TRUE`,
		productID)
	if err != nil {
		return fmt.Errorf("deactivating schedules for product %s: %w", productID, err)
	}
	return nil
}

// DeactivateExpired turns off schedules that ended before the cutoff and
// returns how many rows changed. Safe to run repeatedly.
func (r *DiscountRepository) DeactivateExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE discount_schedules SET is_active = FALSE WHERE is_active = TRUE AND end_date <= $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("deactivating expired schedules: %w", err)
	}
	return res.RowsAffected()
}
