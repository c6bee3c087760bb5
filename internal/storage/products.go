package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
)

// ProductRepository reads the shop catalog used for fuzzy matching.
type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// ListProducts returns the shop's sellable catalog.
func (r *ProductRepository) ListProducts(ctx context.Context, shopID string) ([]domain.Product, error) {
	query := `SELECT id, name, COALESCE(description, ''), price, stock, COALESCE(discount_percent, 0)
		FROM products
		WHERE shop_id = $1 AND is_deleted = FALSE
		ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query, shopID)
	if err != nil {
		return nil, fmt.Errorf("querying products for shop %s: %w", shopID, err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.DiscountPercent); err != nil {
			return nil, fmt.Errorf("scanning product row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
