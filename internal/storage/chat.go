package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
)

// ChatRepository persists the per-customer chat history used for LLM
// context windows and audit.
type ChatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// Record appends one message to the history. An empty ID is filled in.
func (r *ChatRepository) Record(ctx context.Context, rec domain.ChatRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	query := `INSERT INTO chat_history
		(id, shop_id, customer_id, platform, role, message, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`

	var createdAt any
	if !rec.CreatedAt.IsZero() {
		createdAt = rec.CreatedAt
	}

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.ShopID, rec.CustomerID, rec.Platform,
		string(rec.Role), rec.Message, rec.Source, createdAt)
	if err != nil {
		return fmt.Errorf("recording chat message for customer %s: %w", rec.CustomerID, err)
	}
	return nil
}

// Recent returns the customer's latest messages, newest last, limited to
// the LLM context window size.
func (r *ChatRepository) Recent(ctx context.Context, shopID, customerID string, limit int) ([]domain.ChatRecord, error) {
	query := `SELECT id, shop_id, customer_id, platform, role, message, source, created_at
		FROM (
			SELECT id, shop_id, customer_id, platform, role, message, source, created_at
			FROM chat_history
			WHERE shop_id = $1 AND customer_id = $2
			ORDER BY created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, shopID, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying chat history for customer %s: %w", customerID, err)
	}
	defer rows.Close()

	var out []domain.ChatRecord
	for rows.Next() {
		var (
			rec  domain.ChatRecord
			role string
		)
		err := rows.Scan(&rec.ID, &rec.ShopID, &rec.CustomerID, &rec.Platform,
			&role, &rec.Message, &rec.Source, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning chat row: %w", err)
		}
		rec.Role = domain.ChatRole(role)
		out = append(out, rec)
	}
	return out, rows.Err()
}
