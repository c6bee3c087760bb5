package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
)

// AutomationRepository persists comment automations.
type AutomationRepository struct {
	db *sql.DB
}

func NewAutomationRepository(db *sql.DB) *AutomationRepository {
	return &AutomationRepository{db: db}
}

const automationColumns = `id, shop_id, is_active, post_id, post_url, trigger_keywords,
	match_type, action_type, dm_message, reply_message, platform,
	trigger_count, last_triggered_at, created_at, updated_at`

// ListActive returns the shop's active automations for a platform.
// Ordering by created_at makes first-match-wins deterministic: the oldest
// automation takes precedence on keyword overlap.
func (r *AutomationRepository) ListActive(ctx context.Context, shopID string, platform domain.Platform) ([]domain.CommentAutomation, error) {
	query := `SELECT ` + automationColumns + `
		FROM comment_automations
		WHERE shop_id = $1
		  AND is_active = TRUE
		  AND (platform = $2 OR platform = 'both')
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, shopID, string(platform))
	if err != nil {
		return nil, fmt.Errorf("querying automations for shop %s: %w", shopID, err)
	}
	defer rows.Close()

	var out []domain.CommentAutomation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Insert stores a new automation.
func (r *AutomationRepository) Insert(ctx context.Context, a domain.CommentAutomation) error {
	query := `INSERT INTO comment_automations (` + automationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.ShopID, a.IsActive, a.PostID, a.PostURL, pq.Array(a.TriggerKeywords),
		string(a.MatchType), string(a.ActionType), a.DMMessage, a.ReplyMessage, string(a.Platform),
		a.TriggerCount, a.LastTriggeredAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting automation %s: %w", a.ID, err)
	}
	return nil
}

// IncrementTrigger bumps the trigger counter and stamps the last trigger.
func (r *AutomationRepository) IncrementTrigger(ctx context.Context, automationID string) error {
	query := `UPDATE comment_automations
		SET trigger_count = trigger_count + 1,
		    last_triggered_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, automationID)
	if err != nil {
		return fmt.Errorf("incrementing trigger for automation %s: %w", automationID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetActive flips the automation on or off.
func (r *AutomationRepository) SetActive(ctx context.Context, automationID string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE comment_automations SET is_active = $2, updated_at = NOW() WHERE id = $1`,
		automationID, active)
	if err != nil {
		return fmt.Errorf("updating automation %s: %w", automationID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanAutomation(rows *sql.Rows) (domain.CommentAutomation, error) {
	var (
		a         domain.CommentAutomation
		keywords  pq.StringArray
		matchType string
		action    string
		platform  string
	)
	err := rows.Scan(
		&a.ID, &a.ShopID, &a.IsActive, &a.PostID, &a.PostURL, &keywords,
		&matchType, &action, &a.DMMessage, &a.ReplyMessage, &platform,
		&a.TriggerCount, &a.LastTriggeredAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.CommentAutomation{}, fmt.Errorf("scanning automation row: %w", err)
	}
	a.TriggerKeywords = []string(keywords)
	a.MatchType = domain.KeywordMatch(matchType)
	a.ActionType = domain.ActionType(action)
	a.Platform = domain.Platform(platform)
	return a, nil
}
