package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
)

// ExperimentRepository persists experiments and their event log.
type ExperimentRepository struct {
	db *sql.DB
}

func NewExperimentRepository(db *sql.DB) *ExperimentRepository {
	return &ExperimentRepository{db: db}
}

// ListActive returns active experiments ordered by creation. Variants are
// stored as a JSONB column since they are always read as a unit.
func (r *ExperimentRepository) ListActive(ctx context.Context) ([]domain.Experiment, error) {
	query := `SELECT id, name, experiment_type, description, variants, start_date, end_date, is_active, target_shop_ids
		FROM experiments
		WHERE is_active = TRUE
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying active experiments: %w", err)
	}
	defer rows.Close()

	var out []domain.Experiment
	for rows.Next() {
		var (
			exp      domain.Experiment
			expType  string
			variants []byte
			shops    pq.StringArray
		)
		err := rows.Scan(&exp.ID, &exp.Name, &expType, &exp.Description,
			&variants, &exp.StartDate, &exp.EndDate, &exp.IsActive, &shops)
		if err != nil {
			return nil, fmt.Errorf("scanning experiment row: %w", err)
		}
		if err := json.Unmarshal(variants, &exp.Variants); err != nil {
			return nil, fmt.Errorf("decoding variants for experiment %s: %w", exp.ID, err)
		}
		exp.Type = domain.ExperimentType(expType)
		exp.TargetShopIDs = []string(shops)
		out = append(out, exp)
	}
	return out, rows.Err()
}

// Insert stores a new experiment.
func (r *ExperimentRepository) Insert(ctx context.Context, exp domain.Experiment) error {
	variants, err := json.Marshal(exp.Variants)
	if err != nil {
		return fmt.Errorf("encoding variants for experiment %s: %w", exp.ID, err)
	}

	query := `INSERT INTO experiments
		(id, name, experiment_type, description, variants, start_date, end_date, is_active, target_shop_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`

	_, err = r.db.ExecContext(ctx, query,
		exp.ID, exp.Name, string(exp.Type), exp.Description, variants,
		exp.StartDate, exp.EndDate, exp.IsActive, pq.Array(exp.TargetShopIDs))
	if err != nil {
		return fmt.Errorf("inserting experiment %s: %w", exp.ID, err)
	}
	return nil
}

// Deactivate stops an experiment.
func (r *ExperimentRepository) Deactivate(ctx context.Context, experimentID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE experiments SET is_active = FALSE, end_date = NOW() WHERE id = $1`,
		experimentID)
	if err != nil {
		return fmt.Errorf("deactivating experiment %s: %w", experimentID, err)
	}
	return requireRow(res)
}

// RecordEvent appends one row to the experiment event log.
func (r *ExperimentRepository) RecordEvent(ctx context.Context, event domain.ExperimentResult) error {
	query := `INSERT INTO experiment_events
		(experiment_id, variant_id, shop_id, customer_id, event_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		event.ExperimentID, event.VariantID, event.ShopID, event.CustomerID,
		string(event.EventType), []byte(event.Metadata), event.Timestamp)
	if err != nil {
		return fmt.Errorf("recording %s event for experiment %s: %w", event.EventType, event.ExperimentID, err)
	}
	return nil
}

// VariantReports aggregates the event log per variant. Conversion rates are
// computed by the caller.
func (r *ExperimentRepository) VariantReports(ctx context.Context, experimentID string) ([]domain.VariantReport, error) {
	query := `SELECT variant_id,
		COUNT(*) FILTER (WHERE event_type = 'impression'),
		COUNT(*) FILTER (WHERE event_type = 'conversion'),
		COUNT(*) FILTER (WHERE event_type = 'cart_add'),
		COUNT(*) FILTER (WHERE event_type = 'checkout')
		FROM experiment_events
		WHERE experiment_id = $1
		GROUP BY variant_id
		ORDER BY variant_id`

	rows, err := r.db.QueryContext(ctx, query, experimentID)
	if err != nil {
		return nil, fmt.Errorf("aggregating events for experiment %s: %w", experimentID, err)
	}
	defer rows.Close()

	var out []domain.VariantReport
	for rows.Next() {
		var rep domain.VariantReport
		err := rows.Scan(&rep.VariantID, &rep.Impressions, &rep.Conversions, &rep.CartAdds, &rep.Checkouts)
		if err != nil {
			return nil, fmt.Errorf("scanning report row: %w", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}
