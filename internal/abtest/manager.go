// Package abtest assigns chat traffic to experiment variants and tracks
// outcome events. Assignment is deterministic: the same customer always
// lands on the same variant of an experiment, with no stored assignment
// table.
package abtest

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
	"github.com/aagii9912/smarthub-sub002/internal/logger"
)

// Repository is the persistence surface the manager needs.
type Repository interface {
	ListActive(ctx context.Context) ([]domain.Experiment, error)
	Insert(ctx context.Context, exp domain.Experiment) error
	Deactivate(ctx context.Context, experimentID string) error
	RecordEvent(ctx context.Context, event domain.ExperimentResult) error
	VariantReports(ctx context.Context, experimentID string) ([]domain.VariantReport, error)
}

// Manager serves variant assignments from a periodically refreshed cache of
// active experiments.
type Manager struct {
	repo            Repository
	log             logger.Logger
	refreshInterval time.Duration
	now             func() time.Time

	mu          sync.RWMutex
	cache       []domain.Experiment
	lastRefresh time.Time
}

func NewManager(repo Repository, refreshInterval time.Duration, log logger.Logger) *Manager {
	if refreshInterval <= 0 {
		refreshInterval = 5 * time.Minute
	}
	return &Manager{
		repo:            repo,
		log:             log,
		refreshInterval: refreshInterval,
		now:             time.Now,
	}
}

// bucket maps an identifier into [1,100] deterministically. FNV-32a keeps
// the distribution flat enough for traffic splitting and needs no state.
func bucket(experimentID, identifier string) int {
	h := fnv.New32a()
	h.Write([]byte(experimentID))
	h.Write([]byte(":"))
	h.Write([]byte(identifier))
	return int(h.Sum32()%100) + 1
}

// AssignVariant picks the variant whose cumulative weight range covers the
// identifier's bucket. When weights do not cover the whole range (they sum
// under 100) the first variant takes the remainder.
func AssignVariant(exp *domain.Experiment, identifier string) *domain.Variant {
	if exp == nil || len(exp.Variants) == 0 {
		return nil
	}

	b := bucket(exp.ID, identifier)
	cumulative := 0
	for i := range exp.Variants {
		cumulative += exp.Variants[i].Weight
		if b <= cumulative {
			return &exp.Variants[i]
		}
	}
	return &exp.Variants[0]
}

// ActiveExperiment returns the first cached experiment of the given type
// that applies to the shop right now, or nil.
func (m *Manager) ActiveExperiment(ctx context.Context, expType domain.ExperimentType, shopID string) (*domain.Experiment, error) {
	experiments, err := m.activeExperiments(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	for i := range experiments {
		exp := &experiments[i]
		if exp.Type != expType || !exp.IsActive {
			continue
		}
		if now.Before(exp.StartDate) {
			continue
		}
		if exp.EndDate != nil && !now.Before(*exp.EndDate) {
			continue
		}
		if !targetsShop(exp, shopID) {
			continue
		}
		return exp, nil
	}
	return nil, nil
}

// VariantFor resolves the applicable experiment and assigns the customer a
// variant, recording an impression. Both nils mean no experiment applies.
func (m *Manager) VariantFor(ctx context.Context, expType domain.ExperimentType, shopID, customerID string) (*domain.Experiment, *domain.Variant, error) {
	exp, err := m.ActiveExperiment(ctx, expType, shopID)
	if err != nil || exp == nil {
		return nil, nil, err
	}

	variant := AssignVariant(exp, customerID)
	if variant == nil {
		return nil, nil, nil
	}

	m.TrackEvent(ctx, domain.ExperimentResult{
		ExperimentID: exp.ID,
		VariantID:    variant.ID,
		ShopID:       shopID,
		CustomerID:   customerID,
		EventType:    domain.EventImpression,
	})
	return exp, variant, nil
}

// TrackEvent appends one event to the experiment log. Tracking is best
// effort: a storage failure is logged and swallowed so it never breaks the
// chat path.
func (m *Manager) TrackEvent(ctx context.Context, event domain.ExperimentResult) {
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now()
	}
	if err := m.repo.RecordEvent(ctx, event); err != nil {
		m.log.Warn("experiment event not recorded",
			logger.String("experiment_id", event.ExperimentID),
			logger.String("event_type", string(event.EventType)),
			logger.Error(err))
	}
}

// CreateExperiment validates and persists a new experiment. Weights that do
// not sum to 100 are allowed but logged, since assignment still works via
// the first-variant remainder rule.
func (m *Manager) CreateExperiment(ctx context.Context, exp domain.Experiment) (domain.Experiment, error) {
	if exp.Name == "" {
		return domain.Experiment{}, fmt.Errorf("experiment name is required")
	}
	if len(exp.Variants) == 0 {
		return domain.Experiment{}, fmt.Errorf("experiment %q needs at least one variant", exp.Name)
	}

	sum := 0
	for i := range exp.Variants {
		if exp.Variants[i].Weight < 0 {
			return domain.Experiment{}, fmt.Errorf("variant %q has negative weight", exp.Variants[i].Name)
		}
		if exp.Variants[i].ID == "" {
			exp.Variants[i].ID = uuid.NewString()
		}
		sum += exp.Variants[i].Weight
	}
	if sum != 100 {
		m.log.Warn("experiment variant weights do not sum to 100",
			logger.String("name", exp.Name),
			logger.Int("weight_sum", sum))
	}

	if exp.ID == "" {
		exp.ID = uuid.NewString()
	}
	if exp.StartDate.IsZero() {
		exp.StartDate = m.now()
	}
	exp.IsActive = true

	if err := m.repo.Insert(ctx, exp); err != nil {
		return domain.Experiment{}, fmt.Errorf("inserting experiment %q: %w", exp.Name, err)
	}

	m.invalidate()
	return exp, nil
}

// DeactivateExperiment stops an experiment and drops the cache so the next
// assignment sees the change immediately.
func (m *Manager) DeactivateExperiment(ctx context.Context, experimentID string) error {
	if err := m.repo.Deactivate(ctx, experimentID); err != nil {
		return fmt.Errorf("deactivating experiment %s: %w", experimentID, err)
	}
	m.invalidate()
	return nil
}

// Report aggregates the event log per variant, filling in variant names
// from the experiment definition when the cache still has it.
func (m *Manager) Report(ctx context.Context, experimentID string) ([]domain.VariantReport, error) {
	reports, err := m.repo.VariantReports(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("building report for experiment %s: %w", experimentID, err)
	}
	for i := range reports {
		if reports[i].Impressions > 0 {
			reports[i].ConversionRate = float64(reports[i].Conversions) / float64(reports[i].Impressions) * 100
		}
	}
	return reports, nil
}

func (m *Manager) activeExperiments(ctx context.Context) ([]domain.Experiment, error) {
	m.mu.RLock()
	fresh := m.now().Sub(m.lastRefresh) < m.refreshInterval
	cached := m.cache
	m.mu.RUnlock()

	if fresh {
		return cached, nil
	}

	experiments, err := m.repo.ListActive(ctx)
	if err != nil {
		// Serve the stale cache when a refresh fails and we have one.
		if cached != nil {
			m.log.Warn("experiment cache refresh failed, serving stale cache", logger.Error(err))
			return cached, nil
		}
		return nil, fmt.Errorf("loading active experiments: %w", err)
	}

	m.mu.Lock()
	m.cache = experiments
	m.lastRefresh = m.now()
	m.mu.Unlock()
	return experiments, nil
}

func (m *Manager) invalidate() {
	m.mu.Lock()
	m.cache = nil
	m.lastRefresh = time.Time{}
	m.mu.Unlock()
}

func targetsShop(exp *domain.Experiment, shopID string) bool {
	if len(exp.TargetShopIDs) == 0 {
		return true
	}
	for _, id := range exp.TargetShopIDs {
		if id == shopID {
			return true
		}
	}
	return false
}
