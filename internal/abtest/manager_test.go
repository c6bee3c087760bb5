package abtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
	"github.com/aagii9912/smarthub-sub002/internal/logger"
)

type fakeExperimentRepo struct {
	experiments []domain.Experiment
	listErr     error
	listCalls   int

	inserted    []domain.Experiment
	deactivated []string
	events      []domain.ExperimentResult
	eventErr    error
	reports     []domain.VariantReport
}

func (f *fakeExperimentRepo) ListActive(context.Context) ([]domain.Experiment, error) {
	f.listCalls++
	return f.experiments, f.listErr
}

func (f *fakeExperimentRepo) Insert(_ context.Context, exp domain.Experiment) error {
	f.inserted = append(f.inserted, exp)
	return nil
}

func (f *fakeExperimentRepo) Deactivate(_ context.Context, id string) error {
	f.deactivated = append(f.deactivated, id)
	return nil
}

func (f *fakeExperimentRepo) RecordEvent(_ context.Context, event domain.ExperimentResult) error {
	if f.eventErr != nil {
		return f.eventErr
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeExperimentRepo) VariantReports(context.Context, string) ([]domain.VariantReport, error) {
	return f.reports, nil
}

func promptExperiment() domain.Experiment {
	return domain.Experiment{
		ID:   "exp-1",
		Name: "friendly vs formal prompt",
		Type: domain.ExperimentPrompt,
		Variants: []domain.Variant{
			{ID: "v1", Name: "friendly", Weight: 50},
			{ID: "v2", Name: "formal", Weight: 50},
		},
		StartDate: time.Now().Add(-time.Hour),
		IsActive:  true,
	}
}

func newTestManager(repo *fakeExperimentRepo) *Manager {
	return NewManager(repo, 5*time.Minute, logger.NewNop())
}

func TestAssignVariant_Deterministic(t *testing.T) {
	exp := promptExperiment()

	first := AssignVariant(&exp, "customer-42")
	require.NotNil(t, first)
	for i := 0; i < 50; i++ {
		again := AssignVariant(&exp, "customer-42")
		require.NotNil(t, again)
		assert.Equal(t, first.ID, again.ID)
	}
}

func TestAssignVariant_ZeroWeightVariantNeverChosenDirectly(t *testing.T) {
	exp := domain.Experiment{
		ID: "exp-z",
		Variants: []domain.Variant{
			{ID: "all", Weight: 100},
			{ID: "none", Weight: 0},
		},
	}

	for i := 0; i < 200; i++ {
		v := AssignVariant(&exp, string(rune('a'+i%26))+"-id")
		require.NotNil(t, v)
		assert.Equal(t, "all", v.ID)
	}
}

func TestAssignVariant_UnderweightFallsBackToFirstVariant(t *testing.T) {
	// Weights cover only 1% of buckets; almost all traffic takes the
	// first-variant remainder rule.
	exp := domain.Experiment{
		ID: "exp-u",
		Variants: []domain.Variant{
			{ID: "v1", Weight: 1},
			{ID: "v2", Weight: 0},
		},
	}

	for i := 0; i < 100; i++ {
		v := AssignVariant(&exp, time.Unix(int64(i), 0).String())
		require.NotNil(t, v)
		assert.Equal(t, "v1", v.ID)
	}
}

func TestAssignVariant_SplitsTraffic(t *testing.T) {
	exp := promptExperiment()

	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		v := AssignVariant(&exp, "customer-"+time.Unix(int64(i), 0).Format(time.RFC3339Nano))
		require.NotNil(t, v)
		counts[v.ID]++
	}

	// A 50/50 split over 1000 identifiers should land well inside 30/70.
	assert.Greater(t, counts["v1"], 300)
	assert.Greater(t, counts["v2"], 300)
}

func TestAssignVariant_NilAndEmpty(t *testing.T) {
	assert.Nil(t, AssignVariant(nil, "x"))
	assert.Nil(t, AssignVariant(&domain.Experiment{ID: "e"}, "x"))
}

func TestVariantFor_RecordsImpression(t *testing.T) {
	repo := &fakeExperimentRepo{experiments: []domain.Experiment{promptExperiment()}}
	m := newTestManager(repo)

	exp, variant, err := m.VariantFor(context.Background(), domain.ExperimentPrompt, "shop-1", "customer-1")

	require.NoError(t, err)
	require.NotNil(t, exp)
	require.NotNil(t, variant)
	require.Len(t, repo.events, 1)
	assert.Equal(t, domain.EventImpression, repo.events[0].EventType)
	assert.Equal(t, variant.ID, repo.events[0].VariantID)
	assert.False(t, repo.events[0].Timestamp.IsZero())
}

func TestVariantFor_NoApplicableExperiment(t *testing.T) {
	repo := &fakeExperimentRepo{experiments: []domain.Experiment{promptExperiment()}}
	m := newTestManager(repo)

	exp, variant, err := m.VariantFor(context.Background(), domain.ExperimentModel, "shop-1", "customer-1")

	require.NoError(t, err)
	assert.Nil(t, exp)
	assert.Nil(t, variant)
	assert.Empty(t, repo.events)
}

func TestActiveExperiment_DateWindow(t *testing.T) {
	future := promptExperiment()
	future.ID = "future"
	future.StartDate = time.Now().Add(time.Hour)

	ended := promptExperiment()
	ended.ID = "ended"
	past := time.Now().Add(-time.Minute)
	ended.EndDate = &past

	repo := &fakeExperimentRepo{experiments: []domain.Experiment{future, ended}}
	m := newTestManager(repo)

	exp, err := m.ActiveExperiment(context.Background(), domain.ExperimentPrompt, "shop-1")
	require.NoError(t, err)
	assert.Nil(t, exp)
}

func TestActiveExperiment_ShopTargeting(t *testing.T) {
	targeted := promptExperiment()
	targeted.TargetShopIDs = []string{"shop-7"}
	repo := &fakeExperimentRepo{experiments: []domain.Experiment{targeted}}
	m := newTestManager(repo)

	hit, err := m.ActiveExperiment(context.Background(), domain.ExperimentPrompt, "shop-7")
	require.NoError(t, err)
	assert.NotNil(t, hit)

	miss, err := m.ActiveExperiment(context.Background(), domain.ExperimentPrompt, "shop-8")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestActiveExperiment_CachesBetweenCalls(t *testing.T) {
	repo := &fakeExperimentRepo{experiments: []domain.Experiment{promptExperiment()}}
	m := newTestManager(repo)

	for i := 0; i < 5; i++ {
		_, err := m.ActiveExperiment(context.Background(), domain.ExperimentPrompt, "shop-1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, repo.listCalls)
}

func TestActiveExperiment_ServesStaleCacheOnRefreshError(t *testing.T) {
	repo := &fakeExperimentRepo{experiments: []domain.Experiment{promptExperiment()}}
	m := newTestManager(repo)
	_, err := m.ActiveExperiment(context.Background(), domain.ExperimentPrompt, "shop-1")
	require.NoError(t, err)

	m.invalidate()
	m.mu.Lock()
	m.cache = repo.experiments
	m.mu.Unlock()
	repo.listErr = errors.New("db down")

	exp, err := m.ActiveExperiment(context.Background(), domain.ExperimentPrompt, "shop-1")
	require.NoError(t, err)
	assert.NotNil(t, exp)
}

func TestCreateExperiment_FillsIDsAndActivates(t *testing.T) {
	repo := &fakeExperimentRepo{}
	m := newTestManager(repo)

	created, err := m.CreateExperiment(context.Background(), domain.Experiment{
		Name: "tone test",
		Type: domain.ExperimentPrompt,
		Variants: []domain.Variant{
			{Name: "a", Weight: 60},
			{Name: "b", Weight: 40},
		},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive)
	assert.False(t, created.StartDate.IsZero())
	for _, v := range created.Variants {
		assert.NotEmpty(t, v.ID)
	}
	require.Len(t, repo.inserted, 1)
}

func TestCreateExperiment_Validation(t *testing.T) {
	m := newTestManager(&fakeExperimentRepo{})

	_, err := m.CreateExperiment(context.Background(), domain.Experiment{Name: ""})
	assert.Error(t, err)

	_, err = m.CreateExperiment(context.Background(), domain.Experiment{Name: "no variants"})
	assert.Error(t, err)

	_, err = m.CreateExperiment(context.Background(), domain.Experiment{
		Name:     "negative",
		Variants: []domain.Variant{{Name: "a", Weight: -1}},
	})
	assert.Error(t, err)

	// Underweight sums are allowed, only logged.
	_, err = m.CreateExperiment(context.Background(), domain.Experiment{
		Name:     "underweight",
		Variants: []domain.Variant{{Name: "a", Weight: 30}},
	})
	assert.NoError(t, err)
}

func TestDeactivateExperiment_InvalidatesCache(t *testing.T) {
	repo := &fakeExperimentRepo{experiments: []domain.Experiment{promptExperiment()}}
	m := newTestManager(repo)
	_, err := m.ActiveExperiment(context.Background(), domain.ExperimentPrompt, "shop-1")
	require.NoError(t, err)

	require.NoError(t, m.DeactivateExperiment(context.Background(), "exp-1"))
	assert.Equal(t, []string{"exp-1"}, repo.deactivated)

	_, err = m.ActiveExperiment(context.Background(), domain.ExperimentPrompt, "shop-1")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
}

func TestReport_ConversionRate(t *testing.T) {
	repo := &fakeExperimentRepo{reports: []domain.VariantReport{
		{VariantID: "v1", Impressions: 200, Conversions: 30},
		{VariantID: "v2", Impressions: 0, Conversions: 0},
	}}
	m := newTestManager(repo)

	got, err := m.Report(context.Background(), "exp-1")

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 15.0, got[0].ConversionRate, 1e-9)
	// Zero impressions must give 0, not NaN.
	assert.Equal(t, 0.0, got[1].ConversionRate)
}

func TestTrackEvent_SwallowsStorageError(t *testing.T) {
	repo := &fakeExperimentRepo{eventErr: errors.New("insert failed")}
	m := newTestManager(repo)

	m.TrackEvent(context.Background(), domain.ExperimentResult{
		ExperimentID: "exp-1",
		VariantID:    "v1",
		EventType:    domain.EventConversion,
	})
	// No panic, nothing recorded.
	assert.Empty(t, repo.events)
}
