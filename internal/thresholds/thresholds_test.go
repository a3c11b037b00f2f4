package thresholds

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prite36/floraseven/internal/health"
)

type memoryRepo struct {
	mu      sync.Mutex
	rows    map[health.Parameter]health.Threshold
	loadErr error
	saveErr map[health.Parameter]error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[health.Parameter]health.Threshold{}, saveErr: map[health.Parameter]error{}}
}

func (r *memoryRepo) LoadThresholds(context.Context) (map[health.Parameter]health.Threshold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	out := map[health.Parameter]health.Threshold{}
	for p, t := range r.rows {
		out[p] = t
	}
	return out, nil
}

func (r *memoryRepo) SaveThreshold(_ context.Context, p health.Parameter, t health.Threshold) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.saveErr[p]; err != nil {
		return err
	}
	r.rows[p] = t
	return nil
}

func (r *memoryRepo) SeedThresholds(_ context.Context, defaults map[health.Parameter]health.Threshold) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for p, t := range defaults {
		if _, ok := r.rows[p]; !ok {
			r.rows[p] = t
		}
	}
	return nil
}

func ptr(v float64) *float64 { return &v }

func TestThresholdsSubstitutesDefaults(t *testing.T) {
	repo := newMemoryRepo()
	repo.rows[health.Moisture] = health.Threshold{Min: 30, Max: 60}
	s := NewStore(repo, nil)

	got := s.Thresholds(context.Background())

	assert.Len(t, got, len(health.Parameters))
	assert.Equal(t, health.Threshold{Min: 30, Max: 60}, got[health.Moisture])
	assert.Equal(t, health.DefaultThresholds()[health.LightLux], got[health.LightLux])
}

func TestThresholdsFallsBackOnRepositoryError(t *testing.T) {
	repo := newMemoryRepo()
	repo.loadErr = errors.New("database is down")
	custom := map[health.Parameter]health.Threshold{health.EC: {Min: 700, Max: 1400}}
	s := NewStore(repo, custom)

	got := s.Thresholds(context.Background())

	assert.Equal(t, health.Threshold{Min: 700, Max: 1400}, got[health.EC])
	assert.Equal(t, health.DefaultThresholds()[health.Moisture], got[health.Moisture])
}

func TestUpdateMergesPartialBounds(t *testing.T) {
	repo := newMemoryRepo()
	s := NewStore(repo, nil)
	ctx := context.Background()

	result, err := s.Update(ctx, UpdateRequest{
		health.Moisture: {Min: ptr(35)},
		health.WaterPH:  {Max: ptr(8)},
	})
	require.NoError(t, err)

	assert.Equal(t, []health.Parameter{health.Moisture, health.WaterPH}, result.Updated)
	assert.Empty(t, result.Rejected)

	got := s.Thresholds(ctx)
	assert.Equal(t, health.Threshold{Min: 35, Max: 70}, got[health.Moisture])
	assert.Equal(t, health.Threshold{Min: 6.0, Max: 8}, got[health.WaterPH])
}

func TestUpdateRejectsInvertedBoundsOnly(t *testing.T) {
	repo := newMemoryRepo()
	s := NewStore(repo, nil)
	ctx := context.Background()
	before := s.Thresholds(ctx)[health.Moisture]

	result, err := s.Update(ctx, UpdateRequest{
		health.Moisture:        {Min: ptr(80), Max: ptr(20)},
		health.SoilTemperature: {Min: ptr(16), Max: ptr(26)},
	})
	require.NoError(t, err)

	assert.NotContains(t, result.Updated, health.Moisture)
	assert.Contains(t, result.Updated, health.SoilTemperature)
	assert.Contains(t, result.Rejected, health.Moisture)
	assert.Equal(t, before, s.Thresholds(ctx)[health.Moisture])
}

func TestUpdateRejectsMergedInversion(t *testing.T) {
	s := NewStore(newMemoryRepo(), nil)

	result, err := s.Update(context.Background(), UpdateRequest{
		health.Moisture: {Min: ptr(75)},
	})
	require.NoError(t, err)

	assert.Empty(t, result.Updated)
	assert.Contains(t, result.Rejected, health.Moisture)
}

func TestUpdateAllowsEqualBounds(t *testing.T) {
	s := NewStore(newMemoryRepo(), nil)

	result, err := s.Update(context.Background(), UpdateRequest{
		health.AmbientUV: {Min: ptr(1), Max: ptr(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, []health.Parameter{health.AmbientUV}, result.Updated)
}

func TestUpdateRejectsMalformedEntries(t *testing.T) {
	s := NewStore(newMemoryRepo(), nil)

	result, err := s.Update(context.Background(), UpdateRequest{
		"humidity":      {Min: ptr(10)},
		health.LightLux: {},
	})
	require.NoError(t, err)

	assert.Empty(t, result.Updated)
	assert.Equal(t, "unknown parameter", result.Rejected["humidity"])
	assert.Equal(t, "no bounds supplied", result.Rejected[health.LightLux])
}

func TestUpdateRejectsOnlyMistypedEntries(t *testing.T) {
	s := NewStore(newMemoryRepo(), nil)

	var req UpdateRequest
	require.NoError(t, json.Unmarshal([]byte(`{"moisture": 5, "temp_soil": {"min": 17}, "ph_water": {"min": "low"}}`), &req))

	result, err := s.Update(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []health.Parameter{health.SoilTemperature}, result.Updated)
	assert.Equal(t, 17.0, result.Thresholds[health.SoilTemperature].Min)
	assert.Contains(t, result.Rejected, health.Moisture)
	assert.Contains(t, result.Rejected, health.WaterPH)
}

func TestUpdateReportsSaveFailures(t *testing.T) {
	repo := newMemoryRepo()
	repo.saveErr[health.EC] = errors.New("disk full")
	s := NewStore(repo, nil)

	result, err := s.Update(context.Background(), UpdateRequest{
		health.EC:       {Max: ptr(1600)},
		health.Moisture: {Max: ptr(65)},
	})

	require.Error(t, err)
	assert.Equal(t, []health.Parameter{health.Moisture}, result.Updated)
	assert.Contains(t, result.Rejected, health.EC)
}

func TestConcurrentUpdatesKeepInvariant(t *testing.T) {
	repo := newMemoryRepo()
	s := NewStore(repo, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Update(ctx, UpdateRequest{
				health.Moisture: {Min: ptr(float64(30 + i)), Max: ptr(float64(60 + i))},
			})
		}(i)
	}
	wg.Wait()

	got := s.Thresholds(ctx)[health.Moisture]
	assert.LessOrEqual(t, got.Min, got.Max)
	assert.Equal(t, 30.0, got.Max-got.Min)
}

func TestInitSeedsDefaults(t *testing.T) {
	repo := newMemoryRepo()
	repo.rows[health.Moisture] = health.Threshold{Min: 20, Max: 50}
	s := NewStore(repo, nil)

	require.NoError(t, s.Init(context.Background()))

	assert.Len(t, repo.rows, len(health.Parameters))
	assert.Equal(t, health.Threshold{Min: 20, Max: 50}, repo.rows[health.Moisture])
}
