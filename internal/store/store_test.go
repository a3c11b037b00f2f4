package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prite36/floraseven/internal/health"
	"github.com/prite36/floraseven/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLogReadingsIgnoresDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	first := []models.SensorReading{
		{Timestamp: ts, NodeID: "plantNode1", SensorType: "moisture", Value: 41},
		{Timestamp: ts, NodeID: "plantNode1", SensorType: "temp_soil", Value: 22},
	}
	require.NoError(t, s.LogReadings(ctx, first))

	dup := []models.SensorReading{
		{Timestamp: ts, NodeID: "plantNode1", SensorType: "moisture", Value: 99},
	}
	require.NoError(t, s.LogReadings(ctx, dup))

	value, ok, err := s.LatestValue(ctx, "plantNode1", "moisture")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 41.0, value)

	var count int64
	require.NoError(t, s.db.Model(&models.SensorReading{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestLatestValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.LogReadings(ctx, []models.SensorReading{
		{Timestamp: base, NodeID: "plantNode1", SensorType: "moisture", Value: 41},
		{Timestamp: base.Add(time.Minute), NodeID: "plantNode1", SensorType: "moisture", Value: 38},
		{Timestamp: base.Add(2 * time.Minute), NodeID: "otherNode", SensorType: "moisture", Value: 10},
	}))

	value, ok, err := s.LatestValue(ctx, "plantNode1", "moisture")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 38.0, value)

	_, ok, err = s.LatestValue(ctx, "plantNode1", "light_lux")
	require.NoError(t, err)
	assert.False(t, ok)

	seen, ok, err := s.LastSeen(ctx, "plantNode1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, seen.Equal(base.Add(time.Minute)))
}

func TestPruneReadings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.LogReadings(ctx, []models.SensorReading{
		{Timestamp: now.AddDate(0, 0, -100), NodeID: "hubNode", SensorType: "ph_water", Value: 6.5},
		{Timestamp: now.AddDate(0, 0, -1), NodeID: "hubNode", SensorType: "ph_water", Value: 6.9},
	}))

	removed, err := s.PruneReadings(ctx, now.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	value, ok, err := s.LatestValue(ctx, "hubNode", "ph_water")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 6.9, value)
}

func TestImageAnalysis(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	latest, err := s.LatestImageAnalysis(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.LogImageAnalysis(ctx, &models.ImageAnalysis{
		Timestamp: base, ImageFilename: "a.jpg", HealthLabel: "healthy", HealthScore: 90, Confidence: 0.9,
	}))
	require.NoError(t, s.LogImageAnalysis(ctx, &models.ImageAnalysis{
		Timestamp: base.Add(time.Hour), ImageFilename: "b.jpg", HealthLabel: "wilting", HealthScore: 20, Confidence: 0.8,
	}))

	latest, err = s.LatestImageAnalysis(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "b.jpg", latest.ImageFilename)
	assert.Equal(t, 20, latest.HealthScore)

	err = s.LogImageAnalysis(ctx, &models.ImageAnalysis{
		Timestamp: base, ImageFilename: "a.jpg", HealthLabel: "healthy", HealthScore: 90, Confidence: 0.9,
	})
	assert.Error(t, err, "image filenames are unique")
}

func TestThresholdPersistence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stored, err := s.LoadThresholds(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)

	require.NoError(t, s.SeedThresholds(ctx, health.DefaultThresholds()))
	require.NoError(t, s.SaveThreshold(ctx, health.Moisture, health.Threshold{Min: 30, Max: 60}))
	// Seeding again must not overwrite user changes.
	require.NoError(t, s.SeedThresholds(ctx, health.DefaultThresholds()))

	stored, err = s.LoadThresholds(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, len(health.Parameters))
	assert.Equal(t, health.Threshold{Min: 30, Max: 60}, stored[health.Moisture])
	assert.Equal(t, health.Threshold{Min: 18, Max: 28}, stored[health.SoilTemperature])
}

func TestWateringEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	last, err := s.LastWateringEvent(ctx, "ON")
	require.NoError(t, err)
	assert.Nil(t, last)

	moisture := 35.0
	require.NoError(t, s.LogWateringEvent(ctx, &models.WateringEvent{
		RequestedAt: base, State: "ON", Duration: 3, Status: models.WateringRequested,
		Source: models.SourceManual, MoistureBefore: &moisture,
	}))
	require.NoError(t, s.LogWateringEvent(ctx, &models.WateringEvent{
		RequestedAt: base.Add(time.Minute), State: "OFF", Status: models.WateringStopped, Source: models.SourceManual,
	}))
	require.NoError(t, s.LogWateringEvent(ctx, &models.WateringEvent{
		RequestedAt: base.Add(2 * time.Minute), State: "ON", Duration: 5, Status: models.WateringFailed,
		Source: models.SourceManual,
	}))

	last, err = s.LastWateringEvent(ctx, "ON")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.RequestedAt.Equal(base))
	require.NotNil(t, last.MoistureBefore)
	assert.Equal(t, 35.0, *last.MoistureBefore)

	history, err := s.WateringHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.WateringFailed, history[0].Status)
	assert.Equal(t, "OFF", history[1].State)
}
