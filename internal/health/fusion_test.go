package health

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapt(t *testing.T) {
	testCases := []struct {
		name       string
		label      string
		confidence float64
		wantLabel  string
		wantScore  int
	}{
		{name: "confident wilting", label: "wilting", confidence: 0.9, wantLabel: LabelWilting, wantScore: 10},
		{name: "confident healthy", label: "healthy", confidence: 0.9, wantLabel: LabelHealthy, wantScore: 90},
		{name: "unsure wilting", label: "Wilted", confidence: 0.55, wantLabel: LabelWilting, wantScore: 45},
		{name: "unhealthy alias", label: " Unhealthy ", confidence: 1, wantLabel: LabelWilting, wantScore: 0},
		{name: "rounds half up", label: "healthy", confidence: 0.875, wantLabel: LabelHealthy, wantScore: 88},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Adapt(tc.label, tc.confidence)
			require.NoError(t, err)
			assert.Equal(t, tc.wantLabel, v.Label)
			assert.Equal(t, tc.wantScore, v.Score)
			assert.Equal(t, tc.confidence, v.Confidence)
		})
	}
}

func TestAdaptFailsClosed(t *testing.T) {
	testCases := []struct {
		name       string
		label      string
		confidence float64
	}{
		{name: "unknown label", label: "cat", confidence: 0.9},
		{name: "empty label", label: "", confidence: 0.9},
		{name: "negative confidence", label: "healthy", confidence: -0.1},
		{name: "confidence above one", label: "healthy", confidence: 1.2},
		{name: "nan confidence", label: "wilting", confidence: math.NaN()},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Adapt(tc.label, tc.confidence)
			require.ErrorIs(t, err, ErrClassifierUnavailable)
			assert.Equal(t, ErrorVisualHealth(), v)
			assert.False(t, v.Usable())
		})
	}
}

func visual(label string, score int) *VisualHealth {
	return &VisualHealth{Label: label, Score: score, Confidence: float64(score) / 100}
}

func TestFuseEndToEnd(t *testing.T) {
	index := BuildConditionIndex(map[Parameter]float64{
		Moisture:        25,
		SoilTemperature: 24,
	}, map[Parameter]Threshold{
		Moisture:        {Min: 40, Max: 70},
		SoilTemperature: {Min: 18, Max: 28},
	})

	result := Fuse(index, visual(LabelHealthy, 88))

	assert.Equal(t, Critical, result.Status)
	assert.Equal(t, 77, result.Score)
	assert.False(t, result.SensorOnly)
	require.NotEmpty(t, result.Suggestions)
	assert.Contains(t, result.Suggestions[0], "Increase moisture")
}

func TestFuseWeighting(t *testing.T) {
	index := BuildConditionIndex(map[Parameter]float64{Moisture: 55}, DefaultThresholds())

	sensor, ok := SensorScore(index)
	require.True(t, ok)
	require.Equal(t, 100.0, sensor)

	result := Fuse(index, visual(LabelHealthy, 0))
	assert.Equal(t, 40, result.Score)
	assert.Equal(t, NeedsAttention, result.Status)
}

func TestFuseStatusRules(t *testing.T) {
	optimal := BuildConditionIndex(map[Parameter]float64{Moisture: 55, SoilTemperature: 23}, DefaultThresholds())
	warning := BuildConditionIndex(map[Parameter]float64{Moisture: 41, SoilTemperature: 23}, DefaultThresholds())
	critical := BuildConditionIndex(map[Parameter]float64{Moisture: 80, SoilTemperature: 23}, DefaultThresholds())

	testCases := []struct {
		name     string
		index    ConditionIndex
		visual   *VisualHealth
		expected OverallStatus
	}{
		{name: "all good", index: optimal, visual: visual(LabelHealthy, 95), expected: Healthy},
		{name: "wilting overrides sensors", index: optimal, visual: visual(LabelWilting, 40), expected: Critical},
		{name: "critical sensor overrides visual", index: critical, visual: visual(LabelHealthy, 99), expected: Critical},
		{name: "low visual score", index: optimal, visual: visual(LabelHealthy, 65), expected: NeedsAttention},
		{name: "warning sensor", index: warning, visual: visual(LabelHealthy, 95), expected: NeedsAttention},
		{name: "sensor only healthy", index: optimal, visual: nil, expected: Healthy},
		{name: "sensor only warning", index: warning, visual: nil, expected: NeedsAttention},
		{name: "sensor only critical", index: critical, visual: nil, expected: Critical},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Fuse(tc.index, tc.visual).Status)
		})
	}
}

func TestFuseSensorOnly(t *testing.T) {
	index := BuildConditionIndex(map[Parameter]float64{Moisture: 41, SoilTemperature: 23}, DefaultThresholds())

	result := Fuse(index, nil)

	assert.True(t, result.SensorOnly)
	assert.False(t, result.InsufficientData)
	assert.Equal(t, 80, result.Score)
	require.Len(t, result.Suggestions, 2)
	assert.Contains(t, result.Suggestions[0], "Monitor moisture")
	assert.Equal(t, sensorOnlySuggestion, result.Suggestions[1])
}

func TestFuseIgnoresErrorSentinel(t *testing.T) {
	index := BuildConditionIndex(map[Parameter]float64{Moisture: 55}, DefaultThresholds())
	sentinel := ErrorVisualHealth()

	withSentinel := Fuse(index, &sentinel)
	withoutVisual := Fuse(index, nil)

	assert.Equal(t, withoutVisual, withSentinel)
	assert.Equal(t, Healthy, withSentinel.Status)
	assert.Equal(t, 100, withSentinel.Score)
}

func TestFuseVisualOnly(t *testing.T) {
	result := Fuse(ConditionIndex{}, visual(LabelHealthy, 92))

	assert.Equal(t, Healthy, result.Status)
	assert.Equal(t, 92, result.Score)
	assert.Equal(t, []string{healthySuggestion}, result.Suggestions)
}

func TestFuseInsufficientData(t *testing.T) {
	result := Fuse(nil, nil)

	assert.Equal(t, NeedsAttention, result.Status)
	assert.Equal(t, 0, result.Score)
	assert.True(t, result.InsufficientData)
	assert.True(t, result.SensorOnly)
	require.NotEmpty(t, result.Suggestions)
	assert.Equal(t, insufficientDataSuggestion, result.Suggestions[0])
}

func TestFuseDeterministic(t *testing.T) {
	index := BuildConditionIndex(map[Parameter]float64{
		Moisture:        42,
		SoilTemperature: 30,
		LightLux:        12000,
		WaterPH:         7.45,
	}, DefaultThresholds())
	v := visual(LabelWilting, 30)

	first := Fuse(index, v)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Fuse(index, v))
	}
}

func TestFuseScoreStaysInRange(t *testing.T) {
	index := BuildConditionIndex(map[Parameter]float64{
		Moisture:        0,
		SoilTemperature: 100,
		LightLux:        0,
	}, DefaultThresholds())

	for score := 0; score <= 100; score += 5 {
		result := Fuse(index, visual(LabelHealthy, score))
		assert.GreaterOrEqual(t, result.Score, 0)
		assert.LessOrEqual(t, result.Score, 100)
	}
}
