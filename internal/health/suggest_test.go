package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestOrdering(t *testing.T) {
	index := BuildConditionIndex(map[Parameter]float64{
		Moisture:        41,
		SoilTemperature: 31,
	}, DefaultThresholds())

	got := Suggest(index, visual(LabelWilting, 20))

	require.Len(t, got, 3)
	assert.Equal(t, "Decrease soil temperature: move the plant somewhere cooler (current 31, range 18-28)", got[0])
	assert.Equal(t, wiltingSuggestion, got[1])
	assert.Equal(t, "Monitor moisture: 41 is close to the lower limit of 40", got[2])
}

func TestSuggestDirection(t *testing.T) {
	thresholds := DefaultThresholds()

	low := Suggest(BuildConditionIndex(map[Parameter]float64{Moisture: 25}, thresholds), nil)
	high := Suggest(BuildConditionIndex(map[Parameter]float64{Moisture: 85}, thresholds), nil)
	acidic := Suggest(BuildConditionIndex(map[Parameter]float64{WaterPH: 5.2}, thresholds), nil)

	require.Len(t, low, 1)
	assert.Equal(t, "Increase moisture: soil is too dry, water the plant (current 25, range 40-70)", low[0])
	require.Len(t, high, 1)
	assert.Contains(t, high[0], "Decrease moisture")
	require.Len(t, acidic, 1)
	assert.Equal(t, "Increase water pH: water is too acidic, use pH-balanced water (current 5.2, range 6-7.5)", acidic[0])
}

func TestSuggestWarningUpperBand(t *testing.T) {
	got := Suggest(BuildConditionIndex(map[Parameter]float64{LightLux: 29000}, DefaultThresholds()), nil)

	assert.Equal(t, []string{"Monitor light: 29000 is close to the upper limit of 30000"}, got)
}

func TestSuggestHealthy(t *testing.T) {
	index := BuildConditionIndex(map[Parameter]float64{Moisture: 55, SoilTemperature: 23}, DefaultThresholds())

	assert.Equal(t, []string{healthySuggestion}, Suggest(index, visual(LabelHealthy, 90)))
	assert.Equal(t, []string{healthySuggestion}, Suggest(index, nil))
}

func TestSuggestLowVisualScore(t *testing.T) {
	index := BuildConditionIndex(map[Parameter]float64{Moisture: 55}, DefaultThresholds())

	got := Suggest(index, visual(LabelHealthy, 60))

	assert.Equal(t, []string{inconclusiveSuggestion}, got)
}

func TestSuggestCriticalBeforeWarning(t *testing.T) {
	index := BuildConditionIndex(map[Parameter]float64{
		Moisture:  42,
		EC:        500,
		AmbientUV: 1.9,
	}, DefaultThresholds())

	got := Suggest(index, nil)

	require.Len(t, got, 3)
	assert.Contains(t, got[0], "Increase nutrient level (EC)")
	assert.Contains(t, got[1], "Monitor moisture")
	assert.Contains(t, got[2], "Monitor UV exposure")
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "25", formatValue(25))
	assert.Equal(t, "0", formatValue(0))
	assert.Equal(t, "6.5", formatValue(6.5))
	assert.Equal(t, "7.45", formatValue(7.45))
	assert.Equal(t, "100", formatValue(100))
}
