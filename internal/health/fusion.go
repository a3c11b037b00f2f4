package health

import "math"

// OverallStatus is the fused verdict.
type OverallStatus string

const (
	Healthy        OverallStatus = "healthy"
	NeedsAttention OverallStatus = "needs_attention"
	Critical       OverallStatus = "critical"
)

// Fusion weights and tier scores.
const (
	VisualWeight = 0.6
	SensorWeight = 0.4

	OptimalScore  = 100
	WarningScore  = 60
	CriticalScore = 20

	// VisualAttentionScore is the visual score below which the plant needs attention.
	VisualAttentionScore = 70
)

// OverallHealth is the fused health verdict returned to clients.
type OverallHealth struct {
	Status           OverallStatus `json:"status"`
	Score            int           `json:"score"`
	Suggestions      []string      `json:"suggestions"`
	SensorOnly       bool          `json:"sensor_only"`
	InsufficientData bool          `json:"insufficient_data,omitempty"`
}

const (
	insufficientDataSuggestion = "Not enough data to assess plant health yet."
	insufficientDataFollowUp   = "Check that the sensor nodes are online and upload a photo of the plant."
	sensorOnlySuggestion       = "No plant photo analysis available, this verdict is based on sensor readings only."
)

// Fuse combines the condition index and the latest visual health into one
// verdict. A nil or unusable visual record falls back to sensors only.
func Fuse(index ConditionIndex, visual *VisualHealth) OverallHealth {
	if visual != nil && !visual.Usable() {
		visual = nil
	}

	if len(index) == 0 && visual == nil {
		return OverallHealth{
			Status:           NeedsAttention,
			Score:            0,
			Suggestions:      []string{insufficientDataSuggestion, insufficientDataFollowUp},
			SensorOnly:       true,
			InsufficientData: true,
		}
	}

	result := OverallHealth{
		Status:      fuseStatus(index, visual),
		Score:       fuseScore(index, visual),
		Suggestions: Suggest(index, visual),
	}
	if visual == nil {
		result.SensorOnly = true
		result.Suggestions = append(result.Suggestions, sensorOnlySuggestion)
	}
	return result
}

func fuseStatus(index ConditionIndex, visual *VisualHealth) OverallStatus {
	switch {
	case (visual != nil && visual.Unhealthy()) || index.Has(StatusCritical):
		return Critical
	case (visual != nil && visual.Score < VisualAttentionScore) || index.Has(StatusWarning):
		return NeedsAttention
	default:
		return Healthy
	}
}

// SensorScore is the mean tier score over the entries present. ok is false
// when the index is empty.
func SensorScore(index ConditionIndex) (score float64, ok bool) {
	if len(index) == 0 {
		return 0, false
	}
	var sum float64
	for _, e := range index {
		sum += tierScore(e.Status)
	}
	return sum / float64(len(index)), true
}

func tierScore(s ConditionStatus) float64 {
	switch s {
	case StatusOptimal:
		return OptimalScore
	case StatusWarning:
		return WarningScore
	default:
		return CriticalScore
	}
}

func fuseScore(index ConditionIndex, visual *VisualHealth) int {
	sensor, hasSensor := SensorScore(index)
	switch {
	case visual != nil && hasSensor:
		return clampScore(math.Round(SensorWeight*sensor + VisualWeight*float64(visual.Score)))
	case visual != nil:
		return clampScore(float64(visual.Score))
	default:
		return clampScore(math.Round(sensor))
	}
}
