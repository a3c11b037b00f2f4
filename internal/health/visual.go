package health

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrClassifierUnavailable is returned when the image classifier fails or
// produces output that cannot be interpreted.
var ErrClassifierUnavailable = errors.New("classifier unavailable")

const (
	LabelHealthy = "healthy"
	LabelWilting = "wilting"
	LabelError   = "error"
)

// Words the classifier may use for either class.
var labelAliases = map[string]string{
	"healthy":   LabelHealthy,
	"good":      LabelHealthy,
	"wilting":   LabelWilting,
	"wilted":    LabelWilting,
	"unhealthy": LabelWilting,
	"diseased":  LabelWilting,
}

// VisualHealth is the classifier result expressed as healthiness.
type VisualHealth struct {
	Label      string    `json:"health_label"`
	Score      int       `json:"health_score"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Unhealthy reports whether the visual label is the negative class.
func (v VisualHealth) Unhealthy() bool {
	return v.Label == LabelWilting
}

// Usable reports whether v carries a real classifier result.
func (v VisualHealth) Usable() bool {
	return v.Label == LabelHealthy || v.Label == LabelWilting
}

// ErrorVisualHealth is the sentinel returned alongside ErrClassifierUnavailable.
func ErrorVisualHealth() VisualHealth {
	return VisualHealth{Label: LabelError}
}

// NormalizeLabel maps classifier wording onto healthy or wilting.
func NormalizeLabel(raw string) (string, bool) {
	label, ok := labelAliases[strings.ToLower(strings.TrimSpace(raw))]
	return label, ok
}

// Adapt converts a raw classifier label and confidence into a VisualHealth.
// Confidence is relative to the predicted class, so a confident wilting call
// produces a low score.
func Adapt(rawLabel string, confidence float64) (VisualHealth, error) {
	label, ok := NormalizeLabel(rawLabel)
	if !ok {
		return ErrorVisualHealth(), fmt.Errorf("%w: unknown label %q", ErrClassifierUnavailable, rawLabel)
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return ErrorVisualHealth(), fmt.Errorf("%w: confidence %v out of range", ErrClassifierUnavailable, confidence)
	}

	healthiness := confidence
	if label == LabelWilting {
		healthiness = 1 - confidence
	}

	return VisualHealth{
		Label:      label,
		Score:      clampScore(math.Round(healthiness * 100)),
		Confidence: confidence,
	}, nil
}

func clampScore(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}
