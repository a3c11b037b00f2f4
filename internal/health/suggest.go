package health

import (
	"fmt"
	"strings"
)

const (
	wiltingSuggestion      = "Inspect the plant for wilting and consider watering."
	inconclusiveSuggestion = "The latest photo does not look fully healthy, take a closer look at the plant."
	healthySuggestion      = "Plant is healthy, maintain current care."
)

// Suggest returns care suggestions ordered from most to least urgent.
// Critical parameters come first, then visual wilting, then warnings.
func Suggest(index ConditionIndex, visual *VisualHealth) []string {
	if visual != nil && !visual.Usable() {
		visual = nil
	}

	var out []string
	for _, e := range index {
		if e.Status == StatusCritical {
			out = append(out, criticalSuggestion(e))
		}
	}

	if visual != nil {
		switch {
		case visual.Unhealthy():
			out = append(out, wiltingSuggestion)
		case visual.Score < VisualAttentionScore:
			out = append(out, inconclusiveSuggestion)
		}
	}

	for _, e := range index {
		if e.Status == StatusWarning {
			out = append(out, warningSuggestion(e))
		}
	}

	if len(out) == 0 {
		return []string{healthySuggestion}
	}
	return out
}

func criticalSuggestion(e ConditionEntry) string {
	info := parameterTable[e.Parameter]
	verb, advice := "Decrease", info.highAdvice
	if e.BelowRange() {
		verb, advice = "Increase", info.lowAdvice
	}
	return fmt.Sprintf("%s %s: %s (current %s, range %s-%s)",
		verb, e.Parameter.Label(), advice, formatValue(e.Value), formatValue(e.Min), formatValue(e.Max))
}

func warningSuggestion(e ConditionEntry) string {
	side := "upper"
	limit := e.Max
	if e.nearLower() {
		side, limit = "lower", e.Min
	}
	return fmt.Sprintf("Monitor %s: %s is close to the %s limit of %s",
		e.Parameter.Label(), formatValue(e.Value), side, formatValue(limit))
}

func formatValue(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// Title is the display form of the status.
func (s OverallStatus) Title() string {
	switch s {
	case Healthy:
		return "Healthy"
	case NeedsAttention:
		return "Needs attention"
	case Critical:
		return "Critical"
	default:
		return string(s)
	}
}
