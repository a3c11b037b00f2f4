package health

import (
	"bytes"
	"encoding/json"
)

// ConditionStatus is the threshold-derived tier of a single parameter.
type ConditionStatus string

const (
	StatusOptimal  ConditionStatus = "optimal"
	StatusWarning  ConditionStatus = "warning"
	StatusCritical ConditionStatus = "critical"
)

const (
	// WarningMarginRatio is the share of the range treated as the warning band
	// next to each bound.
	WarningMarginRatio = 0.10

	// DegenerateMargin is the absolute warning band used when min == max.
	DegenerateMargin = 0.01
)

// Evaluate maps a reading onto a status tier for the given threshold.
func Evaluate(value float64, t Threshold) ConditionStatus {
	rng := t.Max - t.Min
	margin := rng * WarningMarginRatio
	if rng <= 0 {
		margin = DegenerateMargin
	}

	switch {
	case value < t.Min || value > t.Max:
		return StatusCritical
	case value < t.Min+margin || value > t.Max-margin:
		return StatusWarning
	default:
		return StatusOptimal
	}
}

// ConditionEntry is the evaluated state of one parameter.
type ConditionEntry struct {
	Parameter Parameter       `json:"-"`
	Status    ConditionStatus `json:"status"`
	Value     float64         `json:"value"`
	Min       float64         `json:"min"`
	Max       float64         `json:"max"`
}

// BelowRange reports whether the value is under the lower bound.
func (e ConditionEntry) BelowRange() bool {
	return e.Value < e.Min
}

// nearLower reports whether a warning entry sits in the lower band.
func (e ConditionEntry) nearLower() bool {
	return e.Value-e.Min <= e.Max-e.Value
}

// ConditionIndex is an ordered set of entries, one per reporting parameter.
// It marshals to a JSON object keyed by parameter, preserving order.
type ConditionIndex []ConditionEntry

// BuildConditionIndex evaluates every parameter that has both a current value
// and a threshold. Parameters without a reading are left out.
func BuildConditionIndex(values map[Parameter]float64, thresholds map[Parameter]Threshold) ConditionIndex {
	index := ConditionIndex{}
	for _, p := range Parameters {
		value, ok := values[p]
		if !ok {
			continue
		}
		t, ok := thresholds[p]
		if !ok {
			continue
		}
		index = append(index, ConditionEntry{
			Parameter: p,
			Status:    Evaluate(value, t),
			Value:     value,
			Min:       t.Min,
			Max:       t.Max,
		})
	}
	return index
}

// Get returns the entry for p.
func (ci ConditionIndex) Get(p Parameter) (ConditionEntry, bool) {
	for _, e := range ci {
		if e.Parameter == p {
			return e, true
		}
	}
	return ConditionEntry{}, false
}

// Has reports whether any entry has the given status.
func (ci ConditionIndex) Has(status ConditionStatus) bool {
	for _, e := range ci {
		if e.Status == status {
			return true
		}
	}
	return false
}

func (ci ConditionIndex) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range ci {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(e.Parameter))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (ci *ConditionIndex) UnmarshalJSON(data []byte) error {
	var raw map[Parameter]ConditionEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := ConditionIndex{}
	for _, p := range Parameters {
		if e, ok := raw[p]; ok {
			e.Parameter = p
			out = append(out, e)
		}
	}
	*ci = out
	return nil
}
