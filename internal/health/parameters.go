package health

import (
	"errors"
	"math"
)

// Parameter identifies one monitored quantity.
type Parameter string

const (
	Moisture        Parameter = "moisture"
	SoilTemperature Parameter = "temp_soil"
	LightLux        Parameter = "light_lux"
	EC              Parameter = "ec_raw"
	WaterPH         Parameter = "ph_water"
	AmbientUV       Parameter = "uv_ambient"
)

// Parameters lists every monitored parameter in display order.
// Condition indexes are always built in this order.
var Parameters = []Parameter{Moisture, SoilTemperature, LightLux, EC, WaterPH, AmbientUV}

// Node is the IoT node kind that reports a parameter.
type Node string

const (
	PlantNode Node = "plant"
	HubNode   Node = "hub"
)

type parameterInfo struct {
	label      string
	node       Node
	lowAdvice  string
	highAdvice string
}

var parameterTable = map[Parameter]parameterInfo{
	Moisture: {
		label:      "moisture",
		node:       PlantNode,
		lowAdvice:  "soil is too dry, water the plant",
		highAdvice: "soil is too wet, let it dry out before watering again",
	},
	SoilTemperature: {
		label:      "soil temperature",
		node:       PlantNode,
		lowAdvice:  "move the plant somewhere warmer",
		highAdvice: "move the plant somewhere cooler",
	},
	LightLux: {
		label:      "light",
		node:       PlantNode,
		lowAdvice:  "move the plant to a brighter spot",
		highAdvice: "provide some shade or move the plant to a less bright spot",
	},
	EC: {
		label:      "nutrient level (EC)",
		node:       PlantNode,
		lowAdvice:  "consider adding fertilizer",
		highAdvice: "flush the soil with clean water",
	},
	WaterPH: {
		label:      "water pH",
		node:       HubNode,
		lowAdvice:  "water is too acidic, use pH-balanced water",
		highAdvice: "water is too alkaline, use pH-balanced water",
	},
	AmbientUV: {
		label:      "UV exposure",
		node:       HubNode,
		lowAdvice:  "increase light exposure",
		highAdvice: "reduce direct sun exposure",
	},
}

// Valid reports whether p is one of the monitored parameters.
func (p Parameter) Valid() bool {
	_, ok := parameterTable[p]
	return ok
}

// Label is the human readable name used in suggestions.
func (p Parameter) Label() string {
	if info, ok := parameterTable[p]; ok {
		return info.label
	}
	return string(p)
}

// Node returns which node reports the parameter.
func (p Parameter) Node() Node {
	return parameterTable[p].node
}

// ErrInvalidThreshold is returned when a threshold violates min <= max.
var ErrInvalidThreshold = errors.New("invalid threshold: min must not exceed max")

// Threshold holds the acceptable range of one parameter.
type Threshold struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Validate checks the min <= max invariant and rejects non-finite bounds.
func (t Threshold) Validate() error {
	if math.IsNaN(t.Min) || math.IsNaN(t.Max) || math.IsInf(t.Min, 0) || math.IsInf(t.Max, 0) {
		return ErrInvalidThreshold
	}
	if t.Min > t.Max {
		return ErrInvalidThreshold
	}
	return nil
}

// DefaultThresholds returns the built-in bounds used until a parameter is set.
func DefaultThresholds() map[Parameter]Threshold {
	return map[Parameter]Threshold{
		Moisture:        {Min: 40, Max: 70},
		SoilTemperature: {Min: 18, Max: 28},
		LightLux:        {Min: 5000, Max: 30000},
		EC:              {Min: 800, Max: 1500},
		WaterPH:         {Min: 6.0, Max: 7.5},
		AmbientUV:       {Min: 0, Max: 2},
	}
}
