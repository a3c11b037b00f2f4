package models

import (
	"time"

	"gorm.io/gorm"
)

type WateringStatus string

const (
	WateringRequested WateringStatus = "requested"
	WateringStopped   WateringStatus = "stopped"
	WateringFailed    WateringStatus = "failed"
)

type WateringSource string

const (
	SourceManual    WateringSource = "manual"
	SourceScheduled WateringSource = "scheduled"
)

// WateringEvent records one pump command sent to the hub.
type WateringEvent struct {
	gorm.Model
	RequestedAt    time.Time      `gorm:"not null;index" json:"requested_at"`
	State          string         `gorm:"type:varchar(3);not null" json:"state"`
	Duration       int            `gorm:"not null" json:"duration_seconds"` // in seconds
	Status         WateringStatus `gorm:"type:varchar(20);not null" json:"status"`
	Source         WateringSource `gorm:"type:varchar(20);not null" json:"source"`
	MoistureBefore *float64       `json:"moisture_before,omitempty"`
	Notes          string         `json:"notes,omitempty"`
}

func (WateringEvent) TableName() string {
	return "watering_events"
}
