package models

import "time"

// SensorReading is one value reported by a node. At most one row exists per
// timestamp, node and sensor.
type SensorReading struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	Timestamp  time.Time `gorm:"not null;uniqueIndex:idx_reading_unique,priority:1;index:idx_reading_lookup,priority:3" json:"timestamp"`
	NodeID     string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_reading_unique,priority:2;index:idx_reading_lookup,priority:1" json:"node_id"`
	SensorType string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_reading_unique,priority:3;index:idx_reading_lookup,priority:2" json:"sensor_type"`
	Value      float64   `gorm:"not null" json:"value"`
}

func (SensorReading) TableName() string {
	return "sensor_log"
}

// ImageAnalysis is the persisted classifier result for one uploaded image.
type ImageAnalysis struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	Timestamp     time.Time `gorm:"not null;index" json:"timestamp"`
	ImageFilename string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"image_filename"`
	HealthLabel   string    `gorm:"type:varchar(32);not null" json:"health_label"`
	HealthScore   int       `gorm:"not null" json:"health_score"`
	Confidence    float64   `gorm:"not null" json:"confidence"`
}

func (ImageAnalysis) TableName() string {
	return "image_log"
}

// Threshold is the persisted bound pair for one parameter.
type Threshold struct {
	Parameter string    `gorm:"primaryKey;type:varchar(32)"`
	MinValue  float64   `gorm:"not null"`
	MaxValue  float64   `gorm:"not null"`
	UpdatedAt time.Time
}

func (Threshold) TableName() string {
	return "thresholds"
}
