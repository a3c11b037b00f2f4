package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prite36/floraseven/internal/health"
	"github.com/prite36/floraseven/internal/models"
)

// Topics used by the nodes. "+" matches the node id.
const (
	TopicPlantData      = "floraSeven/plant/+/data"
	TopicHubStatus      = "floraSeven/hub/+/status"
	TopicHubImageStatus = "floraSeven/hub/+/cam/image_status"
	TopicCommandPump    = "floraSeven/command/hub/pump"
	TopicCommandCapture = "floraSeven/command/hub/captureImage"
	TopicCommandReadNow = "floraSeven/command/plant/%s/readNow"
	TopicServerStatus   = "floraSeven/server/status"
)

// Auxiliary sensors stored alongside the monitored parameters.
const (
	SensorPumpState     = "pump_state"
	SensorTempAmbient   = "temp_ambient"
	SensorHumidity      = "humidity"
	SensorECCompensated = "ec_compensated"
)

// PlantData is published by the plant node.
type PlantData struct {
	Timestamp     json.RawMessage `json:"timestamp"`
	NodeID        string          `json:"nodeId"`
	TempSoilC     *float64        `json:"temp_soil_c"`
	MoistureRaw   *float64        `json:"moisture_raw"`
	LightLux      *float64        `json:"light_lux"`
	ECVoltageRMS  *float64        `json:"ec_voltage_rms,omitempty"`
	ECCompensated *float64        `json:"ec_comp_mS_cm,omitempty"`
}

// HubStatus is published by the hub node. Messages with Status set are
// acknowledgements or log lines, not sensor data.
type HubStatus struct {
	Timestamp       json.RawMessage `json:"timestamp"`
	NodeID          string          `json:"nodeId"`
	PHWater         *float64        `json:"ph_water"`
	UVAmbient       *float64        `json:"uv_ambient"`
	PumpActive      *bool           `json:"pump_active"`
	TempAmbient     *float64        `json:"temp_ambient,omitempty"`
	Humidity        *float64        `json:"humidity,omitempty"`
	Status          string          `json:"status,omitempty"`
	Message         string          `json:"message,omitempty"`
	CommandReceived string          `json:"command_received,omitempty"`
}

// ImageStatus is published by the hub camera around uploads.
type ImageStatus struct {
	NodeID    string `json:"nodeId"`
	Status    string `json:"status,omitempty"`
	Success   *bool  `json:"success,omitempty"`
	Filename  string `json:"filename,omitempty"`
	ImageSize int    `json:"image_size,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NodeFromTopic returns the third topic segment, e.g. the node id in
// floraSeven/plant/<node>/data.
func NodeFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 3 && parts[2] != "" {
		return parts[2]
	}
	return "unknown"
}

// ParseTimestamp accepts unix seconds (number or numeric string) or an
// RFC3339 / ISO-8601 string. An empty value yields fallback.
func ParseTimestamp(raw json.RawMessage, fallback time.Time) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return fallback.UTC(), nil
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return unixSeconds(num), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %s", raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback.UTC(), nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return unixSeconds(n), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func unixSeconds(v float64) time.Time {
	sec := int64(v)
	nsec := int64((v - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// ParsePlantData decodes a plant node payload into readings.
func ParsePlantData(topic string, payload []byte, received time.Time) ([]models.SensorReading, error) {
	var data PlantData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("invalid plant data JSON: %w", err)
	}
	if data.TempSoilC == nil || data.MoistureRaw == nil || data.LightLux == nil {
		return nil, fmt.Errorf("plant data missing required fields")
	}

	ts, err := ParseTimestamp(data.Timestamp, received)
	if err != nil {
		return nil, err
	}
	node := data.NodeID
	if node == "" {
		node = NodeFromTopic(topic)
	}

	readings := []models.SensorReading{
		{Timestamp: ts, NodeID: node, SensorType: string(health.SoilTemperature), Value: *data.TempSoilC},
		{Timestamp: ts, NodeID: node, SensorType: string(health.Moisture), Value: *data.MoistureRaw},
		{Timestamp: ts, NodeID: node, SensorType: string(health.LightLux), Value: *data.LightLux},
	}
	if data.ECVoltageRMS != nil {
		readings = append(readings, models.SensorReading{Timestamp: ts, NodeID: node, SensorType: string(health.EC), Value: *data.ECVoltageRMS})
	}
	if data.ECCompensated != nil {
		readings = append(readings, models.SensorReading{Timestamp: ts, NodeID: node, SensorType: SensorECCompensated, Value: *data.ECCompensated})
	}
	return readings, nil
}

// ParseHubStatus decodes a hub payload. Readings are nil for ACK, INFO and
// ERROR messages; the decoded message is always returned for logging.
func ParseHubStatus(topic string, payload []byte, received time.Time) ([]models.SensorReading, *HubStatus, error) {
	var data HubStatus
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, nil, fmt.Errorf("invalid hub status JSON: %w", err)
	}
	if data.NodeID == "" {
		data.NodeID = NodeFromTopic(topic)
	}
	if data.Status != "" {
		return nil, &data, nil
	}
	if data.PHWater == nil || data.UVAmbient == nil || data.PumpActive == nil {
		return nil, &data, fmt.Errorf("hub status missing required fields")
	}

	ts, err := ParseTimestamp(data.Timestamp, received)
	if err != nil {
		return nil, &data, err
	}
	node := data.NodeID

	pump := 0.0
	if *data.PumpActive {
		pump = 1
	}
	readings := []models.SensorReading{
		{Timestamp: ts, NodeID: node, SensorType: string(health.WaterPH), Value: *data.PHWater},
		{Timestamp: ts, NodeID: node, SensorType: string(health.AmbientUV), Value: *data.UVAmbient},
		{Timestamp: ts, NodeID: node, SensorType: SensorPumpState, Value: pump},
	}
	if data.TempAmbient != nil {
		readings = append(readings, models.SensorReading{Timestamp: ts, NodeID: node, SensorType: SensorTempAmbient, Value: *data.TempAmbient})
	}
	if data.Humidity != nil {
		readings = append(readings, models.SensorReading{Timestamp: ts, NodeID: node, SensorType: SensorHumidity, Value: *data.Humidity})
	}
	return readings, &data, nil
}

// ParseImageStatus decodes a camera status payload.
func ParseImageStatus(topic string, payload []byte) (*ImageStatus, error) {
	var data ImageStatus
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("invalid image status JSON: %w", err)
	}
	if data.NodeID == "" {
		data.NodeID = NodeFromTopic(topic)
	}
	return &data, nil
}

// PumpCommand is sent to the hub to switch the pump.
type PumpCommand struct {
	State       string `json:"state"`
	DurationSec int    `json:"duration_sec,omitempty"`
	Timestamp   string `json:"timestamp"`
	MessageID   string `json:"message_id"`
}

// CaptureCommand asks the hub camera for a photo.
type CaptureCommand struct {
	Resolution string `json:"resolution,omitempty"`
	Flash      *bool  `json:"flash,omitempty"`
	Timestamp  string `json:"timestamp"`
	MessageID  string `json:"message_id"`
}

// ReadNowCommand asks a plant node for an immediate reading.
type ReadNowCommand struct {
	Timestamp string `json:"timestamp"`
	MessageID string `json:"message_id"`
}
