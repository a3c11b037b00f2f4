package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prite36/floraseven/internal/classifier"
	"github.com/prite36/floraseven/internal/config"
	"github.com/prite36/floraseven/internal/health"
	"github.com/prite36/floraseven/internal/models"
	"github.com/prite36/floraseven/internal/thresholds"
)

var (
	// ErrInputUnavailable wraps storage failures while reading inputs.
	ErrInputUnavailable = errors.New("input unavailable")
	ErrInvalidImage     = errors.New("image must be a JPEG or PNG file")
	ErrNoImage          = errors.New("no image has been uploaded yet")
	ErrInvalidCommand   = errors.New("invalid command")
	ErrWateringTooSoon  = errors.New("watering requested too soon after the previous run")
	ErrCommandFailed    = errors.New("failed to send command to node")
)

// Repository is the persistence the monitor reads from and writes to.
type Repository interface {
	LogReadings(ctx context.Context, readings []models.SensorReading) error
	LatestValue(ctx context.Context, nodeID, sensor string) (float64, bool, error)
	PruneReadings(ctx context.Context, before time.Time) (int64, error)
	LogImageAnalysis(ctx context.Context, a *models.ImageAnalysis) error
	LatestImageAnalysis(ctx context.Context) (*models.ImageAnalysis, error)
	LogWateringEvent(ctx context.Context, e *models.WateringEvent) error
	LastWateringEvent(ctx context.Context, state string) (*models.WateringEvent, error)
	WateringHistory(ctx context.Context, limit int) ([]models.WateringEvent, error)
}

// Commander sends commands to the nodes.
type Commander interface {
	PublishPump(state string, durationSec int) error
	PublishCaptureImage() error
	PublishReadNow(nodeID string) error
}

// Broadcaster pushes live updates to connected clients.
type Broadcaster interface {
	Broadcast(kind string, payload any)
}

// Status is the fused health snapshot served to clients.
type Status struct {
	Timestamp      time.Time                             `json:"timestamp"`
	SensorData     map[health.Parameter]float64          `json:"sensor_data"`
	Thresholds     map[health.Parameter]health.Threshold `json:"thresholds"`
	VisualHealth   *health.VisualHealth                  `json:"visual_health"`
	ConditionIndex health.ConditionIndex                 `json:"condition_index"`
	OverallHealth  health.OverallHealth                  `json:"overall_health"`
}

// ImageResult is the outcome of one image analysis.
type ImageResult struct {
	Filename string              `json:"image_filename"`
	Visual   health.VisualHealth `json:"visual_health"`
}

// WaterRequest asks for the pump to be switched.
type WaterRequest struct {
	State    string                `json:"state"`
	Duration *int                  `json:"duration,omitempty"`
	Source   models.WateringSource `json:"-"`
}

// Monitor runs the health pipeline for the single monitored plant.
type Monitor struct {
	repo        Repository
	thresholds  *thresholds.Store
	classifier  classifier.Classifier
	commander   Commander
	broadcaster Broadcaster

	plantNodeID       string
	hubNodeID         string
	uploadDir         string
	classifierTimeout time.Duration
	watering          config.WateringConfig

	// pumpMu serializes pump commands so the interval check and the event
	// that starts the interval are atomic.
	pumpMu sync.Mutex

	now func() time.Time
}

func NewMonitor(cfg *config.Config, repo Repository, th *thresholds.Store, cls classifier.Classifier, cmd Commander, b Broadcaster) *Monitor {
	return &Monitor{
		repo:              repo,
		thresholds:        th,
		classifier:        cls,
		commander:         cmd,
		broadcaster:       b,
		plantNodeID:       cfg.Nodes.PlantNodeID,
		hubNodeID:         cfg.Nodes.HubNodeID,
		uploadDir:         cfg.Server.UploadDir,
		classifierTimeout: cfg.ClassifierTimeout(),
		watering:          cfg.Watering,
		now:               time.Now,
	}
}

func (m *Monitor) nodeFor(p health.Parameter) string {
	if p.Node() == health.HubNode {
		return m.hubNodeID
	}
	return m.plantNodeID
}

// ComputeStatus fetches the latest inputs and fuses a fresh snapshot.
func (m *Monitor) ComputeStatus(ctx context.Context) (*Status, error) {
	th := m.thresholds.Thresholds(ctx)

	values := make(map[health.Parameter]float64, len(health.Parameters))
	for _, p := range health.Parameters {
		v, ok, err := m.repo.LatestValue(ctx, m.nodeFor(p), string(p))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInputUnavailable, err)
		}
		if ok {
			values[p] = v
		}
	}

	visual, err := m.latestVisual(ctx)
	if err != nil {
		return nil, err
	}

	index := health.BuildConditionIndex(values, th)
	return &Status{
		Timestamp:      m.now().UTC(),
		SensorData:     values,
		Thresholds:     th,
		VisualHealth:   visual,
		ConditionIndex: index,
		OverallHealth:  health.Fuse(index, visual),
	}, nil
}

func (m *Monitor) latestVisual(ctx context.Context) (*health.VisualHealth, error) {
	a, err := m.repo.LatestImageAnalysis(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputUnavailable, err)
	}
	if a == nil {
		return nil, nil
	}
	v := health.VisualHealth{
		Label:      a.HealthLabel,
		Score:      a.HealthScore,
		Confidence: a.Confidence,
		Timestamp:  a.Timestamp,
	}
	if !v.Usable() {
		return nil, nil
	}
	return &v, nil
}

// Thresholds returns the current bounds with defaults substituted.
func (m *Monitor) Thresholds(ctx context.Context) map[health.Parameter]health.Threshold {
	return m.thresholds.Thresholds(ctx)
}

// UpdateThresholds applies a partial update and pushes the new status.
func (m *Monitor) UpdateThresholds(ctx context.Context, req thresholds.UpdateRequest) (thresholds.UpdateResult, error) {
	result, err := m.thresholds.Update(ctx, req)
	if len(result.Updated) > 0 {
		m.broadcastStatus(ctx)
	}
	return result, err
}

// Ingest stores readings from a node and pushes the new status.
func (m *Monitor) Ingest(ctx context.Context, readings []models.SensorReading) error {
	if err := m.repo.LogReadings(ctx, readings); err != nil {
		return fmt.Errorf("%w: %v", ErrInputUnavailable, err)
	}
	m.broadcastStatus(ctx)
	return nil
}

func (m *Monitor) broadcastStatus(ctx context.Context) {
	if m.broadcaster == nil {
		return
	}
	status, err := m.ComputeStatus(ctx)
	if err != nil {
		log.Printf("[WARN] Skipping status broadcast: %v", err)
		return
	}
	m.broadcaster.Broadcast("status", status)
}

// BroadcastStatus pushes an already computed snapshot.
func (m *Monitor) BroadcastStatus(status *Status) {
	if m.broadcaster != nil && status != nil {
		m.broadcaster.Broadcast("status", status)
	}
}

func imageExtension(image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrInvalidImage
	}
	switch http.DetectContentType(image) {
	case "image/jpeg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	default:
		return "", ErrInvalidImage
	}
}

// AnalyzeImage saves and classifies an uploaded image. On classifier
// failure the error sentinel is returned together with an error wrapping
// health.ErrClassifierUnavailable, and nothing is persisted.
func (m *Monitor) AnalyzeImage(ctx context.Context, image []byte) (*ImageResult, error) {
	ext, err := imageExtension(image)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	filename := fmt.Sprintf("plant_%s_%s%s", now.Format("20060102_150405"), uuid.NewString()[:8], ext)
	if err := os.MkdirAll(m.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.uploadDir, filename), image, 0o644); err != nil {
		return nil, fmt.Errorf("failed to save image: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, m.classifierTimeout)
	defer cancel()
	label, confidence, err := m.classifier.Classify(cctx, image)
	if err != nil {
		log.Printf("[ERROR] Classifier failed for %s: %v", filename, err)
		return &ImageResult{Filename: filename, Visual: health.ErrorVisualHealth()},
			fmt.Errorf("%w: %v", health.ErrClassifierUnavailable, err)
	}

	visual, err := health.Adapt(label, confidence)
	if err != nil {
		log.Printf("[ERROR] Uninterpretable classifier output for %s: %v", filename, err)
		return &ImageResult{Filename: filename, Visual: visual}, err
	}
	visual.Timestamp = now

	if err := m.repo.LogImageAnalysis(ctx, &models.ImageAnalysis{
		Timestamp:     now,
		ImageFilename: filename,
		HealthLabel:   visual.Label,
		HealthScore:   visual.Score,
		Confidence:    visual.Confidence,
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputUnavailable, err)
	}
	log.Printf("[INFO] Image %s classified as %s (score %d, confidence %.2f)", filename, visual.Label, visual.Score, visual.Confidence)

	result := &ImageResult{Filename: filename, Visual: visual}
	if m.broadcaster != nil {
		m.broadcaster.Broadcast("image_analysis", result)
	}
	m.broadcastStatus(ctx)
	return result, nil
}

// LatestImage returns the path of the newest uploaded image and its
// analysis, if that image was analyzed.
func (m *Monitor) LatestImage(ctx context.Context) (string, *models.ImageAnalysis, error) {
	entries, err := os.ReadDir(m.uploadDir)
	if err != nil && !os.IsNotExist(err) {
		return "", nil, fmt.Errorf("failed to list uploads: %w", err)
	}

	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest, newestMod = e.Name(), info.ModTime()
		}
	}
	if newest == "" {
		return "", nil, ErrNoImage
	}

	analysis, err := m.repo.LatestImageAnalysis(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInputUnavailable, err)
	}
	if analysis != nil && analysis.ImageFilename != newest {
		analysis = nil
	}
	return filepath.Join(m.uploadDir, newest), analysis, nil
}

// Water switches the pump. ON runs are capped at the configured maximum and
// refused within the minimum interval after the previous ON. Concurrent
// requests are handled one at a time.
func (m *Monitor) Water(ctx context.Context, req WaterRequest) (*models.WateringEvent, error) {
	state := strings.ToUpper(strings.TrimSpace(req.State))
	if state == "" {
		state = "ON"
	}
	if state != "ON" && state != "OFF" {
		return nil, fmt.Errorf("%w: state must be ON or OFF", ErrInvalidCommand)
	}
	if m.commander == nil {
		return nil, fmt.Errorf("%w: no command transport", ErrCommandFailed)
	}
	source := req.Source
	if source == "" {
		source = models.SourceManual
	}

	m.pumpMu.Lock()
	defer m.pumpMu.Unlock()

	now := m.now().UTC()
	event := &models.WateringEvent{
		RequestedAt: now,
		State:       state,
		Status:      models.WateringStopped,
		Source:      source,
	}

	if state == "ON" {
		duration := m.watering.DefaultSeconds
		if req.Duration != nil {
			duration = *req.Duration
		}
		if duration <= 0 {
			return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidCommand)
		}
		if duration > m.watering.MaxSeconds {
			log.Printf("[WARN] Pump duration limited to maximum of %d seconds", m.watering.MaxSeconds)
			duration = m.watering.MaxSeconds
		}

		last, err := m.repo.LastWateringEvent(ctx, "ON")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInputUnavailable, err)
		}
		minInterval := time.Duration(m.watering.MinIntervalSeconds) * time.Second
		if last != nil && now.Sub(last.RequestedAt) < minInterval {
			wait := minInterval - now.Sub(last.RequestedAt)
			return nil, fmt.Errorf("%w: retry in %s", ErrWateringTooSoon, wait.Round(time.Second))
		}

		if v, ok, err := m.repo.LatestValue(ctx, m.plantNodeID, string(health.Moisture)); err == nil && ok {
			event.MoistureBefore = &v
		}
		event.Duration = duration
		event.Status = models.WateringRequested
	}

	pubErr := m.commander.PublishPump(state, event.Duration)
	if pubErr != nil {
		event.Status = models.WateringFailed
		event.Notes = pubErr.Error()
	}
	if err := m.repo.LogWateringEvent(ctx, event); err != nil {
		log.Printf("[ERROR] Failed to record watering event: %v", err)
	}
	if pubErr != nil {
		return event, fmt.Errorf("%w: %v", ErrCommandFailed, pubErr)
	}

	log.Printf("[INFO] Pump %s requested (%ds, source %s)", state, event.Duration, source)
	if m.broadcaster != nil {
		m.broadcaster.Broadcast("watering", event)
	}
	return event, nil
}

// CaptureImage asks the hub camera for a new photo.
func (m *Monitor) CaptureImage(ctx context.Context) error {
	if m.commander == nil {
		return fmt.Errorf("%w: no command transport", ErrCommandFailed)
	}
	if err := m.commander.PublishCaptureImage(); err != nil {
		return fmt.Errorf("%w: %v", ErrCommandFailed, err)
	}
	return nil
}

// ReadNow asks the plant node for an immediate reading.
func (m *Monitor) ReadNow(ctx context.Context) error {
	if m.commander == nil {
		return fmt.Errorf("%w: no command transport", ErrCommandFailed)
	}
	if err := m.commander.PublishReadNow(m.plantNodeID); err != nil {
		return fmt.Errorf("%w: %v", ErrCommandFailed, err)
	}
	return nil
}

func (m *Monitor) WateringHistory(ctx context.Context, limit int) ([]models.WateringEvent, error) {
	events, err := m.repo.WateringHistory(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputUnavailable, err)
	}
	return events, nil
}

// PruneReadings removes sensor readings older than the retention window.
func (m *Monitor) PruneReadings(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := m.now().UTC().AddDate(0, 0, -retentionDays)
	removed, err := m.repo.PruneReadings(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	log.Printf("[INFO] Pruned %d sensor readings older than %s", removed, cutoff.Format(time.RFC3339))
	return removed, nil
}
