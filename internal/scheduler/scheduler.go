package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/prite36/floraseven/internal/config"
	"github.com/prite36/floraseven/internal/health"
	"github.com/prite36/floraseven/internal/mqtt"
	"github.com/prite36/floraseven/internal/service"
)

const jobTimeout = 2 * time.Minute

// Monitor is the part of the monitor service the jobs drive.
type Monitor interface {
	ComputeStatus(ctx context.Context) (*service.Status, error)
	BroadcastStatus(status *service.Status)
	CaptureImage(ctx context.Context) error
	PruneReadings(ctx context.Context, retentionDays int) (int64, error)
}

// Notifier delivers alerts. A nil *slack.Client satisfies it as a no-op.
type Notifier interface {
	SendHealthAlert(overall health.OverallHealth, index health.ConditionIndex, at time.Time) bool
	SendInfo(title, message string) bool
}

// NodeWatcher reports node connection state changes since the last check.
type NodeWatcher interface {
	CheckTransitions() []mqtt.ConnectionEvent
}

// Scheduler runs the periodic plant jobs: image capture at fixed times of
// day, the health check, and the retention prune.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cfg       *config.Config
	monitor   Monitor
	notifier  Notifier
	nodes     NodeWatcher
	alerts    *alertPolicy
}

// NewScheduler creates a new scheduler instance. nodes may be nil.
func NewScheduler(cfg *config.Config, monitor Monitor, notifier Notifier, nodes NodeWatcher) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load location %q: %w", cfg.Schedule.Timezone, err)
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(loc),
		cfg:       cfg,
		monitor:   monitor,
		notifier:  notifier,
		nodes:     nodes,
		alerts:    newAlertPolicy(time.Duration(cfg.Slack.AlertCooldown) * time.Minute),
	}, nil
}

// CaptureTimes parses the comma separated HH:MM list, skipping blanks.
func CaptureTimes(raw string) []string {
	var times []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			times = append(times, t)
		}
	}
	return times
}

// Start registers the jobs and begins execution.
func (s *Scheduler) Start() error {
	for _, at := range CaptureTimes(s.cfg.Schedule.CaptureTimes) {
		log.Printf("[INFO] Scheduling image capture at %s", at)
		if _, err := s.scheduler.Every(1).Day().At(at).Do(s.RunCapture); err != nil {
			return fmt.Errorf("failed to schedule capture at %s: %w", at, err)
		}
	}

	interval := s.cfg.HealthCheckInterval()
	log.Printf("[INFO] Scheduling health check every %s", interval)
	if _, err := s.scheduler.Every(interval).SingletonMode().Do(s.RunHealthCheck); err != nil {
		return fmt.Errorf("failed to schedule health check: %w", err)
	}

	if s.cfg.Schedule.RetentionDays > 0 {
		log.Printf("[INFO] Scheduling retention prune at %s (%d days)", s.cfg.Schedule.PruneTime, s.cfg.Schedule.RetentionDays)
		if _, err := s.scheduler.Every(1).Day().At(s.cfg.Schedule.PruneTime).Do(s.RunPrune); err != nil {
			return fmt.Errorf("failed to schedule prune at %s: %w", s.cfg.Schedule.PruneTime, err)
		}
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	log.Println("[INFO] Stopping scheduler...")
	s.scheduler.Stop()
}

// RunCapture asks the hub camera for a photo.
func (s *Scheduler) RunCapture() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.monitor.CaptureImage(ctx); err != nil {
		log.Printf("[ERROR] Scheduled image capture failed: %v", err)
		s.notifier.SendInfo("Image capture failed", err.Error())
		return
	}
	log.Println("[INFO] Scheduled image capture requested.")
}

// RunHealthCheck checks node liveness, computes a fresh snapshot, pushes it
// to live clients and alerts on status changes. It can also be called
// directly for debugging.
func (s *Scheduler) RunHealthCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	s.checkNodes()

	status, err := s.monitor.ComputeStatus(ctx)
	if err != nil {
		log.Printf("[ERROR] Health check failed: %v", err)
		return
	}
	s.monitor.BroadcastStatus(status)

	switch s.alerts.decide(status.OverallHealth, status.Timestamp) {
	case alertRaise:
		log.Printf("[WARN] Plant health %s (score %d), sending alert", status.OverallHealth.Status, status.OverallHealth.Score)
		s.notifier.SendHealthAlert(status.OverallHealth, status.ConditionIndex, status.Timestamp)
	case alertRecovered:
		log.Printf("[INFO] Plant health recovered (score %d)", status.OverallHealth.Score)
		s.notifier.SendInfo("Plant recovered", fmt.Sprintf("The plant is healthy again (score %d/100).", status.OverallHealth.Score))
	}
}

// checkNodes alerts when a node stops delivering data and again when it
// comes back. Moves between online and delayed are only logged.
func (s *Scheduler) checkNodes() {
	if s.nodes == nil {
		return
	}
	for _, ev := range s.nodes.CheckTransitions() {
		switch {
		case ev.To.Stale() && !ev.From.Stale():
			log.Printf("[WARN] Node %s is %s", ev.NodeID, ev.To)
			s.notifier.SendInfo(fmt.Sprintf("Node %s %s", ev.NodeID, ev.To), staleMessage(ev))
		case ev.From.Stale() && !ev.To.Stale():
			s.notifier.SendInfo(fmt.Sprintf("Node %s back online", ev.NodeID),
				fmt.Sprintf("The %s node is reporting again.", ev.Kind))
		}
	}
}

func staleMessage(ev mqtt.ConnectionEvent) string {
	if ev.LastSeen == nil {
		return fmt.Sprintf("No data has been received from the %s node.", ev.Kind)
	}
	return fmt.Sprintf("No data from the %s node since %s.", ev.Kind, ev.LastSeen.UTC().Format(time.RFC3339))
}

// RunPrune removes readings older than the retention window.
func (s *Scheduler) RunPrune() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.monitor.PruneReadings(ctx, s.cfg.Schedule.RetentionDays); err != nil {
		log.Printf("[ERROR] Retention prune failed: %v", err)
	}
}
