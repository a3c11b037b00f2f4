package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prite36/floraseven/internal/config"
	"github.com/prite36/floraseven/internal/health"
	"github.com/prite36/floraseven/internal/mqtt"
	"github.com/prite36/floraseven/internal/service"
)

type fakeMonitor struct {
	status     *service.Status
	err        error
	broadcasts int
	captures   int
	captureErr error
	pruneDays  []int
}

func (f *fakeMonitor) ComputeStatus(context.Context) (*service.Status, error) {
	if f.status == nil && f.err == nil {
		return nil, errors.New("no status")
	}
	return f.status, f.err
}

func (f *fakeMonitor) BroadcastStatus(*service.Status) { f.broadcasts++ }

func (f *fakeMonitor) CaptureImage(context.Context) error {
	f.captures++
	return f.captureErr
}

func (f *fakeMonitor) PruneReadings(_ context.Context, days int) (int64, error) {
	f.pruneDays = append(f.pruneDays, days)
	return 3, nil
}

type fakeNotifier struct {
	alerts []health.OverallStatus
	infos  []string
}

func (f *fakeNotifier) SendHealthAlert(overall health.OverallHealth, _ health.ConditionIndex, _ time.Time) bool {
	f.alerts = append(f.alerts, overall.Status)
	return true
}

func (f *fakeNotifier) SendInfo(title, _ string) bool {
	f.infos = append(f.infos, title)
	return true
}

type fakeNodes struct {
	mu      sync.Mutex
	batches [][]mqtt.ConnectionEvent
}

func (f *fakeNodes) CheckTransitions() []mqtt.ConnectionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil
	}
	next := f.batches[0]
	f.batches = f.batches[1:]
	return next
}

func testConfig() *config.Config {
	return &config.Config{
		Schedule: config.ScheduleConfig{
			Timezone:      "UTC",
			CaptureTimes:  "08:00, 16:30,",
			HealthCheck:   "5m",
			PruneTime:     "03:00",
			RetentionDays: 90,
		},
		Slack: config.SlackConfig{AlertCooldown: 60},
	}
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeMonitor, *fakeNotifier) {
	t.Helper()
	m := &fakeMonitor{}
	n := &fakeNotifier{}
	s, err := NewScheduler(testConfig(), m, n, nil)
	require.NoError(t, err)
	return s, m, n
}

func TestAlertPolicy(t *testing.T) {
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	type step struct {
		status       health.OverallStatus
		insufficient bool
		after        time.Duration
		expected     alertAction
	}

	testCases := []struct {
		name  string
		steps []step
	}{
		{
			name: "healthy never alerts",
			steps: []step{
				{status: health.Healthy, expected: alertNone},
				{status: health.Healthy, after: 5 * time.Minute, expected: alertNone},
			},
		},
		{
			name: "repeat suppressed until cooldown",
			steps: []step{
				{status: health.Critical, expected: alertRaise},
				{status: health.Critical, after: 5 * time.Minute, expected: alertNone},
				{status: health.Critical, after: 60 * time.Minute, expected: alertRaise},
			},
		},
		{
			name: "status change alerts immediately",
			steps: []step{
				{status: health.NeedsAttention, expected: alertRaise},
				{status: health.Critical, after: time.Minute, expected: alertRaise},
				{status: health.NeedsAttention, after: time.Minute, expected: alertRaise},
			},
		},
		{
			name: "recovery reported once",
			steps: []step{
				{status: health.Critical, expected: alertRaise},
				{status: health.Healthy, after: 5 * time.Minute, expected: alertRecovered},
				{status: health.Healthy, after: 5 * time.Minute, expected: alertNone},
			},
		},
		{
			name: "insufficient data ignored",
			steps: []step{
				{status: health.NeedsAttention, insufficient: true, expected: alertNone},
				{status: health.Critical, expected: alertRaise},
				{status: health.NeedsAttention, insufficient: true, after: time.Minute, expected: alertNone},
				{status: health.Critical, after: time.Minute, expected: alertNone},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := newAlertPolicy(time.Hour)
			now := start
			for i, st := range tc.steps {
				now = now.Add(st.after)
				got := p.decide(health.OverallHealth{Status: st.status, InsufficientData: st.insufficient}, now)
				assert.Equal(t, st.expected, got, "step %d", i)
			}
		})
	}
}

func TestRunHealthCheckAlertsAndBroadcasts(t *testing.T) {
	s, m, n := newTestScheduler(t)
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	m.status = &service.Status{Timestamp: now, OverallHealth: health.OverallHealth{Status: health.Critical, Score: 30}}

	s.RunHealthCheck()
	s.RunHealthCheck()

	assert.Equal(t, 2, m.broadcasts)
	assert.Equal(t, []health.OverallStatus{health.Critical}, n.alerts)

	m.status = &service.Status{Timestamp: now.Add(time.Minute), OverallHealth: health.OverallHealth{Status: health.Healthy, Score: 95}}
	s.RunHealthCheck()
	assert.Equal(t, []string{"Plant recovered"}, n.infos)
}

func TestRunHealthCheckSkipsOnError(t *testing.T) {
	s, m, n := newTestScheduler(t)
	m.err = errors.New("database down")

	s.RunHealthCheck()

	assert.Zero(t, m.broadcasts)
	assert.Empty(t, n.alerts)
}

func TestRunHealthCheckAlertsOnStaleNodes(t *testing.T) {
	seen := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	nodes := &fakeNodes{batches: [][]mqtt.ConnectionEvent{
		{
			{NodeID: "plantNode1", Kind: "plant", To: mqtt.StateOnline},
			{NodeID: "hubNode", Kind: "hub", To: mqtt.StateOffline},
		},
		{{NodeID: "plantNode1", Kind: "plant", From: mqtt.StateOnline, To: mqtt.StateDelayed}},
		{{NodeID: "plantNode1", Kind: "plant", From: mqtt.StateDelayed, To: mqtt.StateUnresponsive, LastSeen: &seen}},
		{{NodeID: "plantNode1", Kind: "plant", From: mqtt.StateUnresponsive, To: mqtt.StateOffline, LastSeen: &seen}},
		{{NodeID: "plantNode1", Kind: "plant", From: mqtt.StateOffline, To: mqtt.StateOnline}},
	}}
	m := &fakeMonitor{err: errors.New("no readings yet")}
	n := &fakeNotifier{}
	s, err := NewScheduler(testConfig(), m, n, nodes)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		s.RunHealthCheck()
	}

	assert.Equal(t, []string{
		"Node hubNode offline",
		"Node plantNode1 unresponsive",
		"Node plantNode1 back online",
	}, n.infos)
	assert.Equal(t, "No data from the plant node since 2026-05-01T08:00:00Z.", staleMessage(mqtt.ConnectionEvent{Kind: "plant", LastSeen: &seen}))
}

func TestRunCapture(t *testing.T) {
	s, m, n := newTestScheduler(t)

	s.RunCapture()
	assert.Equal(t, 1, m.captures)
	assert.Empty(t, n.infos)

	m.captureErr = errors.New("broker down")
	s.RunCapture()
	assert.Equal(t, []string{"Image capture failed"}, n.infos)
}

func TestRunPrune(t *testing.T) {
	s, m, _ := newTestScheduler(t)

	s.RunPrune()

	assert.Equal(t, []int{90}, m.pruneDays)
}

func TestCaptureTimes(t *testing.T) {
	assert.Equal(t, []string{"08:00", "16:30"}, CaptureTimes("08:00, 16:30,"))
	assert.Empty(t, CaptureTimes(""))
}

func TestNewSchedulerRejectsUnknownTimezone(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule.Timezone = "Mars/Olympus"

	_, err := NewScheduler(cfg, &fakeMonitor{}, &fakeNotifier{}, nil)
	assert.Error(t, err)
}

func TestStartRegistersJobs(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	require.NoError(t, s.Start())
	defer s.Stop()

	// two captures, the health check and the prune
	assert.Len(t, s.scheduler.Jobs(), 4)
}
