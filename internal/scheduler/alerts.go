package scheduler

import (
	"sync"
	"time"

	"github.com/prite36/floraseven/internal/health"
)

type alertAction int

const (
	alertNone alertAction = iota
	alertRaise
	alertRecovered
)

// alertPolicy decides when a health check should notify. A non-healthy
// status alerts when it differs from the last alerted one, and again once the
// cooldown has passed. Returning to healthy after an alert sends one recovery
// message. Snapshots without enough data never change the state.
type alertPolicy struct {
	mu        sync.Mutex
	cooldown  time.Duration
	last      health.OverallStatus
	lastAlert time.Time
}

func newAlertPolicy(cooldown time.Duration) *alertPolicy {
	return &alertPolicy{cooldown: cooldown}
}

func (p *alertPolicy) decide(overall health.OverallHealth, now time.Time) alertAction {
	if overall.InsufficientData {
		return alertNone
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if overall.Status == health.Healthy {
		if p.last == "" {
			return alertNone
		}
		p.last = ""
		p.lastAlert = time.Time{}
		return alertRecovered
	}

	if overall.Status != p.last || (p.cooldown > 0 && now.Sub(p.lastAlert) >= p.cooldown) {
		p.last = overall.Status
		p.lastAlert = now
		return alertRaise
	}
	return alertNone
}
