package mqtt

import (
	"sync"
	"time"
)

// ConnectionState describes how recently a node was heard from.
type ConnectionState string

const (
	StateOnline       ConnectionState = "online"
	StateDelayed      ConnectionState = "delayed"
	StateUnresponsive ConnectionState = "unresponsive"
	StateOffline      ConnectionState = "offline"
)

const (
	onlineWindow       = 5 * time.Minute
	delayedWindow      = 10 * time.Minute
	unresponsiveWindow = 30 * time.Minute
)

// NodeStatus is the liveness record of one node.
type NodeStatus struct {
	NodeID      string          `json:"node_id"`
	Kind        string          `json:"kind"`
	LastSeen    *time.Time      `json:"last_seen,omitempty"`
	LastMessage string          `json:"last_message,omitempty"`
	State       ConnectionState `json:"state"`
	Messages    int64           `json:"messages"`
}

// StateFor classifies a node by the time since it was last seen.
func StateFor(lastSeen time.Time, now time.Time) ConnectionState {
	if lastSeen.IsZero() {
		return StateOffline
	}
	age := now.Sub(lastSeen)
	switch {
	case age < onlineWindow:
		return StateOnline
	case age < delayedWindow:
		return StateDelayed
	case age < unresponsiveWindow:
		return StateUnresponsive
	default:
		return StateOffline
	}
}

// maxConnectionEvents bounds the transition log kept in memory.
const maxConnectionEvents = 100

// ConnectionEvent records a node moving between connection states.
type ConnectionEvent struct {
	NodeID   string          `json:"node_id"`
	Kind     string          `json:"kind"`
	From     ConnectionState `json:"from,omitempty"`
	To       ConnectionState `json:"to"`
	LastSeen *time.Time      `json:"last_seen,omitempty"`
	At       time.Time       `json:"timestamp"`
}

// Stale reports whether the node is no longer delivering data.
func (s ConnectionState) Stale() bool {
	return s == StateUnresponsive || s == StateOffline
}

// transitionLog remembers the last observed state per node and the recent
// transitions, newest last.
type transitionLog struct {
	mu       sync.Mutex
	observed map[string]ConnectionState
	events   []ConnectionEvent
}

func (l *transitionLog) observe(statuses []NodeStatus, at time.Time) []ConnectionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.observed == nil {
		l.observed = make(map[string]ConnectionState)
	}

	var changed []ConnectionEvent
	for _, s := range statuses {
		prev := l.observed[s.NodeID]
		if prev == s.State {
			continue
		}
		l.observed[s.NodeID] = s.State
		ev := ConnectionEvent{NodeID: s.NodeID, Kind: s.Kind, From: prev, To: s.State, LastSeen: s.LastSeen, At: at}
		changed = append(changed, ev)
		l.events = append(l.events, ev)
	}
	if over := len(l.events) - maxConnectionEvents; over > 0 {
		l.events = append([]ConnectionEvent(nil), l.events[over:]...)
	}
	return changed
}

// recent returns up to limit events, newest first. A non-positive limit
// returns everything kept.
func (l *transitionLog) recent(limit int) []ConnectionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.events) {
		limit = len(l.events)
	}
	out := make([]ConnectionEvent, 0, limit)
	for i := len(l.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.events[i])
	}
	return out
}
