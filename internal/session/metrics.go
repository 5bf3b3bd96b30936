package session

import "sync"

// Metrics tracks session activity counters.
type Metrics struct {
	mu sync.Mutex
	s  Stats
}

// Stats is a point-in-time copy of the session counters.
type Stats struct {
	MessagesSent     int64
	MessagesReceived int64
	MessagesDropped  int64
	OpsApplied       int64
	FailedApplies    int64
	Connects         int64
}

func (m *Metrics) add(f func(*Stats)) {
	m.mu.Lock()
	f(&m.s)
	m.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s
}
