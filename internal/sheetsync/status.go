package sheetsync

import (
	"sync"
	"time"
)

type State string

const (
	StateOffline    State = "offline"
	StateConnecting State = "connecting"
	StateSyncing    State = "syncing"
	StateConnected  State = "connected"
	StateError      State = "error"
)

// Status is the last known sync state of one namespace.
type Status struct {
	State         State      `json:"state"`
	Message       string     `json:"message,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	Pending       int64      `json:"pending"`
}

// Tracker holds a Status per namespace. The zero state is offline.
type Tracker struct {
	mu  sync.RWMutex
	now func() time.Time
	m   map[string]Status
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now, m: make(map[string]Status)}
}

func (t *Tracker) Get(ns string) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.m[ns]
	if !ok {
		return Status{State: StateOffline}
	}
	return s
}

func (t *Tracker) update(ns string, fn func(*Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.m[ns]
	if !ok {
		s = Status{State: StateOffline}
	}
	fn(&s)
	t.m[ns] = s
}

func (t *Tracker) Set(ns string, state State, msg string) {
	t.update(ns, func(s *Status) {
		s.State = state
		s.Message = msg
	})
}

func (t *Tracker) Succeed(ns, msg string) {
	now := t.now()
	t.update(ns, func(s *Status) {
		s.State = StateConnected
		s.Message = msg
		s.LastError = ""
		s.LastSuccessAt = &now
	})
}

func (t *Tracker) Fail(ns string, err error) {
	t.update(ns, func(s *Status) {
		s.State = StateError
		s.Message = ""
		s.LastError = err.Error()
	})
}

func (t *Tracker) addPending(ns string, delta int64) {
	t.update(ns, func(s *Status) {
		s.Pending += delta
		if s.Pending < 0 {
			s.Pending = 0
		}
	})
}

func (t *Tracker) setPending(ns string, n int64) {
	t.update(ns, func(s *Status) { s.Pending = n })
}
