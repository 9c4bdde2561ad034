package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/roomcheck/internal/metrics"
)

// DefaultMaxSessions bounds live sessions when no limit is configured.
const DefaultMaxSessions = 10000

// Manager keeps one Controller per browser session and evicts sessions that
// have been idle longer than the TTL. At most max sessions are live at once.
type Manager struct {
	newController func() *Controller
	ttl           time.Duration
	max           int
	now           func() time.Time
	metrics       *metrics.Metrics
	logger        *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Controller
}

func NewManager(factory func() *Controller, ttl time.Duration, maxSessions int, m *metrics.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Manager{
		newController: factory,
		ttl:           ttl,
		max:           maxSessions,
		now:           time.Now,
		metrics:       m,
		logger:        logger,
		sessions:      make(map[string]*Controller),
	}
}

// Get returns the controller for id, if it exists.
func (m *Manager) Get(id string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[id]
	return c, ok
}

// Create registers a new controller under a fresh random identifier. When the
// limit is reached idle sessions are swept first; if none can be evicted
// Create fails with ErrTooManySessions.
func (m *Manager) Create() (string, *Controller, error) {
	if m.Len() >= m.max {
		m.Sweep()
	}

	id := uuid.NewString()
	c := m.newController()
	m.mu.Lock()
	if len(m.sessions) >= m.max {
		m.mu.Unlock()
		m.logger.Warn("session limit reached", "max", m.max)
		return "", nil, ErrTooManySessions
	}
	m.sessions[id] = c
	n := len(m.sessions)
	m.mu.Unlock()
	m.metrics.SetSessions(n)
	return id, c, nil
}

// Blank is the snapshot a new session starts from. Nothing is registered.
func (m *Manager) Blank() Snapshot {
	return m.newController().Snapshot()
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than the TTL and returns how many were
// removed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.ttl)

	// Controller locks are never taken while holding mu.
	m.mu.Lock()
	live := make(map[string]*Controller, len(m.sessions))
	for id, c := range m.sessions {
		live[id] = c
	}
	m.mu.Unlock()

	var expired []string
	for id, c := range live {
		if c.LastSeen().Before(cutoff) {
			expired = append(expired, id)
		}
	}

	m.mu.Lock()
	removed := 0
	for _, id := range expired {
		if m.sessions[id] == live[id] {
			delete(m.sessions, id)
			removed++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetSessions(n)
	if removed > 0 {
		m.logger.Info("expired idle sessions", "removed", removed, "remaining", n)
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
