// Package session mounts one stories viewer per remote client and plays the
// role of the page that owns it: it supplies the close callback, unmounts
// the viewer when it closes and feeds it asset load results.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agleyzer/linkinbio/internal/stories"
	"github.com/agleyzer/linkinbio/internal/viewer"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Prober loads an image asset, returning nil when it is usable.
type Prober interface {
	Probe(ctx context.Context, source string) error
}

// Options configure a Manager.
type Options struct {
	// Duration is the default per-slide duration.
	Duration time.Duration

	// FrameInterval is the progress tick interval for new viewers.
	FrameInterval time.Duration

	// Prober, when set, loads every activated slide and reports the
	// result. Without it clients report load results themselves.
	Prober Prober

	// Scheduler overrides the frame scheduler (tests).
	Scheduler viewer.Scheduler
}

// Session is one mounted viewer.
type Session struct {
	ID        string
	CreatedAt time.Time

	viewer *viewer.Viewer
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closedAt time.Time
}

// Viewer returns the session's viewer.
func (s *Session) Viewer() *viewer.Viewer {
	return s.viewer
}

// Closed reports whether the viewer has asked to be dismissed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closedAt.IsZero()
}

// Done is closed when the session is unmounted.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Manager owns all live sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cache    *stories.Cache
	opts     Options
	logger   *slog.Logger
}

// NewManager creates a session manager. The stories cache is shared so a
// raw list that does not change is normalized once.
func NewManager(cache *stories.Cache, opts Options, logger *slog.Logger) *Manager {
	if cache == nil {
		cache = stories.NewCache()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		cache:    cache,
		opts:     opts,
		logger:   logger,
	}
}

// Mount creates and mounts a viewer over the raw stories list. A
// non-positive duration uses the manager default.
func (m *Manager) Mount(raw any, duration time.Duration) *Session {
	slides := m.cache.Normalize(raw)

	if duration <= 0 {
		duration = m.opts.Duration
	}

	sched := m.opts.Scheduler
	if sched == nil {
		sched = viewer.NewTickerScheduler(m.opts.FrameInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	logger := m.logger.With("session", s.ID)

	var onActivate func(viewer.Activation)
	if m.opts.Prober != nil {
		onActivate = func(a viewer.Activation) {
			go m.probe(s, a, logger)
		}
	}

	s.viewer = viewer.New(slides, func() { m.onBack(s) }, viewer.Options{
		Duration:   duration,
		Scheduler:  sched,
		OnActivate: onActivate,
		Logger:     logger,
	})

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	s.viewer.Mount()

	logger.Info("session mounted", "slides", len(slides), "duration", s.viewer.Duration())
	return s
}

// probe loads the asset for an activation and reports the result.
func (m *Manager) probe(s *Session, a viewer.Activation, logger *slog.Logger) {
	err := m.opts.Prober.Probe(s.ctx, a.Slide.Source)

	if s.ctx.Err() != nil {
		return
	}

	if err != nil {
		logger.Warn("asset probe failed", "index", a.Index, "source", a.Slide.Source, "error", err)
		s.viewer.ReportError(a)
		return
	}
	s.viewer.ReportLoaded(a)
}

// onBack is the viewer's close callback: the session is unmounted but kept
// so clients can observe the closed state until it is reaped or deleted.
func (m *Manager) onBack(s *Session) {
	s.mu.Lock()
	s.closedAt = time.Now()
	s.mu.Unlock()

	s.viewer.Unmount()
	s.cancel()

	m.logger.Info("session closed", "session", s.ID)
}

// Duration returns the default per-slide duration of new sessions.
func (m *Manager) Duration() time.Duration {
	if m.opts.Duration <= 0 {
		return viewer.DefaultDuration
	}
	return m.opts.Duration
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Unmount tears down and forgets a session.
func (m *Manager) Unmount(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}

	s.viewer.Unmount()
	s.cancel()

	m.logger.Info("session unmounted", "session", id)
	return nil
}

// UnmountAll tears down every session.
func (m *Manager) UnmountAll() {
	for _, id := range m.IDs() {
		m.Unmount(id)
	}
}

// IDs returns the ids of all sessions, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reap removes closed sessions that closed at least ttl ago and returns how
// many were removed.
func (m *Manager) Reap(ttl time.Duration) int {
	now := time.Now()

	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		s.mu.Lock()
		closedAt := s.closedAt
		s.mu.Unlock()

		if !closedAt.IsZero() && now.Sub(closedAt) >= ttl {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	if len(expired) > 0 {
		m.logger.Debug("reaped closed sessions", "count", len(expired))
	}
	return len(expired)
}

// StartReaper periodically removes closed sessions until ctx is canceled.
func (m *Manager) StartReaper(ctx context.Context, interval, ttl time.Duration) {
	m.logger.Info("starting session reaper", "interval", interval, "ttl", ttl)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("stopping session reaper")
			return
		case <-ticker.C:
			m.Reap(ttl)
		}
	}
}

// GetStats returns current statistics about the sessions.
func (m *Manager) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	closed := 0
	for _, s := range m.sessions {
		if s.Closed() {
			closed++
		}
	}

	return map[string]interface{}{
		"sessions":        len(m.sessions),
		"closed_sessions": closed,
		"duration_ms":     m.opts.Duration.Milliseconds(),
		"probe_assets":    m.opts.Prober != nil,
	}
}
