// Package session sequences the calibration workflow: open a project store,
// start and stop sessions, and hold the pending measurement queue.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/huckl3b3rry/osm/internal/db"
)

// NoSession is the current session id while no session is active.
const NoSession int64 = -1

// ErrNoBackend is returned when the manager has no store to write to.
var ErrNoBackend = errors.New("no session backend")

// Backend is the narrow slice of the project store the manager writes through.
type Backend interface {
	OpenOrCreate(ctx context.Context, path string) error
	InsertRoom(ctx context.Context, name string) (int64, error)
	InsertSession(ctx context.Context, s db.NewSession) (int64, error)
}

// PathResolver maps a project name to its database path.
type PathResolver interface {
	ProjectDBPath(project string) (string, error)
}

// MeasurementTask describes one capture waiting to be taken.
type MeasurementTask struct {
	SpeakerID int
	Note      string
}

type subscriber struct {
	id uint64
	fn func(Event)
}

// Manager is the façade over a project store. Its zero value is not usable;
// construct one with NewManager.
type Manager struct {
	backend  Backend
	resolver PathResolver
	log      zerolog.Logger
	now      func() time.Time

	mu          sync.Mutex
	current     int64
	queue       []MeasurementTask
	subscribers []subscriber
	nextSubID   uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithResolver sets how project names map to database paths.
func WithResolver(r PathResolver) Option {
	return func(m *Manager) { m.resolver = r }
}

// WithLogger sets the manager's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithClock overrides the time source for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns an idle manager writing through backend. A nil
// *db.Store is accepted; every write through it fails with db.ErrNotOpen.
func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend:  backend,
		resolver: db.NewLocator(db.DefaultAppName, ""),
		log:      log.Logger,
		now:      time.Now,
		current:  NoSession,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitProject resolves the project's database path and opens it. No session
// state changes.
func (m *Manager) InitProject(ctx context.Context, name string) error {
	path, err := m.resolver.ProjectDBPath(name)
	if err == nil && path == "" {
		err = db.ErrNoWritableLocation
	}
	if err != nil {
		m.log.Error().Err(err).Str("project", name).Msg("no writable path for DB")
		return fmt.Errorf("resolve project %q: %w", name, err)
	}

	if m.backend == nil {
		return ErrNoBackend
	}
	if err := m.backend.OpenOrCreate(ctx, path); err != nil {
		return fmt.Errorf("open project %q: %w", name, err)
	}

	m.log.Info().Str("project", name).Str("path", path).Msg("project ready")
	return nil
}

// StartSession records a new room and a session for it, makes the session
// current and notifies subscribers. It returns NoSession on failure, in which
// case the current session is left unchanged.
//
// A failed room insert is logged and the session is still stored. Its
// room_id is NULL rather than 0, so Session.RoomID is nil and never points at
// a room that does not exist.
func (m *Manager) StartSession(ctx context.Context, roomName string, speakerCount int) (int64, error) {
	if m.backend == nil {
		m.log.Error().Msg("start session without a backend")
		return NoSession, ErrNoBackend
	}

	m.mu.Lock()

	roomID, err := m.backend.InsertRoom(ctx, roomName)
	if err != nil {
		m.log.Warn().Err(err).Str("room", roomName).Msg("room insert failed")
		roomID = db.NoRoom
	}

	id, err := m.backend.InsertSession(ctx, db.NewSession{
		Name:      fmt.Sprintf("Calib %d spk", speakerCount),
		CreatedAt: m.now().UTC(),
		RoomID:    roomID,
		Note:      fmt.Sprintf("Room:%s Speakers:%d", roomName, speakerCount),
	})
	if err != nil {
		m.mu.Unlock()
		m.log.Error().Err(err).Str("room", roomName).Msg("session insert failed")
		return NoSession, fmt.Errorf("insert session: %w", err)
	}

	m.current = id
	subs := m.subscribersLocked()
	m.mu.Unlock()

	m.log.Info().Int64("session", id).Int64("room", roomID).Int("speakers", speakerCount).Msg("session started")
	notify(subs, Event{Kind: SessionStarted, SessionID: id})
	return id, nil
}

// StopSession clears the current session and notifies subscribers, whether
// or not a session was active.
func (m *Manager) StopSession() {
	m.mu.Lock()
	prev := m.current
	m.current = NoSession
	subs := m.subscribersLocked()
	m.mu.Unlock()

	m.log.Info().Int64("session", prev).Msg("session stopped")
	notify(subs, Event{Kind: SessionStopped, SessionID: NoSession})
}

// CurrentSessionID returns the active session id or NoSession.
func (m *Manager) CurrentSessionID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// QueueMeasurements replaces the pending queue with tasks.
func (m *Manager) QueueMeasurements(tasks []MeasurementTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append([]MeasurementTask(nil), tasks...)
}

// PendingMeasurements returns a copy of the pending queue.
func (m *Manager) PendingMeasurements() []MeasurementTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MeasurementTask(nil), m.queue...)
}

// Subscribe registers fn for lifecycle events. Events are delivered on the
// caller's goroutine after the state change. The returned func unsubscribes.
func (m *Manager) Subscribe(fn func(Event)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSubID++
	id := m.nextSubID
	m.subscribers = append(m.subscribers, subscriber{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subscribers {
			if s.id == id {
				m.subscribers = append(m.subscribers[:i:i], m.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (m *Manager) subscribersLocked() []subscriber {
	return append([]subscriber(nil), m.subscribers...)
}

func notify(subs []subscriber, ev Event) {
	for _, s := range subs {
		s.fn(ev)
	}
}
