package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const testSessionName = "Test Session"

// Store owns one SQLite connection for a project database. The connection is
// registered under a unique name for the lifetime of the store.
type Store struct {
	name string
	path string
	conn *sql.DB
	log  zerolog.Logger
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for SQL and filesystem failures.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock overrides the time source for created_at columns.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a closed Store with a fresh connection name.
func New(opts ...Option) *Store {
	s := &Store{
		name: newConnectionName(),
		log:  log.Logger,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("conn", s.name).Logger()
	return s
}

// Name returns the registry name of the store's connection.
func (s *Store) Name() string { return s.name }

// Path returns the path passed to the last OpenOrCreate call.
func (s *Store) Path() string { return s.path }

// IsOpen reports whether the store holds a live connection. A nil store is
// never open.
func (s *Store) IsOpen() bool { return s != nil && s.conn != nil }

// OpenOrCreate opens the database at path, creating the file and its parent
// directory when missing, and ensures the schema exists. An already open
// store is closed first.
func (s *Store) OpenOrCreate(ctx context.Context, path string) error {
	if s == nil {
		return fmt.Errorf("%w: nil store", ErrConnection)
	}
	if s.conn != nil {
		if err := s.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close previous connection")
		}
	}
	s.path = path

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Error().Err(err).Str("dir", dir).Msg("failed to create database directory")
		return fmt.Errorf("%w: create directory %s: %w", ErrFilesystem, dir, err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("open failed")
		return fmt.Errorf("%w: open database: %w", ErrConnection, err)
	}

	// One connection per store; this also keeps :memory: databases alive.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		s.log.Error().Err(err).Str("path", path).Msg("open failed")
		return fmt.Errorf("%w: ping database: %w", ErrConnection, err)
	}

	if err := connections.add(s.name, conn); err != nil {
		_ = conn.Close()
		s.log.Error().Err(err).Msg("register connection")
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	s.conn = conn

	if err := s.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	s.log.Debug().Str("path", path).Msg("database ready")
	return nil
}

// Close closes the connection and removes it from the registry. Closing a
// closed store is a no-op.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	conn := connections.remove(s.name)
	if conn == nil {
		conn = s.conn
	}
	s.conn = nil
	if conn == nil {
		return nil
	}

	if err := conn.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// InsertTestSession writes a "Test Session" row to verify the database is
// usable and returns its id, or -1 on failure.
func (s *Store) InsertTestSession(ctx context.Context, note string) (int64, error) {
	if note == "" {
		note = "test session"
	}
	return s.InsertSession(ctx, NewSession{
		Name: testSessionName,
		Note: note,
	})
}

// InsertRoom always inserts a new room row, even for a name already in use.
func (s *Store) InsertRoom(ctx context.Context, name string) (int64, error) {
	return s.insert(ctx, `INSERT INTO rooms(name) VALUES(?)`, name)
}

// InsertSession inserts a session row and returns its id, or -1 on failure.
// A zero CreatedAt is replaced by the current time.
func (s *Store) InsertSession(ctx context.Context, ns NewSession) (int64, error) {
	if !s.IsOpen() {
		return -1, ErrNotOpen
	}

	createdAt := ns.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	var roomID sql.NullInt64
	if ns.RoomID != NoRoom {
		roomID = sql.NullInt64{Int64: ns.RoomID, Valid: true}
	}

	return s.insert(ctx,
		`INSERT INTO sessions(name, created_at, room_id, note) VALUES(?, ?, ?, ?)`,
		ns.Name, formatTime(createdAt), roomID, ns.Note)
}

// Session returns the session with the given id, or nil if none exists.
func (s *Store) Session(ctx context.Context, id int64) (*Session, error) {
	if !s.IsOpen() {
		return nil, ErrNotOpen
	}

	row := s.conn.QueryRowContext(ctx, `
		SELECT id, name, created_at, room_id, note
		FROM sessions
		WHERE id = ?
	`, id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return sess, nil
}

// Sessions returns all sessions, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	if !s.IsOpen() {
		return nil, ErrNotOpen
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, name, created_at, room_id, note
		FROM sessions
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// Rooms returns all rooms, oldest first.
func (s *Store) Rooms(ctx context.Context) ([]Room, error) {
	if !s.IsOpen() {
		return nil, ErrNotOpen
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, name, width, height, depth
		FROM rooms
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var r Room
		var name sql.NullString
		var width, height, depth sql.NullFloat64
		if err := rows.Scan(&r.ID, &name, &width, &height, &depth); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		r.Name = name.String
		r.Width = floatPtr(width)
		r.Height = floatPtr(height)
		r.Depth = floatPtr(depth)
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// Speakers returns all speakers, oldest first.
func (s *Store) Speakers(ctx context.Context) ([]Speaker, error) {
	if !s.IsOpen() {
		return nil, ErrNotOpen
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, name, position_x, position_y, position_z
		FROM speakers
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query speakers: %w", err)
	}
	defer rows.Close()

	var speakers []Speaker
	for rows.Next() {
		var sp Speaker
		var name sql.NullString
		var x, y, z sql.NullFloat64
		if err := rows.Scan(&sp.ID, &name, &x, &y, &z); err != nil {
			return nil, fmt.Errorf("scan speaker: %w", err)
		}
		sp.Name = name.String
		sp.PositionX = floatPtr(x)
		sp.PositionY = floatPtr(y)
		sp.PositionZ = floatPtr(z)
		speakers = append(speakers, sp)
	}
	return speakers, rows.Err()
}

// Measurements returns the captures recorded for a session, oldest first.
func (s *Store) Measurements(ctx context.Context, sessionID int64) ([]Measurement, error) {
	if !s.IsOpen() {
		return nil, ErrNotOpen
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, session_id, speaker_id, path, taken_at, note
		FROM measurements
		WHERE session_id = ?
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", err)
	}
	defer rows.Close()

	var measurements []Measurement
	for rows.Next() {
		var m Measurement
		var speakerID sql.NullInt64
		var path, note sql.NullString
		var takenAt string
		if err := rows.Scan(&m.ID, &m.SessionID, &speakerID, &path, &takenAt, &note); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		if speakerID.Valid {
			id := speakerID.Int64
			m.SpeakerID = &id
		}
		m.Path = path.String
		m.TakenAt = parseTime(takenAt)
		m.Note = note.String
		measurements = append(measurements, m)
	}
	return measurements, rows.Err()
}

// AnalysisResults returns the results derived from a measurement, oldest first.
func (s *Store) AnalysisResults(ctx context.Context, measurementID int64) ([]AnalysisResult, error) {
	if !s.IsOpen() {
		return nil, ErrNotOpen
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, measurement_id, key, value, created_at
		FROM analysis_results
		WHERE measurement_id = ?
		ORDER BY id ASC
	`, measurementID)
	if err != nil {
		return nil, fmt.Errorf("query analysis results: %w", err)
	}
	defer rows.Close()

	var results []AnalysisResult
	for rows.Next() {
		var r AnalysisResult
		var value sql.NullString
		var createdAt string
		if err := rows.Scan(&r.ID, &r.MeasurementID, &r.Key, &value, &createdAt); err != nil {
			return nil, fmt.Errorf("scan analysis result: %w", err)
		}
		r.Value = value.String
		r.CreatedAt = parseTime(createdAt)
		results = append(results, r)
	}
	return results, rows.Err()
}

// TableCount returns the number of rows in one of the core tables.
func (s *Store) TableCount(ctx context.Context, table string) (int, error) {
	if !s.IsOpen() {
		return 0, ErrNotOpen
	}
	if !isKnownTable(table) {
		return 0, fmt.Errorf("unknown table %q", table)
	}

	var n int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// JournalMode returns the active SQLite journal mode.
func (s *Store) JournalMode(ctx context.Context) (string, error) {
	if !s.IsOpen() {
		return "", ErrNotOpen
	}

	var mode string
	if err := s.conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		return "", fmt.Errorf("query journal mode: %w", err)
	}
	return mode, nil
}

// exec runs a statement, logging the driver error and SQL text on failure.
func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	if !s.IsOpen() {
		return ErrNotOpen
	}
	if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
		return s.statementError(query, err)
	}
	return nil
}

// insert runs an INSERT and returns the new row id, or -1 on failure.
func (s *Store) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if !s.IsOpen() {
		return -1, ErrNotOpen
	}

	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return -1, s.statementError(query, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return -1, s.statementError(query, err)
	}
	return id, nil
}

func (s *Store) statementError(query string, err error) error {
	s.log.Error().Err(err).Str("sql", compactSQL(query)).Msg("sql error")
	return &StatementError{SQL: query, Err: err}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var createdAt string
	var roomID sql.NullInt64
	var note sql.NullString

	if err := row.Scan(&sess.ID, &sess.Name, &createdAt, &roomID, &note); err != nil {
		return nil, err
	}

	sess.CreatedAt = parseTime(createdAt)
	if roomID.Valid {
		id := roomID.Int64
		sess.RoomID = &id
	}
	sess.Note = note.String
	return &sess, nil
}

// formatTime renders t as a UTC ISO-8601 timestamp.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
