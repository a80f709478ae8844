package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// testDBPath returns a temporary path for a test database.
func testDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// openTestStore opens a store at a fresh temporary path.
func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	store := New(opts...)
	if err := store.OpenOrCreate(context.Background(), testDBPath(t)); err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func tableCount(t *testing.T, s *Store, name string) int {
	t.Helper()

	var n int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	if err != nil {
		t.Fatalf("query sqlite_master for %s: %v", name, err)
	}
	return n
}

func TestOpenOrCreateCreatesSchema(t *testing.T) {
	store := openTestStore(t)

	for _, table := range Tables {
		if got := tableCount(t, store, table); got != 1 {
			t.Errorf("table %s count = %d, want 1", table, got)
		}
	}
}

func TestOpenOrCreateCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "proj.db")

	store := New(WithLogger(zerolog.Nop()))
	defer store.Close()

	if err := store.OpenOrCreate(context.Background(), path); err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
	if store.Path() != path {
		t.Errorf("Path() = %q, want %q", store.Path(), path)
	}
}

func TestOpenOrCreateIdempotent(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t)

	store := New(WithLogger(zerolog.Nop()))
	defer store.Close()

	if err := store.OpenOrCreate(ctx, path); err != nil {
		t.Fatalf("first OpenOrCreate: %v", err)
	}
	if _, err := store.InsertTestSession(ctx, "first"); err != nil {
		t.Fatalf("InsertTestSession: %v", err)
	}
	if err := store.OpenOrCreate(ctx, path); err != nil {
		t.Fatalf("second OpenOrCreate: %v", err)
	}

	for _, table := range Tables {
		if got := tableCount(t, store, table); got != 1 {
			t.Errorf("table %s count = %d, want 1", table, got)
		}
	}

	n, err := store.TableCount(ctx, "sessions")
	if err != nil {
		t.Fatalf("TableCount: %v", err)
	}
	if n != 1 {
		t.Errorf("sessions = %d, want 1 (data must survive reopen)", n)
	}
}

func TestOpenOrCreateDirectoryFailure(t *testing.T) {
	// A regular file where the parent directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	store := New(WithLogger(zerolog.Nop()))
	err := store.OpenOrCreate(context.Background(), filepath.Join(blocker, "proj.db"))
	if !errors.Is(err, ErrFilesystem) {
		t.Fatalf("err = %v, want ErrFilesystem", err)
	}
	if store.IsOpen() {
		t.Error("store should stay closed after a failed open")
	}
}

func TestOpenOrCreateConnectionFailure(t *testing.T) {
	// A directory cannot be opened as a database file.
	dir := t.TempDir()

	store := New(WithLogger(zerolog.Nop()))
	err := store.OpenOrCreate(context.Background(), dir)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("err = %v, want ErrConnection", err)
	}
	if store.IsOpen() {
		t.Error("store should stay closed after a failed open")
	}
}

func TestEnsureSchemaStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	store := New(WithLogger(zerolog.Nop()))
	defer store.Close()

	if err := store.OpenOrCreate(ctx, testDBPath(t)); err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	if _, err := store.conn.Exec(`DROP TABLE rooms`); err != nil {
		t.Fatalf("drop rooms: %v", err)
	}
	if _, err := store.conn.Exec(`DROP TABLE speakers`); err != nil {
		t.Fatalf("drop speakers: %v", err)
	}
	// An index shares the table namespace, so CREATE TABLE rooms now fails.
	if _, err := store.conn.Exec(`CREATE INDEX rooms ON sessions(name)`); err != nil {
		t.Fatalf("create blocking index: %v", err)
	}

	err := store.EnsureSchema(ctx)
	if !errors.Is(err, ErrStatement) {
		t.Fatalf("err = %v, want ErrStatement", err)
	}

	var stmtErr *StatementError
	if !errors.As(err, &stmtErr) {
		t.Fatalf("err = %T, want *StatementError", err)
	}
	if got := compactSQL(stmtErr.SQL); !strings.HasPrefix(got, "CREATE TABLE IF NOT EXISTS rooms (") {
		t.Errorf("failing SQL = %q", got)
	}
	if got := tableCount(t, store, "speakers"); got != 0 {
		t.Errorf("speakers created after failure, count = %d", got)
	}
	if got := tableCount(t, store, "sessions"); got != 1 {
		t.Errorf("sessions count = %d, want 1", got)
	}
}

func TestJournalModeWAL(t *testing.T) {
	store := openTestStore(t)

	mode, err := store.JournalMode(context.Background())
	if err != nil {
		t.Fatalf("JournalMode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal mode = %q, want %q", mode, "wal")
	}
}

func TestInsertTestSession(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.FixedZone("CET", 3600))
	store := openTestStore(t, WithClock(func() time.Time { return fixed }))

	id, err := store.InsertTestSession(ctx, "smoke")
	if err != nil {
		t.Fatalf("InsertTestSession: %v", err)
	}
	if id <= 0 {
		t.Fatalf("id = %d, want > 0", id)
	}

	sess, err := store.Session(ctx, id)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if sess == nil {
		t.Fatal("expected session, got nil")
	}
	if sess.Name != "Test Session" {
		t.Errorf("name = %q, want %q", sess.Name, "Test Session")
	}
	if sess.Note != "smoke" {
		t.Errorf("note = %q, want %q", sess.Note, "smoke")
	}
	if sess.RoomID != nil {
		t.Errorf("room_id = %d, want NULL", *sess.RoomID)
	}
	if !sess.CreatedAt.Equal(fixed) {
		t.Errorf("created_at = %v, want %v", sess.CreatedAt, fixed)
	}

	var raw string
	if err := store.conn.QueryRow(`SELECT created_at FROM sessions WHERE id = ?`, id).Scan(&raw); err != nil {
		t.Fatalf("read created_at: %v", err)
	}
	if raw != "2025-03-04T04:06:07Z" {
		t.Errorf("stored created_at = %q, want UTC ISO-8601", raw)
	}
}

func TestInsertTestSessionDefaultNote(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id, err := store.InsertTestSession(ctx, "")
	if err != nil {
		t.Fatalf("InsertTestSession: %v", err)
	}
	sess, err := store.Session(ctx, id)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if sess.Note != "test session" {
		t.Errorf("note = %q, want %q", sess.Note, "test session")
	}
}

func TestInsertTestSessionNotOpen(t *testing.T) {
	store := New(WithLogger(zerolog.Nop()))

	id, err := store.InsertTestSession(context.Background(), "x")
	if id != -1 {
		t.Errorf("id = %d, want -1", id)
	}
	if !errors.Is(err, ErrNotOpen) {
		t.Errorf("err = %v, want ErrNotOpen", err)
	}
}

func TestInsertStatementFailure(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if _, err := store.conn.Exec(`DROP TABLE sessions`); err != nil {
		t.Fatalf("drop sessions: %v", err)
	}

	id, err := store.InsertTestSession(ctx, "x")
	if id != -1 {
		t.Errorf("id = %d, want -1", id)
	}
	if !errors.Is(err, ErrStatement) {
		t.Errorf("err = %v, want ErrStatement", err)
	}
}

func TestInsertRoomAlwaysInserts(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	first, err := store.InsertRoom(ctx, "Studio")
	if err != nil {
		t.Fatalf("InsertRoom: %v", err)
	}
	second, err := store.InsertRoom(ctx, "Studio")
	if err != nil {
		t.Fatalf("InsertRoom: %v", err)
	}
	if first == second {
		t.Errorf("room ids both %d, want distinct rows", first)
	}

	rooms, err := store.Rooms(ctx)
	if err != nil {
		t.Fatalf("Rooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("got %d rooms, want 2", len(rooms))
	}
	for _, r := range rooms {
		if r.Name != "Studio" {
			t.Errorf("room name = %q, want %q", r.Name, "Studio")
		}
		if r.Width != nil || r.Height != nil || r.Depth != nil {
			t.Errorf("room %d dimensions should be NULL", r.ID)
		}
	}
}

func TestSessionsOrdered(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	roomID, err := store.InsertRoom(ctx, "Living Room")
	if err != nil {
		t.Fatalf("InsertRoom: %v", err)
	}
	if _, err := store.InsertSession(ctx, NewSession{Name: "one", RoomID: roomID}); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}
	if _, err := store.InsertSession(ctx, NewSession{Name: "two"}); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}

	sessions, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].Name != "one" || sessions[1].Name != "two" {
		t.Errorf("order = %q, %q", sessions[0].Name, sessions[1].Name)
	}
	if sessions[0].RoomID == nil || *sessions[0].RoomID != roomID {
		t.Errorf("sessions[0].RoomID = %v, want %d", sessions[0].RoomID, roomID)
	}
	if sessions[1].RoomID != nil {
		t.Errorf("sessions[1].RoomID = %d, want NULL", *sessions[1].RoomID)
	}
}

func TestSessionMissing(t *testing.T) {
	store := openTestStore(t)

	sess, err := store.Session(context.Background(), 42)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if sess != nil {
		t.Errorf("expected nil, got session %d", sess.ID)
	}
}

func TestTableCountUnknownTable(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.TableCount(context.Background(), "sqlite_master; DROP TABLE sessions"); err == nil {
		t.Fatal("expected error for unknown table")
	}
}

func TestCloseRemovesRegistration(t *testing.T) {
	store := New(WithLogger(zerolog.Nop()))
	if err := store.OpenOrCreate(context.Background(), testDBPath(t)); err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	if !connections.has(store.Name()) {
		t.Fatalf("connection %s not registered", store.Name())
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if connections.has(store.Name()) {
		t.Errorf("connection %s still registered after Close", store.Name())
	}
	if store.IsOpen() {
		t.Error("store still open after Close")
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestStoresHaveDistinctNames(t *testing.T) {
	a := openTestStore(t)
	b := openTestStore(t)

	if a.Name() == b.Name() {
		t.Fatalf("both stores named %s", a.Name())
	}

	names := OpenConnections()
	found := 0
	for _, n := range names {
		if n == a.Name() || n == b.Name() {
			found++
		}
	}
	if found != 2 {
		t.Errorf("found %d of 2 connections in %v", found, names)
	}
}

func TestNilStore(t *testing.T) {
	ctx := context.Background()
	var store *Store

	if store.IsOpen() {
		t.Error("nil store reports open")
	}
	if err := store.OpenOrCreate(ctx, testDBPath(t)); !errors.Is(err, ErrConnection) {
		t.Errorf("OpenOrCreate err = %v, want ErrConnection", err)
	}

	id, err := store.InsertRoom(ctx, "Den")
	if id != -1 || !errors.Is(err, ErrNotOpen) {
		t.Errorf("InsertRoom = %d, %v, want -1, ErrNotOpen", id, err)
	}
	id, err = store.InsertTestSession(ctx, "")
	if id != -1 || !errors.Is(err, ErrNotOpen) {
		t.Errorf("InsertTestSession = %d, %v, want -1, ErrNotOpen", id, err)
	}
	if _, err := store.Sessions(ctx); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Sessions err = %v, want ErrNotOpen", err)
	}
	if err := store.EnsureSchema(ctx); !errors.Is(err, ErrNotOpen) {
		t.Errorf("EnsureSchema err = %v, want ErrNotOpen", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestSpeakers(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if _, err := store.conn.Exec(`INSERT INTO speakers(name, position_x, position_y) VALUES('Left', 1.5, -0.5)`); err != nil {
		t.Fatalf("insert speaker: %v", err)
	}
	if _, err := store.conn.Exec(`INSERT INTO speakers(name) VALUES('Sub')`); err != nil {
		t.Fatalf("insert speaker: %v", err)
	}

	speakers, err := store.Speakers(ctx)
	if err != nil {
		t.Fatalf("Speakers: %v", err)
	}
	if len(speakers) != 2 {
		t.Fatalf("got %d speakers, want 2", len(speakers))
	}

	left := speakers[0]
	if left.Name != "Left" {
		t.Errorf("name = %q, want Left", left.Name)
	}
	if left.PositionX == nil || *left.PositionX != 1.5 {
		t.Errorf("PositionX = %v, want 1.5", left.PositionX)
	}
	if left.PositionY == nil || *left.PositionY != -0.5 {
		t.Errorf("PositionY = %v, want -0.5", left.PositionY)
	}
	if left.PositionZ != nil {
		t.Errorf("PositionZ = %v, want NULL", *left.PositionZ)
	}
	if sub := speakers[1]; sub.PositionX != nil || sub.PositionY != nil || sub.PositionZ != nil {
		t.Errorf("speaker %q positions should be NULL", sub.Name)
	}
}

func TestMeasurementsAndResults(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	sessionID, err := store.InsertSession(ctx, NewSession{Name: "Calib 2 spk"})
	if err != nil {
		t.Fatalf("InsertSession: %v", err)
	}
	otherID, err := store.InsertSession(ctx, NewSession{Name: "other"})
	if err != nil {
		t.Fatalf("InsertSession: %v", err)
	}

	inserts := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO measurements(session_id, speaker_id, path, taken_at, note) VALUES(?, ?, ?, ?, ?)`,
			[]any{sessionID, 1, "/rec/left.wav", "2025-03-04T04:06:07Z", "left"}},
		{`INSERT INTO measurements(session_id, taken_at) VALUES(?, ?)`,
			[]any{sessionID, "2025-03-04T04:07:00Z"}},
		{`INSERT INTO measurements(session_id, taken_at) VALUES(?, ?)`,
			[]any{otherID, "2025-03-04T04:08:00Z"}},
	}
	for _, in := range inserts {
		if _, err := store.conn.Exec(in.query, in.args...); err != nil {
			t.Fatalf("insert measurement: %v", err)
		}
	}

	measurements, err := store.Measurements(ctx, sessionID)
	if err != nil {
		t.Fatalf("Measurements: %v", err)
	}
	if len(measurements) != 2 {
		t.Fatalf("got %d measurements, want 2", len(measurements))
	}

	first := measurements[0]
	if first.SessionID != sessionID {
		t.Errorf("SessionID = %d, want %d", first.SessionID, sessionID)
	}
	if first.SpeakerID == nil || *first.SpeakerID != 1 {
		t.Errorf("SpeakerID = %v, want 1", first.SpeakerID)
	}
	if first.Path != "/rec/left.wav" || first.Note != "left" {
		t.Errorf("path, note = %q, %q", first.Path, first.Note)
	}
	want := time.Date(2025, 3, 4, 4, 6, 7, 0, time.UTC)
	if !first.TakenAt.Equal(want) {
		t.Errorf("TakenAt = %v, want %v", first.TakenAt, want)
	}
	if measurements[1].SpeakerID != nil {
		t.Errorf("second SpeakerID = %d, want NULL", *measurements[1].SpeakerID)
	}

	if _, err := store.conn.Exec(
		`INSERT INTO analysis_results(measurement_id, key, value, created_at) VALUES(?, 'eq', 'Boost 100Hz +3dB', '2025-03-04T05:00:00Z')`,
		first.ID); err != nil {
		t.Fatalf("insert analysis result: %v", err)
	}

	results, err := store.AnalysisResults(ctx, first.ID)
	if err != nil {
		t.Fatalf("AnalysisResults: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if r := results[0]; r.MeasurementID != first.ID || r.Key != "eq" || r.Value != "Boost 100Hz +3dB" {
		t.Errorf("result = %+v", r)
	}

	none, err := store.AnalysisResults(ctx, measurements[1].ID)
	if err != nil {
		t.Fatalf("AnalysisResults: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("got %d results for unanalysed measurement, want 0", len(none))
	}
}
