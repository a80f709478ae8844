// Package db provides the per-project SQLite store for osm calibration data.
package db

import "time"

// NoRoom is the room id recorded when a session has no room row.
const NoRoom int64 = 0

// Session represents one calibration run.
type Session struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	RoomID    *int64
	Note      string
}

// NewSession holds the caller-supplied columns of a session row.
// A zero RoomID is stored as NULL.
type NewSession struct {
	Name      string
	CreatedAt time.Time
	RoomID    int64
	Note      string
}

// Room represents a listening room. Dimensions are reserved for room geometry.
type Room struct {
	ID     int64
	Name   string
	Width  *float64
	Height *float64
	Depth  *float64
}

// Speaker represents a loudspeaker position in a room.
type Speaker struct {
	ID        int64
	Name      string
	PositionX *float64
	PositionY *float64
	PositionZ *float64
}

// Measurement represents a recorded capture for a session.
type Measurement struct {
	ID        int64
	SessionID int64
	SpeakerID *int64
	Path      string
	TakenAt   time.Time
	Note      string
}

// AnalysisResult is a key/value pair derived from a measurement.
type AnalysisResult struct {
	ID            int64
	MeasurementID int64
	Key           string
	Value         string
	CreatedAt     time.Time
}
