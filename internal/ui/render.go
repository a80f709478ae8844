// Package ui renders osm command output with lipgloss styles.
package ui

import (
	"fmt"
	"strings"

	"github.com/huckl3b3rry/osm/internal/db"
)

// KeyValue renders a "label: value" line.
func KeyValue(label, value string) string {
	return LabelStyle.Render(label+":") + " " + ValueStyle.Render(value)
}

// SessionStatus renders the active-session indicator.
func SessionStatus(id int64, active bool) string {
	if !active {
		return IdleDotStyle.Render("○ IDLE")
	}
	return ActiveDotStyle.Render("● ACTIVE") + " " + IDStyle.Render(fmt.Sprintf("#%d", id))
}

// SessionLine renders one stored session.
func SessionLine(s db.Session) string {
	room := DimStyle.Render("no room")
	if s.RoomID != nil {
		room = DimStyle.Render(fmt.Sprintf("room %d", *s.RoomID))
	}

	created := "-"
	if !s.CreatedAt.IsZero() {
		created = s.CreatedAt.Format("2006-01-02 15:04:05")
	}

	return strings.Join([]string{
		IDStyle.Render(fmt.Sprintf("%4d", s.ID)),
		ValueStyle.Render(s.Name),
		DimStyle.Render(created),
		room,
		s.Note,
	}, "  ")
}

// Error renders an error line.
func Error(err error) string {
	return ErrorStyle.Render("Error: ") + err.Error()
}
