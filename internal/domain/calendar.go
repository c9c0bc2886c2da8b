package domain

import (
	"strings"
	"time"
)

// ManagedUIDSuffix marks calendar events created by this app
const ManagedUIDSuffix = "@rungroup"

// CalendarEvent is the calendar representation of one ScheduleEntry
type CalendarEvent struct {
	UID         string
	Title       string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
}

// EventUID returns the deterministic uid for a run date
func EventUID(date time.Time) string {
	return "run-" + date.Format("2006-01-02") + ManagedUIDSuffix
}

// IsManagedUID reports whether a uid was produced by EventUID
func IsManagedUID(uid string) bool {
	return strings.HasPrefix(uid, "run-") && strings.HasSuffix(uid, ManagedUIDSuffix)
}

// DateFromUID parses the run date back out of a managed uid
func DateFromUID(uid string, loc *time.Location) (time.Time, bool) {
	if !IsManagedUID(uid) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(uid, "run-"), ManagedUIDSuffix)
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SyncedEvent is the local ledger row for an event pushed to the calendar
type SyncedEvent struct {
	ID        int64
	RunDate   string // YYYY-MM-DD
	CalDAVUID string
	Title     string
	SyncedAt  time.Time
}

// FormatTime returns the event time range for display
func (e *CalendarEvent) FormatTime() string {
	if e.EndTime.IsZero() {
		return e.StartTime.Format("15:04")
	}
	return e.StartTime.Format("15:04") + "-" + e.EndTime.Format("15:04")
}
