package caldav

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
)

func decodeObject(t *testing.T, event *Event) Event {
	t.Helper()

	text, err := SerializeCalendar(EventToICS(event, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("SerializeCalendar: %v", err)
	}
	cal, err := ical.NewDecoder(strings.NewReader(text)).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, err := parseCalendarObject(&caldav.CalendarObject{Path: "/cal/" + event.UID + ".ics", Data: cal})
	if err != nil {
		t.Fatalf("parseCalendarObject: %v", err)
	}
	return got
}

func TestEventRoundTripText(t *testing.T) {
	start := time.Date(2024, 6, 6, 17, 30, 0, 0, time.UTC)
	event := &Event{
		UID:         "run-2024-06-06@rungroup",
		Summary:     "Harriers run; 5k, 8k",
		Description: "Managed by Running Group App\nRoute 1 (5k): Riverside, loop\nRoute 2 (8k): Hill Reps",
		Location:    "Town Centre, High St",
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
	}

	got := decodeObject(t, event)
	if got.UID != event.UID || got.Summary != event.Summary {
		t.Errorf("uid/summary = %q / %q", got.UID, got.Summary)
	}
	if got.Description != event.Description {
		t.Errorf("description = %q, want %q", got.Description, event.Description)
	}
	if got.Location != event.Location {
		t.Errorf("location = %q, want %q", got.Location, event.Location)
	}
	if !got.StartTime.Equal(start) || !got.EndTime.Equal(event.EndTime) || got.AllDay {
		t.Errorf("times = %v..%v all day %v", got.StartTime, got.EndTime, got.AllDay)
	}
	if got.Path != "/cal/run-2024-06-06@rungroup.ics" {
		t.Errorf("path = %q", got.Path)
	}
}

func TestEventRoundTripAllDay(t *testing.T) {
	day := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	got := decodeObject(t, &Event{
		UID:       "run-2024-12-25@rungroup",
		Summary:   "No run today",
		StartTime: day,
		EndTime:   day.AddDate(0, 0, 1),
		AllDay:    true,
	})
	if !got.AllDay || !got.StartTime.Equal(day) {
		t.Errorf("all day = %v start %v", got.AllDay, got.StartTime)
	}
	if got.Description != "" || got.Location != "" {
		t.Errorf("unexpected text %q / %q", got.Description, got.Location)
	}
}

func TestParseCalendarObjectErrors(t *testing.T) {
	if _, err := parseCalendarObject(&caldav.CalendarObject{Path: "/cal/x.ics"}); err == nil {
		t.Error("expected error for object without data")
	}

	cal := ical.NewCalendar()
	cal.Children = append(cal.Children, ical.NewEvent().Component)
	if _, err := parseCalendarObject(&caldav.CalendarObject{Path: "/cal/y.ics", Data: cal}); err == nil {
		t.Error("expected error for event without uid")
	}
}

func TestObjectPath(t *testing.T) {
	tests := []struct {
		calendar string
		want     string
	}{
		{"/caldav/v2/club/events/", "/caldav/v2/club/events/abc.ics"},
		{"/caldav/v2/club/events", "/caldav/v2/club/events/abc.ics"},
	}
	for _, tt := range tests {
		if got := objectPath(tt.calendar, "abc"); got != tt.want {
			t.Errorf("objectPath(%q) = %q, want %q", tt.calendar, got, tt.want)
		}
	}
}
