package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/tazhate/rungroup/internal/clients/caldav"
	"github.com/tazhate/rungroup/internal/domain"
	"github.com/tazhate/rungroup/internal/storage"
)

// EventStore is the calendar server the schedule is pushed to
type EventStore interface {
	DiscoverCalendars(ctx context.Context) ([]caldav.Calendar, error)
	GetEvents(ctx context.Context, calendarPath string, from, to time.Time) ([]caldav.Event, error)
	PutEvent(ctx context.Context, calendarPath string, event *caldav.Event) error
	DeleteEvent(ctx context.Context, calendarPath, eventUID string) error
}

// EventStoreProvider returns an authorized EventStore for one operation
type EventStoreProvider func(ctx context.Context) (EventStore, error)

// StaticEventStore always hands out the same store
func StaticEventStore(store EventStore) EventStoreProvider {
	return func(context.Context) (EventStore, error) { return store, nil }
}

// GoogleEventStore builds a CalDAV client on the stored Google token
func GoogleEventStore(baseURL string, auth HTTPClientSource) EventStoreProvider {
	return func(ctx context.Context) (EventStore, error) {
		hc, err := auth.HTTPClient(ctx, domain.ProviderGoogle)
		if err != nil {
			return nil, err
		}
		return caldav.NewClient(baseURL, hc), nil
	}
}

// CalendarService pushes the schedule to the calendar and renders the feed
type CalendarService struct {
	storage *storage.Storage
	stores  EventStoreProvider
	now     func() time.Time
}

// NewCalendarService creates a new calendar service
func NewCalendarService(s *storage.Storage, stores EventStoreProvider) *CalendarService {
	return &CalendarService{
		storage: s,
		stores:  stores,
		now:     time.Now,
	}
}

// Action is what sync did (or would do) for one date
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
	ActionDeleted   Action = "deleted"
	ActionSkipped   Action = "skipped"
	ActionFailed    Action = "failed"
)

// EntryResult is the outcome for one run date
type EntryResult struct {
	Date   string
	UID    string
	Title  string
	Action Action
	Orphan bool
	Err    *domain.SyncError
}

// SyncResult contains sync operation results
type SyncResult struct {
	Added     int
	Updated   int
	Unchanged int
	Deleted   int
	Skipped   int
	DryRun    bool
	Entries   []EntryResult
}

// Errors returns the per-entry failures
func (r *SyncResult) Errors() []*domain.SyncError {
	var errs []*domain.SyncError
	for _, e := range r.Entries {
		if e.Err != nil {
			errs = append(errs, e.Err)
		}
	}
	return errs
}

func (r *SyncResult) record(e EntryResult) {
	switch e.Action {
	case ActionCreated:
		r.Added++
	case ActionUpdated:
		r.Updated++
	case ActionUnchanged:
		r.Unchanged++
	case ActionDeleted:
		r.Deleted++
	case ActionSkipped:
		r.Skipped++
	}
	r.Entries = append(r.Entries, e)
}

// IsConfigured reports whether a calendar has been chosen
func (s *CalendarService) IsConfigured(cfg *domain.GroupConfig) bool {
	return cfg.Integrations.Calendar && cfg.Calendar.CalendarPath != ""
}

// DiscoverCalendars lists the calendars on the connected account
func (s *CalendarService) DiscoverCalendars(ctx context.Context) ([]caldav.Calendar, error) {
	store, err := s.stores(ctx)
	if err != nil {
		return nil, &domain.SyncError{Op: "authorize", Err: err}
	}
	cals, err := store.DiscoverCalendars(ctx)
	if err != nil {
		return nil, &domain.SyncError{Op: "discover", Err: err}
	}
	return cals, nil
}

// BuildEvent converts a schedule entry into its calendar event
func BuildEvent(entry *domain.ScheduleEntry, cfg *domain.GroupConfig) caldav.Event {
	loc := cfg.Location()
	hour, minute := 19, 0
	if t, err := time.Parse("15:04", strings.TrimSpace(entry.StartTime)); err == nil {
		hour, minute = t.Hour(), t.Minute()
	}
	start := time.Date(entry.Date.Year(), entry.Date.Month(), entry.Date.Day(), hour, minute, 0, 0, loc)

	title := cfg.Calendar.CalendarName
	if title == "" {
		title = cfg.Group.Name
	}

	return caldav.Event{
		UID:         domain.EventUID(entry.Date),
		Summary:     title,
		Description: eventDescription(entry, cfg),
		Location:    entry.MeetingPoint,
		StartTime:   start,
		EndTime:     start.Add(time.Duration(cfg.Calendar.EventDurationMinutes) * time.Minute),
	}
}

func eventDescription(entry *domain.ScheduleEntry, cfg *domain.GroupConfig) string {
	lines := []string{cfg.Calendar.DescriptionMarker}
	for i, r := range entry.Routes {
		label := r.Label()
		lines = append(lines, fmt.Sprintf("Route %d (%s): %s", i+1, label, r.Name))
		if r.URL != "" {
			lines = append(lines, fmt.Sprintf("Route %d link: %s", i+1, r.URL))
		}
	}
	if entry.MeetingPoint != "" {
		lines = append(lines, "Meeting: "+entry.MeetingPoint)
	}
	if entry.Notes != "" {
		lines = append(lines, entry.Notes)
	}
	return strings.Join(lines, "\n")
}

// isManaged reports whether an event on the calendar belongs to this app
func isManaged(e *caldav.Event, marker string) bool {
	if domain.IsManagedUID(e.UID) {
		return true
	}
	return marker != "" && strings.Contains(e.Description, marker)
}

// managedDate returns the run date an existing managed event stands for
func managedDate(e *caldav.Event, loc *time.Location) string {
	if d, ok := domain.DateFromUID(e.UID, loc); ok {
		return d.Format("2006-01-02")
	}
	return e.StartTime.In(loc).Format("2006-01-02")
}

// Sync upserts one event per entry keyed by date, deletes events for
// cancelled runs and removes managed events whose date left the schedule.
// A disabled calendar integration is treated as not configured.
// Failures for single dates are collected in the result; listing or
// authorization failures abort the run with a *domain.SyncError.
func (s *CalendarService) Sync(ctx context.Context, cfg *domain.GroupConfig, entries []domain.ScheduleEntry, dryRun bool) (*SyncResult, error) {
	result := &SyncResult{DryRun: dryRun}

	if !s.IsConfigured(cfg) {
		return nil, &domain.SyncError{Op: "configure", Err: domain.ErrNotConfigured}
	}
	if len(entries) == 0 {
		return result, nil
	}

	store, err := s.stores(ctx)
	if err != nil {
		return nil, &domain.SyncError{Op: "authorize", Err: err}
	}

	loc := cfg.Location()
	calPath := cfg.Calendar.CalendarPath

	// Later rows win when the sheet repeats a date
	byDate := make(map[string]domain.ScheduleEntry, len(entries))
	for _, e := range entries {
		byDate[e.DateKey()] = e
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	first := byDate[dates[0]].Date
	last := byDate[dates[len(dates)-1]].Date
	// Widen to previously pushed dates so rows deleted from the sheet are found
	if s.storage != nil {
		if ledger, err := s.storage.ListSyncedEvents(); err == nil {
			for _, e := range ledger {
				d, err := time.ParseInLocation("2006-01-02", e.RunDate, loc)
				if err != nil {
					continue
				}
				if d.Before(first) {
					first = d
				}
				if d.After(last) {
					last = d
				}
			}
		} else {
			log.Printf("Failed to read sync ledger: %v", err)
		}
	}
	from := first.AddDate(0, 0, -1)
	to := last.AddDate(0, 0, 2)

	existing, err := store.GetEvents(ctx, calPath, from, to)
	if err != nil {
		return nil, &domain.SyncError{Op: "list events", Err: err}
	}

	current := make(map[string]*caldav.Event)
	for i := range existing {
		e := &existing[i]
		if !isManaged(e, cfg.Calendar.DescriptionMarker) {
			continue
		}
		current[managedDate(e, loc)] = e
	}

	for _, key := range dates {
		entry := byDate[key]
		have := current[key]
		delete(current, key)

		if entry.IsCancelled {
			if have == nil {
				result.record(EntryResult{Date: key, Action: ActionSkipped})
				continue
			}
			result.record(s.remove(ctx, store, calPath, key, have, false, dryRun))
			continue
		}

		want := BuildEvent(&entry, cfg)
		res := EntryResult{Date: key, UID: want.UID, Title: want.Summary}

		switch {
		case have != nil && have.UID == want.UID && !eventChanged(have, &want):
			res.Action = ActionUnchanged
			result.record(res)
			s.recordLedger(key, want.UID, want.Summary, dryRun)
			continue
		case have != nil:
			res.Action = ActionUpdated
		default:
			res.Action = ActionCreated
		}

		if !dryRun {
			// An event managed by marker under a foreign uid is replaced by ours
			if have != nil && have.UID != want.UID {
				if err := store.DeleteEvent(ctx, calPath, have.UID); err != nil {
					log.Printf("Failed to remove legacy event %s: %v", have.UID, err)
				}
			}
			if err := store.PutEvent(ctx, calPath, &want); err != nil {
				res.Action = ActionFailed
				res.Err = &domain.SyncError{Date: key, Op: "put event", Err: err}
				result.record(res)
				continue
			}
		}
		s.recordLedger(key, want.UID, want.Summary, dryRun)
		result.record(res)
	}

	// Whatever is left is managed but no longer in the schedule
	orphans := make([]string, 0, len(current))
	for key := range current {
		orphans = append(orphans, key)
	}
	sort.Strings(orphans)
	for _, key := range orphans {
		result.record(s.remove(ctx, store, calPath, key, current[key], true, dryRun))
	}

	log.Printf("Calendar sync (dry run: %v): %d added, %d updated, %d unchanged, %d deleted, %d skipped, %d failed",
		dryRun, result.Added, result.Updated, result.Unchanged, result.Deleted, result.Skipped, len(result.Errors()))

	return result, nil
}

func (s *CalendarService) remove(ctx context.Context, store EventStore, calPath, key string, have *caldav.Event, orphan, dryRun bool) EntryResult {
	res := EntryResult{Date: key, UID: have.UID, Title: have.Summary, Action: ActionDeleted, Orphan: orphan}
	if dryRun {
		return res
	}
	if err := store.DeleteEvent(ctx, calPath, have.UID); err != nil {
		res.Action = ActionFailed
		res.Err = &domain.SyncError{Date: key, Op: "delete event", Err: err}
		return res
	}
	if s.storage != nil {
		if err := s.storage.DeleteSyncedEvent(key); err != nil {
			log.Printf("Failed to update sync ledger for %s: %v", key, err)
		}
	}
	return res
}

func (s *CalendarService) recordLedger(key, uid, title string, dryRun bool) {
	if dryRun || s.storage == nil {
		return
	}
	err := s.storage.UpsertSyncedEvent(&domain.SyncedEvent{
		RunDate:   key,
		CalDAVUID: uid,
		Title:     title,
		SyncedAt:  s.now(),
	})
	if err != nil {
		log.Printf("Failed to update sync ledger for %s: %v", key, err)
	}
}

// eventChanged checks if the calendar copy differs from the wanted event
func eventChanged(have, want *caldav.Event) bool {
	if have.Summary != want.Summary {
		return true
	}
	if have.Description != want.Description {
		return true
	}
	if have.Location != want.Location {
		return true
	}
	if !have.StartTime.Equal(want.StartTime) {
		return true
	}
	if !have.EndTime.Equal(want.EndTime) {
		return true
	}
	return false
}

// SyncedEvents returns the local ledger of pushed events
func (s *CalendarService) SyncedEvents() ([]*domain.SyncedEvent, error) {
	return s.storage.ListSyncedEvents()
}

// Feed renders the schedule as a subscribable iCalendar document.
// Cancelled runs are left out.
func (s *CalendarService) Feed(cfg *domain.GroupConfig, entries []domain.ScheduleEntry) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, caldav.ProductID)
	cal.Props.SetText("X-WR-CALNAME", cfg.Calendar.CalendarName)
	cal.Props.SetText("X-WR-TIMEZONE", cfg.Location().String())

	stamp := s.now()
	for i := range entries {
		if entries[i].IsCancelled {
			continue
		}
		ev := BuildEvent(&entries[i], cfg)
		cal.Children = append(cal.Children, caldav.EventComponent(&ev, stamp))
	}

	// An empty VCALENDAR is rejected by the encoder
	if len(cal.Children) == 0 {
		return []byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + caldav.ProductID + "\r\nEND:VCALENDAR\r\n"), nil
	}

	text, err := caldav.SerializeCalendar(cal)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// SubscribeURL is Google's public iCal address for a calendar id
func SubscribeURL(calendarID string) string {
	if calendarID == "" {
		return ""
	}
	return "https://calendar.google.com/calendar/ical/" + url.PathEscape(calendarID) + "/public/basic.ics"
}

// WebViewURL is Google's public web view for a calendar id
func WebViewURL(calendarID string) string {
	if calendarID == "" {
		return ""
	}
	return "https://calendar.google.com/calendar/embed?src=" + url.QueryEscape(calendarID)
}

// CalendarIDFromPath extracts the Google calendar id from a CalDAV path
// like /caldav/v2/<id>/events/
func CalendarIDFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if p == "v2" && i+1 < len(parts) {
			id, err := url.PathUnescape(parts[i+1])
			if err != nil {
				return parts[i+1]
			}
			return id
		}
	}
	return ""
}

// SyncErrorSummary formats failures for display
func SyncErrorSummary(r *SyncResult) string {
	errs := r.Errors()
	if len(errs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strconv.Itoa(len(errs)) + " failed: " + strings.Join(parts, "; ")
}

// IsSyncError reports whether err aborted a whole sync run
func IsSyncError(err error) bool {
	var se *domain.SyncError
	return errors.As(err, &se)
}
