package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tazhate/rungroup/internal/clients/sheets"
	"github.com/tazhate/rungroup/internal/domain"
	"github.com/teambition/rrule-go"
)

var (
	cancelledPattern    = regexp.MustCompile(`(?i)no\s*run|cancel|skip|\boff\b`)
	meetingNotesPattern = regexp.MustCompile(`(?i)Meeting:\s*([^|\n]+)`)
)

// Accepted date cell formats, tried in order
var dateLayouts = []string{
	"2006-01-02",
	"2/1/2006",
	"2/1/06",
	"2-1-2006",
	"Mon 2 Jan 2006",
	"Mon, 2 Jan 2006",
	"Monday 2 January 2006",
	"2 Jan 2006",
	"2 January 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// Header names tried when the configured column is missing from the sheet
var columnFallbacks = map[string][]string{
	domain.ColRoute1Name:        {"Route 1 - Name", "Route 1 Name", "Route1", "Route"},
	domain.ColRoute1URL:         {"Route 1 URL", "Route 1 - URL", "Route1 URL", "Route URL"},
	domain.ColRoute1Distance:    {"Route 1 Distance", "Route 1 - Distance", "Distance", "Distance (km)"},
	domain.ColRoute2Name:        {"Route 2 - Name", "Route 2 Name", "Route2"},
	domain.ColRoute2URL:         {"Route 2 URL", "Route 2 - URL", "Route2 URL"},
	domain.ColRoute2Distance:    {"Route 2 Distance", "Route 2 - Distance"},
	domain.ColRoute3Name:        {"Route 3 name", "Route 3 - Name", "Route 3 Name"},
	domain.ColRoute3URL:         {"Route 3 URL", "Route 3 - URL"},
	domain.ColRoute3Description: {"Route 3 description", "Route 3 - Description"},
	domain.ColMeetingPoint:      {"Meeting Point", "Meeting point", "Meeting"},
	domain.ColNotes:             {"Notes", "Note"},
}

// SheetFetcher returns the raw cells of one sheet tab, header row first
type SheetFetcher interface {
	FetchRows(ctx context.Context, spreadsheetID, tab string) ([][]string, error)
}

// HTTPClientSource hands out an authorized http.Client for a provider
type HTTPClientSource interface {
	HTTPClient(ctx context.Context, provider domain.Provider) (*http.Client, error)
}

// sheetSource reads through the Google token when one is stored, so
// private sheets work once the calendar account is connected.
type sheetSource struct {
	client *sheets.Client
	auth   HTTPClientSource
}

// NewSheetSource wraps the sheets client with optional Google authorization
func NewSheetSource(client *sheets.Client, auth HTTPClientSource) SheetFetcher {
	return &sheetSource{client: client, auth: auth}
}

func (s *sheetSource) FetchRows(ctx context.Context, spreadsheetID, tab string) ([][]string, error) {
	if s.auth != nil {
		if hc, err := s.auth.HTTPClient(ctx, domain.ProviderGoogle); err == nil {
			return s.client.WithHTTPClient(hc).FetchRows(ctx, spreadsheetID, tab)
		}
	}
	return s.client.FetchRows(ctx, spreadsheetID, tab)
}

type ScheduleService struct {
	sheets SheetFetcher
	now    func() time.Time
}

func NewScheduleService(f SheetFetcher) *ScheduleService {
	return &ScheduleService{sheets: f, now: time.Now}
}

// Load fetches and parses the schedule sheet
func (s *ScheduleService) Load(ctx context.Context, cfg *domain.GroupConfig) ([]domain.ScheduleEntry, error) {
	if cfg.Sheet.SpreadsheetID == "" {
		return nil, &domain.DataSourceError{Op: "configure", Err: errors.New("no spreadsheet configured")}
	}

	rows, err := s.sheets.FetchRows(ctx, cfg.Sheet.SpreadsheetID, cfg.Sheet.ScheduleTab)
	if err != nil {
		return nil, &domain.DataSourceError{Op: "fetch", Err: err}
	}

	return ParseRows(rows, cfg)
}

// SheetProbe is the result of a sheet connection test
type SheetProbe struct {
	Header    []string
	Rows      int
	Entries   int
	Cancelled int
	First     *time.Time
	Last      *time.Time
}

// ProbeSheet loads the sheet and summarises what was found
func (s *ScheduleService) ProbeSheet(ctx context.Context, cfg *domain.GroupConfig) (*SheetProbe, error) {
	if cfg.Sheet.SpreadsheetID == "" {
		return nil, &domain.DataSourceError{Op: "configure", Err: errors.New("no spreadsheet configured")}
	}

	rows, err := s.sheets.FetchRows(ctx, cfg.Sheet.SpreadsheetID, cfg.Sheet.ScheduleTab)
	if err != nil {
		return nil, &domain.DataSourceError{Op: "fetch", Err: err}
	}

	entries, err := ParseRows(rows, cfg)
	if err != nil {
		return nil, err
	}

	probe := &SheetProbe{Entries: len(entries)}
	if len(rows) > 0 {
		probe.Header = rows[0]
		probe.Rows = len(rows) - 1
	}
	for i := range entries {
		if entries[i].IsCancelled {
			probe.Cancelled++
		}
		d := entries[i].Date
		if probe.First == nil || d.Before(*probe.First) {
			probe.First = &d
		}
		if probe.Last == nil || d.After(*probe.Last) {
			probe.Last = &d
		}
	}
	return probe, nil
}

// ParseRows converts sheet cells into schedule entries. Rows without a
// parsable date are skipped; a sheet without a date column is malformed.
func ParseRows(rows [][]string, cfg *domain.GroupConfig) ([]domain.ScheduleEntry, error) {
	if len(rows) == 0 {
		return nil, &domain.DataSourceError{Op: "parse", Err: errors.New("sheet is empty")}
	}

	header := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if _, exists := header[h]; !exists {
			header[h] = i
		}
	}

	cols := cfg.Sheet.Columns
	if cols == nil {
		cols = domain.DefaultColumns()
	}

	dateIdx, ok := header[cols[domain.ColDate]]
	if !ok {
		dateIdx = -1
		for i, h := range rows[0] {
			if strings.Contains(strings.ToLower(h), "date") {
				dateIdx = i
				break
			}
		}
	}
	if dateIdx < 0 {
		return nil, &domain.DataSourceError{
			Op:  "parse",
			Err: fmt.Errorf("date column %q not found in sheet", cols[domain.ColDate]),
		}
	}

	loc := cfg.Location()
	defaultMeeting := strings.TrimSpace(cfg.Group.MeetingLocation)

	var entries []domain.ScheduleEntry
	for _, row := range rows[1:] {
		cell := func(key string) string {
			if name := cols[key]; name != "" {
				if i, ok := header[name]; ok {
					return cellAt(row, i)
				}
			}
			for _, fb := range columnFallbacks[key] {
				if i, ok := header[fb]; ok {
					return cellAt(row, i)
				}
			}
			return ""
		}

		date, ok := ParseDate(cellAt(row, dateIdx), loc)
		if !ok {
			continue
		}

		notes := cell(domain.ColNotes)
		entry := domain.ScheduleEntry{
			Date:        date,
			StartTime:   cfg.Group.StartTime,
			Notes:       notes,
			IsCancelled: cancelledPattern.MatchString(notes) || cfg.IsNoRun(date),
		}

		if name := cell(domain.ColRoute1Name); name != "" {
			entry.Routes = append(entry.Routes, domain.NewRoute(name,
				makeHTTPS(cell(domain.ColRoute1URL)), parseDistance(cell(domain.ColRoute1Distance))))
		}
		if name := cell(domain.ColRoute2Name); name != "" {
			entry.Routes = append(entry.Routes, domain.NewRoute(name,
				makeHTTPS(cell(domain.ColRoute2URL)), parseDistance(cell(domain.ColRoute2Distance))))
		}
		r3Name, r3Desc := cell(domain.ColRoute3Name), cell(domain.ColRoute3Description)
		if r3Name != "" || r3Desc != "" {
			name := r3Name
			if name == "" {
				name = r3Desc
			}
			entry.Routes = append(entry.Routes, domain.NewRoute(name, makeHTTPS(cell(domain.ColRoute3URL)), nil))
		}

		meeting := cell(domain.ColMeetingPoint)
		if meeting == "" {
			if m := meetingNotesPattern.FindStringSubmatch(notes); m != nil {
				meeting = strings.TrimSpace(m[1])
			}
		}
		if meeting == "" {
			meeting = defaultMeeting
		}
		entry.MeetingPoint = meeting
		entry.IsOnTour = defaultMeeting != "" && meeting != "" &&
			!strings.EqualFold(strings.TrimSpace(meeting), defaultMeeting) &&
			!strings.Contains(strings.ToLower(notes), "tour")

		entries = append(entries, entry)
	}

	return entries, nil
}

// ParseDate parses a date cell in any of the accepted layouts
func ParseDate(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	// Sheets sometimes exports "2024-06-01 00:00:00"
	if len(raw) > 10 && raw[4] == '-' && raw[10] == ' ' {
		raw = raw[:10]
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Upcoming returns entries from today onwards that fall on a run day,
// sorted by date
func (s *ScheduleService) Upcoming(entries []domain.ScheduleEntry, cfg *domain.GroupConfig, includeCancelled bool) []domain.ScheduleEntry {
	loc := cfg.Location()
	now := s.now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	var upcoming []domain.ScheduleEntry
	for _, e := range entries {
		if e.Date.Before(today) {
			continue
		}
		if e.IsCancelled && !includeCancelled {
			continue
		}
		if !cfg.IsRunDay(e.Date) {
			continue
		}
		upcoming = append(upcoming, e)
	}

	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].Date.Before(upcoming[j].Date)
	})
	return upcoming
}

// Next returns the next run that is not cancelled, or nil
func (s *ScheduleService) Next(entries []domain.ScheduleEntry, cfg *domain.GroupConfig) *domain.ScheduleEntry {
	upcoming := s.Upcoming(entries, cfg, false)
	if len(upcoming) == 0 {
		return nil
	}
	return &upcoming[0]
}

// FindByDate returns the entry for the given YYYY-MM-DD date, or nil
func FindByDate(entries []domain.ScheduleEntry, key string) *domain.ScheduleEntry {
	for i := range entries {
		if entries[i].DateKey() == key {
			return &entries[i]
		}
	}
	return nil
}

// ExpectedRunDates returns the next n run days on or after from,
// skipping configured no-run dates
func ExpectedRunDates(cfg *domain.GroupConfig, from time.Time, n int) []time.Time {
	if n <= 0 || len(cfg.Group.RunDays) == 0 {
		return nil
	}

	loc := cfg.Location()
	from = from.In(loc)
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)

	days := make([]rrule.Weekday, 0, len(cfg.Group.RunDays))
	for _, d := range cfg.Group.RunDays {
		days = append(days, rruleWeekday(d))
	}

	// Over-fetch so skipped holidays still leave n dates
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: days,
		Dtstart:   start,
		Count:     n + len(cfg.NoRunDates.Annual) + len(cfg.NoRunDates.Specific),
	})
	if err != nil {
		return nil
	}

	var dates []time.Time
	for _, t := range r.All() {
		t = t.In(loc)
		if cfg.IsNoRun(t) {
			continue
		}
		dates = append(dates, t)
		if len(dates) == n {
			break
		}
	}
	return dates
}

// MissingWeeks returns expected run dates in the next n run days that
// have no row in the schedule
func MissingWeeks(entries []domain.ScheduleEntry, cfg *domain.GroupConfig, from time.Time, n int) []time.Time {
	have := make(map[string]bool, len(entries))
	for i := range entries {
		have[entries[i].DateKey()] = true
	}

	var missing []time.Time
	for _, d := range ExpectedRunDates(cfg, from, n) {
		if !have[d.Format("2006-01-02")] {
			missing = append(missing, d)
		}
	}
	return missing
}

func rruleWeekday(d domain.Weekday) rrule.Weekday {
	switch d {
	case domain.WeekdayMonday:
		return rrule.MO
	case domain.WeekdayTuesday:
		return rrule.TU
	case domain.WeekdayWednesday:
		return rrule.WE
	case domain.WeekdayThursday:
		return rrule.TH
	case domain.WeekdayFriday:
		return rrule.FR
	case domain.WeekdaySaturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[i])
	switch strings.ToLower(v) {
	case "nan", "nat", "none", "null":
		return ""
	}
	return v
}

func parseDistance(raw string) *float64 {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "km"))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

func makeHTTPS(u string) string {
	u = strings.TrimSpace(u)
	if strings.HasPrefix(u, "http://") {
		return "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
