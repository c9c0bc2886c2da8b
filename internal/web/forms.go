package web

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tazhate/rungroup/internal/domain"
)

type weekdayOption struct {
	Value   int
	Name    string
	Checked bool
}

type columnField struct {
	Key   string
	Label string
	Value string
}

// Columns in the order the settings page shows them
var columnLabels = []struct{ key, label string }{
	{domain.ColDate, "Date"},
	{domain.ColRoute1Name, "Route 1 name"},
	{domain.ColRoute1URL, "Route 1 link"},
	{domain.ColRoute1Distance, "Route 1 distance"},
	{domain.ColRoute2Name, "Route 2 name"},
	{domain.ColRoute2URL, "Route 2 link"},
	{domain.ColRoute2Distance, "Route 2 distance"},
	{domain.ColRoute3Name, "Route 3 name"},
	{domain.ColRoute3URL, "Route 3 link"},
	{domain.ColRoute3Description, "Route 3 description"},
	{domain.ColMeetingPoint, "Meeting point"},
	{domain.ColNotes, "Notes"},
}

func weekdayOptions(selected []domain.Weekday) []weekdayOption {
	// Monday first, the way the group thinks about its week
	order := []domain.Weekday{
		domain.WeekdayMonday, domain.WeekdayTuesday, domain.WeekdayWednesday,
		domain.WeekdayThursday, domain.WeekdayFriday, domain.WeekdaySaturday, domain.WeekdaySunday,
	}
	opts := make([]weekdayOption, 0, len(order))
	for _, d := range order {
		opt := weekdayOption{Value: int(d), Name: d.String()}
		for _, s := range selected {
			if s == d {
				opt.Checked = true
			}
		}
		opts = append(opts, opt)
	}
	return opts
}

func columnFields(cols map[string]string) []columnField {
	fields := make([]columnField, 0, len(columnLabels))
	for _, c := range columnLabels {
		fields = append(fields, columnField{Key: c.key, Label: c.label, Value: cols[c.key]})
	}
	return fields
}

// formatAnnual renders annual no-run dates one "DD/MM" per line
func formatAnnual(dates []domain.MonthDay) string {
	lines := make([]string, 0, len(dates))
	for _, md := range dates {
		lines = append(lines, fmt.Sprintf("%02d/%02d", md.Day, md.Month))
	}
	return strings.Join(lines, "\n")
}

func parseAnnual(raw string) ([]domain.MonthDay, error) {
	var out []domain.MonthDay
	for _, line := range splitLines(raw) {
		parts := strings.Split(line, "/")
		if len(parts) != 2 {
			return nil, fmt.Errorf("annual date %q: use DD/MM", line)
		}
		day, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		month, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil || month < 1 || month > 12 || day < 1 || day > 31 {
			return nil, fmt.Errorf("annual date %q: use DD/MM", line)
		}
		out = append(out, domain.MonthDay{Month: month, Day: day})
	}
	return out, nil
}

func parseSpecific(raw string) ([]string, error) {
	var out []string
	for _, line := range splitLines(raw) {
		if _, err := time.Parse("2006-01-02", line); err != nil {
			return nil, fmt.Errorf("no-run date %q: use YYYY-MM-DD", line)
		}
		out = append(out, line)
	}
	return out, nil
}

func joinLines(list []string) string {
	return strings.Join(list, "\n")
}

// splitLines returns the non-empty trimmed lines of a textarea
func splitLines(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func parseFloatField(form url.Values, name string, dst *float64) error {
	raw := strings.TrimSpace(form.Get(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%s must be a number", strings.ReplaceAll(name, "_", " "))
	}
	*dst = v
	return nil
}

// applySettingsForm copies the settings form onto cfg. Empty rotation
// lists fall back to the built-in defaults when the config is saved.
func applySettingsForm(cfg *domain.GroupConfig, form url.Values) error {
	g := &cfg.Group
	g.Name = strings.TrimSpace(form.Get("group_name"))
	g.ShortName = strings.TrimSpace(form.Get("short_name"))
	g.Timezone = strings.TrimSpace(form.Get("timezone"))
	g.MeetingLocation = strings.TrimSpace(form.Get("meeting_location"))
	g.StartTime = strings.TrimSpace(form.Get("start_time"))
	if err := parseFloatField(form, "latitude", &g.Latitude); err != nil {
		return err
	}
	if err := parseFloatField(form, "longitude", &g.Longitude); err != nil {
		return err
	}

	g.RunDays = nil
	for _, raw := range form["run_days"] {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 || d > 6 {
			return fmt.Errorf("invalid run day %q", raw)
		}
		g.RunDays = append(g.RunDays, domain.Weekday(d))
	}

	cfg.Sheet.SpreadsheetID = strings.TrimSpace(form.Get("spreadsheet_id"))
	cfg.Sheet.ScheduleTab = strings.TrimSpace(form.Get("schedule_tab"))
	cols := make(map[string]string, len(columnLabels))
	for _, c := range columnLabels {
		cols[c.key] = strings.TrimSpace(form.Get("col_" + c.key))
	}
	cfg.Sheet.Columns = cols

	cfg.Calendar.CalendarPath = strings.TrimSpace(form.Get("calendar_path"))
	cfg.Calendar.CalendarID = strings.TrimSpace(form.Get("calendar_id"))
	cfg.Calendar.CalendarName = strings.TrimSpace(form.Get("calendar_name"))
	cfg.Calendar.DescriptionMarker = strings.TrimSpace(form.Get("description_marker"))
	if raw := strings.TrimSpace(form.Get("event_duration")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("event duration must be a whole number of minutes")
		}
		cfg.Calendar.EventDurationMinutes = n
	}

	cfg.Booking.BookingURL = strings.TrimSpace(form.Get("booking_url"))
	cfg.Booking.CancellationURL = strings.TrimSpace(form.Get("cancellation_url"))
	cfg.Booking.WebScheduleURL = strings.TrimSpace(form.Get("web_schedule_url"))

	m := &cfg.Messages
	m.Greetings = splitLines(form.Get("greetings"))
	m.EmailClosings = splitLines(form.Get("email_closings"))
	m.SocialClosings = splitLines(form.Get("social_closings"))
	m.ChatClosings = splitLines(form.Get("chat_closings"))
	m.ExtraOptions = splitLines(form.Get("extra_options"))
	m.SafetyNote = strings.TrimSpace(form.Get("safety_note"))
	m.ColdWeatherNote = strings.TrimSpace(form.Get("cold_note"))
	m.HotWeatherNote = strings.TrimSpace(form.Get("hot_note"))
	if err := parseFloatField(form, "cold_threshold", &m.ColdThresholdC); err != nil {
		return err
	}
	if err := parseFloatField(form, "hot_threshold", &m.HotThresholdC); err != nil {
		return err
	}

	annual, err := parseAnnual(form.Get("annual_no_run"))
	if err != nil {
		return err
	}
	specific, err := parseSpecific(form.Get("specific_no_run"))
	if err != nil {
		return err
	}
	cfg.NoRunDates = domain.NoRunDates{Annual: annual, Specific: specific}

	cfg.Integrations = domain.Integrations{
		Weather:  form.Get("int_weather") != "",
		Strava:   form.Get("int_strava") != "",
		Calendar: form.Get("int_calendar") != "",
		Chat:     form.Get("int_chat") != "",
	}
	return nil
}
