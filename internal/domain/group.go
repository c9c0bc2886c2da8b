package domain

import (
	"strings"
	"time"
	"unicode"
)

// Weekday represents a day of the week (0 = Sunday, 1 = Monday, ...)
type Weekday int

const (
	WeekdaySunday    Weekday = 0
	WeekdayMonday    Weekday = 1
	WeekdayTuesday   Weekday = 2
	WeekdayWednesday Weekday = 3
	WeekdayThursday  Weekday = 4
	WeekdayFriday    Weekday = 5
	WeekdaySaturday  Weekday = 6
)

func (d Weekday) String() string {
	return time.Weekday(d).String()
}

// Column keys used in SheetSettings.Columns
const (
	ColDate              = "date"
	ColRoute1Name        = "route_1_name"
	ColRoute1URL         = "route_1_url"
	ColRoute1Distance    = "route_1_distance"
	ColRoute2Name        = "route_2_name"
	ColRoute2URL         = "route_2_url"
	ColRoute2Distance    = "route_2_distance"
	ColRoute3Name        = "route_3_name"
	ColRoute3URL         = "route_3_url"
	ColRoute3Description = "route_3_description"
	ColMeetingPoint      = "meeting_point"
	ColNotes             = "notes"
)

// GroupConfig holds everything a group edits in the settings UI.
// It is stored as YAML in the settings table.
type GroupConfig struct {
	Group        GroupSettings    `yaml:"group" json:"group"`
	Sheet        SheetSettings    `yaml:"sheet" json:"sheet"`
	Calendar     CalendarSettings `yaml:"calendar" json:"calendar"`
	Booking      BookingSettings  `yaml:"booking" json:"booking"`
	Messages     MessageSettings  `yaml:"messages" json:"messages"`
	NoRunDates   NoRunDates       `yaml:"no_run_dates" json:"no_run_dates"`
	Integrations Integrations     `yaml:"integrations" json:"integrations"`
}

type GroupSettings struct {
	Name            string    `yaml:"name" json:"name"`
	ShortName       string    `yaml:"short_name" json:"short_name"`
	Timezone        string    `yaml:"timezone" json:"timezone"`
	Latitude        float64   `yaml:"latitude" json:"latitude"`
	Longitude       float64   `yaml:"longitude" json:"longitude"`
	MeetingLocation string    `yaml:"meeting_location" json:"meeting_location"`
	StartTime       string    `yaml:"start_time" json:"start_time"`
	RunDays         []Weekday `yaml:"run_days" json:"run_days"`
}

type SheetSettings struct {
	SpreadsheetID string            `yaml:"spreadsheet_id" json:"spreadsheet_id"`
	ScheduleTab   string            `yaml:"schedule_tab" json:"schedule_tab"`
	Columns       map[string]string `yaml:"columns" json:"columns"`
}

type CalendarSettings struct {
	// CalendarPath is the CalDAV collection path events are written to.
	CalendarPath string `yaml:"calendar_path" json:"calendar_path"`
	// CalendarID is the Google calendar id, used for public subscribe links.
	CalendarID           string `yaml:"calendar_id" json:"calendar_id"`
	CalendarName         string `yaml:"calendar_name" json:"calendar_name"`
	EventDurationMinutes int    `yaml:"event_duration_minutes" json:"event_duration_minutes"`
	DescriptionMarker    string `yaml:"description_marker" json:"description_marker"`
}

type BookingSettings struct {
	BookingURL      string `yaml:"booking_url" json:"booking_url"`
	CancellationURL string `yaml:"cancellation_url" json:"cancellation_url"`
	WebScheduleURL  string `yaml:"web_schedule_url" json:"web_schedule_url"`
}

// MessageSettings holds the rotation tables and weather notes.
// Rotation lists are indexed by week number modulo their length.
type MessageSettings struct {
	Greetings       []string `yaml:"greetings" json:"greetings"`
	EmailClosings   []string `yaml:"email_closings" json:"email_closings"`
	SocialClosings  []string `yaml:"social_closings" json:"social_closings"`
	ChatClosings    []string `yaml:"chat_closings" json:"chat_closings"`
	// ExtraOptions are listed alongside the routes, e.g. "Jeffing"
	ExtraOptions    []string `yaml:"extra_options" json:"extra_options"`
	SafetyNote      string   `yaml:"safety_note" json:"safety_note"`
	ColdThresholdC  float64  `yaml:"cold_threshold_c" json:"cold_threshold_c"`
	HotThresholdC   float64  `yaml:"hot_threshold_c" json:"hot_threshold_c"`
	ColdWeatherNote string   `yaml:"cold_weather_note" json:"cold_weather_note"`
	HotWeatherNote  string   `yaml:"hot_weather_note" json:"hot_weather_note"`
}

// MonthDay is an annual no-run date such as Christmas Day
type MonthDay struct {
	Month int `yaml:"month" json:"month"`
	Day   int `yaml:"day" json:"day"`
}

type NoRunDates struct {
	Annual   []MonthDay `yaml:"annual" json:"annual"`
	Specific []string   `yaml:"specific" json:"specific"` // YYYY-MM-DD
}

type Integrations struct {
	Weather  bool `yaml:"weather" json:"weather"`
	Strava   bool `yaml:"strava" json:"strava"`
	Calendar bool `yaml:"calendar" json:"calendar"`
	Chat     bool `yaml:"chat" json:"chat"`
}

// DefaultGroupConfig returns the configuration used before first setup
func DefaultGroupConfig() *GroupConfig {
	cfg := &GroupConfig{
		Group: GroupSettings{
			Name:            "My Running Group",
			Timezone:        "Europe/London",
			Latitude:        53.561,
			Longitude:       -2.329,
			MeetingLocation: "Town Centre",
			StartTime:       "19:00",
			RunDays:         []Weekday{WeekdayThursday},
		},
		Sheet: SheetSettings{
			ScheduleTab: "Schedule",
		},
		Calendar: CalendarSettings{
			EventDurationMinutes: 60,
			DescriptionMarker:    "Managed by Running Group App",
		},
		NoRunDates: NoRunDates{
			Annual: []MonthDay{{Month: 12, Day: 25}, {Month: 12, Day: 26}, {Month: 1, Day: 1}},
		},
		Integrations: Integrations{Weather: true, Strava: true, Calendar: true, Chat: true},
	}
	cfg.Normalize()
	return cfg
}

// DefaultColumns is the header mapping of the template schedule sheet
func DefaultColumns() map[string]string {
	return map[string]string{
		ColDate:              "Date (Thu)",
		ColRoute1Name:        "Route 1 - Name",
		ColRoute1URL:         "Route 1 - Route Link (Source URL)",
		ColRoute1Distance:    "Route 1 - Distance (km)",
		ColRoute2Name:        "Route 2 - Name",
		ColRoute2URL:         "Route 2 - Route Link (Source URL)",
		ColRoute2Distance:    "Route 2 - Distance (km)",
		ColRoute3Name:        "Route 3 name",
		ColRoute3URL:         "Route 3 URL",
		ColRoute3Description: "Route 3 description",
		ColMeetingPoint:      "Meeting Point",
		ColNotes:             "Notes",
	}
}

// Normalize fills zero values with defaults so partially filled configs
// (older YAML, half-completed forms) still behave.
func (c *GroupConfig) Normalize() {
	if c.Group.Name == "" {
		c.Group.Name = "My Running Group"
	}
	if c.Group.ShortName == "" {
		var sb strings.Builder
		for _, w := range strings.Fields(c.Group.Name) {
			sb.WriteRune(unicode.ToUpper([]rune(w)[0]))
		}
		c.Group.ShortName = sb.String()
	}
	if _, err := time.LoadLocation(c.Group.Timezone); c.Group.Timezone == "" || err != nil {
		c.Group.Timezone = "Europe/London"
	}
	if c.Group.StartTime == "" {
		c.Group.StartTime = "19:00"
	}
	if len(c.Group.RunDays) == 0 {
		c.Group.RunDays = []Weekday{WeekdayThursday}
	}
	if c.Sheet.ScheduleTab == "" {
		c.Sheet.ScheduleTab = "Schedule"
	}
	cols := DefaultColumns()
	for k, v := range c.Sheet.Columns {
		if v != "" {
			cols[k] = v
		}
	}
	c.Sheet.Columns = cols
	if c.Calendar.CalendarName == "" {
		c.Calendar.CalendarName = c.Group.Name + " Schedule"
	}
	if c.Calendar.EventDurationMinutes <= 0 {
		c.Calendar.EventDurationMinutes = 60
	}
	if c.Calendar.DescriptionMarker == "" {
		c.Calendar.DescriptionMarker = "Managed by Running Group App"
	}
	c.Messages.normalize()
}

func (m *MessageSettings) normalize() {
	if len(m.Greetings) == 0 {
		m.Greetings = []string{
			"Hi everyone!",
			"Hello runners!",
			"Hey team!",
			"Evening all!",
		}
	}
	if len(m.EmailClosings) == 0 {
		m.EmailClosings = []string{
			"Grab your spot and come run/walk with us! 🧡",
			"Fancy joining us this week? Book your spot and come along! 🧡",
			"We'd love to see you there – grab a place and join the fun! 🧡",
		}
	}
	if len(m.SocialClosings) == 0 {
		m.SocialClosings = []string{
			"Tag a friend who might like to join us and share the running love! 🧡",
			"Know someone who'd enjoy this? Tag them and bring them along! 🧡",
			"New faces always welcome – tag a friend and spread the word! 🧡",
		}
	}
	if len(m.ChatClosings) == 0 {
		m.ChatClosings = []string{
			"Please book on and arrive a few minutes early.",
			"Book your spot and come a little early to say hi.",
			"Grab a place and aim to arrive a few minutes before.",
		}
	}
	if m.ColdThresholdC == 0 {
		m.ColdThresholdC = 5
	}
	if m.HotThresholdC == 0 {
		m.HotThresholdC = 22
	}
	if m.ColdWeatherNote == "" {
		m.ColdWeatherNote = "It's looking cold around session time – layer up, hats and gloves recommended ❄️"
	}
	if m.HotWeatherNote == "" {
		m.HotWeatherNote = "It's going to be a warm one – bring water and dress for the heat ☀️"
	}
}

// Location returns the group timezone
func (c *GroupConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Group.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsNoRun reports whether runs never happen on the given date
func (c *GroupConfig) IsNoRun(date time.Time) bool {
	for _, md := range c.NoRunDates.Annual {
		if int(date.Month()) == md.Month && date.Day() == md.Day {
			return true
		}
	}
	key := date.Format("2006-01-02")
	for _, d := range c.NoRunDates.Specific {
		if strings.TrimSpace(d) == key {
			return true
		}
	}
	return false
}

// IsRunDay reports whether the weekday is one of the configured run days
func (c *GroupConfig) IsRunDay(date time.Time) bool {
	for _, d := range c.Group.RunDays {
		if time.Weekday(d) == date.Weekday() {
			return true
		}
	}
	return false
}
