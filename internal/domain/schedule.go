package domain

import (
	"regexp"
	"strconv"
	"time"
)

var stravaRoutePattern = regexp.MustCompile(`/routes/(\d+)`)

// Route is a single route option for a run
type Route struct {
	Name       string
	URL        string
	DistanceKm *float64 // nil when the sheet leaves it empty
	ElevationM *float64
	StravaID   string
}

// NewRoute builds a route and extracts the Strava route id from its URL
func NewRoute(name, url string, distanceKm *float64) Route {
	r := Route{Name: name, URL: url, DistanceKm: distanceKm}
	if m := stravaRoutePattern.FindStringSubmatch(url); m != nil {
		r.StravaID = m[1]
	}
	return r
}

// Label returns "8k" / "5.5k" when the distance is known, the name otherwise
func (r Route) Label() string {
	if r.DistanceKm != nil && *r.DistanceKm > 0 {
		d := *r.DistanceKm
		if d == float64(int(d)) {
			return strconv.Itoa(int(d)) + "k"
		}
		return strconv.FormatFloat(d, 'f', 1, 64) + "k"
	}
	if r.Name != "" {
		return r.Name
	}
	return "Route"
}

// ScheduleEntry is one week's run parsed from the schedule sheet
type ScheduleEntry struct {
	Date         time.Time // midnight in the group timezone
	Routes       []Route   // up to three, in sheet order
	MeetingPoint string
	StartTime    string // "HH:MM"
	Notes        string
	IsOnTour     bool // meeting somewhere other than the default location
	IsCancelled  bool
}

// RouteName returns the name of the primary route
func (e *ScheduleEntry) RouteName() string {
	if len(e.Routes) == 0 {
		return ""
	}
	return e.Routes[0].Name
}

// HasRoutes reports whether any route is planned
func (e *ScheduleEntry) HasRoutes() bool {
	return len(e.Routes) > 0
}

// DateKey returns the date as YYYY-MM-DD, the key used for calendar upserts
func (e *ScheduleEntry) DateKey() string {
	return e.Date.Format("2006-01-02")
}

// WeekIndex returns the ISO week number of the entry, the default rotation index
func (e *ScheduleEntry) WeekIndex() int {
	_, w := e.Date.ISOWeek()
	return w
}

// RouteStats is the route data returned by the fitness tracker
type RouteStats struct {
	DistanceKm float64
	ElevationM float64
}
