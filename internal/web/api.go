package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/tazhate/rungroup/internal/domain"
	"github.com/tazhate/rungroup/internal/service"
)

// API Response types
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type RouteResponse struct {
	Name       string   `json:"name"`
	URL        string   `json:"url,omitempty"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
	ElevationM *float64 `json:"elevation_m,omitempty"`
	StravaID   string   `json:"strava_id,omitempty"`
}

type EntryResponse struct {
	Date         string          `json:"date"`
	Routes       []RouteResponse `json:"routes"`
	MeetingPoint string          `json:"meeting_point"`
	StartTime    string          `json:"start_time"`
	Notes        string          `json:"notes,omitempty"`
	OnTour       bool            `json:"on_tour"`
	Cancelled    bool            `json:"cancelled"`
}

type MessagesResponse struct {
	Date      string                  `json:"date"`
	WeekIndex int                     `json:"week_index"`
	Email     domain.GeneratedMessage `json:"email"`
	Social    domain.GeneratedMessage `json:"social"`
	Chat      domain.GeneratedMessage `json:"chat"`
}

type AnnounceResponse struct {
	Date string `json:"date,omitempty"`
	Text string `json:"text"`
}

type SyncEntryResponse struct {
	Date   string `json:"date"`
	UID    string `json:"uid,omitempty"`
	Action string `json:"action"`
	Orphan bool   `json:"orphan,omitempty"`
	Error  string `json:"error,omitempty"`
}

type SyncResponse struct {
	DryRun    bool                `json:"dry_run"`
	Added     int                 `json:"added"`
	Updated   int                 `json:"updated"`
	Unchanged int                 `json:"unchanged"`
	Deleted   int                 `json:"deleted"`
	Skipped   int                 `json:"skipped"`
	Entries   []SyncEntryResponse `json:"entries"`
}

func jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func jsonError(w http.ResponseWriter, err string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: err})
}

// apiFailure maps service errors onto status codes
func apiFailure(w http.ResponseWriter, err error) {
	var (
		dsErr   *domain.DataSourceError
		authErr *domain.AuthError
		syncErr *domain.SyncError
	)
	switch {
	case errors.As(err, &authErr):
		jsonError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, domain.ErrNotConfigured):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrNoScheduledRun):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &dsErr), errors.As(err, &syncErr):
		jsonError(w, err.Error(), http.StatusBadGateway)
	default:
		log.Printf("API error: %v", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// GET /calendar.ics - public subscribable feed
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.svc.Settings.Load()
	if err != nil {
		http.Error(w, "settings unavailable", http.StatusInternalServerError)
		return
	}
	entries, err := s.svc.Schedule.Load(r.Context(), cfg)
	if err != nil {
		log.Printf("Feed: %v", err)
		http.Error(w, "schedule unavailable", http.StatusBadGateway)
		return
	}

	data, err := s.svc.Calendar.Feed(cfg, entries)
	if err != nil {
		log.Printf("Feed: %v", err)
		http.Error(w, "feed unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="runs.ics"`)
	w.Write(data)
}

// GET /api/schedule?include_cancelled=1 - upcoming runs
func (s *Server) apiSchedule(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.svc.Settings.Load()
	if err != nil {
		apiFailure(w, err)
		return
	}
	entries, err := s.svc.Schedule.Load(r.Context(), cfg)
	if err != nil {
		apiFailure(w, err)
		return
	}

	includeCancelled := r.URL.Query().Get("include_cancelled") != ""
	upcoming := s.svc.Schedule.Upcoming(entries, cfg, includeCancelled)
	jsonResponse(w, entriesToResponse(upcoming))
}

// GET /api/messages?date=YYYY-MM-DD&week=N - generated message set
func (s *Server) apiMessages(w http.ResponseWriter, r *http.Request) {
	week, err := weekParam(r)
	if err != nil {
		jsonError(w, "week must be a number", http.StatusBadRequest)
		return
	}

	cfg, err := s.svc.Settings.Load()
	if err != nil {
		apiFailure(w, err)
		return
	}

	comp, err := s.svc.Messages.Compose(r.Context(), cfg, r.URL.Query().Get("date"), week)
	if err != nil {
		apiFailure(w, err)
		return
	}

	jsonResponse(w, MessagesResponse{
		Date:      comp.Entry.DateKey(),
		WeekIndex: comp.WeekIndex,
		Email:     comp.Messages.Email,
		Social:    comp.Messages.Social,
		Chat:      comp.Messages.Chat,
	})
}

// POST /api/calendar/sync?dry_run=1 - push the schedule to the calendar
func (s *Server) apiCalendarSync(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.svc.Settings.Load()
	if err != nil {
		apiFailure(w, err)
		return
	}
	entries, err := s.svc.Schedule.Load(r.Context(), cfg)
	if err != nil {
		apiFailure(w, err)
		return
	}

	dryRun := r.URL.Query().Get("dry_run") != ""
	result, err := s.svc.Calendar.Sync(r.Context(), cfg, entries, dryRun)
	if err != nil {
		apiFailure(w, err)
		return
	}
	jsonResponse(w, syncToResponse(result))
}

// POST /api/announce?date=YYYY-MM-DD - post the chat variant to the group chat
func (s *Server) apiAnnounce(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	text, err := s.svc.Announce.Publish(r.Context(), s.svc.Chat, date)
	if err != nil {
		apiFailure(w, err)
		return
	}
	log.Printf("Published chat announcement via API for %q", date)
	jsonResponse(w, AnnounceResponse{Date: date, Text: text})
}

func weekParam(r *http.Request) (*int, error) {
	raw := r.URL.Query().Get("week")
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func entriesToResponse(entries []domain.ScheduleEntry) []EntryResponse {
	resp := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		routes := make([]RouteResponse, 0, len(e.Routes))
		for _, r := range e.Routes {
			routes = append(routes, RouteResponse{
				Name:       r.Name,
				URL:        r.URL,
				DistanceKm: r.DistanceKm,
				ElevationM: r.ElevationM,
				StravaID:   r.StravaID,
			})
		}
		resp = append(resp, EntryResponse{
			Date:         e.DateKey(),
			Routes:       routes,
			MeetingPoint: e.MeetingPoint,
			StartTime:    e.StartTime,
			Notes:        e.Notes,
			OnTour:       e.IsOnTour,
			Cancelled:    e.IsCancelled,
		})
	}
	return resp
}

func syncToResponse(r *service.SyncResult) SyncResponse {
	resp := SyncResponse{
		DryRun:    r.DryRun,
		Added:     r.Added,
		Updated:   r.Updated,
		Unchanged: r.Unchanged,
		Deleted:   r.Deleted,
		Skipped:   r.Skipped,
		Entries:   make([]SyncEntryResponse, 0, len(r.Entries)),
	}
	for _, e := range r.Entries {
		item := SyncEntryResponse{Date: e.Date, UID: e.UID, Action: string(e.Action), Orphan: e.Orphan}
		if e.Err != nil {
			item.Error = e.Err.Error()
		}
		resp.Entries = append(resp.Entries, item)
	}
	return resp
}
