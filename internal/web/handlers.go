package web

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tazhate/rungroup/internal/clients/caldav"
	"github.com/tazhate/rungroup/internal/domain"
	"github.com/tazhate/rungroup/internal/service"
)

// How many run days ahead the home page checks for missing sheet rows
const missingLookahead = 8

type pageData struct {
	Title  string
	Active string
	Group  string
	Flash  string
	Error  string
	// Reauth names the provider to reconnect after an auth failure
	Reauth string
	Data   interface{}
}

type providerStatus struct {
	Provider  string
	Label     string
	Enabled   bool
	Connected bool
	State     string
}

type homeData struct {
	Configured         bool
	Next               *domain.ScheduleEntry
	ScheduleErr        string
	Missing            []time.Time
	Providers          []providerStatus
	CalendarConfigured bool
	ChatConfigured     bool
}

type settingsData struct {
	Config    *domain.GroupConfig
	Weekdays  []weekdayOption
	Columns   []columnField
	Annual    string
	Specific  string
	Providers []providerStatus
	Probe     *service.SheetProbe
	ProbeErr  string
}

type composeData struct {
	Runs        []domain.ScheduleEntry
	Selected    string
	Week        string
	Composition *service.Composition
	Category    domain.WeatherCategory
	ChatEnabled bool
}

type calendarData struct {
	Configured   bool
	CalendarPath string
	Upcoming     []domain.ScheduleEntry
	Ledger       []*domain.SyncedEvent
	FeedURL      string
	SubscribeURL string
	WebViewURL   string
	Result       *service.SyncResult
	Calendars    []caldav.Calendar
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, page, title string, data interface{}, pageErr error) {
	pd := pageData{
		Title:  title,
		Active: page,
		Flash:  r.URL.Query().Get("msg"),
		Error:  r.URL.Query().Get("error"),
		Reauth: r.URL.Query().Get("reauth"),
		Data:   data,
	}
	if cfg, err := s.svc.Settings.Load(); err == nil {
		pd.Group = cfg.Group.Name
	}
	if pageErr != nil {
		pd.Error = userMessage(pageErr)
		var authErr *domain.AuthError
		if errors.As(pageErr, &authErr) {
			pd.Reauth = string(authErr.Provider)
		}
	}

	t, ok := s.pages[page]
	if !ok {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", pd); err != nil {
		log.Printf("Render %s: %v", page, err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// userMessage turns a service error into text for the page banner
func userMessage(err error) string {
	var (
		dsErr   *domain.DataSourceError
		authErr *domain.AuthError
	)
	switch {
	case errors.As(err, &authErr) && errors.Is(err, domain.ErrNotConfigured):
		return "No " + string(authErr.Provider) + " client credentials are configured."
	case errors.As(err, &authErr):
		return "Your " + string(authErr.Provider) + " connection needs to be renewed: " + authErr.Err.Error()
	case errors.As(err, &dsErr):
		return "Couldn't read the schedule sheet: " + dsErr.Err.Error()
	case errors.Is(err, service.ErrNoScheduledRun):
		return "There is no scheduled run to write about yet."
	}
	return err.Error()
}

// redirect sends the browser to path with a flash message
func redirect(w http.ResponseWriter, r *http.Request, path, key, msg string) {
	if msg != "" {
		path += "?" + key + "=" + url.QueryEscape(msg)
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// failAction handles errors from POST actions. Auth failures send the
// user back into the OAuth flow.
func (s *Server) failAction(w http.ResponseWriter, r *http.Request, back string, err error) {
	var authErr *domain.AuthError
	if errors.As(err, &authErr) && s.svc.Auth != nil && s.svc.Auth.Enabled(authErr.Provider) {
		log.Printf("Reauthorizing %s: %v", authErr.Provider, err)
		http.Redirect(w, r, "/auth/"+string(authErr.Provider)+"/start", http.StatusSeeOther)
		return
	}
	redirect(w, r, back, "error", userMessage(err))
}

func (s *Server) providers() []providerStatus {
	var out []providerStatus
	for _, p := range []struct {
		provider domain.Provider
		label    string
	}{
		{domain.ProviderGoogle, "Google (calendar and private sheets)"},
		{domain.ProviderStrava, "Strava (route distance and elevation)"},
	} {
		st := providerStatus{Provider: string(p.provider), Label: p.label}
		if s.svc.Auth != nil {
			st.Enabled = s.svc.Auth.Enabled(p.provider)
			st.Connected = s.svc.Auth.Connected(p.provider)
			if state, err := s.svc.Auth.State(p.provider); err == nil {
				st.State = string(state)
			}
		}
		out = append(out, st)
	}
	return out
}

// GET / - next run and connection status
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.svc.Settings.Load()
	if err != nil {
		s.render(w, r, "home", "Home", nil, err)
		return
	}

	data := homeData{
		Providers:          s.providers(),
		CalendarConfigured: s.svc.Calendar.IsConfigured(cfg),
		ChatConfigured:     s.svc.Chat != nil && cfg.Integrations.Chat,
	}
	data.Configured, _ = s.svc.Settings.IsConfigured()

	if cfg.Sheet.SpreadsheetID != "" {
		entries, err := s.svc.Schedule.Load(r.Context(), cfg)
		if err != nil {
			data.ScheduleErr = userMessage(err)
		} else {
			data.Next = s.svc.Schedule.Next(entries, cfg)
			data.Missing = service.MissingWeeks(entries, cfg, time.Now(), missingLookahead)
		}
	}

	s.render(w, r, "home", "Home", data, nil)
}

// GET /settings
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.svc.Settings.Load()
	if err != nil {
		s.render(w, r, "settings", "Settings", nil, err)
		return
	}
	s.render(w, r, "settings", "Settings", s.settingsData(cfg), nil)
}

func (s *Server) settingsData(cfg *domain.GroupConfig) *settingsData {
	return &settingsData{
		Config:    cfg,
		Weekdays:  weekdayOptions(cfg.Group.RunDays),
		Columns:   columnFields(cfg.Sheet.Columns),
		Annual:    formatAnnual(cfg.NoRunDates.Annual),
		Specific:  joinLines(cfg.NoRunDates.Specific),
		Providers: s.providers(),
	}
}

// POST /settings
func (s *Server) handleSettingsSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirect(w, r, "/settings", "error", "Invalid form")
		return
	}

	cfg, err := s.svc.Settings.Load()
	if err != nil {
		redirect(w, r, "/settings", "error", err.Error())
		return
	}
	if err := applySettingsForm(cfg, r.PostForm); err != nil {
		redirect(w, r, "/settings", "error", err.Error())
		return
	}
	if err := s.svc.Settings.Save(cfg); err != nil {
		redirect(w, r, "/settings", "error", err.Error())
		return
	}

	log.Printf("Settings saved for %s", cfg.Group.Name)
	redirect(w, r, "/settings", "msg", "Settings saved")
}

// POST /settings/import - multipart upload or pasted YAML
func (s *Server) handleSettingsImport(w http.ResponseWriter, r *http.Request) {
	var data []byte
	if err := r.ParseMultipartForm(1 << 20); err == nil {
		if f, _, err := r.FormFile("file"); err == nil {
			defer f.Close()
			data, _ = io.ReadAll(io.LimitReader(f, 1<<20))
		}
	}
	if len(data) == 0 {
		data = []byte(r.FormValue("yaml"))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		redirect(w, r, "/settings", "error", "Nothing to import")
		return
	}

	if _, err := s.svc.Settings.ImportYAML(data); err != nil {
		redirect(w, r, "/settings", "error", err.Error())
		return
	}
	redirect(w, r, "/settings", "msg", "Settings imported")
}

// GET /settings/export
func (s *Server) handleSettingsExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.Settings.ExportYAML()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml")
	w.Header().Set("Content-Disposition", `attachment; filename="group.yaml"`)
	w.Write(data)
}

// POST /settings/test-sheet
func (s *Server) handleSheetTest(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.svc.Settings.Load()
	if err != nil {
		s.render(w, r, "settings", "Settings", nil, err)
		return
	}

	data := s.settingsData(cfg)
	probe, err := s.svc.Schedule.ProbeSheet(r.Context(), cfg)
	if err != nil {
		data.ProbeErr = userMessage(err)
	} else {
		data.Probe = probe
	}
	s.render(w, r, "settings", "Settings", data, nil)
}

// GET /compose?date=YYYY-MM-DD&week=N
func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.svc.Settings.Load()
	if err != nil {
		s.render(w, r, "compose", "Compose", nil, err)
		return
	}

	entries, err := s.svc.Schedule.Load(r.Context(), cfg)
	if err != nil {
		s.render(w, r, "compose", "Compose", nil, err)
		return
	}

	data := composeData{
		Runs:        s.svc.Schedule.Upcoming(entries, cfg, true),
		Selected:    r.URL.Query().Get("date"),
		Week:        r.URL.Query().Get("week"),
		ChatEnabled: s.svc.Chat != nil && cfg.Integrations.Chat,
	}

	week, err := weekParam(r)
	if err != nil {
		s.render(w, r, "compose", "Compose", data, errors.New("week must be a number"))
		return
	}

	comp, err := s.svc.Messages.ComposeFrom(r.Context(), cfg, entries, data.Selected, week)
	if err != nil {
		s.render(w, r, "compose", "Compose", data, err)
		return
	}
	data.Composition = comp
	data.Selected = comp.Entry.DateKey()
	data.Week = strconv.Itoa(comp.WeekIndex)
	if comp.Enrichment != nil {
		data.Category = service.ClassifyWeather(comp.Enrichment.Forecast, cfg.Messages)
	}

	s.render(w, r, "compose", "Compose", data, nil)
}

// POST /compose/publish - post the chat variant to the group chat
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	date := r.FormValue("date")
	back := "/compose"
	if date != "" {
		back += "?date=" + url.QueryEscape(date)
	}

	if s.svc.Chat == nil || s.svc.Announce == nil {
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	if _, err := s.svc.Announce.Publish(r.Context(), s.svc.Chat, date); err != nil {
		log.Printf("Publish %s: %v", date, err)
		s.failAction(w, r, "/compose", err)
		return
	}

	log.Printf("Published chat announcement for %s", date)
	http.Redirect(w, r, back+flashSep(back)+"msg="+url.QueryEscape("Posted to the group chat"), http.StatusSeeOther)
}

func flashSep(path string) string {
	if strings.Contains(path, "?") {
		return "&"
	}
	return "?"
}

// GET /calendar
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	data, err := s.calendarData(r, nil)
	s.render(w, r, "calendar", "Calendar", data, err)
}

func (s *Server) calendarData(r *http.Request, result *service.SyncResult) (*calendarData, error) {
	cfg, err := s.svc.Settings.Load()
	if err != nil {
		return nil, err
	}

	calendarID := cfg.Calendar.CalendarID
	if calendarID == "" {
		calendarID = service.CalendarIDFromPath(cfg.Calendar.CalendarPath)
	}

	data := &calendarData{
		Configured:   s.svc.Calendar.IsConfigured(cfg),
		CalendarPath: cfg.Calendar.CalendarPath,
		FeedURL:      s.cfg.PublicURL + "/calendar.ics",
		SubscribeURL: service.SubscribeURL(calendarID),
		WebViewURL:   service.WebViewURL(calendarID),
		Result:       result,
	}

	if ledger, err := s.svc.Calendar.SyncedEvents(); err == nil {
		data.Ledger = ledger
	} else {
		log.Printf("Sync ledger: %v", err)
	}

	if cfg.Sheet.SpreadsheetID == "" {
		return data, nil
	}
	entries, err := s.svc.Schedule.Load(r.Context(), cfg)
	if err != nil {
		return data, err
	}
	data.Upcoming = s.svc.Schedule.Upcoming(entries, cfg, true)
	return data, nil
}

// POST /calendar/sync - dry_run=1 previews without writing
func (s *Server) handleCalendarSync(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.svc.Settings.Load()
	if err != nil {
		s.failAction(w, r, "/calendar", err)
		return
	}
	entries, err := s.svc.Schedule.Load(r.Context(), cfg)
	if err != nil {
		s.failAction(w, r, "/calendar", err)
		return
	}

	dryRun := r.FormValue("dry_run") != ""
	result, err := s.svc.Calendar.Sync(r.Context(), cfg, entries, dryRun)
	if err != nil {
		s.failAction(w, r, "/calendar", err)
		return
	}

	data, err := s.calendarData(r, result)
	if err == nil && !dryRun {
		if summary := service.SyncErrorSummary(result); summary != "" {
			err = errors.New(summary)
		}
	}
	s.render(w, r, "calendar", "Calendar", data, err)
}

// POST /calendar/discover - list calendars on the connected account
func (s *Server) handleCalendarDiscover(w http.ResponseWriter, r *http.Request) {
	cals, err := s.svc.Calendar.DiscoverCalendars(r.Context())
	if err != nil {
		s.failAction(w, r, "/calendar", err)
		return
	}

	data, err := s.calendarData(r, nil)
	if data != nil {
		data.Calendars = cals
	}
	s.render(w, r, "calendar", "Calendar", data, err)
}

// POST /calendar/select - store the chosen calendar
func (s *Server) handleCalendarSelect(w http.ResponseWriter, r *http.Request) {
	path := r.FormValue("path")
	if path == "" {
		redirect(w, r, "/calendar", "error", "No calendar selected")
		return
	}

	cfg, err := s.svc.Settings.Load()
	if err != nil {
		redirect(w, r, "/calendar", "error", err.Error())
		return
	}
	cfg.Calendar.CalendarPath = path
	cfg.Calendar.CalendarID = service.CalendarIDFromPath(path)
	if err := s.svc.Settings.Save(cfg); err != nil {
		redirect(w, r, "/calendar", "error", err.Error())
		return
	}
	redirect(w, r, "/calendar", "msg", "Calendar selected")
}
