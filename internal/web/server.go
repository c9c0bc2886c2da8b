package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/tazhate/rungroup/config"
	"github.com/tazhate/rungroup/internal/service"
)

//go:embed templates/*.html static/*
var assets embed.FS

// Services are the application services the UI drives
type Services struct {
	Settings *service.SettingsService
	Schedule *service.ScheduleService
	Messages *service.MessageService
	Calendar *service.CalendarService
	Auth     *service.AuthService
	Announce *service.AnnounceService
	// Chat is nil when no chat bot is configured
	Chat service.ChatPoster
}

// Server is the web UI and JSON API
type Server struct {
	cfg    *config.Config
	svc    Services
	mux    *http.ServeMux
	pages  map[string]*template.Template
	server *http.Server
}

func NewServer(cfg *config.Config, svc Services) (*Server, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:   cfg,
		svc:   svc,
		mux:   http.NewServeMux(),
		pages: pages,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	// Public
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /calendar.ics", s.handleFeed)
	s.mux.HandleFunc("GET /auth/{provider}/callback", s.handleAuthCallback)

	// Pages
	s.mux.HandleFunc("GET /{$}", s.handleHome)
	s.mux.HandleFunc("GET /settings", s.handleSettings)
	s.mux.HandleFunc("POST /settings", s.handleSettingsSave)
	s.mux.HandleFunc("POST /settings/import", s.handleSettingsImport)
	s.mux.HandleFunc("GET /settings/export", s.handleSettingsExport)
	s.mux.HandleFunc("POST /settings/test-sheet", s.handleSheetTest)
	s.mux.HandleFunc("GET /compose", s.handleCompose)
	s.mux.HandleFunc("POST /compose/publish", s.handlePublish)
	s.mux.HandleFunc("GET /calendar", s.handleCalendar)
	s.mux.HandleFunc("POST /calendar/sync", s.handleCalendarSync)
	s.mux.HandleFunc("POST /calendar/discover", s.handleCalendarDiscover)
	s.mux.HandleFunc("POST /calendar/select", s.handleCalendarSelect)

	// OAuth
	s.mux.HandleFunc("GET /auth/{provider}/start", s.handleAuthStart)
	s.mux.HandleFunc("POST /auth/{provider}/disconnect", s.handleAuthDisconnect)

	// JSON API
	s.mux.HandleFunc("GET /api/schedule", s.apiSchedule)
	s.mux.HandleFunc("GET /api/messages", s.apiMessages)
	s.mux.HandleFunc("POST /api/calendar/sync", s.apiCalendarSync)
	s.mux.HandleFunc("POST /api/announce", s.apiAnnounce)

	static, _ := fs.Sub(assets, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
}

// Handler returns the mux wrapped with basic auth when it is configured
func (s *Server) Handler() http.Handler {
	if !s.cfg.UIAuthEnabled() {
		return s.mux
	}
	return s.basicAuth(s.mux)
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              ":" + s.cfg.ServerPort,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Web UI listening on :%s (%s)", s.cfg.ServerPort, s.cfg.PublicURL)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// isPublic reports whether a path skips basic auth. OAuth providers
// redirect the browser to the callback without credentials.
func isPublic(path string) bool {
	switch path {
	case "/health", "/calendar.ics":
		return true
	}
	return strings.HasPrefix(path, "/auth/") && strings.HasSuffix(path, "/callback")
}

// basicAuth middleware
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		username, password, ok := r.BasicAuth()
		if !ok || !secureCompare(username, s.cfg.UIUsername) || !secureCompare(password, s.cfg.UIPassword) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Running Group", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
	"lines": func(list []string) string {
		return strings.Join(list, "\n")
	},
	"date": func(t time.Time) string {
		return t.Format("Mon 2 Jan 2006")
	},
	"datetime": func(t time.Time) string {
		return t.Format("2 Jan 2006 15:04")
	},
	"km": func(v *float64) string {
		if v == nil {
			return ""
		}
		return fmt.Sprintf("%.1f km", *v)
	},
}

var pageNames = []string{"home", "settings", "compose", "calendar"}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(assets, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}
