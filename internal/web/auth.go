package web

import (
	"log"
	"net/http"
	"net/url"

	"github.com/tazhate/rungroup/internal/service"
)

// GET /auth/{provider}/start - redirect to the provider consent screen
func (s *Server) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	p, err := service.ParseProvider(r.PathValue("provider"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	authURL, err := s.svc.Auth.Begin(p)
	if err != nil {
		log.Printf("Auth start %s: %v", p, err)
		redirect(w, r, "/settings", "error", userMessage(err))
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// GET /auth/{provider}/callback - public, the provider redirects here
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	p, err := service.ParseProvider(r.PathValue("provider"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	if err := s.svc.Auth.Callback(r.Context(), p, q.Get("state"), q.Get("code"), q.Get("error")); err != nil {
		log.Printf("Auth callback %s: %v", p, err)
		http.Redirect(w, r, "/settings?error="+url.QueryEscape(userMessage(err))+"&reauth="+string(p), http.StatusSeeOther)
		return
	}
	redirect(w, r, "/settings", "msg", "Connected "+string(p))
}

// POST /auth/{provider}/disconnect
func (s *Server) handleAuthDisconnect(w http.ResponseWriter, r *http.Request) {
	p, err := service.ParseProvider(r.PathValue("provider"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	if err := s.svc.Auth.Disconnect(p); err != nil {
		redirect(w, r, "/settings", "error", err.Error())
		return
	}
	log.Printf("Disconnected %s", p)
	redirect(w, r, "/settings", "msg", "Disconnected "+string(p))
}
