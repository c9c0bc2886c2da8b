package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tazhate/rungroup/config"
	"github.com/tazhate/rungroup/internal/domain"
	"golang.org/x/oauth2"
)

// fakeProvider serves the token endpoint and a protected API
type fakeProvider struct {
	*httptest.Server
	issued atomic.Int32
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
		case "refresh_token":
			if r.PostForm.Get("refresh_token") != "refresh-1" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
		}
		n := p.issued.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-" + string(rune('0'+n)),
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("Authorization")))
	})
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func newTestAuth(t *testing.T, provider *fakeProvider) *AuthService {
	t.Helper()
	cfg := &config.Config{
		PublicURL:          "http://localhost:8080",
		GoogleClientID:     "client-id",
		GoogleClientSecret: "client-secret",
	}
	a := NewAuthService(newTestStorage(t), cfg)
	a.SetEndpoint(domain.ProviderGoogle, oauth2.Endpoint{
		AuthURL:   provider.URL + "/auth",
		TokenURL:  provider.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	})
	a.newState = func() string { return "state-1" }
	return a
}

func TestAuthFlow(t *testing.T) {
	provider := newFakeProvider(t)
	a := newTestAuth(t, provider)
	ctx := context.Background()

	authURL, err := a.Begin(domain.ProviderGoogle)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("state") != "state-1" || q.Get("access_type") != "offline" {
		t.Errorf("auth url query = %v", q)
	}
	if q.Get("redirect_uri") != "http://localhost:8080/auth/google/callback" {
		t.Errorf("redirect_uri = %s", q.Get("redirect_uri"))
	}
	if st, _ := a.State(domain.ProviderGoogle); st != domain.AuthPendingCallback {
		t.Errorf("state after Begin = %s", st)
	}

	if err := a.Callback(ctx, domain.ProviderGoogle, "state-1", "good-code", ""); err != nil {
		t.Fatalf("Callback: %v", err)
	}
	if st, _ := a.State(domain.ProviderGoogle); st != domain.AuthAuthorized {
		t.Errorf("state after Callback = %s", st)
	}
	if !a.Connected(domain.ProviderGoogle) {
		t.Error("expected provider to be connected")
	}

	hc, err := a.HTTPClient(ctx, domain.ProviderGoogle)
	if err != nil {
		t.Fatalf("HTTPClient: %v", err)
	}
	resp, err := hc.Get(provider.URL + "/api")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if got := string(body); got != "Bearer access-1" {
		t.Errorf("authorization header = %q", got)
	}

	if err := a.Disconnect(domain.ProviderGoogle); err != nil {
		t.Fatal(err)
	}
	if a.Connected(domain.ProviderGoogle) {
		t.Error("still connected after Disconnect")
	}
}

func TestAuthCallbackFailures(t *testing.T) {
	provider := newFakeProvider(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		begin       bool
		state, code string
		providerErr string
	}{
		{name: "no pending flow", state: "state-1", code: "good-code"},
		{name: "state mismatch", begin: true, state: "forged", code: "good-code"},
		{name: "user declined", begin: true, state: "state-1", providerErr: "access_denied"},
		{name: "missing code", begin: true, state: "state-1"},
		{name: "exchange rejected", begin: true, state: "state-1", code: "bad-code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAuth(t, provider)
			if tt.begin {
				if _, err := a.Begin(domain.ProviderGoogle); err != nil {
					t.Fatal(err)
				}
			}

			err := a.Callback(ctx, domain.ProviderGoogle, tt.state, tt.code, tt.providerErr)
			var ae *domain.AuthError
			if !errors.As(err, &ae) || ae.Provider != domain.ProviderGoogle {
				t.Fatalf("err = %v, want *AuthError", err)
			}
			if st, _ := a.State(domain.ProviderGoogle); st != domain.AuthUnauthenticated {
				t.Errorf("state = %s, want unauthenticated", st)
			}
			if a.Connected(domain.ProviderGoogle) {
				t.Error("failed flow left a token behind")
			}
		})
	}
}

func TestAuthRefreshPersists(t *testing.T) {
	provider := newFakeProvider(t)
	a := newTestAuth(t, provider)

	expired := time.Now().Add(-time.Hour)
	err := a.storage.SaveToken(&domain.OAuthToken{
		Provider:     domain.ProviderGoogle,
		State:        domain.AuthAuthorized,
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       &expired,
	})
	if err != nil {
		t.Fatal(err)
	}

	hc, err := a.HTTPClient(context.Background(), domain.ProviderGoogle)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := hc.Get(provider.URL + "/api")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	tok, err := a.storage.GetToken(domain.ProviderGoogle)
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "access-1" || tok.RefreshToken != "refresh-1" {
		t.Errorf("stored token after refresh = %+v", tok)
	}
}

func TestAuthNotConfigured(t *testing.T) {
	a := newTestAuth(t, newFakeProvider(t))

	if a.Enabled(domain.ProviderStrava) {
		t.Fatal("strava has no client credentials")
	}
	_, err := a.Begin(domain.ProviderStrava)
	if !errors.Is(err, domain.ErrNotConfigured) {
		t.Errorf("Begin: err = %v", err)
	}

	_, err = a.HTTPClient(context.Background(), domain.ProviderGoogle)
	var ae *domain.AuthError
	if !errors.As(err, &ae) {
		t.Errorf("HTTPClient without token: err = %v", err)
	}

	if _, err := ParseProvider("facebook"); err == nil {
		t.Error("ParseProvider accepted an unknown provider")
	}
}
