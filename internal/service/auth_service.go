package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tazhate/rungroup/config"
	"github.com/tazhate/rungroup/internal/domain"
	"github.com/tazhate/rungroup/internal/storage"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

var (
	GoogleScopes = []string{
		"https://www.googleapis.com/auth/calendar",
		"https://www.googleapis.com/auth/spreadsheets.readonly",
	}
	// Strava separates scopes with commas inside one parameter
	StravaScopes = []string{"read,read_all,activity:read"}
)

var (
	errStateMismatch = errors.New("state does not match a pending authorization")
	errNotConnected  = errors.New("not connected")
)

// AuthService runs the OAuth authorization-code flows and hands out
// authorized HTTP clients. Each provider moves through
// unauthenticated -> pending_callback -> authorized.
type AuthService struct {
	storage  *storage.Storage
	configs  map[domain.Provider]*oauth2.Config
	newState func() string

	mu sync.Mutex // serialises state transitions
}

func NewAuthService(s *storage.Storage, cfg *config.Config) *AuthService {
	a := &AuthService{
		storage:  s,
		configs:  make(map[domain.Provider]*oauth2.Config),
		newState: uuid.NewString,
	}

	if cfg.GoogleEnabled() {
		a.configs[domain.ProviderGoogle] = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     endpoints.Google,
			RedirectURL:  cfg.RedirectURL(string(domain.ProviderGoogle)),
			Scopes:       GoogleScopes,
		}
	}
	if cfg.StravaEnabled() {
		ep := endpoints.Strava
		ep.AuthStyle = oauth2.AuthStyleInParams
		a.configs[domain.ProviderStrava] = &oauth2.Config{
			ClientID:     cfg.StravaClientID,
			ClientSecret: cfg.StravaClientSecret,
			Endpoint:     ep,
			RedirectURL:  cfg.RedirectURL(string(domain.ProviderStrava)),
			Scopes:       StravaScopes,
		}
	}

	return a
}

// SetEndpoint overrides a provider's OAuth endpoint (used by tests)
func (a *AuthService) SetEndpoint(p domain.Provider, ep oauth2.Endpoint) {
	if c, ok := a.configs[p]; ok {
		c.Endpoint = ep
	}
}

// Enabled reports whether client credentials exist for the provider
func (a *AuthService) Enabled(p domain.Provider) bool {
	_, ok := a.configs[p]
	return ok
}

// ParseProvider validates a provider name from a URL
func ParseProvider(name string) (domain.Provider, error) {
	switch p := domain.Provider(name); p {
	case domain.ProviderGoogle, domain.ProviderStrava:
		return p, nil
	}
	return "", fmt.Errorf("unknown provider %q", name)
}

// State returns where the provider is in the flow
func (a *AuthService) State(p domain.Provider) (domain.AuthState, error) {
	tok, err := a.storage.GetToken(p)
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	if tok == nil || tok.State == "" {
		return domain.AuthUnauthenticated, nil
	}
	return tok.State, nil
}

// Connected reports whether a usable token is stored
func (a *AuthService) Connected(p domain.Provider) bool {
	tok, err := a.storage.GetToken(p)
	return err == nil && tok != nil && hasCredentials(tok)
}

// Begin moves the provider to pending_callback and returns the URL to
// redirect the user to
func (a *AuthService) Begin(p domain.Provider) (string, error) {
	cfg, ok := a.configs[p]
	if !ok {
		return "", &domain.AuthError{Provider: p, Err: domain.ErrNotConfigured}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tok, err := a.storage.GetToken(p)
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	if tok == nil {
		tok = &domain.OAuthToken{Provider: p}
	}

	state := a.newState()
	tok.State = domain.AuthPendingCallback
	tok.PendingState = state
	if err := a.storage.SaveToken(tok); err != nil {
		return "", fmt.Errorf("save pending state: %w", err)
	}

	opts := []oauth2.AuthCodeOption{}
	if p == domain.ProviderGoogle {
		opts = append(opts, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	} else {
		opts = append(opts, oauth2.SetAuthURLParam("approval_prompt", "auto"))
	}

	return cfg.AuthCodeURL(state, opts...), nil
}

// Callback completes the flow. providerErr is the "error" query parameter
// the provider sends when the user declines. Any failure returns
// *domain.AuthError and leaves the provider unauthenticated (or on its
// previous token if it had one).
func (a *AuthService) Callback(ctx context.Context, p domain.Provider, state, code, providerErr string) error {
	cfg, ok := a.configs[p]
	if !ok {
		return &domain.AuthError{Provider: p, Err: domain.ErrNotConfigured}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tok, err := a.storage.GetToken(p)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}

	fail := func(cause error) error {
		if tok != nil {
			tok.PendingState = ""
			tok.State = domain.AuthUnauthenticated
			if hasCredentials(tok) {
				tok.State = domain.AuthAuthorized
			}
			if err := a.storage.SaveToken(tok); err != nil {
				log.Printf("Failed to reset %s auth state: %v", p, err)
			}
		}
		return &domain.AuthError{Provider: p, Err: cause}
	}

	if tok == nil || tok.State != domain.AuthPendingCallback || tok.PendingState == "" || tok.PendingState != state {
		return fail(errStateMismatch)
	}
	if providerErr != "" {
		return fail(fmt.Errorf("provider returned %s", providerErr))
	}
	if code == "" {
		return fail(errors.New("missing authorization code"))
	}

	t, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fail(fmt.Errorf("exchange code: %w", err))
	}

	stored := fromOAuth2(p, t)
	// Google omits the refresh token on re-consent; keep the old one
	if stored.RefreshToken == "" {
		stored.RefreshToken = tok.RefreshToken
	}
	if err := a.storage.SaveToken(stored); err != nil {
		return fmt.Errorf("save token: %w", err)
	}

	log.Printf("Connected %s", p)
	return nil
}

// Disconnect forgets the stored token
func (a *AuthService) Disconnect(p domain.Provider) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.storage.DeleteToken(p)
}

// HTTPClient returns a client that authorizes requests with the stored
// token, refreshing and persisting it as needed
func (a *AuthService) HTTPClient(ctx context.Context, p domain.Provider) (*http.Client, error) {
	cfg, ok := a.configs[p]
	if !ok {
		return nil, &domain.AuthError{Provider: p, Err: domain.ErrNotConfigured}
	}

	tok, err := a.storage.GetToken(p)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	if tok == nil || !hasCredentials(tok) {
		return nil, &domain.AuthError{Provider: p, Err: errNotConnected}
	}

	// Refreshes must outlive the request that triggered them
	base := cfg.TokenSource(context.WithoutCancel(ctx), toOAuth2(tok))
	ts := &persistingTokenSource{
		base:     base,
		provider: p,
		storage:  a.storage,
		last:     tok.AccessToken,
	}

	client := oauth2.NewClient(ctx, ts)
	client.Timeout = 30 * time.Second
	return client, nil
}

// persistingTokenSource saves refreshed tokens so they survive restarts
type persistingTokenSource struct {
	base     oauth2.TokenSource
	provider domain.Provider
	storage  *storage.Storage

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.base.Token()
	if err != nil {
		return nil, &domain.AuthError{Provider: s.provider, Err: fmt.Errorf("refresh token: %w", err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t.AccessToken != s.last {
		if err := s.storage.SaveToken(fromOAuth2(s.provider, t)); err != nil {
			log.Printf("Failed to persist refreshed %s token: %v", s.provider, err)
		} else {
			s.last = t.AccessToken
		}
	}
	return t, nil
}

func hasCredentials(t *domain.OAuthToken) bool {
	return t.AccessToken != "" || t.RefreshToken != ""
}

func toOAuth2(t *domain.OAuthToken) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
	}
	if t.Expiry != nil {
		tok.Expiry = *t.Expiry
	}
	return tok
}

func fromOAuth2(p domain.Provider, t *oauth2.Token) *domain.OAuthToken {
	tok := &domain.OAuthToken{
		Provider:     p,
		State:        domain.AuthAuthorized,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
	}
	if !t.Expiry.IsZero() {
		exp := t.Expiry
		tok.Expiry = &exp
	}
	return tok
}
