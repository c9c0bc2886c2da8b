package domain

import "time"

// Provider identifies an OAuth provider
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderStrava Provider = "strava"
)

// AuthState is the position of a provider in the authorization-code flow
type AuthState string

const (
	AuthUnauthenticated AuthState = "unauthenticated"
	AuthPendingCallback AuthState = "pending_callback"
	AuthAuthorized      AuthState = "authorized"
)

// OAuthToken is a stored provider token together with its flow state
type OAuthToken struct {
	Provider     Provider
	State        AuthState
	PendingState string // random state parameter awaiting the callback
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       *time.Time
	UpdatedAt    time.Time
}
