package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultCalDAVURL  = "https://apidata.googleusercontent.com/caldav/v2/"
	DefaultWeatherURL = "https://api.open-meteo.com/v1/forecast"
)

type Config struct {
	DatabasePath string
	Timezone     *time.Location
	ServerPort   string
	PublicURL    string

	UIUsername string
	UIPassword string

	GoogleClientID     string
	GoogleClientSecret string
	StravaClientID     string
	StravaClientSecret string

	CalDAVURL      string
	CalDAVUsername string
	CalDAVPassword string

	TelegramToken  string
	TelegramChatID int64

	SyncCron        string
	GroupConfigFile string
	WeatherURL      string
}

func Load() (*Config, error) {
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/rungroup.db"
	}

	tzName := os.Getenv("TIMEZONE")
	if tzName == "" {
		tzName = "Europe/London"
	}
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	publicURL := strings.TrimRight(os.Getenv("PUBLIC_URL"), "/")
	if publicURL == "" {
		publicURL = "http://localhost:" + serverPort
	}

	var chatID int64
	if c := os.Getenv("TELEGRAM_CHAT_ID"); c != "" {
		chatID, err = strconv.ParseInt(c, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID must be a number")
		}
	}

	caldavURL := os.Getenv("CALDAV_URL")
	if caldavURL == "" {
		caldavURL = DefaultCalDAVURL
	}

	weatherURL := os.Getenv("WEATHER_API_URL")
	if weatherURL == "" {
		weatherURL = DefaultWeatherURL
	}

	cfg := &Config{
		DatabasePath:       dbPath,
		Timezone:           tz,
		ServerPort:         serverPort,
		PublicURL:          publicURL,
		UIUsername:         os.Getenv("UI_USERNAME"),
		UIPassword:         os.Getenv("UI_PASSWORD"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		StravaClientID:     os.Getenv("STRAVA_CLIENT_ID"),
		StravaClientSecret: os.Getenv("STRAVA_CLIENT_SECRET"),
		CalDAVURL:          caldavURL,
		CalDAVUsername:     os.Getenv("CALDAV_USERNAME"),
		CalDAVPassword:     os.Getenv("CALDAV_PASSWORD"),
		TelegramToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:     chatID,
		SyncCron:           os.Getenv("SYNC_CRON"),
		GroupConfigFile:    os.Getenv("GROUP_CONFIG_FILE"),
		WeatherURL:         weatherURL,
	}

	if cfg.TelegramToken != "" && cfg.TelegramChatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	return cfg, nil
}

// GoogleEnabled reports whether the Google OAuth client is configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// StravaEnabled reports whether the Strava OAuth client is configured.
func (c *Config) StravaEnabled() bool {
	return c.StravaClientID != "" && c.StravaClientSecret != ""
}

// CalDAVBasicAuth reports whether the calendar uses username/password
// instead of the Google OAuth token.
func (c *Config) CalDAVBasicAuth() bool {
	return c.CalDAVUsername != "" && c.CalDAVPassword != ""
}

// RedirectURL returns the OAuth callback registered for a provider.
func (c *Config) RedirectURL(provider string) string {
	return c.PublicURL + "/auth/" + provider + "/callback"
}

// UIAuthEnabled reports whether the web UI is gated by basic auth.
func (c *Config) UIAuthEnabled() bool {
	return c.UIUsername != "" && c.UIPassword != ""
}
