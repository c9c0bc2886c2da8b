package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tazhate/rungroup/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS oauth_tokens (
			provider TEXT PRIMARY KEY,
			state TEXT NOT NULL DEFAULT 'unauthenticated',
			pending_state TEXT DEFAULT '',
			access_token TEXT DEFAULT '',
			refresh_token TEXT DEFAULT '',
			token_type TEXT DEFAULT '',
			expiry DATETIME,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		// Ledger of events pushed to the external calendar, one per run date
		`CREATE TABLE IF NOT EXISTS calendar_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_date TEXT UNIQUE NOT NULL,
			caldav_uid TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			synced_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_events_caldav ON calendar_events(caldav_uid)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", err)
			}
		}
	}
	return nil
}

// === Settings ===

// GetSetting returns the value for key; ok is false when it was never set
func (s *Storage) GetSetting(key string) (value string, ok bool, err error) {
	err = s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Storage) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now(),
	)
	return err
}

func (s *Storage) DeleteSetting(key string) error {
	_, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	return err
}

// === OAuth tokens ===

// GetToken returns the stored token for a provider, or nil if none
func (s *Storage) GetToken(provider domain.Provider) (*domain.OAuthToken, error) {
	t := &domain.OAuthToken{}
	var state string
	err := s.db.QueryRow(
		`SELECT provider, state, pending_state, access_token, refresh_token, token_type, expiry, updated_at
		 FROM oauth_tokens WHERE provider = ?`,
		provider,
	).Scan(&t.Provider, &state, &t.PendingState, &t.AccessToken, &t.RefreshToken, &t.TokenType, &t.Expiry, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.State = domain.AuthState(state)
	return t, nil
}

func (s *Storage) SaveToken(t *domain.OAuthToken) error {
	t.UpdatedAt = time.Now()
	_, err := s.db.Exec(
		`INSERT INTO oauth_tokens (provider, state, pending_state, access_token, refresh_token, token_type, expiry, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(provider) DO UPDATE SET
			state = excluded.state,
			pending_state = excluded.pending_state,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at`,
		t.Provider, string(t.State), t.PendingState, t.AccessToken, t.RefreshToken, t.TokenType, t.Expiry, t.UpdatedAt,
	)
	return err
}

func (s *Storage) DeleteToken(provider domain.Provider) error {
	_, err := s.db.Exec(`DELETE FROM oauth_tokens WHERE provider = ?`, provider)
	return err
}

// === Calendar ledger ===

// UpsertSyncedEvent records that the event for a run date was pushed
func (s *Storage) UpsertSyncedEvent(e *domain.SyncedEvent) error {
	if e.SyncedAt.IsZero() {
		e.SyncedAt = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO calendar_events (run_date, caldav_uid, title, synced_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_date) DO UPDATE SET caldav_uid = excluded.caldav_uid, title = excluded.title, synced_at = excluded.synced_at`,
		e.RunDate, e.CalDAVUID, e.Title, e.SyncedAt,
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		e.ID = id
	}
	return nil
}

// GetSyncedEvent returns the ledger row for a run date, or nil
func (s *Storage) GetSyncedEvent(runDate string) (*domain.SyncedEvent, error) {
	e := &domain.SyncedEvent{}
	err := s.db.QueryRow(
		`SELECT id, run_date, caldav_uid, title, synced_at FROM calendar_events WHERE run_date = ?`,
		runDate,
	).Scan(&e.ID, &e.RunDate, &e.CalDAVUID, &e.Title, &e.SyncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// DeleteSyncedEvent removes the ledger row for a run date
func (s *Storage) DeleteSyncedEvent(runDate string) error {
	_, err := s.db.Exec(`DELETE FROM calendar_events WHERE run_date = ?`, runDate)
	return err
}

// ListSyncedEvents returns all ledger rows ordered by run date
func (s *Storage) ListSyncedEvents() ([]*domain.SyncedEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, run_date, caldav_uid, title, synced_at FROM calendar_events ORDER BY run_date ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.SyncedEvent
	for rows.Next() {
		e := &domain.SyncedEvent{}
		if err := rows.Scan(&e.ID, &e.RunDate, &e.CalDAVUID, &e.Title, &e.SyncedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
