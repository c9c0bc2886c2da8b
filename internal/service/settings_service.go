package service

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tazhate/rungroup/internal/domain"
	"github.com/tazhate/rungroup/internal/storage"
	"gopkg.in/yaml.v3"
)

const groupConfigKey = "group_config"

// SettingsService loads and saves the group configuration
type SettingsService struct {
	storage *storage.Storage

	mu     sync.RWMutex
	cached *domain.GroupConfig
}

func NewSettingsService(s *storage.Storage) *SettingsService {
	return &SettingsService{storage: s}
}

// Load returns the stored configuration, or the defaults before first setup.
// The returned value is a copy and safe to modify.
func (s *SettingsService) Load() (*domain.GroupConfig, error) {
	s.mu.RLock()
	if s.cached != nil {
		cfg := cloneConfig(s.cached)
		s.mu.RUnlock()
		return cfg, nil
	}
	s.mu.RUnlock()

	raw, ok, err := s.storage.GetSetting(groupConfigKey)
	if err != nil {
		return nil, fmt.Errorf("load group config: %w", err)
	}

	cfg := domain.DefaultGroupConfig()
	if ok {
		cfg, err = ParseGroupConfig([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("stored group config: %w", err)
		}
	}

	s.mu.Lock()
	s.cached = cfg
	s.mu.Unlock()

	return cloneConfig(cfg), nil
}

// IsConfigured reports whether a configuration has been saved
func (s *SettingsService) IsConfigured() (bool, error) {
	_, ok, err := s.storage.GetSetting(groupConfigKey)
	return ok, err
}

// Save validates and persists the configuration
func (s *SettingsService) Save(cfg *domain.GroupConfig) error {
	cfg.Normalize()
	if err := ValidateGroupConfig(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal group config: %w", err)
	}
	if err := s.storage.SetSetting(groupConfigKey, string(data)); err != nil {
		return fmt.Errorf("save group config: %w", err)
	}

	s.mu.Lock()
	s.cached = cloneConfig(cfg)
	s.mu.Unlock()

	return nil
}

// Reset removes the stored configuration so defaults apply again
func (s *SettingsService) Reset() error {
	if err := s.storage.DeleteSetting(groupConfigKey); err != nil {
		return err
	}
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
	return nil
}

// ExportYAML returns the current configuration as YAML
func (s *SettingsService) ExportYAML() ([]byte, error) {
	cfg, err := s.Load()
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(cfg)
}

// ImportYAML replaces the configuration with the given YAML document
func (s *SettingsService) ImportYAML(data []byte) (*domain.GroupConfig, error) {
	cfg, err := ParseGroupConfig(data)
	if err != nil {
		return nil, err
	}
	if err := s.Save(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SeedFromFile imports a YAML file when nothing has been saved yet.
// It returns true when the file was imported.
func (s *SettingsService) SeedFromFile(path string) (bool, error) {
	if path == "" {
		return false, nil
	}

	configured, err := s.IsConfigured()
	if err != nil {
		return false, err
	}
	if configured {
		return false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("Group config seed %s not found, using defaults", path)
			return false, nil
		}
		return false, fmt.Errorf("read seed file: %w", err)
	}

	if _, err := s.ImportYAML(data); err != nil {
		return false, fmt.Errorf("import %s: %w", path, err)
	}
	log.Printf("Imported group config from %s", path)
	return true, nil
}

// ParseGroupConfig decodes YAML on top of the defaults
func ParseGroupConfig(data []byte) (*domain.GroupConfig, error) {
	cfg := domain.DefaultGroupConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse group config: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// ValidateGroupConfig checks values the forms cannot constrain
func ValidateGroupConfig(cfg *domain.GroupConfig) error {
	var problems []string

	if _, err := time.Parse("15:04", cfg.Group.StartTime); err != nil {
		problems = append(problems, fmt.Sprintf("start time %q must be HH:MM", cfg.Group.StartTime))
	}
	if cfg.Group.Latitude < -90 || cfg.Group.Latitude > 90 {
		problems = append(problems, "latitude must be between -90 and 90")
	}
	if cfg.Group.Longitude < -180 || cfg.Group.Longitude > 180 {
		problems = append(problems, "longitude must be between -180 and 180")
	}
	for _, d := range cfg.Group.RunDays {
		if d < domain.WeekdaySunday || d > domain.WeekdaySaturday {
			problems = append(problems, fmt.Sprintf("run day %d out of range", d))
		}
	}
	for _, md := range cfg.NoRunDates.Annual {
		if md.Month < 1 || md.Month > 12 || md.Day < 1 || md.Day > 31 {
			problems = append(problems, fmt.Sprintf("no-run date %d/%d is invalid", md.Day, md.Month))
		}
	}
	for _, d := range cfg.NoRunDates.Specific {
		if _, err := time.Parse("2006-01-02", strings.TrimSpace(d)); err != nil {
			problems = append(problems, fmt.Sprintf("no-run date %q must be YYYY-MM-DD", d))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid group config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func cloneConfig(cfg *domain.GroupConfig) *domain.GroupConfig {
	c := *cfg
	c.Group.RunDays = append([]domain.Weekday(nil), cfg.Group.RunDays...)
	c.Sheet.Columns = make(map[string]string, len(cfg.Sheet.Columns))
	for k, v := range cfg.Sheet.Columns {
		c.Sheet.Columns[k] = v
	}
	c.Messages.Greetings = append([]string(nil), cfg.Messages.Greetings...)
	c.Messages.EmailClosings = append([]string(nil), cfg.Messages.EmailClosings...)
	c.Messages.SocialClosings = append([]string(nil), cfg.Messages.SocialClosings...)
	c.Messages.ChatClosings = append([]string(nil), cfg.Messages.ChatClosings...)
	c.Messages.ExtraOptions = append([]string(nil), cfg.Messages.ExtraOptions...)
	c.NoRunDates.Annual = append([]domain.MonthDay(nil), cfg.NoRunDates.Annual...)
	c.NoRunDates.Specific = append([]string(nil), cfg.NoRunDates.Specific...)
	return &c
}
