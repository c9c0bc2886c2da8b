package service

import (
	"context"
	"fmt"

	"github.com/tazhate/rungroup/internal/domain"
)

// ChatPoster posts text to the group chat
type ChatPoster interface {
	Post(text string) error
}

// AnnounceService answers chat commands and publishes the chat variant
// using the saved group settings
type AnnounceService struct {
	settings *SettingsService
	schedule *ScheduleService
	messages *MessageService
}

func NewAnnounceService(settings *SettingsService, schedule *ScheduleService, messages *MessageService) *AnnounceService {
	return &AnnounceService{settings: settings, schedule: schedule, messages: messages}
}

// UpcomingRuns returns up to n runs that are not cancelled
func (s *AnnounceService) UpcomingRuns(ctx context.Context, n int) ([]domain.ScheduleEntry, error) {
	cfg, err := s.settings.Load()
	if err != nil {
		return nil, err
	}
	entries, err := s.schedule.Load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	upcoming := s.schedule.Upcoming(entries, cfg, false)
	if n > 0 && len(upcoming) > n {
		upcoming = upcoming[:n]
	}
	return upcoming, nil
}

// ChatMessage renders the chat variant for a run date, or the next run
// when dateKey is empty
func (s *AnnounceService) ChatMessage(ctx context.Context, dateKey string) (string, error) {
	cfg, err := s.settings.Load()
	if err != nil {
		return "", err
	}
	comp, err := s.messages.Compose(ctx, cfg, dateKey, nil)
	if err != nil {
		return "", err
	}
	return comp.Messages.Chat.Text, nil
}

// Publish posts the chat variant for a run date to the group chat. It
// refuses when no poster is wired or the chat integration is disabled.
func (s *AnnounceService) Publish(ctx context.Context, poster ChatPoster, dateKey string) (string, error) {
	if poster == nil {
		return "", fmt.Errorf("chat: %w", domain.ErrNotConfigured)
	}
	cfg, err := s.settings.Load()
	if err != nil {
		return "", err
	}
	if !cfg.Integrations.Chat {
		return "", fmt.Errorf("chat integration disabled: %w", domain.ErrNotConfigured)
	}
	comp, err := s.messages.Compose(ctx, cfg, dateKey, nil)
	if err != nil {
		return "", err
	}
	text := comp.Messages.Chat.Text
	if err := poster.Post(text); err != nil {
		return "", err
	}
	return text, nil
}
