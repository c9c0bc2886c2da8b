package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tazhate/rungroup/config"
	"github.com/tazhate/rungroup/internal/service"
	"github.com/tazhate/rungroup/internal/storage"
)

// Runs further away than this are not announced yet
const announceWindow = 7 * 24 * time.Hour

const lastPostedKey = "chat_last_posted"

type MessageSender interface {
	SendMessage(chatID int64, text string) error
}

// Scheduler runs the weekly job: push the schedule to the calendar and
// post the next run to the group chat.
type Scheduler struct {
	cron     *cron.Cron
	cfg      *config.Config
	storage  *storage.Storage
	settings *service.SettingsService
	schedule *service.ScheduleService
	calendar *service.CalendarService
	messages *service.MessageService
	sender   MessageSender
	now      func() time.Time

	mu  sync.Mutex // one run at a time
	ctx context.Context
}

func New(cfg *config.Config, storage *storage.Storage, settings *service.SettingsService, schedule *service.ScheduleService,
	calendar *service.CalendarService, messages *service.MessageService) *Scheduler {
	location := cfg.Timezone
	if location == nil {
		location = time.Local
	}

	c := cron.New(cron.WithLocation(location))

	return &Scheduler{
		cron:     c,
		cfg:      cfg,
		storage:  storage,
		settings: settings,
		schedule: schedule,
		calendar: calendar,
		messages: messages,
		now:      time.Now,
		ctx:      context.Background(),
	}
}

func (s *Scheduler) SetSender(sender MessageSender) {
	s.sender = sender
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx

	if _, err := s.cron.AddFunc(s.cfg.SyncCron, s.weeklyRun); err != nil {
		return fmt.Errorf("add weekly job %q: %w", s.cfg.SyncCron, err)
	}

	s.cron.Start()
	log.Printf("Scheduler started (TZ: %s, spec: %s)", s.cfg.Timezone, s.cfg.SyncCron)

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Scheduler stopped")
}

func (s *Scheduler) weeklyRun() {
	if err := s.Run(s.ctx); err != nil {
		log.Printf("Weekly job failed: %v", err)
	}
}

// Run performs one pass of the weekly job
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.settings.Load()
	if err != nil {
		return err
	}

	entries, err := s.schedule.Load(ctx, cfg)
	if err != nil {
		return err
	}

	if s.calendar.IsConfigured(cfg) {
		res, err := s.calendar.Sync(ctx, cfg, entries, false)
		if err != nil {
			log.Printf("Scheduled calendar sync failed: %v", err)
		} else if msg := service.SyncErrorSummary(res); msg != "" {
			log.Printf("Scheduled calendar sync: %s", msg)
		}
	}

	if s.sender == nil || !cfg.Integrations.Chat {
		return nil
	}

	comp, err := s.messages.ComposeFrom(ctx, cfg, entries, "", nil)
	if errors.Is(err, service.ErrNoScheduledRun) {
		log.Println("No upcoming run to announce")
		return nil
	}
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	key := comp.Entry.DateKey()
	if comp.Entry.Date.Sub(s.now()) > announceWindow {
		log.Printf("Next run %s is more than a week away, not announcing", key)
		return nil
	}
	if last, ok, err := s.storage.GetSetting(lastPostedKey); err == nil && ok && last == key {
		return nil
	}

	if err := s.sender.SendMessage(s.cfg.TelegramChatID, comp.Messages.Chat.Text); err != nil {
		return fmt.Errorf("post to chat: %w", err)
	}
	if err := s.storage.SetSetting(lastPostedKey, key); err != nil {
		log.Printf("Failed to record chat post for %s: %v", key, err)
	}
	log.Printf("Announced run %s in chat", key)
	return nil
}
