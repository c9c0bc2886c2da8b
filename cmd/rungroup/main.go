package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tazhate/rungroup/config"
	"github.com/tazhate/rungroup/internal/bot"
	"github.com/tazhate/rungroup/internal/clients/caldav"
	"github.com/tazhate/rungroup/internal/clients/sheets"
	"github.com/tazhate/rungroup/internal/clients/weather"
	"github.com/tazhate/rungroup/internal/scheduler"
	"github.com/tazhate/rungroup/internal/service"
	"github.com/tazhate/rungroup/internal/storage"
	"github.com/tazhate/rungroup/internal/web"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// A .env file is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to read .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	settingsSvc := service.NewSettingsService(store)
	if _, err := settingsSvc.SeedFromFile(cfg.GroupConfigFile); err != nil {
		log.Fatalf("Failed to seed group config: %v", err)
	}

	authSvc := service.NewAuthService(store, cfg)

	scheduleSvc := service.NewScheduleService(service.NewSheetSource(sheets.NewClient(nil), authSvc))
	enrichmentSvc := service.NewEnrichmentService(weather.NewClient(cfg.WeatherURL), service.NewStravaSource(authSvc, ""))
	messageSvc := service.NewMessageService(scheduleSvc, enrichmentSvc)

	// Plain CalDAV servers use basic auth, Google uses the OAuth token
	stores := service.GoogleEventStore(cfg.CalDAVURL, authSvc)
	if cfg.CalDAVBasicAuth() {
		stores = service.StaticEventStore(caldav.NewClient(cfg.CalDAVURL, caldav.BasicAuthHTTPClient(cfg.CalDAVUsername, cfg.CalDAVPassword)))
	}
	calendarSvc := service.NewCalendarService(store, stores)
	announceSvc := service.NewAnnounceService(settingsSvc, scheduleSvc, messageSvc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svcs := web.Services{
		Settings: settingsSvc,
		Schedule: scheduleSvc,
		Messages: messageSvc,
		Calendar: calendarSvc,
		Auth:     authSvc,
		Announce: announceSvc,
	}

	var chatBot *bot.Bot
	if cfg.TelegramToken != "" {
		chatBot, err = bot.New(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Fatalf("Failed to init chat bot: %v", err)
		}
		chatBot.SetRunSource(announceSvc)
		svcs.Chat = chatBot

		go func() {
			if err := chatBot.Start(ctx); err != nil {
				log.Printf("Bot error: %v", err)
			}
		}()
	}

	server, err := web.NewServer(cfg, svcs)
	if err != nil {
		log.Fatalf("Failed to init web server: %v", err)
	}
	go func() {
		if err := server.Start(ctx); err != nil {
			log.Fatalf("Web server error: %v", err)
		}
	}()

	var sched *scheduler.Scheduler
	if cfg.SyncCron != "" {
		sched = scheduler.New(cfg, store, settingsSvc, scheduleSvc, calendarSvc, messageSvc)
		if chatBot != nil {
			sched.SetSender(chatBot)
		}
		go func() {
			if err := sched.Start(ctx); err != nil {
				log.Printf("Scheduler error: %v", err)
			}
		}()
	}

	log.Println("Running group app started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	cancel()
	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping web server: %v", err)
	}

	log.Println("Running group app stopped")
}
