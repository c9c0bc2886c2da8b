package bot

import (
	"context"
	"fmt"
	"log"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/rungroup/internal/domain"
)

// RunSource answers the schedule questions asked in chat
type RunSource interface {
	UpcomingRuns(ctx context.Context, n int) ([]domain.ScheduleEntry, error)
	ChatMessage(ctx context.Context, dateKey string) (string, error)
}

// Bot posts chat announcements to a Telegram group and answers a few
// read-only commands
type Bot struct {
	api    *tgbotapi.BotAPI
	chatID int64
	runs   RunSource
	ctx    context.Context
}

func New(token string, chatID int64) (*Bot, error) {
	return NewWithEndpoint(token, chatID, tgbotapi.APIEndpoint, &http.Client{})
}

// NewWithEndpoint creates a bot against a custom Bot API endpoint
func NewWithEndpoint(token string, chatID int64, endpoint string, client *http.Client) (*Bot, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("Authorized as @%s", api.Self.UserName)

	return &Bot{api: api, chatID: chatID, ctx: context.Background()}, nil
}

// SetRunSource enables the chat commands
func (b *Bot) SetRunSource(runs RunSource) {
	b.runs = runs
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "next", Description: "🏃 Next run"},
		{Command: "upcoming", Description: "🗓 Upcoming runs"},
		{Command: "help", Description: "❓ Help"},
	}

	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := b.api.Request(cfg); err != nil {
		log.Printf("Failed to set commands: %v", err)
	}
}

// Start long-polls for updates until ctx is cancelled. Without a
// RunSource the bot only posts and Start returns immediately.
func (b *Bot) Start(ctx context.Context) error {
	if b.runs == nil {
		return nil
	}
	b.ctx = ctx
	b.setCommands()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	log.Println("Bot listening for commands")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(update)
		}
	}
}

// ChatID returns the group chat announcements are posted to
func (b *Bot) ChatID() int64 {
	return b.chatID
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = keyboard
	_, err := b.api.Send(msg)
	return err
}

// Post sends text to the configured group chat
func (b *Bot) Post(text string) error {
	if err := b.SendMessage(b.chatID, text); err != nil {
		return fmt.Errorf("post to chat %d: %w", b.chatID, err)
	}
	return nil
}
