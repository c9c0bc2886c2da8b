package bot

import (
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	// Plain chatter in the group is ignored
	if !msg.IsCommand() {
		return
	}
	b.handleCommand(msg)
}

func (b *Bot) handleCallback(callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil {
		return
	}
	chatID := callback.Message.Chat.ID
	msgID := callback.Message.MessageID

	key, ok := parseRunCallback(callback.Data)
	if !ok {
		b.api.Request(tgbotapi.NewCallback(callback.ID, ""))
		return
	}

	runs, err := b.runs.UpcomingRuns(b.ctx, upcomingLimit)
	if err != nil {
		log.Printf("Chat callback failed: %v", err)
		b.api.Request(tgbotapi.NewCallback(callback.ID, "Couldn't read the schedule"))
		return
	}
	keys := dateKeys(runs)
	current := indexOf(keys, key)
	if current < 0 {
		b.api.Request(tgbotapi.NewCallback(callback.ID, "That run is no longer scheduled"))
		return
	}

	text, err := b.runs.ChatMessage(b.ctx, key)
	if err != nil {
		log.Printf("Chat callback failed: %v", err)
		b.api.Request(tgbotapi.NewCallback(callback.ID, "Couldn't build the message"))
		return
	}

	edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = runKeyboard(keys, current)
	if _, err := b.api.Send(edit); err != nil {
		log.Printf("Failed to edit message %d: %v", msgID, err)
	}
	b.api.Request(tgbotapi.NewCallback(callback.ID, ""))
}
