package bot

import (
	"errors"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/rungroup/internal/domain"
)

// How many runs /upcoming lists and the keyboard pages through
const upcomingLimit = 6

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start", "help":
		b.cmdHelp(chatID)
	case "next":
		b.cmdNext(chatID)
	case "upcoming":
		b.cmdUpcoming(chatID)
	default:
		b.SendMessage(chatID, "Unknown command. /help lists the commands")
	}
}

func (b *Bot) cmdHelp(chatID int64) {
	text := `Commands:

/next – this week's run announcement
/upcoming – the next few runs
/help – this message`

	b.SendMessage(chatID, text)
}

func (b *Bot) cmdNext(chatID int64) {
	runs, err := b.runs.UpcomingRuns(b.ctx, upcomingLimit)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if len(runs) == 0 {
		b.SendMessage(chatID, "No upcoming runs in the schedule yet.")
		return
	}

	text, err := b.runs.ChatMessage(b.ctx, runs[0].DateKey())
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	if kb := runKeyboard(dateKeys(runs), 0); kb != nil {
		b.SendMessageWithKeyboard(chatID, text, *kb)
		return
	}
	b.SendMessage(chatID, text)
}

func (b *Bot) cmdUpcoming(chatID int64) {
	runs, err := b.runs.UpcomingRuns(b.ctx, upcomingLimit)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if len(runs) == 0 {
		b.SendMessage(chatID, "No upcoming runs in the schedule yet.")
		return
	}

	b.SendMessage(chatID, formatUpcoming(runs))
}

func formatUpcoming(runs []domain.ScheduleEntry) string {
	var sb strings.Builder
	sb.WriteString("🗓 Upcoming runs\n")
	for _, r := range runs {
		sb.WriteString("\n" + r.Date.Format("Mon 2 Jan") + " –")
		if !r.HasRoutes() {
			sb.WriteString(" routes TBC")
		}
		for i, route := range r.Routes {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(" " + route.Label())
		}
		if r.IsOnTour {
			sb.WriteString(" (On Tour: " + r.MeetingPoint + ")")
		}
	}
	return sb.String()
}

func (b *Bot) replyError(chatID int64, err error) {
	log.Printf("Chat command failed: %v", err)

	var dsErr *domain.DataSourceError
	if errors.As(err, &dsErr) {
		b.SendMessage(chatID, "❌ Couldn't read the schedule sheet right now.")
		return
	}
	b.SendMessage(chatID, "❌ Something went wrong, try again later.")
}

func dateKeys(runs []domain.ScheduleEntry) []string {
	keys := make([]string, len(runs))
	for i := range runs {
		keys[i] = runs[i].DateKey()
	}
	return keys
}
