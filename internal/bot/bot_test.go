package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/rungroup/internal/domain"
)

// fakeTelegram records the form posted to each Bot API method
type fakeTelegram struct {
	*httptest.Server
	mu    sync.Mutex
	calls map[string][]url.Values
}

func newFakeTelegram(t *testing.T) *fakeTelegram {
	t.Helper()
	f := &fakeTelegram{calls: make(map[string][]url.Values)}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		r.ParseForm()
		f.mu.Lock()
		f.calls[method] = append(f.calls[method], r.PostForm)
		f.mu.Unlock()

		switch method {
		case "getMe":
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Run","username":"run_bot"}}`))
		case "sendMessage", "editMessageText":
			w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-100,"type":"group"}}}`))
		default:
			w.Write([]byte(`{"ok":true,"result":true}`))
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeTelegram) last(method string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.calls[method]
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

func newTestBot(t *testing.T, tg *fakeTelegram) *Bot {
	t.Helper()
	b, err := NewWithEndpoint("TOKEN", -100, tg.URL+"/bot%s/%s", tg.Client())
	if err != nil {
		t.Fatalf("NewWithEndpoint: %v", err)
	}
	return b
}

type fakeRuns struct {
	runs []domain.ScheduleEntry
	err  error
}

func (f *fakeRuns) UpcomingRuns(ctx context.Context, n int) ([]domain.ScheduleEntry, error) {
	return f.runs, f.err
}

func (f *fakeRuns) ChatMessage(ctx context.Context, dateKey string) (string, error) {
	return "Run on " + dateKey, nil
}

func twoRuns() []domain.ScheduleEntry {
	five := 5.0
	return []domain.ScheduleEntry{
		{Date: time.Date(2024, 6, 6, 0, 0, 0, 0, time.UTC), Routes: []domain.Route{{Name: "Riverside", DistanceKm: &five}}},
		{Date: time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC), MeetingPoint: "The Park Gates", IsOnTour: true},
	}
}

func command(text string) tgbotapi.Update {
	cmdLen := len(text)
	if i := strings.Index(text, " "); i > 0 {
		cmdLen = i
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: 55},
		From:     &tgbotapi.User{ID: 9},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}}
}

func TestPost(t *testing.T) {
	tg := newFakeTelegram(t)
	b := newTestBot(t, tg)
	if b.ChatID() != -100 {
		t.Errorf("chat id = %d", b.ChatID())
	}

	if err := b.Post("Hey team! Run on Thursday"); err != nil {
		t.Fatalf("Post: %v", err)
	}
	sent := tg.last("sendMessage")
	if sent.Get("chat_id") != "-100" || sent.Get("text") != "Hey team! Run on Thursday" {
		t.Errorf("sent = %v", sent)
	}
}

func TestCommandNext(t *testing.T) {
	tg := newFakeTelegram(t)
	b := newTestBot(t, tg)
	b.SetRunSource(&fakeRuns{runs: twoRuns()})

	b.handleUpdate(command("/next"))

	sent := tg.last("sendMessage")
	if sent.Get("chat_id") != "55" || sent.Get("text") != "Run on 2024-06-06" {
		t.Fatalf("sent = %v", sent)
	}
	if !strings.Contains(sent.Get("reply_markup"), "run:2024-06-13") {
		t.Errorf("keyboard = %s", sent.Get("reply_markup"))
	}
}

func TestCommandUpcoming(t *testing.T) {
	tg := newFakeTelegram(t)
	b := newTestBot(t, tg)
	b.SetRunSource(&fakeRuns{runs: twoRuns()})

	b.handleUpdate(command("/upcoming"))

	text := tg.last("sendMessage").Get("text")
	for _, want := range []string{"Thu 6 Jun – 5k", "Thu 13 Jun – routes TBC (On Tour: The Park Gates)"} {
		if !strings.Contains(text, want) {
			t.Errorf("upcoming missing %q:\n%s", want, text)
		}
	}
}

func TestCommandSheetError(t *testing.T) {
	tg := newFakeTelegram(t)
	b := newTestBot(t, tg)
	b.SetRunSource(&fakeRuns{err: &domain.DataSourceError{Op: "fetch", Err: context.DeadlineExceeded}})

	b.handleUpdate(command("/next"))

	if text := tg.last("sendMessage").Get("text"); !strings.Contains(text, "schedule sheet") {
		t.Errorf("reply = %q", text)
	}
}

func TestRunCallback(t *testing.T) {
	tg := newFakeTelegram(t)
	b := newTestBot(t, tg)
	b.SetRunSource(&fakeRuns{runs: twoRuns()})

	b.handleUpdate(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		Data:    "run:2024-06-13",
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: 55}},
	}})

	edit := tg.last("editMessageText")
	if edit.Get("text") != "Run on 2024-06-13" || edit.Get("message_id") != "7" {
		t.Fatalf("edit = %v", edit)
	}
	if !strings.Contains(edit.Get("reply_markup"), "run:2024-06-06") {
		t.Errorf("keyboard = %s", edit.Get("reply_markup"))
	}
	if tg.last("answerCallbackQuery") == nil {
		t.Error("callback not answered")
	}
}

func TestParseRunCallback(t *testing.T) {
	if key, ok := parseRunCallback("run:2024-06-13"); !ok || key != "2024-06-13" {
		t.Errorf("got %q, %v", key, ok)
	}
	for _, bad := range []string{"done:1", "run:", "run:tomorrow!!"} {
		if _, ok := parseRunCallback(bad); ok {
			t.Errorf("accepted %q", bad)
		}
	}
}
