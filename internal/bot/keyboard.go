package bot

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Run paging keyboard; callback data is "run:<YYYY-MM-DD>"
func runKeyboard(dates []string, current int) *tgbotapi.InlineKeyboardMarkup {
	if len(dates) < 2 || current < 0 || current >= len(dates) {
		return nil
	}

	var row []tgbotapi.InlineKeyboardButton
	if current > 0 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("◀️ "+dates[current-1], "run:"+dates[current-1]))
	}
	if current < len(dates)-1 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(dates[current+1]+" ▶️", "run:"+dates[current+1]))
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(row)
	return &kb
}

// parseRunCallback extracts the date from "run:<YYYY-MM-DD>"
func parseRunCallback(data string) (string, bool) {
	key, ok := strings.CutPrefix(data, "run:")
	if !ok || len(key) != 10 {
		return "", false
	}
	if _, err := strconv.Atoi(key[:4]); err != nil {
		return "", false
	}
	return key, true
}

func indexOf(keys []string, key string) int {
	for i, k := range keys {
		if k == key {
			return i
		}
	}
	return -1
}
