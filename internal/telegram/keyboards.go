package telegram

import (
	"github.com/go-telegram/bot/models"

	"github.com/bestieSonya/StarBotShop/internal/shop"
)

// inlineKeyboard renders button rows as an inline keyboard, nil when
// there are none.
func inlineKeyboard(rows [][]shop.Button) *models.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}

	kb := make([][]models.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		var out []models.InlineKeyboardButton
		for _, btn := range row {
			out = append(out, models.InlineKeyboardButton{
				Text:         btn.Label,
				CallbackData: btn.Data,
				URL:          btn.URL,
			})
		}
		kb = append(kb, out)
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: kb}
}

// replyKeyboard renders menu labels as a persistent reply keyboard, one
// label per row, nil when there are none.
func replyKeyboard(labels []string) *models.ReplyKeyboardMarkup {
	if len(labels) == 0 {
		return nil
	}

	kb := make([][]models.KeyboardButton, 0, len(labels))
	for _, label := range labels {
		kb = append(kb, []models.KeyboardButton{{Text: label}})
	}

	return &models.ReplyKeyboardMarkup{
		Keyboard:       kb,
		ResizeKeyboard: true,
	}
}
