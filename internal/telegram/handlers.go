// Package telegram adapts the Telegram Bot API to the conversation
// core: updates become shop events, shop messages become API calls.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/bestieSonya/StarBotShop/internal/shop"
)

// Handler consumes normalized events. Implemented by shop.Engine.
type Handler interface {
	HandleEvent(ctx context.Context, ev shop.Event)
}

// Bot wraps the telegram bot and feeds the conversation engine.
type Bot struct {
	bot     *bot.Bot
	handler Handler
	log     *slog.Logger
}

// New creates the telegram adapter. Attach must be called before Start.
func New(token string, log *slog.Logger) (*Bot, error) {
	b := &Bot{log: log}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, b.callbackHandler),
	}

	tgBot, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	b.bot = tgBot

	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start ", bot.MatchTypePrefix, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/menu", bot.MatchTypeExact, b.menuHandler)

	return b, nil
}

// Attach wires the conversation engine in.
func (b *Bot) Attach(h Handler) {
	b.handler = h
}

// Start starts the bot polling.
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// --- Inbound: updates → events ---

func (b *Bot) startHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	arg := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/start"))
	b.handler.HandleEvent(ctx, shop.Event{
		From:     update.Message.From.ID,
		Username: senderName(update.Message.From),
		Kind:     shop.EventStart,
		RefCode:  arg,
	})
}

func (b *Bot) menuHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	b.handler.HandleEvent(ctx, shop.Event{
		From:     update.Message.From.ID,
		Username: senderName(update.Message.From),
		Kind:     shop.EventMenu,
	})
}

func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	b.handler.HandleEvent(ctx, shop.Event{
		From:     update.Message.From.ID,
		Username: senderName(update.Message.From),
		Kind:     shop.EventText,
		Text:     update.Message.Text,
	})
}

func (b *Bot) callbackHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	cb := update.CallbackQuery

	// Answer callback to remove loading state
	tgBot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
	})

	ev := shop.Event{
		From:     cb.From.ID,
		Username: senderName(&cb.From),
		Kind:     shop.EventButton,
		Payload:  cb.Data,
	}
	if cb.Message.Message != nil {
		ev.Message = shop.MessageRef{
			Chat: cb.Message.Message.Chat.ID,
			ID:   cb.Message.Message.ID,
		}
	}

	b.handler.HandleEvent(ctx, ev)
}

func senderName(u *models.User) string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

// --- Outbound: shop.Outbox ---

// Send delivers an outbound message.
func (b *Bot) Send(ctx context.Context, msg shop.Message) error {
	params := &bot.SendMessageParams{
		ChatID:    msg.To,
		Text:      msg.Text,
		ParseMode: models.ParseModeHTML,
	}
	if kb := inlineKeyboard(msg.Buttons); kb != nil {
		params.ReplyMarkup = kb
	}
	if kb := replyKeyboard(msg.Menu); kb != nil {
		params.ReplyMarkup = kb
	}

	_, err := b.bot.SendMessage(ctx, params)
	return err
}

// Edit replaces the text and keyboard of an already-sent message.
func (b *Bot) Edit(ctx context.Context, ref shop.MessageRef, msg shop.Message) error {
	params := &bot.EditMessageTextParams{
		ChatID:    ref.Chat,
		MessageID: ref.ID,
		Text:      msg.Text,
		ParseMode: models.ParseModeHTML,
	}
	if kb := inlineKeyboard(msg.Buttons); kb != nil {
		params.ReplyMarkup = kb
	}

	_, err := b.bot.EditMessageText(ctx, params)
	return err
}

// --- Outbound: settlement.Notifier ---

// Notify sends a plain notification to a user.
func (b *Bot) Notify(ctx context.Context, userID int64, text string) error {
	disablePreview := true
	_, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    userID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	})
	return err
}

// EditText rewrites an admin message with a terminal settlement marker.
func (b *Bot) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := b.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	return err
}
