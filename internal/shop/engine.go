package shop

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bestieSonya/StarBotShop/internal/config"
	"github.com/bestieSonya/StarBotShop/internal/referral"
	"github.com/bestieSonya/StarBotShop/internal/settlement"
	"github.com/bestieSonya/StarBotShop/internal/storage"
)

// Engine routes inbound events through the purchase dialog.
type Engine struct {
	cfg    *config.Config
	store  *storage.Storage
	refs   *referral.Engine
	settle *settlement.Settler
	out    Outbox
	states *StateManager
	log    *slog.Logger
}

// NewEngine creates the conversation engine.
func NewEngine(cfg *config.Config, store *storage.Storage, refs *referral.Engine,
	settle *settlement.Settler, out Outbox, log *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		store:  store,
		refs:   refs,
		settle: settle,
		out:    out,
		states: NewStateManager(),
		log:    log,
	}
}

// HandleEvent advances the sender's dialog for one inbound event.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventStart:
		e.handleStart(ctx, ev)
	case EventMenu:
		e.handleMenu(ctx, ev)
	case EventText:
		e.handleText(ctx, ev)
	case EventButton:
		e.handleButton(ctx, ev)
	}
}

func (e *Engine) handleStart(ctx context.Context, ev Event) {
	var referredBy *int64
	if ev.RefCode != "" {
		code, ok := referral.ParseCode(ev.RefCode)
		switch {
		case !ok:
			e.log.Warn("malformed referral code", "arg", ev.RefCode, "user_id", ev.From)
		case code == ev.From:
			// self-invites do not count
		default:
			referredBy = &code
		}
	}

	_, created, err := e.store.GetOrCreate(ev.From, ev.Username, referredBy)
	if err != nil {
		e.log.Error("get or create user", "user_id", ev.From, "error", err)
		e.send(ctx, Message{To: ev.From, Text: "⚠️ Что-то пошло не так, попробуйте ещё раз."})
		return
	}
	if created && referredBy != nil {
		if err := e.refs.Attribute(ev.From, *referredBy); err != nil {
			e.log.Error("attribute referral", "user_id", ev.From, "error", err)
		}
	}

	e.states.Clear(ev.From)

	e.send(ctx, Message{
		To: ev.From,
		Text: "✨ Добро пожаловать!\n" +
			"🧸 Чтобы увидеть больше возможностей, используйте /menu.\n" +
			"Можно приобрести Telegram звёзды без KYC и дешевле.\n\n" +
			"🎁 Кому купить звёзды?",
		Buttons: purposeButtons(),
	})
}

func (e *Engine) handleMenu(ctx context.Context, ev Event) {
	e.send(ctx, Message{To: ev.From, Text: "Главное меню:", Menu: mainMenu()})
}

func (e *Engine) handleText(ctx context.Context, ev Event) {
	text := strings.TrimSpace(ev.Text)

	switch e.states.Get(ev.From).Await {
	case AwaitHandle:
		e.handleFriendHandle(ctx, ev, text)
	case AwaitAmount:
		e.handleAmount(ctx, ev, text)
	default:
		switch text {
		case menuBuy:
			e.send(ctx, Message{
				To:      ev.From,
				Text:    "🎁 Кому купить звёзды:",
				Buttons: purposeButtons(),
			})
		case menuReferral:
			e.showReferral(ctx, ev)
		}
	}
}

func (e *Engine) handleFriendHandle(ctx context.Context, ev Event, text string) {
	if !strings.HasPrefix(text, "@") {
		e.send(ctx, Message{To: ev.From, Text: "Введите username с @. Пример: @username"})
		return
	}

	handle := strings.TrimPrefix(text, "@")
	if _, err := e.store.FindByUsername(handle); err != nil {
		link := e.refs.Link(ev.From)
		e.send(ctx, Message{To: ev.From, Text: fmt.Sprintf(
			"❌ Пользователь не найден. "+
				"Для того чтобы вы могли подарить звёзды, этот пользователь должен "+
				"сначала запустить бота по вашей реферальной ссылке:\n\n"+
				"<code>%s</code>\n"+
				"Отправьте эту ссылку другу, чтобы он открыл бота и вы смогли продолжить покупку.",
			link)})
		return
	}

	e.states.Update(ev.From, func(s *Session) {
		s.Friend = handle
		s.Await = AwaitAmount
	})
	e.send(ctx, Message{To: ev.From, Text: "✅ Найден! Введите сумму (мин. 50):"})
}

func (e *Engine) handleAmount(ctx context.Context, ev Event, text string) {
	amount, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		e.send(ctx, Message{To: ev.From, Text: "Введите корректное число."})
		return
	}
	if amount < MinAmount || amount > MaxAmount {
		e.send(ctx, Message{To: ev.From, Text: "Диапазон: 50–1,000,000 звёзд."})
		return
	}

	price := e.cfg.Price(amount)
	memo := Memo(ev.From, amount)
	url := PaymentURL(e.cfg.Wallet, price, memo)

	e.states.Update(ev.From, func(s *Session) {
		s.Purchase = &Purchase{
			Amount:    amount,
			Price:     price,
			Memo:      memo,
			Recipient: s.Friend,
		}
		s.Friend = ""
		s.Await = AwaitNone
	})

	e.send(ctx, Message{
		To:      ev.From,
		Text:    "⭐ Выберите способ оплаты (счёт действителен 30 мин.):",
		Buttons: paymentButtons(url),
	})
}

func (e *Engine) handleButton(ctx context.Context, ev Event) {
	switch {
	case settlement.IsToken(ev.Payload):
		if ev.From != e.cfg.AdminID {
			e.log.Warn("settlement button pressed by non-admin", "user_id", ev.From)
			e.send(ctx, Message{To: ev.From, Text: "⛔ Это действие доступно только администратору."})
			return
		}
		_ = e.settle.Settle(ctx, ev.Payload, ev.Message.Chat, ev.Message.ID)
	case ev.Payload == payloadSelf:
		e.states.Update(ev.From, func(s *Session) {
			s.Friend = ""
			s.Await = AwaitAmount
		})
		e.edit(ctx, ev.Message, Message{To: ev.From, Text: "Введите сумму покупки (мин. 50):"})
	case ev.Payload == payloadFriend:
		e.states.Update(ev.From, func(s *Session) {
			s.Await = AwaitHandle
		})
		e.edit(ctx, ev.Message, Message{To: ev.From, Text: "Введите @username друга:"})
	case ev.Payload == payloadPaid:
		e.handlePaid(ctx, ev)
	default:
		e.log.Warn("unknown callback", "data", ev.Payload, "user_id", ev.From)
	}
}

func (e *Engine) handlePaid(ctx context.Context, ev Event) {
	p := e.states.TakePurchase(ev.From)
	if p == nil {
		// Stale button, likely from before a restart.
		e.send(ctx, Message{To: ev.From,
			Text: "❌ Не удалось найти данные платежа. Оформите покупку заново через /menu."})
		return
	}

	op := settlement.OpTopup
	if p.Recipient != "" {
		op = settlement.OpGift
	}
	nonce := settlement.NewNonce()
	accept := settlement.Request{Op: op, Payer: ev.From, Amount: p.Amount, Recipient: p.Recipient, Nonce: nonce}
	decline := settlement.Request{Op: settlement.OpDecline, Payer: ev.From, Amount: p.Amount, Nonce: nonce}

	// Not every account has a public handle.
	buyer := fmt.Sprintf("id %d", ev.From)
	if ev.Username != "" {
		buyer = fmt.Sprintf("@%s (id %d)", ev.Username, ev.From)
	}
	text := fmt.Sprintf(
		"💰 <b>Новая заявка на оплату</b>\n\n"+
			"Покупатель: %s\n"+
			"Звёзд: <b>%d</b>\n"+
			"К оплате: <b>%s RUB</b>\n"+
			"Комментарий: <code>%s</code>",
		buyer, p.Amount, p.Price.StringFixed(2), p.Memo)
	if p.Recipient != "" {
		text += fmt.Sprintf("\nПолучатель: @%s", p.Recipient)
	}

	err := e.out.Send(ctx, Message{
		To:      e.cfg.AdminID,
		Text:    text,
		Buttons: adminButtons(accept.Encode(), decline.Encode()),
	})
	if err != nil {
		// The admin never saw the request; put the purchase back so the
		// user can press the button again.
		e.log.Error("send settlement request to admin", "payer_id", ev.From, "error", err)
		e.states.Update(ev.From, func(s *Session) { s.Purchase = p })
		e.send(ctx, Message{To: ev.From, Text: "⚠️ Не удалось отправить заявку, попробуйте ещё раз."})
		return
	}

	e.log.Info("settlement requested",
		"payer_id", ev.From, "amount", p.Amount, "op", string(op), "nonce", nonce)
	e.send(ctx, Message{To: ev.From,
		Text: "🔍 Заявка отправлена на проверку. Звёзды будут начислены после подтверждения оплаты."})
}

func (e *Engine) showReferral(ctx context.Context, ev Event) {
	count, earned := e.store.Stats(ev.From)
	link := e.refs.Link(ev.From)

	e.send(ctx, Message{
		To: ev.From,
		Text: fmt.Sprintf(
			"👥 <b>Реферальная система</b>\n"+
				"✨ Зарабатывайте %.0f%% от расходов приглашённых!\n\n"+
				"<b>🔗 Ваша ссылка:</b>\n<code>%s</code>\n\n"+
				"👥 Рефералов: <b>%d</b>\n"+
				"💸 Заработано: <b>%s RUB</b>",
			e.cfg.RefPercent*100, link, count, earned.StringFixed(2)),
		Buttons: shareButtons(link),
	})
}

func (e *Engine) send(ctx context.Context, msg Message) {
	if err := e.out.Send(ctx, msg); err != nil {
		e.log.Error("send message", "user_id", msg.To, "error", err)
	}
}

func (e *Engine) edit(ctx context.Context, ref MessageRef, msg Message) {
	if err := e.out.Edit(ctx, ref, msg); err != nil {
		e.log.Error("edit message", "user_id", msg.To, "error", err)
	}
}
