package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bestieSonya/StarBotShop/internal/config"
	"github.com/bestieSonya/StarBotShop/internal/referral"
	"github.com/bestieSonya/StarBotShop/internal/storage"
)

// Notifier delivers settlement outcomes. Implemented by the transport
// adapter; failures are logged and never roll back the ledger.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
}

// Settler resolves settlement tokens: it consumes the token, applies the
// ledger mutation and reports the outcome to everyone involved, strictly
// in that order.
type Settler struct {
	cfg   *config.Config
	store *storage.Storage
	refs  *referral.Engine
	out   Notifier
	log   *slog.Logger
}

// New creates a Settler.
func New(cfg *config.Config, store *storage.Storage, refs *referral.Engine, out Notifier, log *slog.Logger) *Settler {
	return &Settler{
		cfg:   cfg,
		store: store,
		refs:  refs,
		out:   out,
		log:   log,
	}
}

// Settle acts on a token attached to the admin message at (chatID,
// messageID). A token that was already acted on is a no-op beyond an
// explanatory edit of the admin message; the ledger is never mutated
// twice for one nonce.
func (s *Settler) Settle(ctx context.Context, token string, chatID int64, messageID int) error {
	req, err := Decode(token)
	if err != nil {
		s.log.Error("decode settlement token", "token", token, "error", err)
		s.editAdmin(ctx, chatID, messageID, "⚠️ Не удалось разобрать заявку.")
		return err
	}

	switch req.Op {
	case OpTopup:
		err = s.settleTopup(ctx, req, chatID, messageID)
	case OpGift:
		err = s.settleGift(ctx, req, chatID, messageID)
	case OpDecline:
		err = s.settleDecline(ctx, req, chatID, messageID)
	}

	if errors.Is(err, storage.ErrTokenUsed) {
		s.editAdmin(ctx, chatID, messageID, "⚠️ Эта заявка уже обработана.")
		return nil
	}
	if err != nil {
		s.log.Error("settle", "op", string(req.Op), "payer_id", req.Payer, "error", err)
		s.editAdmin(ctx, chatID, messageID, summary(req)+"\n\n⚠️ Ошибка обработки, заявка не применена.")
		return err
	}
	return nil
}

func (s *Settler) settleTopup(ctx context.Context, req Request, chatID int64, messageID int) error {
	err := s.store.Redeem(req.Nonce, func(tx *storage.Tx) error {
		payer := tx.User(req.Payer)
		if payer == nil {
			return fmt.Errorf("payer %d not in ledger", req.Payer)
		}
		payer.Balance += req.Amount
		s.refs.Accrue(tx, req.Payer, s.cfg.Price(req.Amount))
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("topup settled", "payer_id", req.Payer, "amount", req.Amount)
	s.notify(ctx, req.Payer, fmt.Sprintf(
		"✅ Оплата подтверждена! На ваш баланс зачислено <b>%d</b> ⭐.", req.Amount))
	s.editAdmin(ctx, chatID, messageID, summary(req)+"\n\n✅ Подтверждено")
	return nil
}

func (s *Settler) settleGift(ctx context.Context, req Request, chatID int64, messageID int) error {
	var (
		recipientID int64
		delivered   bool
	)
	// The recipient handle is resolved here, at settlement time, inside
	// the same atomic unit as the credit. An unresolvable handle still
	// consumes the token: there is no retry channel for a gift.
	err := s.store.Redeem(req.Nonce, func(tx *storage.Tx) error {
		if tx.User(req.Payer) == nil {
			return fmt.Errorf("payer %d not in ledger", req.Payer)
		}
		id, ok := tx.FindByUsername(req.Recipient)
		if !ok {
			return nil
		}
		recipientID = id
		delivered = true
		tx.User(id).Balance += req.Amount
		s.refs.Accrue(tx, req.Payer, s.cfg.Price(req.Amount))
		return nil
	})
	if err != nil {
		return err
	}

	if !delivered {
		s.log.Warn("gift recipient not found", "payer_id", req.Payer, "recipient", req.Recipient)
		s.notify(ctx, req.Payer, fmt.Sprintf(
			"❌ Не удалось доставить подарок: получатель @%s не найден.\n"+
				"Напишите в поддержку: %s", req.Recipient, s.cfg.SupportContact))
		s.editAdmin(ctx, chatID, messageID, summary(req)+"\n\n❌ Получатель не найден")
		return nil
	}

	s.log.Info("gift settled",
		"payer_id", req.Payer, "recipient_id", recipientID, "amount", req.Amount)
	s.notify(ctx, recipientID, fmt.Sprintf(
		"🎁 Вам подарили <b>%d</b> ⭐ от <a href='tg://user?id=%d'>друга</a>!",
		req.Amount, req.Payer))
	s.notify(ctx, req.Payer, fmt.Sprintf(
		"✅ Подарок доставлен! @%s получил <b>%d</b> ⭐.", req.Recipient, req.Amount))
	s.editAdmin(ctx, chatID, messageID, summary(req)+"\n\n🎁 Доставлено")
	return nil
}

func (s *Settler) settleDecline(ctx context.Context, req Request, chatID int64, messageID int) error {
	// Consume the token so the paired accept button dies with it; the
	// ledger is not touched.
	err := s.store.Redeem(req.Nonce, func(tx *storage.Tx) error {
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("payment declined", "payer_id", req.Payer, "amount", req.Amount)
	s.notify(ctx, req.Payer, fmt.Sprintf(
		"❌ Оплата не подтверждена. Если вы считаете это ошибкой, напишите в поддержку: %s",
		s.cfg.SupportContact))
	s.editAdmin(ctx, chatID, messageID, summary(req)+"\n\n❌ Отклонено")
	return nil
}

func (s *Settler) notify(ctx context.Context, userID int64, text string) {
	if err := s.out.Notify(ctx, userID, text); err != nil {
		s.log.Error("send settlement notification", "user_id", userID, "error", err)
	}
}

func (s *Settler) editAdmin(ctx context.Context, chatID int64, messageID int, text string) {
	if err := s.out.EditText(ctx, chatID, messageID, text); err != nil {
		s.log.Error("edit admin message", "error", err)
	}
}

func summary(req Request) string {
	text := fmt.Sprintf("💰 Заявка на <b>%d</b> ⭐\nПокупатель: id %d", req.Amount, req.Payer)
	if req.Op == OpGift {
		text += fmt.Sprintf("\nПолучатель: @%s", req.Recipient)
	}
	return text
}
