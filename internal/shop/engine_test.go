package shop

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bestieSonya/StarBotShop/internal/config"
	"github.com/bestieSonya/StarBotShop/internal/referral"
	"github.com/bestieSonya/StarBotShop/internal/settlement"
	"github.com/bestieSonya/StarBotShop/internal/storage"
)

const adminID = int64(99)

// fakeOut implements both shop.Outbox and settlement.Notifier so a test
// can follow a purchase from the first button press to the settled
// ledger mutation.
type fakeOut struct {
	sent   []Message
	edits  []Message
	notes  []Message
	failTo int64 // Send to this chat fails, 0 disables
}

var errDelivery = errors.New("delivery failed")

func (f *fakeOut) Send(ctx context.Context, msg Message) error {
	if f.failTo != 0 && msg.To == f.failTo {
		return errDelivery
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeOut) Edit(ctx context.Context, ref MessageRef, msg Message) error {
	f.edits = append(f.edits, msg)
	return nil
}

func (f *fakeOut) Notify(ctx context.Context, userID int64, text string) error {
	f.notes = append(f.notes, Message{To: userID, Text: text})
	return nil
}

func (f *fakeOut) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	f.edits = append(f.edits, Message{To: chatID, Text: text})
	return nil
}

func (f *fakeOut) lastSent() Message {
	if len(f.sent) == 0 {
		return Message{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeOut) lastEdit() Message {
	if len(f.edits) == 0 {
		return Message{}
	}
	return f.edits[len(f.edits)-1]
}

// sentTo returns every message sent to one chat.
func (f *fakeOut) sentTo(id int64) []Message {
	var out []Message
	for _, m := range f.sent {
		if m.To == id {
			out = append(out, m)
		}
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *storage.Storage, *fakeOut) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		BotUsername:    "star_shop_bot",
		AdminID:        adminID,
		Wallet:         "wallet123",
		StarRate:       0.05,
		MinFeeRUB:      2,
		RefPercent:     0.10,
		SupportContact: "@star_shop_support",
	}
	store := storage.New(filepath.Join(t.TempDir(), "ledger.json"), log)
	refs := referral.New(store, cfg.BotUsername, cfg.RefShare(), log)
	out := &fakeOut{}
	settler := settlement.New(cfg, store, refs, out, log)
	return NewEngine(cfg, store, refs, settler, out, log), store, out
}

func start(id int64, name, code string) Event {
	return Event{From: id, Username: name, Kind: EventStart, RefCode: code}
}

func txt(id int64, text string) Event {
	return Event{From: id, Kind: EventText, Text: text}
}

func btn(id int64, name, payload string) Event {
	return Event{From: id, Username: name, Kind: EventButton, Payload: payload,
		Message: MessageRef{Chat: id, ID: 1}}
}

func TestStartCreatesUser(t *testing.T) {
	e, store, out := newTestEngine(t)
	ctx := context.Background()

	e.HandleEvent(ctx, start(5, "alice", ""))

	_, created, err := store.GetOrCreate(5, "alice", nil)
	require.NoError(t, err)
	require.False(t, created, "start must have created the record")

	msg := out.lastSent()
	require.Equal(t, int64(5), msg.To)
	require.Contains(t, msg.Text, "Добро пожаловать")
	require.Len(t, msg.Buttons, 2, "self and gift choices")
}

func TestStartAttributesReferralOnce(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	e.HandleEvent(ctx, start(1, "referrer", ""))
	e.HandleEvent(ctx, start(2, "newcomer", "r1"))

	count, _ := store.Stats(1)
	require.Equal(t, 1, count)

	// A repeated start with the same code must not count again.
	e.HandleEvent(ctx, start(2, "newcomer", "r1"))
	count, _ = store.Stats(1)
	require.Equal(t, 1, count)
}

func TestStartSelfReferralIgnored(t *testing.T) {
	e, store, _ := newTestEngine(t)

	e.HandleEvent(context.Background(), start(1, "alice", "r1"))

	count, _ := store.Stats(1)
	require.Zero(t, count)
	u, _, err := store.GetOrCreate(1, "alice", nil)
	require.NoError(t, err)
	require.Nil(t, u.ReferredBy)
}

func TestStartMalformedReferralCode(t *testing.T) {
	e, store, out := newTestEngine(t)

	e.HandleEvent(context.Background(), start(1, "alice", "rxyz"))

	_, created, err := store.GetOrCreate(1, "alice", nil)
	require.NoError(t, err)
	require.False(t, created)
	require.Contains(t, out.lastSent().Text, "Добро пожаловать")
}

func TestStartReferrerUnknownStillCreatesAccount(t *testing.T) {
	e, store, out := newTestEngine(t)

	e.HandleEvent(context.Background(), start(2, "newcomer", "r404"))

	_, created, err := store.GetOrCreate(2, "newcomer", nil)
	require.NoError(t, err)
	require.False(t, created)
	require.Contains(t, out.lastSent().Text, "Добро пожаловать")
}

func TestAmountValidation(t *testing.T) {
	e, _, out := newTestEngine(t)
	ctx := context.Background()

	e.HandleEvent(ctx, start(5, "alice", ""))
	e.HandleEvent(ctx, btn(5, "alice", payloadSelf))
	require.Contains(t, out.lastEdit().Text, "Введите сумму")

	e.HandleEvent(ctx, txt(5, "abc"))
	require.Contains(t, out.lastSent().Text, "корректное число")

	e.HandleEvent(ctx, txt(5, "30"))
	require.Contains(t, out.lastSent().Text, "Диапазон")

	e.HandleEvent(ctx, txt(5, "2000000"))
	require.Contains(t, out.lastSent().Text, "Диапазон")

	// The rejected inputs must not have dropped the awaiting state.
	e.HandleEvent(ctx, txt(5, "100"))
	msg := out.lastSent()
	require.Contains(t, msg.Text, "способ оплаты")
	require.Len(t, msg.Buttons, 2)
	require.Equal(t,
		"https://yoomoney.ru/to/wallet123?amount=5.00&comment=Stars_100_uid5",
		msg.Buttons[0][0].URL)
	require.Equal(t, payloadPaid, msg.Buttons[1][0].Data)
}

func TestPaidWithoutPurchase(t *testing.T) {
	e, _, out := newTestEngine(t)

	e.HandleEvent(context.Background(), btn(5, "alice", payloadPaid))

	require.Contains(t, out.lastSent().Text, "Не удалось найти данные платежа")
	require.Empty(t, out.sentTo(adminID), "no settlement request without a purchase")
}

func TestPaidSendsSettlementRequest(t *testing.T) {
	e, _, out := newTestEngine(t)
	ctx := context.Background()

	e.HandleEvent(ctx, start(5, "alice", ""))
	e.HandleEvent(ctx, btn(5, "alice", payloadSelf))
	e.HandleEvent(ctx, txt(5, "100"))
	e.HandleEvent(ctx, btn(5, "alice", payloadPaid))

	admin := out.sentTo(adminID)
	require.Len(t, admin, 1)
	require.Contains(t, admin[0].Text, "@alice")
	require.Contains(t, admin[0].Text, "5.00 RUB")
	require.Contains(t, admin[0].Text, "Stars_100_uid5")
	require.Len(t, admin[0].Buttons, 1)
	require.Len(t, admin[0].Buttons[0], 2)

	accept, err := settlement.Decode(admin[0].Buttons[0][0].Data)
	require.NoError(t, err)
	require.Equal(t, settlement.OpTopup, accept.Op)
	require.Equal(t, int64(5), accept.Payer)
	require.Equal(t, int64(100), accept.Amount)

	decline, err := settlement.Decode(admin[0].Buttons[0][1].Data)
	require.NoError(t, err)
	require.Equal(t, settlement.OpDecline, decline.Op)
	require.Equal(t, accept.Nonce, decline.Nonce, "accept and decline share one nonce")

	require.Contains(t, out.lastSent().Text, "на проверку")

	// The purchase was consumed: a second press finds nothing.
	e.HandleEvent(ctx, btn(5, "alice", payloadPaid))
	require.Contains(t, out.lastSent().Text, "Не удалось найти данные платежа")
	require.Len(t, out.sentTo(adminID), 1)
}

func TestPaidBuyerWithoutUsername(t *testing.T) {
	e, _, out := newTestEngine(t)
	ctx := context.Background()

	e.HandleEvent(ctx, start(5, "", ""))
	e.HandleEvent(ctx, btn(5, "", payloadSelf))
	e.HandleEvent(ctx, txt(5, "100"))
	e.HandleEvent(ctx, btn(5, "", payloadPaid))

	admin := out.sentTo(adminID)
	require.Len(t, admin, 1)
	require.Contains(t, admin[0].Text, "Покупатель: id 5")
	require.NotContains(t, admin[0].Text, "@", "no dangling handle marker")
}

func TestPaidAdminUnreachableRestoresPurchase(t *testing.T) {
	e, _, out := newTestEngine(t)
	ctx := context.Background()

	e.HandleEvent(ctx, start(5, "alice", ""))
	e.HandleEvent(ctx, btn(5, "alice", payloadSelf))
	e.HandleEvent(ctx, txt(5, "100"))

	out.failTo = adminID
	e.HandleEvent(ctx, btn(5, "alice", payloadPaid))
	require.Contains(t, out.lastSent().Text, "Не удалось отправить заявку")

	out.failTo = 0
	e.HandleEvent(ctx, btn(5, "alice", payloadPaid))
	require.Len(t, out.sentTo(adminID), 1, "retry reaches the admin")
}

func TestGiftFlow(t *testing.T) {
	e, store, out := newTestEngine(t)
	ctx := context.Background()

	_, _, err := store.GetOrCreate(8, "bob", nil)
	require.NoError(t, err)

	e.HandleEvent(ctx, start(7, "alice", ""))
	e.HandleEvent(ctx, btn(7, "alice", payloadFriend))
	require.Contains(t, out.lastEdit().Text, "@username")

	e.HandleEvent(ctx, txt(7, "bob"))
	require.Contains(t, out.lastSent().Text, "Введите username с @")

	e.HandleEvent(ctx, txt(7, "@ghost"))
	require.Contains(t, out.lastSent().Text, "https://t.me/star_shop_bot?start=r7",
		"unresolved handle shows the sender's referral link")

	// Still awaiting a handle: a valid one is accepted next.
	e.HandleEvent(ctx, txt(7, "@bob"))
	require.Contains(t, out.lastSent().Text, "Найден")

	e.HandleEvent(ctx, txt(7, "500"))
	require.Contains(t, out.lastSent().Text, "способ оплаты")

	e.HandleEvent(ctx, btn(7, "alice", payloadPaid))
	admin := out.sentTo(adminID)
	require.Len(t, admin, 1)
	require.Contains(t, admin[0].Text, "Получатель: @bob")

	req, err := settlement.Decode(admin[0].Buttons[0][0].Data)
	require.NoError(t, err)
	require.Equal(t, settlement.OpGift, req.Op)
	require.Equal(t, "bob", req.Recipient)
	require.Equal(t, int64(500), req.Amount)
}

func TestMenu(t *testing.T) {
	e, _, out := newTestEngine(t)
	ctx := context.Background()

	e.HandleEvent(ctx, Event{From: 5, Kind: EventMenu})
	require.Equal(t, []string{menuBuy, menuReferral}, out.lastSent().Menu)

	e.HandleEvent(ctx, txt(5, menuBuy))
	require.Len(t, out.lastSent().Buttons, 2)

	e.HandleEvent(ctx, start(5, "alice", ""))
	e.HandleEvent(ctx, txt(5, menuReferral))
	msg := out.lastSent()
	require.Contains(t, msg.Text, "https://t.me/star_shop_bot?start=r5")
	require.Contains(t, msg.Text, "10%")
	require.Contains(t, msg.Text, "Рефералов")

	require.Len(t, msg.Buttons, 1)
	share := msg.Buttons[0][0]
	require.Equal(t, "📤 Поделиться", share.Label)
	require.Contains(t, share.URL, "https://t.me/share/url?url=")
	require.Contains(t, share.URL, "t.me%2Fstar_shop_bot%3Fstart%3Dr5",
		"the referral link rides in the share URL escaped")
}

func TestSettlementButtonRequiresAdmin(t *testing.T) {
	e, store, out := newTestEngine(t)
	ctx := context.Background()

	e.HandleEvent(ctx, start(5, "alice", ""))
	token := settlement.Request{
		Op: settlement.OpTopup, Payer: 5, Amount: 500, Nonce: settlement.NewNonce(),
	}.Encode()

	e.HandleEvent(ctx, btn(5, "alice", token))

	require.Contains(t, out.lastSent().Text, "только администратору")
	u, _, err := store.GetOrCreate(5, "alice", nil)
	require.NoError(t, err)
	require.Zero(t, u.Balance)
}

func TestAdminSettlesEndToEnd(t *testing.T) {
	e, store, out := newTestEngine(t)
	ctx := context.Background()

	e.HandleEvent(ctx, start(1, "referrer", ""))
	e.HandleEvent(ctx, start(5, "alice", "r1"))
	e.HandleEvent(ctx, btn(5, "alice", payloadSelf))
	e.HandleEvent(ctx, txt(5, "1000"))
	e.HandleEvent(ctx, btn(5, "alice", payloadPaid))

	admin := out.sentTo(adminID)
	require.Len(t, admin, 1)
	accept := admin[0].Buttons[0][0].Data

	e.HandleEvent(ctx, btn(adminID, "admin", accept))

	u, _, err := store.GetOrCreate(5, "alice", nil)
	require.NoError(t, err)
	require.Equal(t, int64(1000), u.Balance)

	// 1000 × 0.05 = 50.00 RUB, 10% of it accrues to the referrer.
	_, earned := store.Stats(1)
	require.Equal(t, "5.00", earned.StringFixed(2))

	require.Len(t, out.notes, 1)
	require.Equal(t, int64(5), out.notes[0].To)
	require.Contains(t, out.lastEdit().Text, "✅ Подтверждено")

	// A second press on the same button changes nothing.
	e.HandleEvent(ctx, btn(adminID, "admin", accept))
	u, _, err = store.GetOrCreate(5, "alice", nil)
	require.NoError(t, err)
	require.Equal(t, int64(1000), u.Balance)
}
