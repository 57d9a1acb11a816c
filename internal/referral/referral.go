// Package referral derives invite links, attributes new users to their
// referrer and accrues the referrer's share of settled purchases.
package referral

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bestieSonya/StarBotShop/internal/storage"
)

// Engine implements the referral rules on top of the ledger.
type Engine struct {
	store *storage.Storage
	bot   string // public bot username, without @
	share decimal.Decimal
	log   *slog.Logger
}

// New creates a referral engine. share is the fraction of every settled
// purchase credited to the payer's referrer.
func New(store *storage.Storage, botUsername string, share decimal.Decimal, log *slog.Logger) *Engine {
	return &Engine{
		store: store,
		bot:   strings.TrimPrefix(botUsername, "@"),
		share: share,
		log:   log,
	}
}

// Link returns the deep link that attributes new users to id. Pure: same
// id, same link.
func (e *Engine) Link(id int64) string {
	return fmt.Sprintf("https://t.me/%s?start=r%d", e.bot, id)
}

// ParseCode extracts the referrer id from a start deep-link argument of
// the form "r<id>". Anything else is not a referral code.
func ParseCode(arg string) (int64, bool) {
	if !strings.HasPrefix(arg, "r") {
		return 0, false
	}
	id, err := strconv.ParseInt(arg[1:], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Attribute counts newID as a referral of referrerID. An unknown
// referrer and a self-referral are both silent no-ops: the new account
// must still be usable.
func (e *Engine) Attribute(newID, referrerID int64) error {
	if newID == referrerID {
		return nil
	}

	err := e.store.Transaction(referrerID, func(u *storage.UserRecord) error {
		u.Referrals++
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		e.log.Warn("referral code points at an unknown user", "referrer_id", referrerID)
		return nil
	}
	return err
}

// Accrue credits the payer's referrer with their share of price. It runs
// inside a settlement transaction so the accrual commits atomically with
// the purchase itself. Payers without a referrer accrue nothing.
func (e *Engine) Accrue(tx *storage.Tx, payerID int64, price decimal.Decimal) {
	payer := tx.User(payerID)
	if payer == nil || payer.ReferredBy == nil {
		return
	}
	referrer := tx.User(*payer.ReferredBy)
	if referrer == nil {
		return
	}
	referrer.TotalEarned = referrer.TotalEarned.Add(price.Mul(e.share).Round(2))
}
