package storage

import "github.com/shopspring/decimal"

// UserRecord is one end-user of the shop: referral counters, accrued
// earnings and the star balance. ReferredBy is set once at creation and
// never changes afterwards.
type UserRecord struct {
	ID          int64           `json:"-"`
	Username    string          `json:"username"`
	Referrals   int             `json:"referrals"`
	TotalEarned decimal.Decimal `json:"total_earned"`
	Balance     int64           `json:"balance"`
	ReferredBy  *int64          `json:"referred_by,omitempty"`
}

// document is the on-disk layout: users keyed by their Telegram id plus
// the set of consumed settlement-token nonces (value is the unix time of
// consumption). Both live in one file so a settlement commits its token
// mark and its balance change as a single write.
type document struct {
	Users  map[string]*UserRecord `json:"users"`
	Tokens map[string]int64       `json:"tokens,omitempty"`
}

func newDocument() *document {
	return &document{
		Users:  make(map[string]*UserRecord),
		Tokens: make(map[string]int64),
	}
}
