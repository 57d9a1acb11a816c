// Package settlement turns a confirmed-but-unverified payment into an
// admin decision: it encodes the pending operation into a self-contained
// single-use token, and applies the corresponding ledger mutation when
// the administrator acts on it.
package settlement

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Op is the operation a token asks the administrator to resolve.
type Op string

const (
	OpTopup   Op = "t"
	OpGift    Op = "g"
	OpDecline Op = "d"
)

// prefix tags and versions every token. Bump it if the layout changes so
// stale buttons from an old revision are rejected, not misread.
const prefix = "st1"

const sep = "|"

var ErrBadToken = errors.New("malformed settlement token")

// Request is a pending settlement decision. It is never stored: all of
// it travels inside the token so the administrator can act long after
// issuance, even across a process restart.
type Request struct {
	Op        Op
	Payer     int64
	Amount    int64
	Recipient string // gift recipient handle without @, gifts only
	Nonce     string
}

// NewNonce returns a short random token id. Accept and decline tokens
// for one purchase share a nonce, so resolving either consumes both.
// Six hex chars keep the worst-case gift token within the 64-byte
// callback-data limit.
func NewNonce() string {
	u := uuid.New()
	return hex.EncodeToString(u[:3])
}

// Encode renders the request as a compact token. The result fits the
// 64-byte callback-data limit for any valid Telegram username.
func (r Request) Encode() string {
	switch r.Op {
	case OpGift:
		return strings.Join([]string{prefix, string(r.Op),
			strconv.FormatInt(r.Payer, 10), strconv.FormatInt(r.Amount, 10),
			r.Recipient, r.Nonce}, sep)
	default:
		return strings.Join([]string{prefix, string(r.Op),
			strconv.FormatInt(r.Payer, 10), strconv.FormatInt(r.Amount, 10),
			r.Nonce}, sep)
	}
}

// IsToken reports whether a callback payload is a settlement token of
// the current version.
func IsToken(payload string) bool {
	return strings.HasPrefix(payload, prefix+sep)
}

// Decode parses and validates a token. Any structural defect yields
// ErrBadToken: a token is trusted only because it round-trips cleanly.
func Decode(token string) (Request, error) {
	parts := strings.Split(token, sep)
	if len(parts) < 5 || parts[0] != prefix {
		return Request{}, ErrBadToken
	}

	op := Op(parts[1])
	var want int
	switch op {
	case OpTopup, OpDecline:
		want = 5
	case OpGift:
		want = 6
	default:
		return Request{}, fmt.Errorf("%w: unknown operation %q", ErrBadToken, parts[1])
	}
	if len(parts) != want {
		return Request{}, ErrBadToken
	}

	payer, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || payer <= 0 {
		return Request{}, fmt.Errorf("%w: bad payer id", ErrBadToken)
	}
	amount, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil || amount <= 0 {
		return Request{}, fmt.Errorf("%w: bad amount", ErrBadToken)
	}

	r := Request{Op: op, Payer: payer, Amount: amount}
	if op == OpGift {
		if parts[4] == "" {
			return Request{}, fmt.Errorf("%w: empty recipient", ErrBadToken)
		}
		r.Recipient = parts[4]
		r.Nonce = parts[5]
	} else {
		r.Nonce = parts[4]
	}
	if r.Nonce == "" {
		return Request{}, fmt.Errorf("%w: empty nonce", ErrBadToken)
	}

	return r, nil
}
