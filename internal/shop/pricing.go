package shop

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Purchase amount bounds, inclusive.
const (
	MinAmount = 50
	MaxAmount = 1_000_000
)

// Memo builds the payment comment binding a payer to an amount, used to
// correlate the external transfer with the pending purchase.
func Memo(payerID, amount int64) string {
	return fmt.Sprintf("Stars_%d_uid%d", amount, payerID)
}

// PaymentURL builds the YooMoney transfer link for a pending purchase.
func PaymentURL(wallet string, price decimal.Decimal, memo string) string {
	return fmt.Sprintf("https://yoomoney.ru/to/%s?amount=%s&comment=%s",
		wallet, price.StringFixed(2), memo)
}
