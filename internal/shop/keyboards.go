package shop

import (
	"fmt"
	"net/url"
)

// Callback payloads understood by the engine. Settlement tokens carry
// their own prefix and are recognized separately.
const (
	payloadSelf   = "purpose_self"
	payloadFriend = "purpose_friend"
	payloadPaid   = "paid"
)

// Main menu labels, matched as free text when the reply keyboard is used.
const (
	menuBuy      = "⭐ Купить Звезды"
	menuReferral = "👥 Реферальная система"
)

// purposeButtons offers the self/gift choice.
func purposeButtons() [][]Button {
	return [][]Button{
		{{Label: "Для себя", Data: payloadSelf}},
		{{Label: "В подарок", Data: payloadFriend}},
	}
}

// paymentButtons offers the payment link and the paid acknowledgement.
func paymentButtons(payURL string) [][]Button {
	return [][]Button{
		{{Label: "СБП (YooMoney)", URL: payURL}},
		{{Label: "✅ Я оплатил", Data: payloadPaid}},
	}
}

// adminButtons carries the accept and decline settlement tokens.
func adminButtons(accept, decline string) [][]Button {
	return [][]Button{
		{
			{Label: "✅ Подтвердить", Data: accept},
			{Label: "❌ Отклонить", Data: decline},
		},
	}
}

// shareButtons lets the user forward their referral link to a friend.
func shareButtons(link string) [][]Button {
	share := fmt.Sprintf("https://t.me/share/url?url=%s&text=%s",
		url.QueryEscape(link), url.QueryEscape("Покупайте звёзды со скидкой!"))
	return [][]Button{
		{{Label: "📤 Поделиться", URL: share}},
	}
}

// mainMenu is the persistent reply keyboard.
func mainMenu() []string {
	return []string{menuBuy, menuReferral}
}
