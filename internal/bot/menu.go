package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"carwash-bot/internal/subscription"
)

const (
	btnRegister       = "📝 Зарегистрироваться"
	btnPay            = "💳 Оплатить подписку"
	btnExtend         = "💳 Продлить подписку"
	btnMyAccount      = "ℹ️ Мой аккаунт"
	btnMySubscription = "ℹ️ Моя подписка"
	btnCancelSub      = "❌ Отменить подписку"
	btnAdminCreate    = "➕ Создать аккаунт"
	btnAdminStats     = "📊 Статистика"
	btnAdminMenu      = "🔧 Меню администратора"
	btnUserMenu       = "👤 Меню пользователя"
)

// menuView is everything the reply keyboard depends on.
type menuView struct {
	HasAccount bool
	Active     bool
	Privileged bool
	AdminView  bool
}

func menuFor(v menuView) tgbotapi.ReplyKeyboardMarkup {
	if v.Privileged && v.AdminView {
		return tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnAdminCreate)),
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnAdminStats)),
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnUserMenu)),
		)
	}

	var rows [][]tgbotapi.KeyboardButton
	switch {
	case !v.HasAccount:
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnRegister)))
	case v.Active:
		rows = append(rows,
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnExtend)),
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnMySubscription)),
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancelSub)),
		)
	default:
		rows = append(rows,
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnPay)),
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnMyAccount)),
		)
	}
	if v.Privileged {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnAdminMenu)))
	}
	return tgbotapi.NewReplyKeyboard(rows...)
}

// periodKeyboard lists the purchasable periods as callback buttons.
func periodKeyboard(testMode bool) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(subscription.Periods))
	for _, months := range subscription.Periods {
		label := "💳 " + monthsLabel(months)
		if testMode {
			label = "✅ " + monthsLabel(months) + " (тест)"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, subscription.Payload(months)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func monthsLabel(n int) string {
	switch {
	case n%10 == 1 && n%100 != 11:
		return fmt.Sprintf("%d месяц", n)
	case n%10 >= 2 && n%10 <= 4 && (n%100 < 10 || n%100 >= 20):
		return fmt.Sprintf("%d месяца", n)
	default:
		return fmt.Sprintf("%d месяцев", n)
	}
}
