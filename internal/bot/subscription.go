package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"carwash-bot/internal/models"
	"carwash-bot/internal/subscription"
)

const textRegisterFirst = "Сначала зарегистрируйтесь!"

func (t *TelegramBot) offerSubscription(ctx context.Context, message *tgbotapi.Message, sess *models.Session) error {
	chatID := message.Chat.ID
	if _, err := t.accounts.Lookup(ctx, message.From.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return t.replyWithMenu(ctx, chatID, message.From.ID, sess, textRegisterFirst)
		}
		return err
	}

	text := "💳 <b>Выбор подписки</b>\n\nВыберите период:"
	if t.payments == nil {
		text = "💳 <b>Выбор подписки</b>\n\nСейчас режим ТЕСТИРОВАНИЯ — подписка бесплатная!\nВыберите период:"
	}
	return t.reply(chatID, text, periodKeyboard(t.payments == nil))
}

func (t *TelegramBot) showAccount(ctx context.Context, message *tgbotapi.Message, sess *models.Session) error {
	chatID := message.Chat.ID
	userID := message.From.ID

	acc, status, err := t.accounts.Status(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return t.replyWithMenu(ctx, chatID, userID, sess, textRegisterFirst)
	}
	if err != nil {
		return err
	}

	text := fmt.Sprintf("📊 <b>Информация</b>\n\n"+
		"🏢 Автомойка: %s\n"+
		"👤 Владелец: %s\n"+
		"🔑 Логин: <code>%s</code>\n"+
		"🔒 Пароль: <code>%s</code>\n"+
		"📅 Статус: %s",
		escape(acc.BusinessName), escape(acc.OwnerName), escape(acc.Login), escape(acc.Password), status.In(t.loc))
	return t.replyWithMenu(ctx, chatID, userID, sess, text)
}

func (t *TelegramBot) cancelSubscription(ctx context.Context, message *tgbotapi.Message, sess *models.Session) error {
	chatID := message.Chat.ID
	userID := message.From.ID

	wasActive, err := t.accounts.Cancel(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return t.replyWithMenu(ctx, chatID, userID, sess, textRegisterFirst)
	}
	if err != nil {
		return err
	}

	text := "У вас нет активной подписки."
	if wasActive {
		t.logger.Infow("Subscription cancelled", "user_id", userID)
		text = "❌ Подписка отменена."
	}
	return t.replyWithMenu(ctx, chatID, userID, sess, text)
}

func (t *TelegramBot) showStats(ctx context.Context, message *tgbotapi.Message, sess *models.Session) error {
	chatID := message.Chat.ID
	if !t.privileged(message.From.ID) {
		return t.reply(chatID, textNoAccess, nil)
	}

	stats, err := t.accounts.Stats(ctx)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("📊 <b>Статистика</b>\n\n"+
		"Всего аккаунтов: %d\n"+
		"Активных подписок: %d\n"+
		"Без привязки к Telegram: %d",
		stats.Total, stats.Active, stats.Unclaimed)
	return t.replyWithMenu(ctx, chatID, message.From.ID, sess, text)
}

// handleCallbackQuery processes period selections from the inline keyboard.
func (t *TelegramBot) handleCallbackQuery(ctx context.Context, cq *tgbotapi.CallbackQuery) error {
	t.logger.Infow("Received callback query", "user_id", cq.From.ID, "data", cq.Data)

	if _, err := t.sender.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		t.logger.Warnw("Failed to answer callback", "error", err)
	}

	prefix, months, err := subscription.ParsePayload(cq.Data)
	if err != nil || prefix != subscription.PayPrefix || !subscription.IsOffered(months) {
		t.logger.Warnw("Ignoring unknown callback payload", "data", cq.Data)
		return nil
	}

	userID := cq.From.ID
	chatID := updateChatID(tgbotapi.Update{CallbackQuery: cq})
	sess, err := t.loadSession(ctx, chatID)
	if err != nil {
		return err
	}

	if t.payments != nil {
		return t.startCheckout(ctx, chatID, userID, months, sess)
	}

	acc, err := t.accounts.Extend(ctx, userID, months)
	if errors.Is(err, models.ErrNotFound) {
		return t.replyWithMenu(ctx, chatID, userID, sess, textRegisterFirst)
	}
	if err != nil {
		return err
	}
	t.logger.Infow("Subscription extended", "user_id", userID, "months", months, "until", acc.SubscriptionEnd)

	text := fmt.Sprintf("✅ <b>Подписка активирована!</b>\n\n"+
		"📅 Действует до: %s\n"+
		"💰 Списано: 0₽ (тестовый режим)",
		t.formatDate(*acc.SubscriptionEnd))

	if cq.Message != nil {
		edit := tgbotapi.NewEditMessageText(chatID, cq.Message.MessageID, text)
		edit.ParseMode = tgbotapi.ModeHTML
		if _, err := t.sender.Send(edit); err != nil {
			return fmt.Errorf("edit message: %w", err)
		}
		return t.replyWithMenu(ctx, chatID, userID, sess, "Главное меню:")
	}
	return t.replyWithMenu(ctx, chatID, userID, sess, text)
}

func (t *TelegramBot) startCheckout(ctx context.Context, chatID, userID int64, months int, sess *models.Session) error {
	if _, err := t.accounts.Lookup(ctx, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return t.replyWithMenu(ctx, chatID, userID, sess, textRegisterFirst)
		}
		return err
	}

	successURL := fmt.Sprintf("https://t.me/%s?start=payment_success", t.username)
	cancelURL := fmt.Sprintf("https://t.me/%s?start=payment_cancel", t.username)

	sessionID, checkoutURL, err := t.payments.CreateCheckoutSession(userID, months, successURL, cancelURL)
	if err != nil {
		return err
	}
	t.logger.Infow("Checkout session created", "user_id", userID, "months", months, "session_id", sessionID)

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Оплатить", checkoutURL),
		),
	)
	return t.reply(chatID, fmt.Sprintf("Подписка на %s. Нажмите кнопку ниже, чтобы перейти к оплате:", monthsLabel(months)), kb)
}

// NotifyExpiring reminds the owner of acc that the subscription ends soon.
func (t *TelegramBot) NotifyExpiring(ctx context.Context, acc models.Account) error {
	if acc.ExternalUserID == nil {
		return nil
	}
	status := subscription.Classify(t.accounts.Now(), acc.SubscriptionEnd)
	if !status.Active() {
		return nil
	}

	text := fmt.Sprintf("⏳ Подписка для «%s» заканчивается %s (осталось %d дн.).\n\nПродлить:",
		escape(acc.BusinessName), t.formatDate(status.End), status.DaysLeft)
	return t.reply(*acc.ExternalUserID, text, periodKeyboard(t.payments == nil))
}
