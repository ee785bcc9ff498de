package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"carwash-bot/internal/account"
	"carwash-bot/internal/models"
)

const (
	textAskBusinessName = "Введите название вашей автомойки (например: «Саларьево»):"
	textAskOwnerName    = "Теперь введите имя владельца:"
	textAskDays         = "На сколько дней активировать подписку? Введите число от 1 до 3650:"
	textBadName         = "Название должно содержать буквы или цифры. Попробуйте ещё раз:"
	textNoFreeLogin     = "Не удалось подобрать свободный логин для этого названия. Введите другое название:"
	textEmptyOwner      = "Имя не может быть пустым. Введите имя владельца:"
	textNameTooLong     = "Слишком длинно, не больше 200 символов. Попробуйте ещё раз:"
	textLoginTaken      = "😔 Логин уже занят. Начните регистрацию заново."
	textAlreadyExists   = "У вас уже есть аккаунт."
)

func (t *TelegramBot) startRegistration(ctx context.Context, message *tgbotapi.Message, sess *models.Session) error {
	chatID := message.Chat.ID
	userID := message.From.ID

	_, err := t.accounts.Lookup(ctx, userID)
	switch {
	case err == nil:
		return t.replyWithMenu(ctx, chatID, userID, sess, textAlreadyExists)
	case !errors.Is(err, models.ErrNotFound):
		return fmt.Errorf("lookup account: %w", err)
	}

	sess.Begin(models.FlowRegistration)
	if err := t.saveSession(ctx, sess); err != nil {
		return err
	}
	return t.reply(chatID, textAskBusinessName, tgbotapi.NewRemoveKeyboard(true))
}

func (t *TelegramBot) startProvisioning(ctx context.Context, message *tgbotapi.Message, sess *models.Session) error {
	chatID := message.Chat.ID
	if !t.privileged(message.From.ID) {
		t.logger.Warnw("Rejected provisioning", "user_id", message.From.ID)
		return t.reply(chatID, textNoAccess, nil)
	}

	sess.Begin(models.FlowProvisioning)
	if err := t.saveSession(ctx, sess); err != nil {
		return err
	}
	return t.reply(chatID, "➕ Новый аккаунт.\n\n"+textAskBusinessName, tgbotapi.NewRemoveKeyboard(true))
}

// handleFlowInput treats the message text as the value the current step awaits.
func (t *TelegramBot) handleFlowInput(ctx context.Context, message *tgbotapi.Message, sess *models.Session) error {
	if sess.Flow == models.FlowProvisioning && !t.privileged(message.From.ID) {
		sess.Finish()
		if err := t.saveSession(ctx, sess); err != nil {
			return err
		}
		return t.reply(message.Chat.ID, textNoAccess, nil)
	}

	text := strings.TrimSpace(message.Text)
	switch sess.Step {
	case models.StepAwaitingBusinessName:
		return t.acceptBusinessName(ctx, message.Chat.ID, text, sess)
	case models.StepAwaitingOwnerName:
		return t.acceptOwnerName(ctx, message, text, sess)
	case models.StepAwaitingDayCount:
		return t.acceptDayCount(ctx, message, text, sess)
	default:
		t.logger.Warnw("Unknown session step, resetting", "chat_id", message.Chat.ID, "step", sess.Step)
		sess.Finish()
		if err := t.saveSession(ctx, sess); err != nil {
			return err
		}
		return t.replyWithMenu(ctx, message.Chat.ID, message.From.ID, sess, "Давайте начнём заново.")
	}
}

func (t *TelegramBot) acceptBusinessName(ctx context.Context, chatID int64, name string, sess *models.Session) error {
	if name == "" {
		return t.reply(chatID, textBadName, nil)
	}
	if !account.ValidNameLength(name) {
		return t.reply(chatID, textNameTooLong, nil)
	}

	login, err := t.accounts.ResolveLogin(ctx, name)
	switch {
	case errors.Is(err, account.ErrInvalidName):
		return t.reply(chatID, textBadName, nil)
	case errors.Is(err, models.ErrLoginTaken):
		return t.reply(chatID, textNoFreeLogin, nil)
	case err != nil:
		return err
	}

	sess.BusinessName = name
	sess.Login = login
	sess.Step = models.StepAwaitingOwnerName
	if err := t.saveSession(ctx, sess); err != nil {
		return err
	}
	return t.reply(chatID, fmt.Sprintf("✅ Название принято! Логин будет: <b>%s</b>\n\n%s", escape(login), textAskOwnerName), nil)
}

func (t *TelegramBot) acceptOwnerName(ctx context.Context, message *tgbotapi.Message, owner string, sess *models.Session) error {
	chatID := message.Chat.ID
	if owner == "" {
		return t.reply(chatID, textEmptyOwner, nil)
	}
	if !account.ValidNameLength(owner) {
		return t.reply(chatID, textNameTooLong, nil)
	}

	if sess.Flow == models.FlowProvisioning {
		sess.OwnerName = owner
		sess.Step = models.StepAwaitingDayCount
		if err := t.saveSession(ctx, sess); err != nil {
			return err
		}
		return t.reply(chatID, textAskDays, nil)
	}

	userID := message.From.ID
	in := account.RegisterInput{
		ExternalUserID: userID,
		BusinessName:   sess.BusinessName,
		OwnerName:      owner,
		Login:          sess.Login,
	}
	sess.Finish()
	if err := t.saveSession(ctx, sess); err != nil {
		return err
	}

	acc, err := t.accounts.Register(ctx, in)
	switch {
	case errors.Is(err, models.ErrLoginTaken):
		return t.replyWithMenu(ctx, chatID, userID, sess, textLoginTaken)
	case errors.Is(err, models.ErrAlreadyRegistered):
		return t.replyWithMenu(ctx, chatID, userID, sess, textAlreadyExists)
	case err != nil:
		return err
	}

	t.logger.Infow("Account registered", "user_id", userID, "account_id", acc.ID, "login", acc.Login)
	text := fmt.Sprintf("🎉 <b>Аккаунт создан!</b>\n\n"+
		"🏢 Автомойка: %s\n"+
		"👤 Владелец: %s\n"+
		"🔑 Логин: <code>%s</code>\n"+
		"🔒 Пароль: <code>%s</code>\n\n"+
		"⚠️ <b>Сохраните эти данные!</b>\n\n"+
		"Теперь можно активировать подписку.",
		escape(acc.BusinessName), escape(acc.OwnerName), escape(acc.Login), escape(acc.Password))
	return t.replyWithMenu(ctx, chatID, userID, sess, text)
}

func (t *TelegramBot) acceptDayCount(ctx context.Context, message *tgbotapi.Message, text string, sess *models.Session) error {
	chatID := message.Chat.ID
	days, err := account.ParseDays(text)
	if err != nil {
		return t.reply(chatID, "❗ "+textAskDays, nil)
	}

	in := account.ProvisionInput{
		BusinessName: sess.BusinessName,
		OwnerName:    sess.OwnerName,
		Login:        sess.Login,
		Days:         days,
	}
	sess.Finish()
	if err := t.saveSession(ctx, sess); err != nil {
		return err
	}

	acc, err := t.accounts.Provision(ctx, in)
	switch {
	case errors.Is(err, models.ErrLoginTaken):
		return t.replyWithMenu(ctx, chatID, message.From.ID, sess, textLoginTaken)
	case err != nil:
		return err
	}

	t.logger.Infow("Account provisioned", "account_id", acc.ID, "login", acc.Login, "days", days)
	reply := fmt.Sprintf("✅ <b>Аккаунт создан</b>\n\n"+
		"🏢 Автомойка: %s\n"+
		"👤 Владелец: %s\n"+
		"🔑 Логин: <code>%s</code>\n"+
		"🔒 Пароль: <code>%s</code>\n"+
		"📅 Подписка до: %s",
		escape(acc.BusinessName), escape(acc.OwnerName), escape(acc.Login), escape(acc.Password),
		t.formatDate(*acc.SubscriptionEnd))
	return t.replyWithMenu(ctx, chatID, message.From.ID, sess, reply)
}
