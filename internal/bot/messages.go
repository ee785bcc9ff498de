package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"carwash-bot/internal/models"
)

const (
	textWelcome = "👋 Привет! Я бот для управления автомойкой.\n\n" +
		"Нажмите «" + btnRegister + "», чтобы создать аккаунт."
	textHelp = "Команды:\n" +
		"/start — главное меню\n" +
		"/register — регистрация\n" +
		"/cancel — прервать ввод\n\n" +
		"Остальные действия доступны через кнопки меню."
	textNoAccess = "⛔ Нет доступа."
	textUseMenu  = "Не понял сообщение. Воспользуйтесь кнопками меню или /help."
)

// handleMessage routes a message by command, conversation step and menu button.
// While a flow is in progress every non-command message is the awaited value.
func (t *TelegramBot) handleMessage(ctx context.Context, message *tgbotapi.Message) error {
	if message.From == nil {
		return nil
	}
	if message.IsCommand() {
		t.logger.Infow("Handling command", "command", message.Command(), "user_id", message.From.ID)
		return t.handleCommand(ctx, message)
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	sess, err := t.loadSession(ctx, chatID)
	if err != nil {
		return err
	}

	if !sess.Idle() {
		t.logger.Infow("Processing flow input", "user_id", userID, "flow", sess.Flow, "step", sess.Step)
		return t.handleFlowInput(ctx, message, sess)
	}

	text := strings.TrimSpace(message.Text)
	switch text {
	case btnRegister:
		return t.startRegistration(ctx, message, sess)
	case btnPay, btnExtend:
		return t.offerSubscription(ctx, message, sess)
	case btnMyAccount, btnMySubscription:
		return t.showAccount(ctx, message, sess)
	case btnCancelSub:
		return t.cancelSubscription(ctx, message, sess)
	case btnAdminMenu, btnUserMenu:
		if !t.privileged(userID) {
			return t.reply(chatID, textNoAccess, nil)
		}
		sess.AdminView = text == btnAdminMenu
		if err := t.saveSession(ctx, sess); err != nil {
			return err
		}
		return t.replyWithMenu(ctx, chatID, userID, sess, "Главное меню:")
	case btnAdminCreate:
		return t.startProvisioning(ctx, message, sess)
	case btnAdminStats:
		return t.showStats(ctx, message, sess)
	default:
		return t.replyWithMenu(ctx, chatID, userID, sess, textUseMenu)
	}
}

// handleCommand processes slash commands. Known top-level commands abandon any flow in progress.
func (t *TelegramBot) handleCommand(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	userID := message.From.ID

	switch message.Command() {
	case "start":
		sess, err := t.resetSession(ctx, chatID)
		if err != nil {
			return err
		}
		text := textWelcome
		switch message.CommandArguments() {
		case "payment_success":
			text = "Спасибо за оплату! Подписка продлится, как только платёж будет подтверждён."
		case "payment_cancel":
			text = "Оплата была отменена. Вы можете попробовать снова."
		}
		return t.replyWithMenu(ctx, chatID, userID, sess, text)

	case "admin":
		if !t.privileged(userID) {
			t.logger.Warnw("Rejected admin command", "user_id", userID)
			return t.reply(chatID, textNoAccess, nil)
		}
		sess, err := t.resetSession(ctx, chatID)
		if err != nil {
			return err
		}
		sess.AdminView = true
		if err := t.saveSession(ctx, sess); err != nil {
			return err
		}
		return t.replyWithMenu(ctx, chatID, userID, sess, "🔧 Панель администратора.")

	case "register":
		sess, err := t.resetSession(ctx, chatID)
		if err != nil {
			return err
		}
		return t.startRegistration(ctx, message, sess)

	case "cancel":
		sess, err := t.loadSession(ctx, chatID)
		if err != nil {
			return err
		}
		text := "Нечего отменять."
		if !sess.Idle() {
			sess.Finish()
			if err := t.saveSession(ctx, sess); err != nil {
				return err
			}
			text = "Ввод прерван."
		}
		return t.replyWithMenu(ctx, chatID, userID, sess, text)

	case "help":
		return t.reply(chatID, textHelp, nil)

	default:
		return t.reply(chatID, "Неизвестная команда. Используйте /start для начала работы.", nil)
	}
}

// resetSession drops the chat's session and returns a fresh idle one.
func (t *TelegramBot) resetSession(ctx context.Context, chatID int64) (*models.Session, error) {
	if err := t.sessions.Delete(ctx, chatID); err != nil {
		return nil, fmt.Errorf("reset session: %w", err)
	}
	return models.NewSession(chatID), nil
}
