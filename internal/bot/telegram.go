package bot

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"html"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"carwash-bot/internal/account"
	"carwash-bot/internal/config"
	"carwash-bot/internal/metrics"
	"carwash-bot/internal/models"
	"carwash-bot/internal/payment"
	"carwash-bot/internal/session"
	"carwash-bot/internal/subscription"
	"carwash-bot/pkg/logger"
)

const (
	handleTimeout = 30 * time.Second

	// chatLockStripes bounds the lock table; chats sharing a stripe are serialized together.
	chatLockStripes = 64
)

// messenger is the part of *tgbotapi.BotAPI used to talk back to chats.
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// PaymentProvider takes real payments. A nil provider keeps the bot in free test mode.
type PaymentProvider interface {
	CreateCheckoutSession(externalUserID int64, months int, successURL, cancelURL string) (string, string, error)
	ParseWebhook(payload []byte, signature string) (payment.Purchase, string, error)
}

type TelegramBot struct {
	api         *tgbotapi.BotAPI
	sender      messenger
	username    string
	accounts    *account.Service
	sessions    session.Store
	payments    PaymentProvider
	adminID     int64
	webhookHost string
	webhookPath string
	loc         *time.Location
	logger      *logger.Logger
	chatLocks   [chatLockStripes]sync.Mutex
}

func NewTelegramBot(cfg config.TelegramConfig, accounts *account.Service, sessions session.Store, payments PaymentProvider, logger *logger.Logger) (*TelegramBot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	api.Debug = cfg.Debug

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	logger.Infow("Authorized on Telegram", "username", api.Self.UserName)

	t := newTelegramBot(api, api.Self.UserName, cfg.AdminID, accounts, sessions, payments, logger)
	t.api = api
	t.loc = loc
	t.webhookHost = cfg.WebhookHost
	t.webhookPath = fmt.Sprintf("/telegram/%x", sha256.Sum256([]byte(cfg.Token)))[:len("/telegram/")+32]
	return t, nil
}

func newTelegramBot(sender messenger, username string, adminID int64, accounts *account.Service, sessions session.Store, payments PaymentProvider, logger *logger.Logger) *TelegramBot {
	return &TelegramBot{
		sender:   sender,
		username: username,
		accounts: accounts,
		sessions: sessions,
		payments: payments,
		adminID:  adminID,
		loc:      time.UTC,
		logger:   logger,
	}
}

// WebhookPath is the HTTP path Telegram pushes updates to in webhook mode.
func (t *TelegramBot) WebhookPath() string {
	return t.webhookPath
}

// UsesWebhook reports whether updates arrive by push instead of long polling.
func (t *TelegramBot) UsesWebhook() bool {
	return t.webhookHost != ""
}

// Start registers the webhook when an external host is configured, otherwise it starts long polling.
func (t *TelegramBot) Start(ctx context.Context) error {
	if t.UsesWebhook() {
		url := "https://" + t.webhookHost + t.webhookPath
		wh, err := tgbotapi.NewWebhook(url)
		if err != nil {
			return fmt.Errorf("failed to build webhook config: %w", err)
		}
		if _, err := t.api.Request(wh); err != nil {
			return fmt.Errorf("failed to set webhook: %w", err)
		}
		t.logger.Infow("Webhook registered", "host", t.webhookHost)
		return nil
	}

	t.logger.Info("Removing any existing webhook")
	if _, err := t.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := t.api.GetUpdatesChan(updateConfig)

	t.logger.Info("Started receiving Telegram updates")

	go t.handleUpdates(ctx, updates)

	return nil
}

// handleUpdates processes polled updates one at a time.
func (t *TelegramBot) handleUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			t.processUpdate(ctx, update)
		}
	}
}

// HandleTelegramWebhook receives pushed updates.
func (t *TelegramBot) HandleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := t.api.HandleUpdate(r)
	if err != nil {
		t.logger.Warnw("Failed to decode Telegram update", "error", err)
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}
	t.processUpdate(context.WithoutCancel(r.Context()), *update)
	w.WriteHeader(http.StatusOK)
}

// processUpdate fully handles one update. Updates of the same chat never run concurrently.
func (t *TelegramBot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	chatID := updateChatID(update)
	if chatID == 0 {
		return
	}

	mu := t.chatLock(chatID)
	mu.Lock()
	defer mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerErrors.Inc()
			t.logger.Errorw("Recovered from panic while processing update", "update_id", update.UpdateID, "error", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	var err error
	switch {
	case update.Message != nil:
		metrics.Updates.WithLabelValues("message").Inc()
		err = t.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		metrics.Updates.WithLabelValues("callback").Inc()
		err = t.handleCallbackQuery(ctx, update.CallbackQuery)
	default:
		return
	}

	if err != nil {
		metrics.HandlerErrors.Inc()
		t.logger.Errorw("Failed to handle update", "update_id", update.UpdateID, "chat_id", chatID, "error", err)
		t.failure(ctx, chatID)
	}
}

func (t *TelegramBot) chatLock(chatID int64) *sync.Mutex {
	return &t.chatLocks[uint64(chatID)%chatLockStripes]
}

func updateChatID(update tgbotapi.Update) int64 {
	switch {
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil:
		return update.CallbackQuery.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	}
	return 0
}

// failure reports an unexpected error to the chat and drops any flow in progress.
func (t *TelegramBot) failure(ctx context.Context, chatID int64) {
	if err := t.sessions.Delete(ctx, chatID); err != nil {
		t.logger.Errorw("Failed to reset session", "chat_id", chatID, "error", err)
	}
	msg := tgbotapi.NewMessage(chatID, "⚠️ Извините, произошла ошибка. Попробуйте ещё раз позже или начните заново с /start.")
	if _, err := t.sender.Send(msg); err != nil {
		t.logger.Errorw("Failed to send failure message", "chat_id", chatID, "error", err)
	}
}

func (t *TelegramBot) privileged(userID int64) bool {
	return t.adminID != 0 && userID == t.adminID
}

// menu derives the reply keyboard for userID from stored state.
func (t *TelegramBot) menu(ctx context.Context, userID int64, sess *models.Session) (tgbotapi.ReplyKeyboardMarkup, error) {
	v := menuView{Privileged: t.privileged(userID)}
	if sess != nil {
		v.AdminView = sess.AdminView
	}

	acc, err := t.accounts.Lookup(ctx, userID)
	switch {
	case err == nil:
		v.HasAccount = true
		v.Active = acc.Subscribed(t.accounts.Now())
	case !errors.Is(err, models.ErrNotFound):
		return tgbotapi.ReplyKeyboardMarkup{}, err
	}
	return menuFor(v), nil
}

func (t *TelegramBot) reply(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := t.sender.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// replyWithMenu sends text together with the current menu keyboard.
func (t *TelegramBot) replyWithMenu(ctx context.Context, chatID, userID int64, sess *models.Session, text string) error {
	kb, err := t.menu(ctx, userID, sess)
	if err != nil {
		return err
	}
	return t.reply(chatID, text, kb)
}

func (t *TelegramBot) loadSession(ctx context.Context, chatID int64) (*models.Session, error) {
	sess, err := t.sessions.Get(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

func (t *TelegramBot) saveSession(ctx context.Context, sess *models.Session) error {
	if err := t.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Stop stops long polling. In webhook mode the HTTP server owns delivery.
func (t *TelegramBot) Stop(ctx context.Context) error {
	if t.api != nil && !t.UsesWebhook() {
		t.api.StopReceivingUpdates()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(500 * time.Millisecond):
		return nil
	}
}

// formatDate renders ts as a calendar date in the configured zone.
func (t *TelegramBot) formatDate(ts time.Time) string {
	return ts.In(t.loc).Format(subscription.DateLayout)
}

var escape = html.EscapeString
