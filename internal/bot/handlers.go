package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"carwash-bot/internal/models"
	"carwash-bot/internal/payment"
)

const maxWebhookBody = 64 << 10

// HandleStripeWebhook applies completed checkouts. Failures other than bad input
// answer 500 so that Stripe redelivers; redeliveries of an applied checkout are acknowledged.
func (t *TelegramBot) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if t.payments == nil {
		http.Error(w, "Payments are not configured", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		t.logger.Errorw("Failed to read webhook body", "error", err)
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		t.logger.Error("Missing Stripe signature header")
		http.Error(w, "Missing signature", http.StatusBadRequest)
		return
	}

	purchase, eventType, err := t.payments.ParseWebhook(body, signature)
	switch {
	case errors.Is(err, payment.ErrNotCheckoutCompleted):
		t.logger.Infow("Ignoring Stripe event", "type", eventType)
		w.WriteHeader(http.StatusOK)
		return
	case err != nil:
		t.logger.Errorw("Rejected Stripe webhook", "type", eventType, "error", err)
		http.Error(w, "Invalid webhook", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), handleTimeout)
	defer cancel()

	if err := t.applyPurchase(ctx, purchase); err != nil {
		t.logger.Errorw("Failed to apply payment", "session_id", purchase.SessionID, "user_id", purchase.ExternalUserID, "error", err)
		http.Error(w, "Failed to apply payment", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Webhook received"))
}

func (t *TelegramBot) applyPurchase(ctx context.Context, p payment.Purchase) error {
	acc, err := t.accounts.ApplyPayment(ctx, p.SessionID, p.ExternalUserID, p.Months)
	switch {
	case errors.Is(err, models.ErrDuplicatePayment):
		t.logger.Infow("Payment already applied", "session_id", p.SessionID)
		return nil
	case errors.Is(err, models.ErrNotFound):
		// Nothing to extend; retrying will not help.
		t.logger.Errorw("Paid checkout for unknown account", "session_id", p.SessionID, "user_id", p.ExternalUserID)
		return nil
	case err != nil:
		return err
	}

	t.logger.Infow("Payment applied", "session_id", p.SessionID, "user_id", p.ExternalUserID, "months", p.Months)

	sess, err := t.loadSession(ctx, p.ExternalUserID)
	if err != nil {
		sess = models.NewSession(p.ExternalUserID)
	}
	text := fmt.Sprintf("✅ <b>Оплата получена!</b>\n\n📅 Подписка действует до: %s", t.formatDate(*acc.SubscriptionEnd))
	if err := t.replyWithMenu(ctx, p.ExternalUserID, p.ExternalUserID, sess, text); err != nil {
		// The subscription is extended already; only the notification is lost.
		t.logger.Warnw("Failed to notify about payment", "user_id", p.ExternalUserID, "error", err)
	}
	return nil
}

