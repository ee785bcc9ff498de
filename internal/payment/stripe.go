// internal/payment/stripe.go
package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/checkout/session"
	"github.com/stripe/stripe-go/v72/webhook"

	"carwash-bot/internal/config"
)

const (
	EventCheckoutCompleted = "checkout.session.completed"

	metadataMonths = "months"
)

var ErrNotCheckoutCompleted = errors.New("event is not a completed checkout")

// Purchase is what a completed checkout paid for.
type Purchase struct {
	SessionID      string
	ExternalUserID int64
	Months         int
}

type StripeClient struct {
	secretKey     string
	webhookSecret string
	priceID       string
}

func NewStripeClient(cfg config.StripeConfig) *StripeClient {
	stripe.Key = cfg.SecretKey

	return &StripeClient{
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookKey,
		priceID:       cfg.PriceID,
	}
}

// CreateCheckoutSession starts a payment for months of the monthly price and returns the session id and URL.
func (s *StripeClient) CreateCheckoutSession(externalUserID int64, months int, successURL, cancelURL string) (string, string, error) {
	if stripe.Key != s.secretKey {
		stripe.Key = s.secretKey
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.priceID),
				Quantity: stripe.Int64(int64(months)),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(strconv.FormatInt(externalUserID, 10)),
	}
	params.AddMetadata(metadataMonths, strconv.Itoa(months))
	params.SetIdempotencyKey(uuid.NewString())

	sess, err := session.New(params)
	if err != nil {
		return "", "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	return sess.ID, sess.URL, nil
}

// ParseWebhook verifies the signature and decodes a completed checkout.
// Other event types yield ErrNotCheckoutCompleted together with the event type.
func (s *StripeClient) ParseWebhook(payload []byte, signature string) (Purchase, string, error) {
	if s.webhookSecret == "" {
		return Purchase{}, "", errors.New("webhook secret is not configured")
	}
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return Purchase{}, "", fmt.Errorf("verify webhook signature: %w", err)
	}
	if event.Type != EventCheckoutCompleted {
		return Purchase{}, event.Type, ErrNotCheckoutCompleted
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return Purchase{}, event.Type, fmt.Errorf("parse checkout session: %w", err)
	}
	p, err := PurchaseFromSession(&sess)
	return p, event.Type, err
}

// PurchaseFromSession extracts the chat user and period from a checkout session.
func PurchaseFromSession(sess *stripe.CheckoutSession) (Purchase, error) {
	if sess.ClientReferenceID == "" {
		return Purchase{}, fmt.Errorf("checkout session %s has no client reference id", sess.ID)
	}
	userID, err := strconv.ParseInt(sess.ClientReferenceID, 10, 64)
	if err != nil {
		return Purchase{}, fmt.Errorf("invalid client reference id %q: %w", sess.ClientReferenceID, err)
	}
	months, err := strconv.Atoi(sess.Metadata[metadataMonths])
	if err != nil || months <= 0 {
		return Purchase{}, fmt.Errorf("checkout session %s has invalid months metadata %q", sess.ID, sess.Metadata[metadataMonths])
	}
	return Purchase{SessionID: sess.ID, ExternalUserID: userID, Months: months}, nil
}
