package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Webhook event types the settlement flow reacts to. Anything else is
// acknowledged without action.
const (
	WebhookEventCheckoutCompleted = "checkout.session.completed"
	WebhookEventIntentSucceeded   = "payment_intent.succeeded"
	WebhookEventIntentFailed      = "payment_intent.payment_failed"
)

// ErrWebhookSignature indicates the payload failed signature verification.
var ErrWebhookSignature = errors.New("payments: invalid webhook signature")

// WebhookEvent is the provider-neutral view of a verified gateway event.
type WebhookEvent struct {
	Type          string
	SessionID     string
	IntentID      string
	OrderID       string
	UserID        string
	FailureReason string
}

// WebhookParser verifies and decodes raw webhook deliveries.
type WebhookParser interface {
	Parse(payload []byte, signature string) (WebhookEvent, error)
}

// StripeWebhookParser verifies Stripe webhook signatures and extracts the
// fields the settlement flow needs.
type StripeWebhookParser struct {
	secret string
}

// NewStripeWebhookParser constructs a parser over the endpoint signing secret.
func NewStripeWebhookParser(secret string) (*StripeWebhookParser, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("stripe: webhook signing secret is required")
	}
	return &StripeWebhookParser{secret: secret}, nil
}

// Parse verifies the signature and normalises the event payload.
func (p *StripeWebhookParser) Parse(payload []byte, signature string) (WebhookEvent, error) {
	if p == nil {
		return WebhookEvent{}, errors.New("stripe: webhook parser is nil")
	}

	event, err := webhook.ConstructEvent(payload, signature, p.secret)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrWebhookSignature, err)
	}

	out := WebhookEvent{Type: string(event.Type)}

	switch out.Type {
	case WebhookEventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return WebhookEvent{}, fmt.Errorf("stripe: decode checkout session: %w", err)
		}
		out.SessionID = session.ID
		if session.PaymentIntent != nil {
			out.IntentID = session.PaymentIntent.ID
		}
		out.OrderID = session.Metadata["orderID"]
		out.UserID = session.Metadata["userID"]
	case WebhookEventIntentSucceeded, WebhookEventIntentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return WebhookEvent{}, fmt.Errorf("stripe: decode payment intent: %w", err)
		}
		out.IntentID = intent.ID
		out.OrderID = intent.Metadata["orderID"]
		out.UserID = intent.Metadata["userID"]
		if intent.LastPaymentError != nil {
			out.FailureReason = intent.LastPaymentError.Msg
		}
	}

	return out, nil
}
