package gateway

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/checkout/session"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/multigpt/paycore/internal/pkg/env"
	"github.com/multigpt/paycore/internal/pkg/payment"
)

type StripeClient struct {
	WebhookSecret string
}

func NewStripeClientFromEnv() *StripeClient {
	stripe.Key = strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", ""))
	return &StripeClient{
		WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
	}
}

// VerifyWebhook checks the Stripe-Signature header against the endpoint
// secret and returns the parsed event.
func (c *StripeClient) VerifyWebhook(body []byte, signatureHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(body, signatureHeader, c.WebhookSecret)
}

// ConfirmCheckoutSession fetches the checkout session and requires it to be
// paid. The transaction id mirrors the webhook's correlation key: the
// subscription id for recurring checkouts, the session id for one-time ones.
func (c *StripeClient) ConfirmCheckoutSession(ctx context.Context, sessionID string) (payment.Confirmation, error) {
	if sessionID == "" {
		return payment.Confirmation{}, payment.NewConfirmError(400, "missing session_id")
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := session.Get(sessionID, params)
	if err != nil {
		log.Errorf("[Gateway] Stripe session lookup failed for %s: %v", sessionID, err)
		return payment.Confirmation{}, payment.NewConfirmError(502, "failed to verify payment with Stripe")
	}

	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return payment.Confirmation{}, payment.NewConfirmError(400, "payment not completed (status %s)", sess.PaymentStatus)
	}

	conf := payment.Confirmation{
		TransactionID: sess.ID,
		Amount:        decimal.NewFromInt(sess.AmountTotal).Div(decimal.NewFromInt(100)),
		Currency:      strings.ToUpper(string(sess.Currency)),
	}
	if sess.Subscription != nil && sess.Subscription.ID != "" {
		conf.TransactionID = sess.Subscription.ID
	}
	if raw, ok := sess.Metadata["days"]; ok {
		if days, err := strconv.Atoi(raw); err == nil {
			conf.Days = days
		}
	}
	return conf, nil
}
