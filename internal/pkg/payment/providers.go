package payment

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/multigpt/paycore/app/models"
)

func (h *Handler) handlePayPalEvent(ctx context.Context, eventType string, payload Payload) bool {
	resource := payload.object("resource")
	if resource == nil {
		resource = Payload{}
	}
	// The transmission id lives on the envelope, not the resource; carry it
	// down for the order-id extraction fallbacks.
	if tid := payload.str(TransmissionIDKey); tid != "" && resource.str(TransmissionIDKey) == "" {
		resource[TransmissionIDKey] = tid
	}

	switch eventType {
	case "PAYMENT.SALE.COMPLETED", "PAYMENT.CAPTURE.COMPLETED":
		return h.handlePaymentSuccess(ctx, models.ProviderPayPal, resource)

	case "CHECKOUT.ORDER.APPROVED":
		// Approval precedes capture; the capture event carries the money.
		log.Infof("[Webhook] PayPal order %s approved, waiting for capture", resource.str("id"))
		return true

	case "BILLING.SUBSCRIPTION.ACTIVATED":
		return h.handlePaymentSuccess(ctx, models.ProviderPayPal, resource)

	case "BILLING.SUBSCRIPTION.CANCELLED":
		return h.handleSubscriptionStatusChange(ctx, models.ProviderPayPal, resource, models.SubscriptionStatusCancelled)

	case "BILLING.SUBSCRIPTION.SUSPENDED":
		return h.handleSubscriptionStatusChange(ctx, models.ProviderPayPal, resource, models.SubscriptionStatusSuspended)

	default:
		log.Infof("[Webhook] Unhandled PayPal event %s, acknowledging", eventType)
		return true
	}
}

func (h *Handler) handleStripeEvent(ctx context.Context, eventType string, payload Payload) bool {
	var object Payload
	if data := payload.object("data"); data != nil {
		object = data.object("object")
	}
	if object == nil {
		object = Payload{}
	}

	switch eventType {
	case "checkout.session.completed":
		return h.handleStripeCheckoutCompleted(ctx, object)

	case "customer.subscription.created":
		log.Infof("[Webhook] Stripe subscription %s created (status %s)", object.str("id"), object.str("status"))
		return true

	case "customer.subscription.updated":
		return h.handleStripeSubscriptionUpdated(ctx, object)

	case "customer.subscription.deleted":
		return h.handleSubscriptionStatusChange(ctx, models.ProviderStripe, object, models.SubscriptionStatusCancelled)

	case "invoice.payment_succeeded":
		return h.handleStripeInvoicePaymentSucceeded(ctx, object)

	case "invoice.payment_failed":
		return h.handleStripeInvoicePaymentFailed(ctx, object)

	default:
		log.Infof("[Webhook] Unhandled Stripe event %s, acknowledging", eventType)
		return true
	}
}

func (h *Handler) handleAlipayEvent(ctx context.Context, eventType string, payload Payload) bool {
	switch eventType {
	case "TRADE_SUCCESS", "TRADE_FINISHED":
		return h.handlePaymentSuccess(ctx, models.ProviderAlipay, payload)

	default:
		log.Infof("[Webhook] Unhandled Alipay event %s, acknowledging", eventType)
		return true
	}
}

func (h *Handler) handleWechatEvent(ctx context.Context, eventType string, payload Payload) bool {
	switch eventType {
	case "SUCCESS":
		return h.handlePaymentSuccess(ctx, models.ProviderWechat, payload)

	default:
		log.Infof("[Webhook] Unhandled WeChat event %s, acknowledging", eventType)
		return true
	}
}

// handleSubscriptionStatusChange covers provider-side cancel/suspend events.
// The subscription id arrives without a user id, so the user is resolved from
// previously stored payment or subscription rows.
func (h *Handler) handleSubscriptionStatusChange(ctx context.Context, provider string, data Payload, status string) bool {
	subscriptionID := data.str("id")
	if subscriptionID == "" {
		subscriptionID = data.str("subscription")
	}

	user, found := h.findUserBySubscriptionID(ctx, subscriptionID)
	if !found {
		log.Errorf("[Webhook] User not found for %s subscription %s (%s)", provider, subscriptionID, status)
		return false
	}

	return h.UpdateSubscriptionStatus(ctx, LedgerUpdate{
		UserID:         user.UserID,
		SubscriptionID: subscriptionID,
		Status:         status,
		Provider:       provider,
	})
}
