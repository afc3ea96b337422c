package payment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/multigpt/paycore/app/models"
	"github.com/multigpt/paycore/internal/pkg/paystore"
)

// Handler is the webhook dispatcher. One instance is constructed at startup
// with the region-selected repository and the wallet provisioner; it holds no
// other state, so concurrent deliveries run through it in parallel and all
// exclusion comes from the persistent idempotency checks.
type Handler struct {
	repo   paystore.Repository
	wallet WalletProvisioner
}

func NewHandler(repo paystore.Repository, wallet WalletProvisioner) *Handler {
	return &Handler{repo: repo, wallet: wallet}
}

// ProcessWebhook runs one delivery through the idempotency gate and the
// provider handlers. It returns false only when processing failed and the
// provider should redeliver; duplicates and intentionally ignored events
// report true so the provider stops retrying.
func (h *Handler) ProcessWebhook(ctx context.Context, provider, eventType string, payload Payload) bool {
	start := time.Now()
	eventID := DeriveEventID(provider, payload)

	log.Infof("[Webhook] Processing %s %s (event %s)", provider, eventType, eventID)

	processed, err := h.isProcessed(ctx, eventID)
	if err != nil {
		log.Errorf("[Webhook] Idempotency check failed for %s: %v", eventID, err)
		return false
	}
	if processed {
		log.Infof("[Webhook] Event %s already processed, skipping", eventID)
		return true
	}

	if err := h.recordEvent(ctx, eventID, provider, eventType, payload); err != nil {
		log.Errorf("[Webhook] Failed to record event %s: %v", eventID, err)
		return false
	}

	success := h.handleEvent(ctx, provider, eventType, payload)
	if success {
		if err := h.repo.MarkWebhookEventProcessed(ctx, eventID, time.Now()); err != nil {
			// Non-fatal: the event stays retryable and the payment store's
			// completed-record check catches the replay.
			log.Warnf("[Webhook] Failed to mark event %s processed: %v", eventID, err)
		}
		log.Infof("[Webhook] Processed %s %s in %s", provider, eventType, time.Since(start))
	} else {
		log.Errorf("[Webhook] Processing failed for %s %s (event %s) after %s", provider, eventType, eventID, time.Since(start))
	}
	return success
}

// isProcessed is true only for a record whose processed flag is set. A
// recorded-but-unprocessed event means a crash mid-processing and must be
// retried, not skipped.
func (h *Handler) isProcessed(ctx context.Context, eventID string) (bool, error) {
	event, err := h.repo.GetWebhookEvent(ctx, eventID)
	if errors.Is(err, paystore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return event.Processed, nil
}

func (h *Handler) recordEvent(ctx context.Context, eventID, provider, eventType string, payload Payload) error {
	raw, err := json.Marshal(map[string]interface{}(payload))
	if err != nil {
		return err
	}
	return h.repo.UpsertWebhookEvent(ctx, &models.WebhookEvent{
		EventID:   eventID,
		Provider:  provider,
		EventType: eventType,
		EventData: string(raw),
		Processed: false,
	})
}

func (h *Handler) handleEvent(ctx context.Context, provider, eventType string, payload Payload) bool {
	switch provider {
	case models.ProviderPayPal:
		return h.handlePayPalEvent(ctx, eventType, payload)
	case models.ProviderStripe:
		return h.handleStripeEvent(ctx, eventType, payload)
	case models.ProviderAlipay:
		return h.handleAlipayEvent(ctx, eventType, payload)
	case models.ProviderWechat:
		return h.handleWechatEvent(ctx, eventType, payload)
	default:
		log.Warnf("[Webhook] Unknown provider %s for event type %s, acknowledging", provider, eventType)
		return true
	}
}
