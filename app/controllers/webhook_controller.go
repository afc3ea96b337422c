package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/multigpt/paycore/app/models"
	"github.com/multigpt/paycore/internal/pkg/cache"
	"github.com/multigpt/paycore/internal/pkg/gateway"
	"github.com/multigpt/paycore/internal/pkg/payment"
)

const webhookTimeout = 25 * time.Second

// HandleStripeWebhook verifies the Stripe-Signature header and feeds the
// event envelope into the dispatcher.
func (pc *PaymentController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	event, err := pc.gateway.Stripe.VerifyWebhook(rawBody, c.Get("Stripe-Signature"))
	if err != nil {
		log.Warnf("[Webhook] Stripe signature verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	payload, err := payment.ParsePayload(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	if !pc.handler.ProcessWebhook(ctx, models.ProviderStripe, string(event.Type), payload) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

// HandlePayPalWebhook verifies the delivery via PayPal's
// verify-webhook-signature API when a webhook id is configured. The
// transmission id header is carried into the payload so the event id survives
// PayPal's resend-with-new-body behavior.
func (pc *PaymentController) HandlePayPalWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	if pc.gateway.PayPal.WebhookID != "" {
		headers := gateway.WebhookHeaders{
			AuthAlgo:         c.Get("Paypal-Auth-Algo"),
			CertURL:          c.Get("Paypal-Cert-Url"),
			TransmissionID:   c.Get("Paypal-Transmission-Id"),
			TransmissionSig:  c.Get("Paypal-Transmission-Sig"),
			TransmissionTime: c.Get("Paypal-Transmission-Time"),
		}
		valid, err := pc.gateway.PayPal.VerifyWebhookSignature(ctx, headers, rawBody)
		if err != nil {
			log.Errorf("[Webhook] PayPal signature verification errored: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "verification_failed"})
		}
		if !valid {
			log.Warnf("[Webhook] PayPal signature verification failed for transmission %s", headers.TransmissionID)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		}
	} else {
		log.Warnf("[Webhook] PAYPAL_WEBHOOK_ID not configured, skipping signature verification")
	}

	payload, err := payment.ParsePayload(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if tid := strings.TrimSpace(c.Get("Paypal-Transmission-Id")); tid != "" {
		payload[payment.TransmissionIDKey] = tid
	}

	eventType, _ := payload["event_type"].(string)
	if !pc.handler.ProcessWebhook(ctx, models.ProviderPayPal, eventType, payload) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

// HandleAlipayWebhook handles Alipay's form-urlencoded async notification.
// Alipay expects the literal body "success" or "failure"; anything else is
// treated as a delivery failure and retried.
func (pc *PaymentController) HandleAlipayWebhook(c *fiber.Ctx) error {
	params := map[string]string{}
	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		params[string(key)] = string(value)
	})

	if err := pc.gateway.Alipay.VerifyNotification(params); err != nil {
		log.Warnf("[Webhook] Alipay signature verification failed: %v", err)
		return c.Status(fiber.StatusUnauthorized).SendString("failure")
	}

	tradeStatus := params["trade_status"]
	if tradeStatus != "TRADE_SUCCESS" && tradeStatus != "TRADE_FINISHED" {
		// Non-final states (WAIT_BUYER_PAY, TRADE_CLOSED) are acknowledged so
		// Alipay stops resending; nothing is recorded for them.
		log.Infof("[Webhook] Ignoring Alipay notification with trade_status %s", tradeStatus)
		return c.SendString("success")
	}

	payload := payment.Payload{}
	for k, v := range params {
		payload[k] = v
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	if !pc.handler.ProcessWebhook(ctx, models.ProviderAlipay, tradeStatus, payload) {
		return c.Status(fiber.StatusInternalServerError).SendString("failure")
	}

	if outTradeNo := params["out_trade_no"]; outTradeNo != "" {
		if err := cache.SetPaymentStatus(outTradeNo, models.PaymentStatusCompleted); err != nil {
			log.Warnf("[Webhook] Failed to cache payment status for %s: %v", outTradeNo, err)
		}
	}
	return c.SendString("success")
}

// HandleWechatWebhook verifies a WeChat Pay v3 notification, decrypts the
// resource envelope and dispatches the decrypted transaction.
func (pc *PaymentController) HandleWechatWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	headers := gateway.NotificationHeaders{
		Timestamp: c.Get("Wechatpay-Timestamp"),
		Nonce:     c.Get("Wechatpay-Nonce"),
		Signature: c.Get("Wechatpay-Signature"),
		Serial:    c.Get("Wechatpay-Serial"),
	}
	if err := pc.gateway.Wechat.VerifyNotification(headers, rawBody); err != nil {
		log.Warnf("[Webhook] WeChat signature verification failed: %v", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"code": "FAIL", "message": "invalid signature"})
	}

	envelope, err := payment.ParsePayload(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"code": "FAIL", "message": "invalid payload"})
	}

	var resource struct {
		Ciphertext     string
		Nonce          string
		AssociatedData string
	}
	if res, ok := envelope["resource"].(map[string]interface{}); ok {
		resource.Ciphertext, _ = res["ciphertext"].(string)
		resource.Nonce, _ = res["nonce"].(string)
		resource.AssociatedData, _ = res["associated_data"].(string)
	}

	plaintext, err := pc.gateway.Wechat.DecryptResource(resource.Ciphertext, resource.Nonce, resource.AssociatedData)
	if err != nil {
		log.Errorf("[Webhook] WeChat resource decryption failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"code": "FAIL", "message": "decryption failed"})
	}

	payload, err := payment.ParsePayload(plaintext)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"code": "FAIL", "message": "invalid resource"})
	}

	// The envelope announces TRANSACTION.SUCCESS; the dispatcher keys on the
	// transaction's own result code.
	eventType, _ := envelope["event_type"].(string)
	if eventType == "TRANSACTION.SUCCESS" {
		eventType = "SUCCESS"
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	if !pc.handler.ProcessWebhook(ctx, models.ProviderWechat, eventType, payload) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"code": "FAIL", "message": "processing failed"})
	}

	if outTradeNo, _ := payload["out_trade_no"].(string); outTradeNo != "" {
		if err := cache.SetPaymentStatus(outTradeNo, models.PaymentStatusCompleted); err != nil {
			log.Warnf("[Webhook] Failed to cache payment status for %s: %v", outTradeNo, err)
		}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"code": "SUCCESS"})
}
