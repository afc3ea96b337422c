package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/multigpt/paycore/app/models"
	"github.com/multigpt/paycore/internal/pkg/cache"
	"github.com/multigpt/paycore/internal/pkg/middleware"
	"github.com/multigpt/paycore/internal/pkg/payment"
)

const confirmTimeout = 25 * time.Second

// HandlePaymentConfirm is the synchronous confirm path hit by the browser's
// return redirect. The query parameter present decides the provider:
// session_id (Stripe), token (PayPal), out_trade_no (Alipay),
// wechat_out_trade_no (WeChat).
func (pc *PaymentController) HandlePaymentConfirm(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "unauthorized"})
	}

	req, ok := confirmRequestFromQuery(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "missing payment reference (session_id, token, out_trade_no or wechat_out_trade_no)",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout)
	defer cancel()

	result, err := pc.reconciler.Confirm(ctx, userID, req)
	if err != nil {
		var confirmErr *payment.ConfirmError
		if errors.As(err, &confirmErr) {
			return c.Status(confirmErr.Status).JSON(fiber.Map{"success": false, "error": confirmErr.Message})
		}
		log.Errorf("[Confirm] Unexpected confirm failure for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "internal server error"})
	}

	if req.Kind == models.ProviderAlipay || req.Kind == models.ProviderWechat {
		if err := cache.SetPaymentStatus(req.OutTradeNo, models.PaymentStatusCompleted); err != nil {
			log.Warnf("[Confirm] Failed to cache payment status for %s: %v", req.OutTradeNo, err)
		}
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func confirmRequestFromQuery(c *fiber.Ctx) (payment.ConfirmRequest, bool) {
	if sessionID := strings.TrimSpace(c.Query("session_id")); sessionID != "" {
		return payment.ConfirmRequest{Kind: models.ProviderStripe, SessionID: sessionID}, true
	}
	if token := strings.TrimSpace(c.Query("token")); token != "" {
		return payment.ConfirmRequest{Kind: models.ProviderPayPal, Token: token}, true
	}
	if outTradeNo := strings.TrimSpace(c.Query("wechat_out_trade_no")); outTradeNo != "" {
		return payment.ConfirmRequest{Kind: models.ProviderWechat, OutTradeNo: outTradeNo}, true
	}
	if outTradeNo := strings.TrimSpace(c.Query("out_trade_no")); outTradeNo != "" {
		return payment.ConfirmRequest{
			Kind:       models.ProviderAlipay,
			OutTradeNo: outTradeNo,
			TradeNo:    strings.TrimSpace(c.Query("trade_no")),
		}, true
	}
	return payment.ConfirmRequest{}, false
}
