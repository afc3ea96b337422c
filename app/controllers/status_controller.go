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
	"github.com/multigpt/paycore/internal/pkg/paystore"
)

// HandlePaymentStatus answers the in-app polling loop (2s interval while the
// buyer sits on the QR code page). Cache first, payment store as fallback.
func (pc *PaymentController) HandlePaymentStatus(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	outTradeNo := strings.TrimSpace(c.Query("out_trade_no"))
	if outTradeNo == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing out_trade_no"})
	}

	if status, err := cache.GetPaymentStatus(outTradeNo); err == nil && status != "" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": status})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The completed row keeps out_trade_no as its transaction id, so check it
	// before concluding the payment is still pending.
	if completed, err := pc.repo.FindCompletedPaymentByTransactionID(ctx, outTradeNo); err == nil && completed.UserID == userID {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": models.PaymentStatusCompleted})
	}

	_, err := pc.repo.FindPendingPaymentByOutTradeNo(ctx, outTradeNo, userID)
	if err == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": models.PaymentStatusPending})
	}
	if !errors.Is(err, paystore.ErrNotFound) {
		log.Errorf("[Payment] Status lookup failed for %s: %v", outTradeNo, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "status lookup failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "not_found"})
}
