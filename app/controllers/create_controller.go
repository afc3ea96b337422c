package controllers

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/multigpt/paycore/app/models"
	"github.com/multigpt/paycore/internal/pkg/cache"
	"github.com/multigpt/paycore/internal/pkg/env"
	"github.com/multigpt/paycore/internal/pkg/gateway"
	"github.com/multigpt/paycore/internal/pkg/middleware"
	"github.com/multigpt/paycore/internal/pkg/payment"
	"github.com/multigpt/paycore/internal/pkg/paystore"
)

// duplicateWindow blocks rapid double-submits of the same purchase.
const duplicateWindow = time.Minute

type createPaymentRequest struct {
	Method       string `json:"method"`
	BillingCycle string `json:"billingCycle"`
	ProductType  string `json:"productType"`
	ProductID    string `json:"productId"`
	PlanType     string `json:"planType"`
}

// HandlePaymentCreate initiates a payment with the chosen provider and
// records the pending payment row the webhook and confirm paths will later
// match against. The response carries the provider redirect (or QR code URL)
// and the correlation id.
func (pc *PaymentController) HandlePaymentCreate(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "unauthorized"})
	}

	var req createPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid request body"})
	}
	if req.Method == "" || req.BillingCycle == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Missing payment method or billing cycle"})
	}
	if req.BillingCycle != "monthly" && req.BillingCycle != "yearly" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Invalid billing cycle. Must be 'monthly' or 'yearly'"})
	}
	if req.Method == models.ProviderWechat && !env.IsChinaRegion() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "WeChat payment is only available in China region"})
	}

	pricing, err := payment.PricingByMethod(req.Method)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	amount, err := pricing.AmountForCycle(req.BillingCycle)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	days := payment.DaysByBillingCycle(req.BillingCycle)

	ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout)
	defer cancel()

	// Double-click guard: an identical purchase attempted within the window
	// is refused instead of creating a second provider order.
	since := time.Now().Add(-duplicateWindow)
	if existing, err := pc.repo.FindPendingPaymentByUserAmount(ctx, userID, amount, req.Method, since); err == nil {
		age := time.Since(existing.CreatedAt)
		log.Warnf("[Payment] Duplicate payment request blocked for user %s (existing %s, age %s)", userID, existing.ID, age)
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"success":           false,
			"error":             "You have a recent payment request. Please wait a moment before trying again.",
			"code":              "DUPLICATE_PAYMENT_REQUEST",
			"existingPaymentId": existing.ID,
			"waitTime":          int((duplicateWindow - age).Seconds()) + 1,
		})
	} else if !errors.Is(err, paystore.ErrNotFound) {
		log.Errorf("[Payment] Duplicate check failed for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "Unable to verify payment uniqueness, please try again"})
	}

	description := "1 Month Premium Membership"
	if req.BillingCycle == "yearly" {
		description = "1 Year Premium Membership"
	}
	order := gateway.PaymentOrder{
		UserID:       userID,
		Amount:       amount,
		Currency:     pricing.Currency,
		Description:  description,
		Days:         days,
		BillingCycle: req.BillingCycle,
	}
	if req.Method == models.ProviderAlipay || req.Method == models.ProviderWechat {
		order.OutTradeNo = newOutTradeNo(req.Method)
	}

	ipv4, _ := GetClientIP(c)
	log.Infof("[Payment] Creating %s payment: user=%s amount=%s %s cycle=%s ip=%s",
		req.Method, userID, amount, pricing.Currency, req.BillingCycle, ipv4)

	created, err := pc.gateway.CreatePayment(ctx, req.Method, order)
	if err != nil {
		var confirmErr *payment.ConfirmError
		if errors.As(err, &confirmErr) {
			return c.Status(confirmErr.Status).JSON(fiber.Map{"success": false, "error": confirmErr.Message})
		}
		log.Errorf("[Payment] Provider error creating %s payment for user %s: %v", req.Method, userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "Payment provider error"})
	}

	record := &models.Payment{
		UserID:        userID,
		Amount:        amount,
		Currency:      pricing.Currency,
		Status:        models.PaymentStatusPending,
		PaymentMethod: req.Method,
		TransactionID: created.PaymentID,
		Metadata: models.PaymentMetadata{
			Days:         days,
			BillingCycle: req.BillingCycle,
			PlanType:     req.PlanType,
			ProductType:  req.ProductType,
			ProductID:    req.ProductID,
			PaymentType:  "onetime",
		},
	}
	if req.Method == models.ProviderAlipay || req.Method == models.ProviderWechat {
		record.OutTradeNo = order.OutTradeNo
	}
	if err := pc.repo.InsertPayment(ctx, record); err != nil {
		// The provider order exists either way; reconciliation can still
		// recover from the webhook payload alone.
		log.Errorf("[Payment] Failed to record pending payment %s for user %s: %v", created.PaymentID, userID, err)
	} else {
		log.Infof("[Payment] Payment record %s created (transaction %s, %d days)", record.ID, created.PaymentID, days)
	}

	if record.OutTradeNo != "" {
		if err := cache.SetPaymentStatus(record.OutTradeNo, models.PaymentStatusPending); err != nil {
			log.Warnf("[Payment] Failed to cache payment status for %s: %v", record.OutTradeNo, err)
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":       true,
		"paymentId":     created.PaymentID,
		"paymentUrl":    created.PaymentURL,
		"codeUrl":       created.CodeURL,
		"transactionId": created.PaymentID,
	})
}

// newOutTradeNo generates the merchant-side order number for the CNY
// providers. Uppercase alphanumeric, unique enough per-merchant.
func newOutTradeNo(method string) string {
	prefix := "ALI"
	if method == models.ProviderWechat {
		prefix = "WX"
	}
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = letters[rand.Intn(len(letters))]
	}
	return fmt.Sprintf("%s%d%s", prefix, time.Now().UnixMilli(), suffix)
}
