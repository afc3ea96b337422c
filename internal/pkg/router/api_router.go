package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/multigpt/paycore/app/controllers"
	"github.com/multigpt/paycore/internal/pkg/middleware"
)

type ApiRouter struct {
	payments *controllers.PaymentController
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// Webhooks are authenticated by signature, not by session; no limiter so
	// provider retry bursts are never dropped.
	webhooks := api.Group("/payment/webhook")
	webhooks.Post("/stripe", h.payments.HandleStripeWebhook)
	webhooks.Post("/paypal", h.payments.HandlePayPalWebhook)
	webhooks.Post("/alipay", h.payments.HandleAlipayWebhook)
	webhooks.Post("/wechat", h.payments.HandleWechatWebhook)

	auth := middleware.RequireJWTAuth()
	payments := api.Group("/payment", limiter.New(limiter.Config{Max: 30}))
	payments.Post("/create", auth, h.payments.HandlePaymentCreate)
	payments.Get("/confirm", auth, h.payments.HandlePaymentConfirm)
	payments.Get("/status", auth, h.payments.HandlePaymentStatus)
}

func NewApiRouter(payments *controllers.PaymentController) *ApiRouter {
	return &ApiRouter{payments: payments}
}
