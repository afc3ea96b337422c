package controllers

import (
	"github.com/multigpt/paycore/internal/pkg/gateway"
	"github.com/multigpt/paycore/internal/pkg/payment"
	"github.com/multigpt/paycore/internal/pkg/paystore"
)

// PaymentController owns the payment HTTP surface: the four provider webhook
// endpoints, the synchronous confirm path, payment creation and the status
// poll. Dependencies are injected once at startup.
type PaymentController struct {
	handler    *payment.Handler
	reconciler *payment.Reconciler
	gateway    *gateway.Gateway
	repo       paystore.Repository
}

func NewPaymentController(handler *payment.Handler, reconciler *payment.Reconciler, gw *gateway.Gateway, repo paystore.Repository) *PaymentController {
	return &PaymentController{
		handler:    handler,
		reconciler: reconciler,
		gateway:    gw,
		repo:       repo,
	}
}
