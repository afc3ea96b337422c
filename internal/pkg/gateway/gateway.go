// Package gateway talks to the payment providers: order/session lookups for
// the synchronous confirm path and signature verification for the webhook
// boundary. Everything behind it is normalized into payment.Confirmation so
// the reconciliation core never sees provider wire formats.
package gateway

import (
	"context"

	"github.com/multigpt/paycore/app/models"
	"github.com/multigpt/paycore/internal/pkg/payment"
)

// Gateway fans a confirm request out to the matching provider client. It
// implements payment.Confirmer.
type Gateway struct {
	Stripe *StripeClient
	PayPal *PayPalClient
	Alipay *AlipayClient
	Wechat *WechatClient
}

func NewFromEnv() *Gateway {
	return &Gateway{
		Stripe: NewStripeClientFromEnv(),
		PayPal: NewPayPalClientFromEnv(),
		Alipay: NewAlipayClientFromEnv(),
		Wechat: NewWechatClientFromEnv(),
	}
}

func (g *Gateway) ConfirmPayment(ctx context.Context, req payment.ConfirmRequest, userID string) (payment.Confirmation, error) {
	switch req.Kind {
	case models.ProviderStripe:
		return g.Stripe.ConfirmCheckoutSession(ctx, req.SessionID)
	case models.ProviderPayPal:
		return g.PayPal.ConfirmOrder(ctx, req.Token)
	case models.ProviderAlipay:
		return g.Alipay.ConfirmTrade(ctx, req.OutTradeNo, req.TradeNo)
	case models.ProviderWechat:
		return g.Wechat.ConfirmTransaction(ctx, req.OutTradeNo)
	default:
		return payment.Confirmation{}, payment.NewConfirmError(400, "unsupported payment provider %q", req.Kind)
	}
}
