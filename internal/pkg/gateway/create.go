package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/checkout/session"

	"github.com/multigpt/paycore/app/models"
	"github.com/multigpt/paycore/internal/pkg/env"
	"github.com/multigpt/paycore/internal/pkg/payment"
)

// PaymentOrder is a payment-creation request, already priced and stamped with
// the correlation metadata the reconciliation paths will later read back.
type PaymentOrder struct {
	UserID       string
	Amount       decimal.Decimal
	Currency     string
	Description  string
	Days         int
	BillingCycle string
	OutTradeNo   string // alipay/wechat correlation key, generated by the caller
}

// CreatedPayment is the provider's answer: the id the pending payment row is
// keyed on plus where to send the buyer.
type CreatedPayment struct {
	PaymentID  string `json:"paymentId"`
	PaymentURL string `json:"paymentUrl,omitempty"`
	CodeURL    string `json:"codeUrl,omitempty"`
}

// CreatePayment initiates a payment with the selected provider.
func (g *Gateway) CreatePayment(ctx context.Context, method string, order PaymentOrder) (CreatedPayment, error) {
	switch method {
	case models.ProviderStripe:
		return g.Stripe.CreateCheckoutSession(ctx, order)
	case models.ProviderPayPal:
		return g.PayPal.CreateOrder(ctx, order)
	case models.ProviderAlipay:
		return g.Alipay.CreatePagePayment(order)
	case models.ProviderWechat:
		return g.Wechat.CreateNativePayment(ctx, order)
	default:
		return CreatedPayment{}, payment.NewConfirmError(400, "unsupported payment method %q", method)
	}
}

// CreateCheckoutSession opens a one-time Stripe checkout. The metadata echoes
// back on checkout.session.completed and drives the webhook's day accounting.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, order PaymentOrder) (CreatedPayment, error) {
	appURL := env.GetEnv("APP_URL", "http://localhost:4000")

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(appURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(appURL + "/payment/cancel"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(order.Currency)),
					UnitAmount: stripe.Int64(order.Amount.Mul(decimal.NewFromInt(100)).IntPart()),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(order.Description),
					},
				},
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("userId", order.UserID)
	params.AddMetadata("days", strconv.Itoa(order.Days))
	params.AddMetadata("paymentType", "onetime")
	params.AddMetadata("billingCycle", order.BillingCycle)

	sess, err := session.New(params)
	if err != nil {
		log.Errorf("[Gateway] Stripe session creation failed for user %s: %v", order.UserID, err)
		return CreatedPayment{}, payment.NewConfirmError(502, "failed to create Stripe checkout session")
	}
	return CreatedPayment{PaymentID: sess.ID, PaymentURL: sess.URL}, nil
}

// CreateOrder opens a one-time PayPal checkout order. The custom id carries
// the user id into PAYMENT.CAPTURE.COMPLETED.
func (c *PayPalClient) CreateOrder(ctx context.Context, order PaymentOrder) (CreatedPayment, error) {
	accessToken, err := c.accessToken(ctx)
	if err != nil {
		log.Errorf("[Gateway] PayPal auth failed: %v", err)
		return CreatedPayment{}, payment.NewConfirmError(502, "failed to authenticate with PayPal")
	}

	appURL := env.GetEnv("APP_URL", "http://localhost:4000")
	reqBody := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"custom_id":   order.UserID,
				"description": order.Description,
				"amount": map[string]string{
					"currency_code": order.Currency,
					"value":         order.Amount.StringFixed(2),
				},
			},
		},
		"application_context": map[string]string{
			"return_url": appURL + "/payment/success",
			"cancel_url": appURL + "/payment/cancel",
		},
	}
	payloadJSON, err := json.Marshal(reqBody)
	if err != nil {
		return CreatedPayment{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/v2/checkout/orders", bytes.NewReader(payloadJSON))
	if err != nil {
		return CreatedPayment{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		log.Errorf("[Gateway] PayPal order creation failed: %v", err)
		return CreatedPayment{}, payment.NewConfirmError(502, "failed to create PayPal order")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CreatedPayment{}, payment.NewConfirmError(502, "paypal order creation failed: status=%d", resp.StatusCode)
	}

	var out struct {
		ID    string `json:"id"`
		Links []struct {
			Href string `json:"href"`
			Rel  string `json:"rel"`
		} `json:"links"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return CreatedPayment{}, fmt.Errorf("decode paypal order response: %w", err)
	}
	if out.ID == "" {
		return CreatedPayment{}, payment.NewConfirmError(502, "paypal order response missing id")
	}

	created := CreatedPayment{PaymentID: out.ID}
	for _, link := range out.Links {
		if link.Rel == "approve" {
			created.PaymentURL = link.Href
			break
		}
	}
	return created, nil
}

// CreatePagePayment builds a signed alipay.trade.page.pay redirect URL. No
// round trip: Alipay page payments are initiated entirely by the redirect.
func (c *AlipayClient) CreatePagePayment(order PaymentOrder) (CreatedPayment, error) {
	appURL := env.GetEnv("APP_URL", "http://localhost:4000")

	bizContent := map[string]string{
		"out_trade_no":    order.OutTradeNo,
		"product_code":    "FAST_INSTANT_TRADE_PAY",
		"total_amount":    order.Amount.StringFixed(2),
		"subject":         order.Description,
		"passback_params": url.QueryEscape(order.UserID),
	}
	bizJSON, err := json.Marshal(bizContent)
	if err != nil {
		return CreatedPayment{}, err
	}

	params := map[string]string{
		"app_id":      c.AppID,
		"method":      "alipay.trade.page.pay",
		"charset":     "utf-8",
		"sign_type":   "RSA2",
		"timestamp":   time.Now().Format("2006-01-02 15:04:05"),
		"version":     "1.0",
		"notify_url":  appURL + "/api/payment/webhook/alipay",
		"return_url":  appURL + "/payment/success",
		"biz_content": string(bizJSON),
	}
	sig, err := c.sign(params)
	if err != nil {
		log.Errorf("[Gateway] Alipay request signing failed: %v", err)
		return CreatedPayment{}, payment.NewConfirmError(502, "failed to sign Alipay request")
	}
	params["sign"] = sig

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	return CreatedPayment{
		PaymentID:  order.OutTradeNo,
		PaymentURL: c.GatewayURL + "?" + form.Encode(),
	}, nil
}

// CreateNativePayment requests a WeChat Pay v3 native (QR-code) transaction.
// attach round-trips the user id through the notification.
func (c *WechatClient) CreateNativePayment(ctx context.Context, order PaymentOrder) (CreatedPayment, error) {
	appURL := env.GetEnv("APP_URL", "http://localhost:4000")

	attach, err := json.Marshal(map[string]string{"userId": order.UserID})
	if err != nil {
		return CreatedPayment{}, err
	}
	reqBody := map[string]interface{}{
		"appid":        c.AppID,
		"mchid":        c.MchID,
		"description":  order.Description,
		"out_trade_no": order.OutTradeNo,
		"notify_url":   appURL + "/api/payment/webhook/wechat",
		"attach":       string(attach),
		"amount": map[string]interface{}{
			"total":    order.Amount.Mul(decimal.NewFromInt(100)).IntPart(),
			"currency": "CNY",
		},
	}
	payloadJSON, err := json.Marshal(reqBody)
	if err != nil {
		return CreatedPayment{}, err
	}

	canonicalURL := "/v3/pay/transactions/native"
	auth, err := c.authorizationHeader(http.MethodPost, canonicalURL, payloadJSON)
	if err != nil {
		log.Errorf("[Gateway] WeChat request signing failed: %v", err)
		return CreatedPayment{}, payment.NewConfirmError(502, "failed to sign WeChat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+canonicalURL, bytes.NewReader(payloadJSON))
	if err != nil {
		return CreatedPayment{}, err
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		log.Errorf("[Gateway] WeChat native payment creation failed: %v", err)
		return CreatedPayment{}, payment.NewConfirmError(502, "failed to create WeChat payment")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CreatedPayment{}, payment.NewConfirmError(502, "wechat payment creation failed: status=%d", resp.StatusCode)
	}

	var out struct {
		CodeURL string `json:"code_url"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return CreatedPayment{}, fmt.Errorf("decode wechat response: %w", err)
	}
	if out.CodeURL == "" {
		return CreatedPayment{}, payment.NewConfirmError(502, "wechat response missing code_url")
	}

	return CreatedPayment{
		PaymentID:  order.OutTradeNo,
		PaymentURL: out.CodeURL,
		CodeURL:    out.CodeURL,
	}, nil
}
