package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/multigpt/paycore/internal/pkg/env"
	"github.com/multigpt/paycore/internal/pkg/payment"
)

const (
	paypalSandboxAPIBaseURL = "https://api-m.sandbox.paypal.com"
	paypalLiveAPIBaseURL    = "https://api-m.paypal.com"
)

type PayPalClient struct {
	ClientID     string
	ClientSecret string
	WebhookID    string
	APIBaseURL   string

	HTTPClient *http.Client
}

func NewPayPalClientFromEnv() *PayPalClient {
	base := paypalLiveAPIBaseURL
	if env.GetEnv("PAYPAL_MODE", "live") == "sandbox" {
		base = paypalSandboxAPIBaseURL
	}
	return &PayPalClient{
		ClientID:     strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_SECRET", "")),
		WebhookID:    strings.TrimSpace(env.GetEnv("PAYPAL_WEBHOOK_ID", "")),
		APIBaseURL:   strings.TrimRight(env.GetEnv("PAYPAL_API_BASE_URL", base), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *PayPalClient) accessToken(ctx context.Context) (string, error) {
	if c.ClientID == "" || c.ClientSecret == "" {
		return "", errors.New("PAYPAL_CLIENT_ID/PAYPAL_CLIENT_SECRET are not configured")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("paypal token request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("paypal token response missing access_token")
	}
	return out.AccessToken, nil
}

type paypalOrder struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Amount   struct {
			Value        string `json:"value"`
			CurrencyCode string `json:"currency_code"`
		} `json:"amount"`
	} `json:"purchase_units"`
}

// ConfirmOrder fetches the checkout order behind the return token and, if it
// is still only approved, captures it. The order id doubles as the pending
// payment's transaction id.
func (c *PayPalClient) ConfirmOrder(ctx context.Context, token string) (payment.Confirmation, error) {
	if token == "" {
		return payment.Confirmation{}, payment.NewConfirmError(400, "missing token")
	}

	accessToken, err := c.accessToken(ctx)
	if err != nil {
		log.Errorf("[Gateway] PayPal auth failed: %v", err)
		return payment.Confirmation{}, payment.NewConfirmError(502, "failed to authenticate with PayPal")
	}

	order, err := c.getOrder(ctx, accessToken, token)
	if err != nil {
		log.Errorf("[Gateway] PayPal order lookup failed for %s: %v", token, err)
		return payment.Confirmation{}, payment.NewConfirmError(502, "failed to verify payment with PayPal")
	}

	if order.Status == "APPROVED" {
		order, err = c.captureOrder(ctx, accessToken, token)
		if err != nil {
			log.Errorf("[Gateway] PayPal capture failed for %s: %v", token, err)
			return payment.Confirmation{}, payment.NewConfirmError(502, "failed to capture PayPal payment")
		}
	}
	if order.Status != "COMPLETED" {
		return payment.Confirmation{}, payment.NewConfirmError(400, "payment not completed (status %s)", order.Status)
	}

	conf := payment.Confirmation{TransactionID: order.ID, Currency: "USD"}
	if len(order.PurchaseUnits) > 0 {
		unit := order.PurchaseUnits[0]
		if amount, err := decimal.NewFromString(unit.Amount.Value); err == nil {
			conf.Amount = amount
		}
		if unit.Amount.CurrencyCode != "" {
			conf.Currency = unit.Amount.CurrencyCode
		}
	}
	return conf, nil
}

func (c *PayPalClient) getOrder(ctx context.Context, accessToken, orderID string) (*paypalOrder, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBaseURL+"/v2/checkout/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	return c.doOrderRequest(req)
}

func (c *PayPalClient) captureOrder(ctx context.Context, accessToken, orderID string) (*paypalOrder, error) {
	u := c.APIBaseURL + "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	return c.doOrderRequest(req)
}

func (c *PayPalClient) doOrderRequest(req *http.Request) (*paypalOrder, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("paypal order request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var order paypalOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// VerifyWebhookSignature asks PayPal to validate a webhook delivery. PayPal
// has no shared-secret scheme; verification is an API round trip against the
// registered webhook id.
func (c *PayPalClient) VerifyWebhookSignature(ctx context.Context, headers WebhookHeaders, rawBody []byte) (bool, error) {
	if c.WebhookID == "" {
		return false, errors.New("PAYPAL_WEBHOOK_ID is not configured")
	}

	accessToken, err := c.accessToken(ctx)
	if err != nil {
		return false, err
	}

	reqBody := map[string]interface{}{
		"auth_algo":         headers.AuthAlgo,
		"cert_url":          headers.CertURL,
		"transmission_id":   headers.TransmissionID,
		"transmission_sig":  headers.TransmissionSig,
		"transmission_time": headers.TransmissionTime,
		"webhook_id":        c.WebhookID,
		"webhook_event":     json.RawMessage(rawBody),
	}
	payloadJSON, err := json.Marshal(reqBody)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.APIBaseURL+"/v1/notifications/verify-webhook-signature", bytes.NewReader(payloadJSON))
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("paypal webhook verification failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return false, err
	}
	return out.VerificationStatus == "SUCCESS", nil
}

// WebhookHeaders are the PayPal delivery headers needed for verification.
type WebhookHeaders struct {
	AuthAlgo         string
	CertURL          string
	TransmissionID   string
	TransmissionSig  string
	TransmissionTime string
}
