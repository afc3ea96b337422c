package gateway

import (
	"context"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/multigpt/paycore/internal/pkg/env"
	"github.com/multigpt/paycore/internal/pkg/payment"
)

const wechatAPIBaseURL = "https://api.mch.weixin.qq.com"

type WechatClient struct {
	AppID            string
	MchID            string
	CertSerialNo     string
	APIv3Key         string
	APIBaseURL       string
	merchantKey      *rsa.PrivateKey
	platformKey      *rsa.PublicKey
	platformSerialNo string

	HTTPClient *http.Client
}

func NewWechatClientFromEnv() *WechatClient {
	c := &WechatClient{
		AppID:            strings.TrimSpace(env.GetEnv("WECHAT_APP_ID", "")),
		MchID:            strings.TrimSpace(env.GetEnv("WECHAT_MCH_ID", "")),
		CertSerialNo:     strings.TrimSpace(env.GetEnv("WECHAT_CERT_SERIAL_NO", "")),
		APIv3Key:         strings.TrimSpace(env.GetEnv("WECHAT_APIV3_KEY", "")),
		APIBaseURL:       strings.TrimRight(env.GetEnv("WECHAT_API_BASE_URL", wechatAPIBaseURL), "/"),
		platformSerialNo: strings.TrimSpace(env.GetEnv("WECHAT_PLATFORM_SERIAL_NO", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}

	if raw := env.GetEnv("WECHAT_MCH_PRIVATE_KEY", ""); raw != "" {
		key, err := parseRSAPrivateKey(raw)
		if err != nil {
			log.Errorf("[Gateway] Invalid WECHAT_MCH_PRIVATE_KEY: %v", err)
		} else {
			c.merchantKey = key
		}
	}
	if raw := env.GetEnv("WECHAT_PLATFORM_PUBLIC_KEY", ""); raw != "" {
		key, err := ParseAlipayPublicKey(raw)
		if err != nil {
			log.Errorf("[Gateway] Invalid WECHAT_PLATFORM_PUBLIC_KEY: %v", err)
		} else {
			c.platformKey = key
		}
	}
	return c
}

// NotificationHeaders are the WeChat Pay v3 delivery headers used for
// signature verification.
type NotificationHeaders struct {
	Timestamp string
	Nonce     string
	Signature string
	Serial    string
}

// VerifyNotification checks the v3 notification signature against the
// platform public key. The signed message is timestamp, nonce and raw body
// joined by newlines, each line terminated.
func (c *WechatClient) VerifyNotification(headers NotificationHeaders, body []byte) error {
	if c.platformKey == nil {
		return errors.New("wechat platform public key is not configured")
	}
	sig, err := base64.StdEncoding.DecodeString(headers.Signature)
	if err != nil {
		return fmt.Errorf("decode wechat signature: %w", err)
	}

	message := headers.Timestamp + "\n" + headers.Nonce + "\n" + string(body) + "\n"
	digest := sha256.Sum256([]byte(message))
	if err := rsa.VerifyPKCS1v15(c.platformKey, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("wechat signature verification failed: %w", err)
	}
	return nil
}

// DecryptResource opens the AES-256-GCM envelope around a notification's
// resource block using the APIv3 key.
func (c *WechatClient) DecryptResource(ciphertextB64, nonce, associatedData string) ([]byte, error) {
	if len(c.APIv3Key) != 32 {
		return nil, errors.New("WECHAT_APIV3_KEY must be 32 bytes")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("decode wechat resource: %w", err)
	}

	block, err := aes.NewCipher([]byte(c.APIv3Key))
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, []byte(nonce), ciphertext, []byte(associatedData))
	if err != nil {
		return nil, fmt.Errorf("decrypt wechat resource: %w", err)
	}
	return plaintext, nil
}

// authorizationHeader builds the WECHATPAY2-SHA256-RSA2048 header for an API
// request signed with the merchant private key.
func (c *WechatClient) authorizationHeader(method, canonicalURL string, body []byte) (string, error) {
	if c.merchantKey == nil {
		return "", errors.New("WECHAT_MCH_PRIVATE_KEY is not configured")
	}
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")

	message := method + "\n" + canonicalURL + "\n" + timestamp + "\n" + nonce + "\n" + string(body) + "\n"
	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPKCS1v15(rand.Reader, c.merchantKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(
		`WECHATPAY2-SHA256-RSA2048 mchid="%s",nonce_str="%s",signature="%s",timestamp="%s",serial_no="%s"`,
		c.MchID, nonce, base64.StdEncoding.EncodeToString(sig), timestamp, c.CertSerialNo,
	), nil
}

// ConfirmTransaction queries the v3 out-trade-no endpoint and requires
// trade_state SUCCESS. As with Alipay, our out_trade_no is the correlation
// key shared with the pending payment row and the webhook.
func (c *WechatClient) ConfirmTransaction(ctx context.Context, outTradeNo string) (payment.Confirmation, error) {
	if outTradeNo == "" {
		return payment.Confirmation{}, payment.NewConfirmError(400, "missing wechat_out_trade_no")
	}

	canonicalURL := "/v3/pay/transactions/out-trade-no/" + outTradeNo + "?mchid=" + c.MchID
	auth, err := c.authorizationHeader(http.MethodGet, canonicalURL, nil)
	if err != nil {
		log.Errorf("[Gateway] WeChat request signing failed: %v", err)
		return payment.Confirmation{}, payment.NewConfirmError(502, "failed to sign WeChat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBaseURL+canonicalURL, nil)
	if err != nil {
		return payment.Confirmation{}, err
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		log.Errorf("[Gateway] WeChat transaction query failed for %s: %v", outTradeNo, err)
		return payment.Confirmation{}, payment.NewConfirmError(502, "failed to verify payment with WeChat Pay")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return payment.Confirmation{}, payment.NewConfirmError(502, "wechat transaction query failed: status=%d", resp.StatusCode)
	}

	var out struct {
		OutTradeNo string `json:"out_trade_no"`
		TradeState string `json:"trade_state"`
		Amount     struct {
			Total int64 `json:"total"`
		} `json:"amount"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return payment.Confirmation{}, fmt.Errorf("decode wechat response: %w", err)
	}
	if out.TradeState != "SUCCESS" {
		return payment.Confirmation{}, payment.NewConfirmError(400, "payment not completed (state %s)", out.TradeState)
	}

	return payment.Confirmation{
		TransactionID: outTradeNo,
		Amount:        decimal.NewFromInt(out.Amount.Total).Div(decimal.NewFromInt(100)),
		Currency:      "CNY",
	}, nil
}
