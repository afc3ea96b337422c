package controllers

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multigpt/paycore/app/models"
	"github.com/multigpt/paycore/internal/pkg/payment"
)

func confirmRequestForQuery(t *testing.T, query string) (payment.ConfirmRequest, bool) {
	t.Helper()

	var (
		got payment.ConfirmRequest
		ok  bool
	)
	app := fiber.New()
	app.Get("/confirm", func(c *fiber.Ctx) error {
		got, ok = confirmRequestFromQuery(c)
		return nil
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/confirm"+query, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	return got, ok
}

func TestConfirmRequestFromQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  payment.ConfirmRequest
		ok    bool
	}{
		{
			name:  "stripe session id",
			query: "?session_id=cs_test_1",
			want:  payment.ConfirmRequest{Kind: models.ProviderStripe, SessionID: "cs_test_1"},
			ok:    true,
		},
		{
			name:  "paypal token",
			query: "?token=5O190127TN364715T",
			want:  payment.ConfirmRequest{Kind: models.ProviderPayPal, Token: "5O190127TN364715T"},
			ok:    true,
		},
		{
			name:  "alipay out_trade_no with trade_no",
			query: "?out_trade_no=ALI1&trade_no=2026083122001",
			want:  payment.ConfirmRequest{Kind: models.ProviderAlipay, OutTradeNo: "ALI1", TradeNo: "2026083122001"},
			ok:    true,
		},
		{
			name:  "wechat beats alipay when both present",
			query: "?wechat_out_trade_no=WX1&out_trade_no=ALI1",
			want:  payment.ConfirmRequest{Kind: models.ProviderWechat, OutTradeNo: "WX1"},
			ok:    true,
		},
		{
			name:  "session id beats token",
			query: "?token=5O190127TN364715T&session_id=cs_test_1",
			want:  payment.ConfirmRequest{Kind: models.ProviderStripe, SessionID: "cs_test_1"},
			ok:    true,
		},
		{
			name:  "no reference",
			query: "",
			ok:    false,
		},
		{
			name:  "whitespace only",
			query: "?session_id=%20%20",
			ok:    false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, ok := confirmRequestForQuery(t, tc.query)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestNewOutTradeNo(t *testing.T) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	ali := newOutTradeNo(models.ProviderAlipay)
	wx := newOutTradeNo(models.ProviderWechat)

	assert.True(t, strings.HasPrefix(ali, "ALI"))
	assert.True(t, strings.HasPrefix(wx, "WX"))

	// millisecond timestamp plus 9 random characters
	assert.Len(t, ali, len("ALI")+13+9)
	assert.Len(t, wx, len("WX")+13+9)

	for _, r := range ali[len("ALI"):] {
		assert.Contains(t, charset, string(r))
	}

	assert.NotEqual(t, newOutTradeNo(models.ProviderAlipay), newOutTradeNo(models.ProviderAlipay))
}
