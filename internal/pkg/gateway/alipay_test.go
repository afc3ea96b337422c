package gateway

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"testing"
)

func newSignedAlipayClient(t *testing.T) *AlipayClient {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return &AlipayClient{
		AppID:           "2021000000000000",
		appPrivateKey:   key,
		alipayPublicKey: &key.PublicKey,
	}
}

func TestAlipaySignString(t *testing.T) {
	got := alipaySignString(map[string]string{
		"out_trade_no": "ALI1",
		"total_amount": "68.00",
		"trade_status": "TRADE_SUCCESS",
		"sign":         "should-be-skipped",
		"sign_type":    "RSA2",
		"buyer_email":  "",
	})
	want := "out_trade_no=ALI1&total_amount=68.00&trade_status=TRADE_SUCCESS"
	if got != want {
		t.Errorf("sign string = %q, want %q", got, want)
	}
}

func TestAlipayVerifyNotificationRoundtrip(t *testing.T) {
	c := newSignedAlipayClient(t)

	params := map[string]string{
		"out_trade_no":    "ALI20260831",
		"trade_no":        "2026083122001400000000000001",
		"trade_status":    "TRADE_SUCCESS",
		"total_amount":    "68.00",
		"passback_params": "user-1",
		"sign_type":       "RSA2",
	}
	sig, err := c.sign(params)
	if err != nil {
		t.Fatal(err)
	}
	params["sign"] = sig

	if err := c.VerifyNotification(params); err != nil {
		t.Fatalf("valid notification rejected: %v", err)
	}
}

func TestAlipayVerifyNotificationRejectsTampering(t *testing.T) {
	c := newSignedAlipayClient(t)

	params := map[string]string{
		"out_trade_no": "ALI1",
		"total_amount": "68.00",
		"sign_type":    "RSA2",
	}
	sig, err := c.sign(params)
	if err != nil {
		t.Fatal(err)
	}
	params["sign"] = sig
	params["total_amount"] = "0.01"

	if err := c.VerifyNotification(params); err == nil {
		t.Error("tampered notification accepted")
	}
}

func TestAlipayVerifyNotificationRejectsNonRSA2(t *testing.T) {
	c := newSignedAlipayClient(t)

	params := map[string]string{
		"out_trade_no": "ALI1",
		"sign_type":    "RSA",
		"sign":         base64.StdEncoding.EncodeToString([]byte("x")),
	}
	if err := c.VerifyNotification(params); err == nil {
		t.Error("RSA (SHA1) sign_type accepted")
	}
}

func TestAlipayVerifyNotificationRequiresPublicKey(t *testing.T) {
	c := &AlipayClient{}
	if err := c.VerifyNotification(map[string]string{"sign_type": "RSA2"}); err == nil {
		t.Error("verification passed without a configured public key")
	}
}

func TestParseAlipayPublicKeyBareBase64(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}

	// The Alipay console hands out the base64 body without PEM armor.
	pub, err := ParseAlipayPublicKey(base64.StdEncoding.EncodeToString(der))
	if err != nil {
		t.Fatal(err)
	}
	if pub.N.Cmp(key.PublicKey.N) != 0 {
		t.Error("parsed key does not match the original")
	}
}

func TestParseRSAPrivateKeyFormats(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	pkcs1 := base64.StdEncoding.EncodeToString(x509.MarshalPKCS1PrivateKey(key))
	if _, err := parseRSAPrivateKey(pkcs1); err != nil {
		t.Errorf("PKCS#1 key rejected: %v", err)
	}

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parseRSAPrivateKey(base64.StdEncoding.EncodeToString(pkcs8)); err != nil {
		t.Errorf("PKCS#8 key rejected: %v", err)
	}
}
