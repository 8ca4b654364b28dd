package tripay_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tagihin/tagihin/internal/config"
	gatewaydomain "github.com/tagihin/tagihin/internal/gateway/domain"
	"github.com/tagihin/tagihin/internal/gateway/tripay"
	invoicedomain "github.com/tagihin/tagihin/internal/invoice/domain"
	"go.uber.org/zap"
)

func newClient(apiURL string) *tripay.Client {
	return tripay.NewClient(config.Config{
		GatewayAPIURL:       apiURL,
		GatewayAPIKey:       "api-key-test",
		GatewayPrivateKey:   "private-key-test",
		GatewayMerchantCode: "T12345",
	}, zap.NewNop())
}

func sign(privateKey string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(privateKey))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestSignatureMatchesKnownVector(t *testing.T) {
	client := newClient("https://unused")

	// hex(HMAC-SHA256("private-key-test", "T12345" + "PINV-202606-0001" + "15000"))
	mac := hmac.New(sha256.New, []byte("private-key-test"))
	mac.Write([]byte("T12345PINV-202606-000115000"))
	expected := hex.EncodeToString(mac.Sum(nil))

	got := client.Signature("PINV-202606-0001", decimal.NewFromInt(15000))
	assert.Equal(t, expected, got)
}

func TestVerifyCallbackAcceptsValidSignature(t *testing.T) {
	client := newClient("https://unused")
	body := []byte(`{"reference":"T1","status":"PAID"}`)

	err := client.VerifyCallback(body, sign("private-key-test", body))
	assert.NoError(t, err)
}

func TestVerifyCallbackRejectsTamperedBody(t *testing.T) {
	client := newClient("https://unused")
	body := []byte(`{"reference":"T1","status":"PAID","total_amount":15000}`)
	signature := sign("private-key-test", body)

	tampered := []byte(`{"reference":"T1","status":"PAID","total_amount":1}`)
	err := client.VerifyCallback(tampered, signature)
	assert.ErrorIs(t, err, gatewaydomain.ErrInvalidSignature)
}

func TestVerifyCallbackRejectsWrongKey(t *testing.T) {
	client := newClient("https://unused")
	body := []byte(`{"reference":"T1"}`)

	err := client.VerifyCallback(body, sign("some-other-key", body))
	assert.ErrorIs(t, err, gatewaydomain.ErrInvalidSignature)
}

func TestParseCallback(t *testing.T) {
	client := newClient("https://unused")
	paidAt := time.Date(2026, 6, 12, 9, 30, 0, 0, time.UTC)

	body := []byte(`{"reference":"T100","merchant_ref":"PINV-202606-0001-X","status":"PAID","total_amount":15000,"paid_at":` +
		"1781256600" + `}`)

	event, err := client.ParseCallback(body)
	require.NoError(t, err)
	assert.Equal(t, "T100", event.Reference)
	assert.Equal(t, gatewaydomain.CallbackStatusPaid, event.Status)
	assert.True(t, event.AmountReceived.Equal(decimal.NewFromInt(15000)))
	assert.True(t, event.PaidAt.Equal(paidAt), "got %s", event.PaidAt)
}

func TestCreateTransactionMapsChannelsAndExpiry(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transaction/create", r.URL.Path)
		require.Equal(t, "Bearer api-key-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"reference":    "T100200",
				"merchant_ref": captured["merchant_ref"],
				"checkout_url": "https://pay.example/checkout",
				"pay_code":     "8800123",
				"expired_time": captured["expired_time"],
			},
		})
	}))
	defer server.Close()

	client := newClient(server.URL)
	before := time.Now()

	tx, err := client.CreateTransaction(context.Background(), gatewaydomain.CreateTransactionInput{
		Method:       invoicedomain.PaymentMethodBCAVA,
		MerchantRef:  "PINV-202606-0001-X",
		Amount:       decimal.NewFromInt(15000),
		CustomerName: "Warung Abadi",
	})
	require.NoError(t, err)

	assert.Equal(t, "BRIVA", captured["method"], "BCA_VA maps to the BRIVA channel")
	assert.Equal(t, float64(15000), captured["amount"])
	assert.NotEmpty(t, captured["signature"])
	assert.Equal(t, "T100200", tx.Reference)
	assert.Equal(t, "8800123", tx.PayCode)

	// Virtual account instruments live about a day.
	assert.WithinDuration(t, before.Add(24*time.Hour), tx.ExpiresAt, time.Minute)
}

func TestCreateTransactionQRISExpiryIsShort(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "QRIS", req["method"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"reference": "T300",
				"qr_url":    "https://pay.example/qr",
			},
		})
	}))
	defer server.Close()

	client := newClient(server.URL)
	before := time.Now()

	tx, err := client.CreateTransaction(context.Background(), gatewaydomain.CreateTransactionInput{
		Method:      invoicedomain.PaymentMethodQRIS,
		MerchantRef: "PINV-202606-0002-Y",
		Amount:      decimal.NewFromInt(9000),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/qr", tx.QRURL)
	assert.WithinDuration(t, before.Add(30*time.Minute), tx.ExpiresAt, time.Minute)
}

func TestCreateTransactionSurfacesGatewayRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "merchant_ref already used",
		})
	}))
	defer server.Close()

	client := newClient(server.URL)
	_, err := client.CreateTransaction(context.Background(), gatewaydomain.CreateTransactionInput{
		Method:      invoicedomain.PaymentMethodBCAVA,
		MerchantRef: "PINV-202606-0003-Z",
		Amount:      decimal.NewFromInt(3000),
	})

	var gwErr *gatewaydomain.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Contains(t, gwErr.Message, "merchant_ref already used")
}

func TestCreateTransactionRejectsUnknownChannel(t *testing.T) {
	client := newClient("https://unused")
	_, err := client.CreateTransaction(context.Background(), gatewaydomain.CreateTransactionInput{
		Method: invoicedomain.PaymentMethod("GOPAY"),
	})
	assert.ErrorIs(t, err, gatewaydomain.ErrUnsupportedChannel)
}
