// Package tripay implements the payment gateway against the Tripay HTTP API.
package tripay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tagihin/tagihin/internal/config"
	gatewaydomain "github.com/tagihin/tagihin/internal/gateway/domain"
	invoicedomain "github.com/tagihin/tagihin/internal/invoice/domain"
	"go.uber.org/zap"
)

const (
	requestTimeout = 15 * time.Second

	vaExpiry   = 24 * time.Hour
	qrisExpiry = 30 * time.Minute
)

// channelCodes maps platform payment methods to Tripay channel codes.
var channelCodes = map[invoicedomain.PaymentMethod]string{
	invoicedomain.PaymentMethodBCAVA: "BRIVA",
	invoicedomain.PaymentMethodQRIS:  "QRIS",
}

type Client struct {
	apiURL       string
	apiKey       string
	privateKey   string
	merchantCode string
	httpClient   *http.Client
	log          *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	return &Client{
		apiURL:       cfg.GatewayAPIURL,
		apiKey:       cfg.GatewayAPIKey,
		privateKey:   cfg.GatewayPrivateKey,
		merchantCode: cfg.GatewayMerchantCode,
		httpClient:   &http.Client{Timeout: requestTimeout},
		log:          log.Named("gateway.tripay"),
	}
}

// Signature computes the transaction-create signature:
// hex(HMAC-SHA256(privateKey, merchantCode + merchantRef + amount)).
func (c *Client) Signature(merchantRef string, amount decimal.Decimal) string {
	mac := hmac.New(sha256.New, []byte(c.privateKey))
	mac.Write([]byte(c.merchantCode + merchantRef + amount.StringFixed(0)))
	return hex.EncodeToString(mac.Sum(nil))
}

type orderItem struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

type createRequest struct {
	Method        string      `json:"method"`
	MerchantRef   string      `json:"merchant_ref"`
	Amount        int64       `json:"amount"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	CustomerPhone string      `json:"customer_phone"`
	OrderItems    []orderItem `json:"order_items"`
	ReturnURL     string      `json:"return_url,omitempty"`
	ExpiredTime   int64       `json:"expired_time"`
	Signature     string      `json:"signature"`
}

type createResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Reference   string `json:"reference"`
		MerchantRef string `json:"merchant_ref"`
		CheckoutURL string `json:"checkout_url"`
		PayCode     string `json:"pay_code"`
		QRURL       string `json:"qr_url"`
		ExpiredTime int64  `json:"expired_time"`
	} `json:"data"`
}

func (c *Client) CreateTransaction(ctx context.Context, in gatewaydomain.CreateTransactionInput) (*gatewaydomain.Transaction, error) {
	channel, ok := channelCodes[in.Method]
	if !ok {
		return nil, gatewaydomain.ErrUnsupportedChannel
	}

	expiry := vaExpiry
	if in.Method == invoicedomain.PaymentMethodQRIS {
		expiry = qrisExpiry
	}
	expiresAt := time.Now().Add(expiry)

	amount := in.Amount.IntPart()
	body := createRequest{
		Method:        channel,
		MerchantRef:   in.MerchantRef,
		Amount:        amount,
		CustomerName:  in.CustomerName,
		CustomerEmail: in.CustomerEmail,
		CustomerPhone: in.CustomerPhone,
		OrderItems: []orderItem{
			{Name: in.ItemName, Price: amount, Quantity: 1},
		},
		ReturnURL:   in.ReturnURL,
		ExpiredTime: expiresAt.Unix(),
		Signature:   c.Signature(in.MerchantRef, in.Amount),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/transaction/create", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	var parsed createResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !parsed.Success {
		c.log.Warn("transaction create rejected",
			zap.Int("status_code", resp.StatusCode),
			zap.String("merchant_ref", in.MerchantRef),
			zap.String("message", parsed.Message))
		return nil, &gatewaydomain.Error{Message: parsed.Message}
	}

	tx := &gatewaydomain.Transaction{
		Reference:   parsed.Data.Reference,
		MerchantRef: parsed.Data.MerchantRef,
		CheckoutURL: parsed.Data.CheckoutURL,
		PayCode:     parsed.Data.PayCode,
		QRURL:       parsed.Data.QRURL,
		ExpiresAt:   expiresAt,
	}
	if parsed.Data.ExpiredTime > 0 {
		tx.ExpiresAt = time.Unix(parsed.Data.ExpiredTime, 0)
	}
	return tx, nil
}

// VerifyCallback checks hex(HMAC-SHA256(privateKey, rawBody)) against the
// X-Callback-Signature header value in constant time.
func (c *Client) VerifyCallback(rawBody []byte, signature string) error {
	mac := hmac.New(sha256.New, []byte(c.privateKey))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return gatewaydomain.ErrInvalidSignature
	}
	return nil
}

type callbackPayload struct {
	Reference   string `json:"reference"`
	MerchantRef string `json:"merchant_ref"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"total_amount"`
	PaidAt      int64  `json:"paid_at"`
}

func (c *Client) ParseCallback(rawBody []byte) (*gatewaydomain.CallbackEvent, error) {
	var payload callbackPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("decode callback: %w", err)
	}

	event := &gatewaydomain.CallbackEvent{
		Reference:      payload.Reference,
		MerchantRef:    payload.MerchantRef,
		Status:         gatewaydomain.CallbackStatus(payload.Status),
		AmountReceived: decimal.NewFromInt(payload.TotalAmount),
	}
	if payload.PaidAt > 0 {
		event.PaidAt = time.Unix(payload.PaidAt, 0).UTC()
	}
	return event, nil
}
