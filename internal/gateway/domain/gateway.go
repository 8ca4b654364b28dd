// Package domain defines the payment gateway contract.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	invoicedomain "github.com/tagihin/tagihin/internal/invoice/domain"
)

var (
	ErrInvalidSignature   = errors.New("invalid_callback_signature")
	ErrUnsupportedChannel = errors.New("unsupported_payment_channel")
)

// Error carries a message reported by the gateway itself, as opposed to a
// transport failure reaching it.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway rejected request: %s", e.Message)
}

// CallbackStatus is the transaction status reported by the gateway.
type CallbackStatus string

const (
	CallbackStatusPaid    CallbackStatus = "PAID"
	CallbackStatusExpired CallbackStatus = "EXPIRED"
	CallbackStatusFailed  CallbackStatus = "FAILED"
)

// CreateTransactionInput describes one charge request.
type CreateTransactionInput struct {
	Method        invoicedomain.PaymentMethod
	MerchantRef   string
	Amount        decimal.Decimal
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	ItemName      string
	ReturnURL     string
}

// Transaction is the gateway-issued payment instrument.
type Transaction struct {
	Reference   string
	MerchantRef string
	CheckoutURL string
	PayCode     string
	QRURL       string
	ExpiresAt   time.Time
}

// CallbackEvent is a parsed payment status notification.
type CallbackEvent struct {
	Reference      string
	MerchantRef    string
	Status         CallbackStatus
	AmountReceived decimal.Decimal
	PaidAt         time.Time
}

// Gateway creates payment transactions and authenticates callbacks.
type Gateway interface {
	CreateTransaction(ctx context.Context, in CreateTransactionInput) (*Transaction, error)

	// VerifyCallback checks the callback body signature. It must run
	// before the body is parsed or acted upon.
	VerifyCallback(rawBody []byte, signature string) error
	ParseCallback(rawBody []byte) (*CallbackEvent, error)
}
