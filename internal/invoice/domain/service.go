package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvoiceNotFound          = errors.New("invoice_not_found")
	ErrDuplicatePeriod          = errors.New("duplicate_invoice_period")
	ErrInvoiceNotPending        = errors.New("invoice_not_pending")
	ErrConflictingPaymentMethod = errors.New("conflicting_payment_method")
	ErrNoPaymentInstrument      = errors.New("no_payment_instrument")
)

// CreateInvoiceInput describes a new invoice for one client and period.
type CreateInvoiceInput struct {
	ClientID     snowflake.ID
	PeriodMonth  int
	PeriodYear   int
	TotalUsers   int
	PricePerUser decimal.Decimal
	DueDate      time.Time
}

// Service is the invoice ledger: it owns invoice creation, the
// one-invoice-per-period invariant, and all status transitions.
type Service interface {
	// WithTx returns a ledger bound to the given transaction handle so
	// callers can compose ledger writes with other writes atomically.
	WithTx(tx *gorm.DB) Service

	Create(ctx context.Context, in CreateInvoiceInput) (*PlatformInvoice, error)
	FindByID(ctx context.Context, id snowflake.ID) (*PlatformInvoice, error)
	FindExisting(ctx context.Context, clientID snowflake.ID, month, year int) (*PlatformInvoice, error)
	FindLatestOpen(ctx context.Context, clientID snowflake.ID) (*PlatformInvoice, error)
	// FindOutstanding returns the client's newest unpaid invoice, pending
	// or overdue, or nil when the client owes nothing.
	FindOutstanding(ctx context.Context, clientID snowflake.ID) (*PlatformInvoice, error)
	// FindPendingDue returns the client's earliest pending invoice whose
	// due date has passed, or nil.
	FindPendingDue(ctx context.Context, clientID snowflake.ID, now time.Time) (*PlatformInvoice, error)
	FindByGatewayReference(ctx context.Context, reference string) (*PlatformInvoice, error)
	ListByClient(ctx context.Context, clientID snowflake.ID) ([]PlatformInvoice, error)

	// ListDuePending returns pending invoices whose due date has passed.
	ListDuePending(ctx context.Context, now time.Time) ([]PlatformInvoice, error)
	// ListPendingDueOn returns pending invoices due on the given calendar day.
	ListPendingDueOn(ctx context.Context, date time.Time) ([]PlatformInvoice, error)

	// LockByID loads an invoice row under FOR UPDATE (where the dialect
	// supports it) so concurrent payment operations serialize per invoice.
	LockByID(ctx context.Context, id snowflake.ID) (*PlatformInvoice, error)

	MarkOverdue(ctx context.Context, inv *PlatformInvoice, now time.Time) (bool, error)
	AttachPaymentInstrument(ctx context.Context, inv *PlatformInvoice, method PaymentMethod, instrument PaymentInstrument, now time.Time) (*PlatformInvoice, error)
	ClearPaymentInstrument(ctx context.Context, inv *PlatformInvoice) error
	MarkPaid(ctx context.Context, inv *PlatformInvoice, paidAt time.Time, amountReceived decimal.Decimal) (bool, error)
}
