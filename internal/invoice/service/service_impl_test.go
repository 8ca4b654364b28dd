package service_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	invoicedomain "github.com/tagihin/tagihin/internal/invoice/domain"
	invoiceservice "github.com/tagihin/tagihin/internal/invoice/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE platform_invoices (
			id BIGINT PRIMARY KEY,
			client_id BIGINT NOT NULL,
			invoice_number TEXT NOT NULL,
			period_month INTEGER NOT NULL,
			period_year INTEGER NOT NULL,
			total_users INTEGER NOT NULL,
			price_per_user NUMERIC(12,2) NOT NULL,
			total_amount NUMERIC(12,2) NOT NULL,
			due_date DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			payment_method_selected TEXT,
			gateway_reference TEXT,
			merchant_ref TEXT,
			checkout_url TEXT,
			va_number TEXT,
			qr_url TEXT,
			instrument_expires_at DATETIME,
			paid_at DATETIME,
			amount_received NUMERIC(12,2),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX ux_platform_invoices_client_period
			ON platform_invoices (client_id, period_month, period_year)`,
		`CREATE UNIQUE INDEX ux_platform_invoices_number ON platform_invoices (invoice_number)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newLedger(t *testing.T) invoicedomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	return invoiceservice.NewService(invoiceservice.Params{
		DB:    setupTestDB(t),
		Log:   zap.NewNop(),
		GenID: node,
	})
}

func createInput(clientID snowflake.ID) invoicedomain.CreateInvoiceInput {
	return invoicedomain.CreateInvoiceInput{
		ClientID:     clientID,
		PeriodMonth:  6,
		PeriodYear:   2026,
		TotalUsers:   5,
		PricePerUser: decimal.NewFromInt(3000),
		DueDate:      time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateComputesAmountAndNumber(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)

	inv, err := ledger.Create(ctx, createInput(100))
	require.NoError(t, err)

	assert.True(t, inv.TotalAmount.Equal(decimal.NewFromInt(15000)),
		"5 users at 3000 should bill 15000, got %s", inv.TotalAmount)
	assert.Equal(t, invoicedomain.InvoiceStatusPending, inv.Status)
	assert.True(t, strings.HasPrefix(inv.InvoiceNumber, "PINV-"),
		"unexpected number %s", inv.InvoiceNumber)
}

func TestCreateRejectsDuplicatePeriod(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)

	_, err := ledger.Create(ctx, createInput(100))
	require.NoError(t, err)

	_, err = ledger.Create(ctx, createInput(100))
	assert.ErrorIs(t, err, invoicedomain.ErrDuplicatePeriod)
}

func TestCreateAllowsSamePeriodAcrossClients(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)

	_, err := ledger.Create(ctx, createInput(100))
	require.NoError(t, err)

	_, err = ledger.Create(ctx, createInput(200))
	assert.NoError(t, err)
}

func instrument(expires time.Time) invoicedomain.PaymentInstrument {
	return invoicedomain.PaymentInstrument{
		Reference:   "T100200",
		MerchantRef: "PINV-202606-0001-01ABCDEF",
		CheckoutURL: "https://pay.example/checkout/T100200",
		VANumber:    "8800123456789",
		ExpiresAt:   expires,
	}
}

func TestAttachPaymentInstrumentIsIdempotentPerMethod(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	inv, err := ledger.Create(ctx, createInput(100))
	require.NoError(t, err)

	attached, err := ledger.AttachPaymentInstrument(ctx, inv, invoicedomain.PaymentMethodBCAVA, instrument(now.Add(24*time.Hour)), now)
	require.NoError(t, err)
	require.NotNil(t, attached.VANumber)

	again, err := ledger.AttachPaymentInstrument(ctx, attached, invoicedomain.PaymentMethodBCAVA, instrument(now.Add(48*time.Hour)), now)
	require.NoError(t, err)
	assert.Equal(t, attached.GatewayReference, again.GatewayReference,
		"same-method re-attach must keep the live instrument")
}

func TestAttachPaymentInstrumentRejectsConflictingMethod(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	inv, err := ledger.Create(ctx, createInput(100))
	require.NoError(t, err)

	_, err = ledger.AttachPaymentInstrument(ctx, inv, invoicedomain.PaymentMethodBCAVA, instrument(now.Add(24*time.Hour)), now)
	require.NoError(t, err)

	_, err = ledger.AttachPaymentInstrument(ctx, inv, invoicedomain.PaymentMethodQRIS, instrument(now.Add(30*time.Minute)), now)
	assert.ErrorIs(t, err, invoicedomain.ErrConflictingPaymentMethod)
}

func TestAttachReplacesExpiredInstrument(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	inv, err := ledger.Create(ctx, createInput(100))
	require.NoError(t, err)

	_, err = ledger.AttachPaymentInstrument(ctx, inv, invoicedomain.PaymentMethodBCAVA, instrument(now.Add(-time.Hour)), now)
	require.NoError(t, err)

	// Dead instrument: a different method may take its place.
	replaced, err := ledger.AttachPaymentInstrument(ctx, inv, invoicedomain.PaymentMethodQRIS, invoicedomain.PaymentInstrument{
		Reference:   "T999",
		MerchantRef: "PINV-202606-0001-01ZZZZ",
		QRURL:       "https://pay.example/qr/T999",
		ExpiresAt:   now.Add(30 * time.Minute),
	}, now)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.PaymentMethodQRIS, *replaced.PaymentMethodSelected)
	assert.Nil(t, replaced.VANumber)
}

func TestClearPaymentInstrument(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	inv, err := ledger.Create(ctx, createInput(100))
	require.NoError(t, err)

	err = ledger.ClearPaymentInstrument(ctx, inv)
	assert.ErrorIs(t, err, invoicedomain.ErrNoPaymentInstrument)

	_, err = ledger.AttachPaymentInstrument(ctx, inv, invoicedomain.PaymentMethodBCAVA, instrument(now.Add(24*time.Hour)), now)
	require.NoError(t, err)

	require.NoError(t, ledger.ClearPaymentInstrument(ctx, inv))
	assert.Nil(t, inv.PaymentMethodSelected)
	assert.Nil(t, inv.GatewayReference)
	assert.Equal(t, invoicedomain.InvoiceStatusPending, inv.Status)
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	paidAt := time.Date(2026, 6, 12, 9, 30, 0, 0, time.UTC)

	inv, err := ledger.Create(ctx, createInput(100))
	require.NoError(t, err)

	settled, err := ledger.MarkPaid(ctx, inv, paidAt, decimal.NewFromInt(15000))
	require.NoError(t, err)
	assert.True(t, settled)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, inv.Status)

	settled, err = ledger.MarkPaid(ctx, inv, paidAt.Add(time.Hour), decimal.NewFromInt(15000))
	require.NoError(t, err)
	assert.False(t, settled, "second markPaid must be a no-op")
	assert.True(t, inv.PaidAt.Equal(paidAt), "paid_at must keep the first settlement time")
}

func TestMarkPaidFromOverdue(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)

	inv, err := ledger.Create(ctx, createInput(100))
	require.NoError(t, err)

	after := inv.DueDate.Add(time.Hour)
	marked, err := ledger.MarkOverdue(ctx, inv, after)
	require.NoError(t, err)
	require.True(t, marked)

	settled, err := ledger.MarkPaid(ctx, inv, after.Add(time.Hour), decimal.NewFromInt(15000))
	require.NoError(t, err)
	assert.True(t, settled, "overdue invoices stay payable")
}

func TestMarkOverdueLeavesFutureDueAlone(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)

	inv, err := ledger.Create(ctx, createInput(100))
	require.NoError(t, err)

	marked, err := ledger.MarkOverdue(ctx, inv, inv.DueDate.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, marked)
	assert.Equal(t, invoicedomain.InvoiceStatusPending, inv.Status)
}

func TestFindByGatewayReference(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	inv, err := ledger.Create(ctx, createInput(100))
	require.NoError(t, err)
	_, err = ledger.AttachPaymentInstrument(ctx, inv, invoicedomain.PaymentMethodBCAVA, instrument(now.Add(24*time.Hour)), now)
	require.NoError(t, err)

	found, err := ledger.FindByGatewayReference(ctx, "T100200")
	require.NoError(t, err)
	assert.Equal(t, inv.ID, found.ID)

	_, err = ledger.FindByGatewayReference(ctx, "T-unknown")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}
