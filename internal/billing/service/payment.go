package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/tagihin/tagihin/internal/audit/domain"
	clientdomain "github.com/tagihin/tagihin/internal/client/domain"
	gatewaydomain "github.com/tagihin/tagihin/internal/gateway/domain"
	invoicedomain "github.com/tagihin/tagihin/internal/invoice/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// newMerchantRef builds a unique reference for one charge attempt. The ULID
// suffix keeps retried charges for the same invoice distinct on the gateway.
func newMerchantRef(invoiceNumber string) string {
	return invoiceNumber + "-" + ulid.Make().String()
}

// findOwnedInvoice loads an invoice and hides its existence from anyone but
// its owner.
func (o *Orchestrator) findOwnedInvoice(ctx context.Context, clientID, invoiceID snowflake.ID) (*invoicedomain.PlatformInvoice, error) {
	inv, err := o.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.ClientID != clientID {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return inv, nil
}

func (o *Orchestrator) InitiatePayment(ctx context.Context, clientID, invoiceID snowflake.ID, method invoicedomain.PaymentMethod) (*invoicedomain.PlatformInvoice, error) {
	inv, err := o.findOwnedInvoice(ctx, clientID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != invoicedomain.InvoiceStatusPending {
		return nil, invoicedomain.ErrInvoiceNotPending
	}

	now := o.clock.Now()
	if inv.HasActiveInstrument(now) {
		if *inv.PaymentMethodSelected == method {
			return inv, nil
		}
		return nil, invoicedomain.ErrConflictingPaymentMethod
	}

	c, err := o.clients.FindByID(ctx, clientID)
	if err != nil {
		return nil, err
	}

	tx, err := o.gateway.CreateTransaction(ctx, gatewaydomain.CreateTransactionInput{
		Method:        method,
		MerchantRef:   newMerchantRef(inv.InvoiceNumber),
		Amount:        inv.TotalAmount,
		CustomerName:  c.BusinessName,
		CustomerEmail: c.Email,
		CustomerPhone: c.ContactWhatsapp,
		ItemName:      fmt.Sprintf("Tagihan platform %02d/%d", inv.PeriodMonth, inv.PeriodYear),
		ReturnURL:     o.cfg.FrontendURL + "/billing",
	})
	if err != nil {
		return nil, err
	}

	instrument := invoicedomain.PaymentInstrument{
		Reference:   tx.Reference,
		MerchantRef: tx.MerchantRef,
		CheckoutURL: tx.CheckoutURL,
		VANumber:    tx.PayCode,
		QRURL:       tx.QRURL,
		ExpiresAt:   tx.ExpiresAt,
	}

	var updated *invoicedomain.PlatformInvoice
	err = o.db.Transaction(func(txDB *gorm.DB) error {
		ledger := o.invoices.WithTx(txDB)
		locked, err := ledger.LockByID(ctx, inv.ID)
		if err != nil {
			return err
		}
		updated, err = ledger.AttachPaymentInstrument(ctx, locked, method, instrument, o.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (o *Orchestrator) CancelPayment(ctx context.Context, clientID, invoiceID snowflake.ID) (*invoicedomain.PlatformInvoice, error) {
	inv, err := o.findOwnedInvoice(ctx, clientID, invoiceID)
	if err != nil {
		return nil, err
	}

	var cleared *invoicedomain.PlatformInvoice
	err = o.db.Transaction(func(txDB *gorm.DB) error {
		ledger := o.invoices.WithTx(txDB)
		locked, err := ledger.LockByID(ctx, inv.ID)
		if err != nil {
			return err
		}
		if err := ledger.ClearPaymentInstrument(ctx, locked); err != nil {
			return err
		}
		cleared = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cleared, nil
}

func (o *Orchestrator) RegeneratePayment(ctx context.Context, clientID, invoiceID snowflake.ID, method invoicedomain.PaymentMethod) (*invoicedomain.PlatformInvoice, error) {
	_, err := o.CancelPayment(ctx, clientID, invoiceID)
	if err != nil && !errors.Is(err, invoicedomain.ErrNoPaymentInstrument) {
		return nil, err
	}
	return o.InitiatePayment(ctx, clientID, invoiceID, method)
}

func (o *Orchestrator) ReconcileCallback(ctx context.Context, rawBody []byte, signature string) error {
	if err := o.gateway.VerifyCallback(rawBody, signature); err != nil {
		return err
	}

	event, err := o.gateway.ParseCallback(rawBody)
	if err != nil {
		return err
	}

	inv, err := o.invoices.FindByGatewayReference(ctx, event.Reference)
	if err != nil {
		return err
	}

	if inv.Status == invoicedomain.InvoiceStatusCancelled {
		o.log.Warn("callback for cancelled invoice ignored",
			zap.String("reference", event.Reference),
			zap.String("invoice_number", inv.InvoiceNumber))
		o.audit.LogError(ctx, "billing.callback",
			"callback received for cancelled invoice "+inv.InvoiceNumber,
			auditdomain.ErrorLevelWarning, &inv.ClientID, map[string]any{
				"reference": event.Reference,
				"status":    string(event.Status),
			})
		return nil
	}

	switch event.Status {
	case gatewaydomain.CallbackStatusPaid:
		return o.applyPaid(ctx, inv, event)
	case gatewaydomain.CallbackStatusExpired:
		return o.applyExpired(ctx, inv)
	case gatewaydomain.CallbackStatusFailed:
		o.log.Info("payment attempt failed at gateway",
			zap.String("reference", event.Reference),
			zap.String("invoice_number", inv.InvoiceNumber))
		o.audit.LogError(ctx, "billing.callback",
			"payment failed for invoice "+inv.InvoiceNumber,
			auditdomain.ErrorLevelInfo, &inv.ClientID, map[string]any{
				"reference": event.Reference,
			})
		return nil
	default:
		o.log.Warn("unknown callback status",
			zap.String("reference", event.Reference),
			zap.String("status", string(event.Status)))
		return nil
	}
}

// applyPaid settles the invoice and activates the client in one transaction.
// Reactivation from trial or suspension shifts the billing anniversary to
// the payment day.
func (o *Orchestrator) applyPaid(ctx context.Context, inv *invoicedomain.PlatformInvoice, event *gatewaydomain.CallbackEvent) error {
	paidAt := event.PaidAt
	if paidAt.IsZero() {
		paidAt = o.clock.Now()
	}

	var (
		settled   bool
		activated bool
		c         *clientdomain.Client
	)
	err := o.db.Transaction(func(txDB *gorm.DB) error {
		ledger := o.invoices.WithTx(txDB)
		locked, err := ledger.LockByID(ctx, inv.ID)
		if err != nil {
			return err
		}

		settled, err = ledger.MarkPaid(ctx, locked, paidAt, event.AmountReceived)
		if err != nil {
			return err
		}
		if !settled {
			// Replayed callback. Nothing to change.
			return nil
		}

		machine := o.clients.WithTx(txDB)
		c, err = machine.FindByID(ctx, locked.ClientID)
		if err != nil {
			return err
		}
		activated, err = machine.Activate(ctx, c, paidAt)
		return err
	})
	if err != nil {
		return err
	}
	if !settled {
		return nil
	}

	o.notifier.PaymentConfirmation(c, inv)
	if activated {
		o.notifier.AccountActivated(c)
	}
	return nil
}

// applyExpired detaches the dead payment instrument. The invoice stays
// pending so the client can pick a method again.
func (o *Orchestrator) applyExpired(ctx context.Context, inv *invoicedomain.PlatformInvoice) error {
	var cleared bool
	err := o.db.Transaction(func(txDB *gorm.DB) error {
		ledger := o.invoices.WithTx(txDB)
		locked, err := ledger.LockByID(ctx, inv.ID)
		if err != nil {
			return err
		}
		if locked.Status != invoicedomain.InvoiceStatusPending || locked.PaymentMethodSelected == nil {
			return nil
		}
		if err := ledger.ClearPaymentInstrument(ctx, locked); err != nil {
			return err
		}
		cleared = true
		return nil
	})
	if err != nil {
		return err
	}
	if !cleared {
		return nil
	}

	c, err := o.clients.FindByID(ctx, inv.ClientID)
	if err != nil {
		o.log.Warn("client lookup failed after expiry", zap.Error(err))
		return nil
	}
	o.notifier.PaymentExpired(c, inv)
	return nil
}
