package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/tagihin/tagihin/internal/invoice/domain"
	"github.com/tagihin/tagihin/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const createNumberAttempts = 5

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) invoicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
	}
}

func (s *Service) WithTx(tx *gorm.DB) invoicedomain.Service {
	return &Service{db: tx, log: s.log, genID: s.genID}
}

func (s *Service) Create(ctx context.Context, in invoicedomain.CreateInvoiceInput) (*invoicedomain.PlatformInvoice, error) {
	if in.PeriodMonth < 1 || in.PeriodMonth > 12 || in.PeriodYear < 2000 {
		return nil, fmt.Errorf("invalid invoice period %d/%d", in.PeriodMonth, in.PeriodYear)
	}
	if in.TotalUsers < 0 || in.PricePerUser.IsNegative() {
		return nil, errors.New("invalid invoice amount inputs")
	}

	existing, err := s.FindExisting(ctx, in.ClientID, in.PeriodMonth, in.PeriodYear)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, invoicedomain.ErrDuplicatePeriod
	}

	totalAmount := in.PricePerUser.Mul(decimal.NewFromInt(int64(in.TotalUsers)))

	for attempt := 0; attempt < createNumberAttempts; attempt++ {
		inv := &invoicedomain.PlatformInvoice{
			ID:            s.genID.Generate(),
			ClientID:      in.ClientID,
			InvoiceNumber: generateInvoiceNumber(time.Now().UTC()),
			PeriodMonth:   in.PeriodMonth,
			PeriodYear:    in.PeriodYear,
			TotalUsers:    in.TotalUsers,
			PricePerUser:  in.PricePerUser,
			TotalAmount:   totalAmount,
			DueDate:       in.DueDate,
			Status:        invoicedomain.InvoiceStatusPending,
		}

		err := s.db.WithContext(ctx).Create(inv).Error
		if err == nil {
			return inv, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, fmt.Errorf("create invoice: %w", err)
		}

		// The duplicate may be the period index (another writer won the
		// race) or a number collision worth retrying with a fresh suffix.
		existing, findErr := s.FindExisting(ctx, in.ClientID, in.PeriodMonth, in.PeriodYear)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil {
			return nil, invoicedomain.ErrDuplicatePeriod
		}
	}

	return nil, errors.New("exhausted invoice number attempts")
}

func (s *Service) FindByID(ctx context.Context, id snowflake.ID) (*invoicedomain.PlatformInvoice, error) {
	var inv invoicedomain.PlatformInvoice
	err := s.db.WithContext(ctx).First(&inv, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invoicedomain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (s *Service) FindExisting(ctx context.Context, clientID snowflake.ID, month, year int) (*invoicedomain.PlatformInvoice, error) {
	var inv invoicedomain.PlatformInvoice
	err := s.db.WithContext(ctx).
		First(&inv, "client_id = ? AND period_month = ? AND period_year = ?", clientID, month, year).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inv, nil
}

// FindLatestOpen returns the newest pending or paid invoice for a client.
// Used by the trial path, where any open invoice satisfies the request.
func (s *Service) FindLatestOpen(ctx context.Context, clientID snowflake.ID) (*invoicedomain.PlatformInvoice, error) {
	var inv invoicedomain.PlatformInvoice
	err := s.db.WithContext(ctx).
		Where("client_id = ? AND status IN ?", clientID, []invoicedomain.InvoiceStatus{
			invoicedomain.InvoiceStatusPending,
			invoicedomain.InvoiceStatusPaid,
		}).
		Order("created_at DESC").
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inv, nil
}

func (s *Service) FindOutstanding(ctx context.Context, clientID snowflake.ID) (*invoicedomain.PlatformInvoice, error) {
	var inv invoicedomain.PlatformInvoice
	err := s.db.WithContext(ctx).
		Where("client_id = ? AND status IN ?", clientID,
			[]invoicedomain.InvoiceStatus{invoicedomain.InvoiceStatusPending, invoicedomain.InvoiceStatusOverdue}).
		Order("created_at DESC").
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inv, nil
}

func (s *Service) FindPendingDue(ctx context.Context, clientID snowflake.ID, now time.Time) (*invoicedomain.PlatformInvoice, error) {
	var inv invoicedomain.PlatformInvoice
	err := s.db.WithContext(ctx).
		Where("client_id = ? AND status = ? AND due_date < ?",
			clientID, invoicedomain.InvoiceStatusPending, now).
		Order("due_date ASC").
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inv, nil
}

func (s *Service) FindByGatewayReference(ctx context.Context, reference string) (*invoicedomain.PlatformInvoice, error) {
	var inv invoicedomain.PlatformInvoice
	err := s.db.WithContext(ctx).First(&inv, "gateway_reference = ?", reference).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invoicedomain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (s *Service) ListByClient(ctx context.Context, clientID snowflake.ID) ([]invoicedomain.PlatformInvoice, error) {
	var invoices []invoicedomain.PlatformInvoice
	err := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("period_year DESC, period_month DESC").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Service) ListDuePending(ctx context.Context, now time.Time) ([]invoicedomain.PlatformInvoice, error) {
	var invoices []invoicedomain.PlatformInvoice
	err := s.db.WithContext(ctx).
		Where("status = ? AND due_date < ?", invoicedomain.InvoiceStatusPending, now).
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Service) ListPendingDueOn(ctx context.Context, date time.Time) ([]invoicedomain.PlatformInvoice, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var invoices []invoicedomain.PlatformInvoice
	err := s.db.WithContext(ctx).
		Where("status = ? AND due_date >= ? AND due_date < ?", invoicedomain.InvoiceStatusPending, dayStart, dayEnd).
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Service) LockByID(ctx context.Context, id snowflake.ID) (*invoicedomain.PlatformInvoice, error) {
	query := `SELECT * FROM platform_invoices WHERE id = ?`
	if s.db.Dialector.Name() != "sqlite" {
		query += ` FOR UPDATE`
	}

	var inv invoicedomain.PlatformInvoice
	err := s.db.WithContext(ctx).Raw(query, id).Scan(&inv).Error
	if err != nil {
		return nil, err
	}
	if inv.ID == 0 {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return &inv, nil
}

// MarkOverdue transitions pending → overdue once the due date has passed.
// Idempotent: already-overdue or paid invoices are left untouched.
func (s *Service) MarkOverdue(ctx context.Context, inv *invoicedomain.PlatformInvoice, now time.Time) (bool, error) {
	if inv.Status != invoicedomain.InvoiceStatusPending || !inv.DueDate.Before(now) {
		return false, nil
	}

	result := s.db.WithContext(ctx).
		Model(&invoicedomain.PlatformInvoice{}).
		Where("id = ? AND status = ?", inv.ID, invoicedomain.InvoiceStatusPending).
		Updates(map[string]any{
			"status":     invoicedomain.InvoiceStatusOverdue,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	inv.Status = invoicedomain.InvoiceStatusOverdue
	return true, nil
}

func (s *Service) AttachPaymentInstrument(ctx context.Context, inv *invoicedomain.PlatformInvoice, method invoicedomain.PaymentMethod, instrument invoicedomain.PaymentInstrument, now time.Time) (*invoicedomain.PlatformInvoice, error) {
	if inv.Status != invoicedomain.InvoiceStatusPending {
		return nil, invoicedomain.ErrInvoiceNotPending
	}
	if inv.HasActiveInstrument(now) {
		if *inv.PaymentMethodSelected == method {
			return inv, nil
		}
		return nil, invoicedomain.ErrConflictingPaymentMethod
	}

	updates := map[string]any{
		"payment_method_selected": method,
		"gateway_reference":       instrument.Reference,
		"merchant_ref":            instrument.MerchantRef,
		"checkout_url":            instrument.CheckoutURL,
		"instrument_expires_at":   instrument.ExpiresAt,
		"updated_at":              now,
	}
	switch method {
	case invoicedomain.PaymentMethodBCAVA:
		updates["va_number"] = instrument.VANumber
		updates["qr_url"] = nil
	case invoicedomain.PaymentMethodQRIS:
		updates["qr_url"] = instrument.QRURL
		updates["va_number"] = nil
	}

	result := s.db.WithContext(ctx).
		Model(&invoicedomain.PlatformInvoice{}).
		Where("id = ? AND status = ?", inv.ID, invoicedomain.InvoiceStatusPending).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, invoicedomain.ErrInvoiceNotPending
	}

	inv.PaymentMethodSelected = &method
	inv.GatewayReference = &instrument.Reference
	inv.MerchantRef = &instrument.MerchantRef
	inv.CheckoutURL = &instrument.CheckoutURL
	expires := instrument.ExpiresAt
	inv.InstrumentExpiresAt = &expires
	if method == invoicedomain.PaymentMethodBCAVA {
		inv.VANumber = &instrument.VANumber
		inv.QRURL = nil
	} else {
		inv.QRURL = &instrument.QRURL
		inv.VANumber = nil
	}
	return inv, nil
}

func (s *Service) ClearPaymentInstrument(ctx context.Context, inv *invoicedomain.PlatformInvoice) error {
	if inv.Status != invoicedomain.InvoiceStatusPending {
		return invoicedomain.ErrInvoiceNotPending
	}
	if inv.PaymentMethodSelected == nil {
		return invoicedomain.ErrNoPaymentInstrument
	}

	err := s.db.WithContext(ctx).
		Model(&invoicedomain.PlatformInvoice{}).
		Where("id = ? AND status = ?", inv.ID, invoicedomain.InvoiceStatusPending).
		Updates(map[string]any{
			"payment_method_selected": nil,
			"gateway_reference":       nil,
			"merchant_ref":            nil,
			"checkout_url":            nil,
			"va_number":               nil,
			"qr_url":                  nil,
			"instrument_expires_at":   nil,
		}).Error
	if err != nil {
		return err
	}

	inv.PaymentMethodSelected = nil
	inv.GatewayReference = nil
	inv.MerchantRef = nil
	inv.CheckoutURL = nil
	inv.VANumber = nil
	inv.QRURL = nil
	inv.InstrumentExpiresAt = nil
	return nil
}

// MarkPaid transitions pending/overdue → paid. Re-applying to a paid invoice
// is a no-op because gateways deliver callbacks more than once.
func (s *Service) MarkPaid(ctx context.Context, inv *invoicedomain.PlatformInvoice, paidAt time.Time, amountReceived decimal.Decimal) (bool, error) {
	switch inv.Status {
	case invoicedomain.InvoiceStatusPaid:
		return false, nil
	case invoicedomain.InvoiceStatusPending, invoicedomain.InvoiceStatusOverdue:
	default:
		return false, invoicedomain.ErrInvoiceNotPending
	}

	result := s.db.WithContext(ctx).
		Model(&invoicedomain.PlatformInvoice{}).
		Where("id = ? AND status IN ?", inv.ID, []invoicedomain.InvoiceStatus{
			invoicedomain.InvoiceStatusPending,
			invoicedomain.InvoiceStatusOverdue,
		}).
		Updates(map[string]any{
			"status":          invoicedomain.InvoiceStatusPaid,
			"paid_at":         paidAt,
			"amount_received": amountReceived,
			"updated_at":      paidAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	inv.Status = invoicedomain.InvoiceStatusPaid
	inv.PaidAt = &paidAt
	inv.AmountReceived = &amountReceived
	return true, nil
}
