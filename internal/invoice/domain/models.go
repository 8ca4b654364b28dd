// Package domain contains persistence models for platform invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusExpired   InvoiceStatus = "expired"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// PaymentMethod is the client-selected payment channel.
type PaymentMethod string

const (
	PaymentMethodBCAVA PaymentMethod = "BCA_VA"
	PaymentMethodQRIS  PaymentMethod = "QRIS"
)

// PlatformInvoice bills one client for one (month, year) period.
type PlatformInvoice struct {
	ID            snowflake.ID    `gorm:"primaryKey"`
	ClientID      snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_platform_invoices_client_period"`
	InvoiceNumber string          `gorm:"type:text;not null;uniqueIndex"`
	PeriodMonth   int             `gorm:"not null;uniqueIndex:ux_platform_invoices_client_period"`
	PeriodYear    int             `gorm:"not null;uniqueIndex:ux_platform_invoices_client_period"`
	TotalUsers    int             `gorm:"not null"`
	PricePerUser  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	TotalAmount   decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	DueDate       time.Time       `gorm:"not null"`
	Status        InvoiceStatus   `gorm:"type:text;not null;default:'pending';index"`

	// Payment instrument fields; null until a method is selected.
	PaymentMethodSelected *PaymentMethod `gorm:"type:text"`
	GatewayReference      *string        `gorm:"type:text;index"`
	MerchantRef           *string        `gorm:"type:text;index"`
	CheckoutURL           *string        `gorm:"type:text"`
	VANumber              *string        `gorm:"type:text"`
	QRURL                 *string        `gorm:"type:text"`
	InstrumentExpiresAt   *time.Time     `gorm:""`

	PaidAt         *time.Time       `gorm:""`
	AmountReceived *decimal.Decimal `gorm:"type:numeric(12,2)"`
	CreatedAt      time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PlatformInvoice) TableName() string { return "platform_invoices" }

// HasActiveInstrument reports whether an unexpired payment instrument is
// attached. At most one may exist per invoice at a time.
func (i *PlatformInvoice) HasActiveInstrument(now time.Time) bool {
	return i.PaymentMethodSelected != nil &&
		i.InstrumentExpiresAt != nil &&
		i.InstrumentExpiresAt.After(now)
}

// PaymentInstrument carries the gateway-issued payment data attached to an invoice.
type PaymentInstrument struct {
	Reference   string
	MerchantRef string
	CheckoutURL string
	VANumber    string
	QRURL       string
	ExpiresAt   time.Time
}
