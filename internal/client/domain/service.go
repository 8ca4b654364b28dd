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
	ErrClientNotFound   = errors.New("client_not_found")
	ErrEmailTaken       = errors.New("email_taken")
	ErrClientNotBillable = errors.New("client_not_billable")
)

// RegisterInput holds the fields needed to create a new tenant.
type RegisterInput struct {
	BusinessName    string
	BusinessType    string
	Email           string
	ContactWhatsapp string
	TotalUsers      int
}

// Service is the client status machine. Suspend and Activate are the only
// paths a client status may change through.
type Service interface {
	// WithTx returns the status machine bound to the given transaction
	// handle so status changes compose with ledger writes atomically.
	WithTx(tx *gorm.DB) Service

	Register(ctx context.Context, in RegisterInput) (*Client, error)
	FindByID(ctx context.Context, id snowflake.ID) (*Client, error)
	FindByEmail(ctx context.Context, email string) (*Client, error)

	// ListBillableOnDay returns active billable clients whose billing
	// anniversary falls on the given day of month. Day 31 also matches
	// clients whose anniversary exceeds the current month's length.
	ListBillableOnDay(ctx context.Context, day int, lastDayOfMonth int) ([]Client, error)
	ListTrialsEndingOn(ctx context.Context, date time.Time) ([]Client, error)
	ListTrialsExpired(ctx context.Context, now time.Time) ([]Client, error)

	// Suspend moves a client to suspended with the given reason.
	// Suspending an already-suspended client is a no-op.
	Suspend(ctx context.Context, c *Client, reason SuspensionReason, now time.Time) (bool, error)

	// Activate moves a client to active. When the client was on trial or
	// suspended, the billing anniversary shifts to the activation day so
	// the paid month starts from the payment, not the signup.
	Activate(ctx context.Context, c *Client, confirmedAt time.Time) (bool, error)

	SetTotalUsers(ctx context.Context, c *Client, totalUsers int, pricePerUser decimal.Decimal) error
}
