// Package domain defines the billing orchestrator contract.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/tagihin/tagihin/internal/audit/domain"
	clientdomain "github.com/tagihin/tagihin/internal/client/domain"
	invoicedomain "github.com/tagihin/tagihin/internal/invoice/domain"
)

var (
	ErrAccessSuspended = errors.New("access_suspended")
)

// AccessDecision is the outcome of a lazy suspension check.
type AccessDecision struct {
	Allowed bool
	Reason  clientdomain.SuspensionReason
	// Invoice is the outstanding invoice when access is denied for unpaid
	// billing, so the caller can surface payment details.
	Invoice *invoicedomain.PlatformInvoice
}

// Service orchestrates invoice issuance, payment flows, and the sweeps the
// scheduler runs. State changes and their ledger writes commit atomically;
// notifications go out only after commit.
type Service interface {
	IssueTrialInvoice(ctx context.Context, c *clientdomain.Client) (*invoicedomain.PlatformInvoice, error)
	IssueMonthlyInvoice(ctx context.Context, c *clientdomain.Client, now time.Time) (*invoicedomain.PlatformInvoice, error)

	InitiatePayment(ctx context.Context, clientID, invoiceID snowflake.ID, method invoicedomain.PaymentMethod) (*invoicedomain.PlatformInvoice, error)
	CancelPayment(ctx context.Context, clientID, invoiceID snowflake.ID) (*invoicedomain.PlatformInvoice, error)
	RegeneratePayment(ctx context.Context, clientID, invoiceID snowflake.ID, method invoicedomain.PaymentMethod) (*invoicedomain.PlatformInvoice, error)

	// ReconcileCallback authenticates and applies one gateway callback.
	ReconcileCallback(ctx context.Context, rawBody []byte, signature string) error

	EvaluateAccess(ctx context.Context, clientID snowflake.ID, now time.Time) (*AccessDecision, error)

	// Scheduler entry points. Each returns per-record counters for the
	// cron job log and isolates per-record failures.
	RunMonthlyBilling(ctx context.Context, now time.Time) (auditdomain.JobStats, error)
	IssueUpcomingInvoices(ctx context.Context, now time.Time) (auditdomain.JobStats, error)
	SweepOverdue(ctx context.Context, now time.Time) (auditdomain.JobStats, error)
	SweepTrialExpiry(ctx context.Context, now time.Time) (auditdomain.JobStats, error)
	SendTrialWarnings(ctx context.Context, now time.Time) (auditdomain.JobStats, error)
	SendInvoiceReminders(ctx context.Context, now time.Time) (auditdomain.JobStats, error)
}
