// Package domain defines the outbound notification contract.
package domain

import (
	"context"

	clientdomain "github.com/tagihin/tagihin/internal/client/domain"
	invoicedomain "github.com/tagihin/tagihin/internal/invoice/domain"
)

// Provider delivers one message to one recipient over a channel such as
// WhatsApp. Implementations must be safe for concurrent use.
type Provider interface {
	Send(ctx context.Context, to string, message string) error
}

// Notifier sends lifecycle messages to clients. All methods are
// fire-and-forget: delivery failures are logged, never propagated, and a
// failed send must not disturb the state change that triggered it.
type Notifier interface {
	PaymentReminder(c *clientdomain.Client, inv *invoicedomain.PlatformInvoice, daysLeft int)
	TrialWarning(c *clientdomain.Client, daysLeft int)
	TrialWarningWithInvoice(c *clientdomain.Client, inv *invoicedomain.PlatformInvoice, daysLeft int)
	InvoiceIssued(c *clientdomain.Client, inv *invoicedomain.PlatformInvoice)
	PaymentConfirmation(c *clientdomain.Client, inv *invoicedomain.PlatformInvoice)
	PaymentExpired(c *clientdomain.Client, inv *invoicedomain.PlatformInvoice)
	AccountSuspended(c *clientdomain.Client, reason clientdomain.SuspensionReason)
	TrialExpired(c *clientdomain.Client)
	AccountActivated(c *clientdomain.Client)
}
