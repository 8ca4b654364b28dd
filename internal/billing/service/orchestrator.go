// Package service implements the billing orchestrator: invoice issuance,
// payment flows against the gateway, and the lifecycle sweeps.
package service

import (
	"context"
	"errors"
	"time"

	auditdomain "github.com/tagihin/tagihin/internal/audit/domain"
	billingdomain "github.com/tagihin/tagihin/internal/billing/domain"
	clientdomain "github.com/tagihin/tagihin/internal/client/domain"
	"github.com/tagihin/tagihin/internal/clock"
	"github.com/tagihin/tagihin/internal/config"
	gatewaydomain "github.com/tagihin/tagihin/internal/gateway/domain"
	invoicedomain "github.com/tagihin/tagihin/internal/invoice/domain"
	notificationdomain "github.com/tagihin/tagihin/internal/notification/domain"
	settingsdomain "github.com/tagihin/tagihin/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// monthlyDueGrace is how long after issuance a monthly invoice stays payable
// before it can be swept overdue.
const monthlyDueGrace = 7 * 24 * time.Hour

// trialDueGrace applies when the trial already ended and a first invoice is
// issued late.
const trialDueGrace = 3 * 24 * time.Hour

// upcomingLeadDays is the H-7 issuance window: invoices come out this many
// days before the billing anniversary.
const upcomingLeadDays = 7

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Cfg       config.Config
	Clients   clientdomain.Service
	Invoices  invoicedomain.Service
	Settings  settingsdomain.Service
	Gateway   gatewaydomain.Gateway
	Notifier  notificationdomain.Notifier
	Audit     auditdomain.Service
	Reminders *config.ReminderConfigHolder
	Clock     clock.Clock
}

type Orchestrator struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       config.Config
	clients   clientdomain.Service
	invoices  invoicedomain.Service
	settings  settingsdomain.Service
	gateway   gatewaydomain.Gateway
	notifier  notificationdomain.Notifier
	audit     auditdomain.Service
	reminders *config.ReminderConfigHolder
	clock     clock.Clock
}

func NewOrchestrator(p Params) billingdomain.Service {
	return &Orchestrator{
		db:        p.DB,
		log:       p.Log.Named("billing.orchestrator"),
		cfg:       p.Cfg,
		clients:   p.Clients,
		invoices:  p.Invoices,
		settings:  p.Settings,
		gateway:   p.Gateway,
		notifier:  p.Notifier,
		audit:     p.Audit,
		reminders: p.Reminders,
		clock:     p.Clock,
	}
}

// IssueTrialInvoice ensures the client's first invoice exists. Calling it
// again returns the already-open invoice instead of creating another.
func (o *Orchestrator) IssueTrialInvoice(ctx context.Context, c *clientdomain.Client) (*invoicedomain.PlatformInvoice, error) {
	if !c.Billable() {
		return nil, clientdomain.ErrClientNotBillable
	}
	if c.TotalUsers == 0 {
		return nil, nil
	}

	existing, err := o.invoices.FindLatestOpen(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	price, err := o.settings.PricePerUser(ctx)
	if err != nil {
		return nil, err
	}

	now := o.clock.Now()
	due := now.Add(trialDueGrace)
	if c.TrialEndsAt != nil && c.TrialEndsAt.After(now) {
		due = *c.TrialEndsAt
	}

	inv, err := o.invoices.Create(ctx, invoicedomain.CreateInvoiceInput{
		ClientID:     c.ID,
		PeriodMonth:  int(now.Month()),
		PeriodYear:   now.Year(),
		TotalUsers:   c.TotalUsers,
		PricePerUser: price,
		DueDate:      due,
	})
	if err != nil {
		if errors.Is(err, invoicedomain.ErrDuplicatePeriod) {
			return o.invoices.FindExisting(ctx, c.ID, int(now.Month()), now.Year())
		}
		return nil, err
	}

	o.log.Info("trial invoice issued",
		zap.Int64("client_id", int64(c.ID)),
		zap.String("invoice_number", inv.InvoiceNumber))
	return inv, nil
}

func (o *Orchestrator) IssueMonthlyInvoice(ctx context.Context, c *clientdomain.Client, now time.Time) (*invoicedomain.PlatformInvoice, error) {
	if !c.Billable() || c.TotalUsers == 0 {
		return nil, nil
	}

	price, err := o.settings.PricePerUser(ctx)
	if err != nil {
		return nil, err
	}

	inv, err := o.invoices.Create(ctx, invoicedomain.CreateInvoiceInput{
		ClientID:     c.ID,
		PeriodMonth:  int(now.Month()),
		PeriodYear:   now.Year(),
		TotalUsers:   c.TotalUsers,
		PricePerUser: price,
		DueDate:      now.Add(monthlyDueGrace),
	})
	if err != nil {
		return nil, err
	}

	if err := o.clients.SetTotalUsers(ctx, c, c.TotalUsers, price); err != nil {
		o.log.Warn("monthly bill refresh failed",
			zap.Int64("client_id", int64(c.ID)), zap.Error(err))
	}

	o.log.Info("monthly invoice issued",
		zap.Int64("client_id", int64(c.ID)),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("amount", inv.TotalAmount.String()))
	return inv, nil
}

// lastDayOfMonth returns the number of days in t's month.
func lastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
