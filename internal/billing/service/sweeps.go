package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	auditdomain "github.com/tagihin/tagihin/internal/audit/domain"
	clientdomain "github.com/tagihin/tagihin/internal/client/domain"
	invoicedomain "github.com/tagihin/tagihin/internal/invoice/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const upcomingWorkers = 10

// jobCounter accumulates per-record outcomes for a cron job log, safe for
// concurrent workers.
type jobCounter struct {
	mu    sync.Mutex
	stats auditdomain.JobStats
}

func (j *jobCounter) success() {
	j.mu.Lock()
	j.stats.RecordsProcessed++
	j.stats.RecordsSuccess++
	j.mu.Unlock()
}

func (j *jobCounter) failure(err error) {
	j.mu.Lock()
	j.stats.RecordsProcessed++
	j.stats.RecordsFailed++
	if j.stats.ErrorMessage == "" {
		j.stats.ErrorMessage = err.Error()
	}
	j.mu.Unlock()
}

func (j *jobCounter) result() auditdomain.JobStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}

// RunMonthlyBilling issues invoices for clients whose billing anniversary is
// today. Clients already invoiced for the period are counted as processed.
func (o *Orchestrator) RunMonthlyBilling(ctx context.Context, now time.Time) (auditdomain.JobStats, error) {
	clients, err := o.clients.ListBillableOnDay(ctx, now.Day(), lastDayOfMonth(now))
	if err != nil {
		return auditdomain.JobStats{}, err
	}

	var counter jobCounter
	for i := range clients {
		c := &clients[i]
		inv, err := o.IssueMonthlyInvoice(ctx, c, now)
		switch {
		case err == nil:
			if inv != nil {
				o.notifier.InvoiceIssued(c, inv)
			}
			counter.success()
		case errors.Is(err, invoicedomain.ErrDuplicatePeriod):
			counter.success()
		default:
			o.log.Error("monthly invoice failed",
				zap.Int64("client_id", int64(c.ID)), zap.Error(err))
			o.audit.LogError(ctx, "billing.monthly", err.Error(),
				auditdomain.ErrorLevelError, &c.ID, nil)
			counter.failure(err)
		}
	}
	return counter.result(), nil
}

// IssueUpcomingInvoices issues invoices seven days ahead of each client's
// billing anniversary so clients see the bill before it is due.
func (o *Orchestrator) IssueUpcomingInvoices(ctx context.Context, now time.Time) (auditdomain.JobStats, error) {
	target := now.AddDate(0, 0, upcomingLeadDays)
	clients, err := o.clients.ListBillableOnDay(ctx, target.Day(), lastDayOfMonth(target))
	if err != nil {
		return auditdomain.JobStats{}, err
	}

	price, err := o.settings.PricePerUser(ctx)
	if err != nil {
		return auditdomain.JobStats{}, err
	}

	var counter jobCounter
	workers := pool.New().WithMaxGoroutines(upcomingWorkers)
	for i := range clients {
		c := &clients[i]
		workers.Go(func() {
			if c.TotalUsers == 0 {
				counter.success()
				return
			}
			inv, err := o.invoices.Create(ctx, invoicedomain.CreateInvoiceInput{
				ClientID:     c.ID,
				PeriodMonth:  int(target.Month()),
				PeriodYear:   target.Year(),
				TotalUsers:   c.TotalUsers,
				PricePerUser: price,
				DueDate:      target,
			})
			switch {
			case err == nil:
				o.notifier.InvoiceIssued(c, inv)
				counter.success()
			case errors.Is(err, invoicedomain.ErrDuplicatePeriod):
				counter.success()
			default:
				o.log.Error("upcoming invoice failed",
					zap.Int64("client_id", int64(c.ID)), zap.Error(err))
				o.audit.LogError(ctx, "billing.upcoming", err.Error(),
					auditdomain.ErrorLevelError, &c.ID, nil)
				counter.failure(err)
			}
		})
	}
	workers.Wait()
	return counter.result(), nil
}

// SweepOverdue marks past-due pending invoices overdue and suspends their
// clients. Each suspension sends exactly one notification: already-suspended
// clients are left alone.
func (o *Orchestrator) SweepOverdue(ctx context.Context, now time.Time) (auditdomain.JobStats, error) {
	invoices, err := o.invoices.ListDuePending(ctx, now)
	if err != nil {
		return auditdomain.JobStats{}, err
	}

	var counter jobCounter
	for i := range invoices {
		inv := &invoices[i]

		var (
			suspended bool
			c         *clientdomain.Client
		)
		err := o.db.Transaction(func(txDB *gorm.DB) error {
			ledger := o.invoices.WithTx(txDB)
			locked, err := ledger.LockByID(ctx, inv.ID)
			if err != nil {
				return err
			}
			if _, err := ledger.MarkOverdue(ctx, locked, now); err != nil {
				return err
			}

			machine := o.clients.WithTx(txDB)
			c, err = machine.FindByID(ctx, locked.ClientID)
			if err != nil {
				return err
			}
			suspended, err = machine.Suspend(ctx, c, clientdomain.SuspensionPaymentOverdue, now)
			return err
		})
		if err != nil {
			o.log.Error("overdue sweep failed for invoice",
				zap.Int64("invoice_id", int64(inv.ID)), zap.Error(err))
			o.audit.LogError(ctx, "billing.overdue", err.Error(),
				auditdomain.ErrorLevelError, &inv.ClientID, nil)
			counter.failure(err)
			continue
		}

		if suspended {
			o.notifier.AccountSuspended(c, clientdomain.SuspensionPaymentOverdue)
		}
		counter.success()
	}
	return counter.result(), nil
}

// SweepTrialExpiry suspends clients whose trial ended, making sure their
// first invoice exists so reactivation has something to pay.
func (o *Orchestrator) SweepTrialExpiry(ctx context.Context, now time.Time) (auditdomain.JobStats, error) {
	clients, err := o.clients.ListTrialsExpired(ctx, now)
	if err != nil {
		return auditdomain.JobStats{}, err
	}

	var counter jobCounter
	for i := range clients {
		c := &clients[i]

		if _, err := o.IssueTrialInvoice(ctx, c); err != nil {
			o.log.Warn("trial invoice issuance failed during expiry sweep",
				zap.Int64("client_id", int64(c.ID)), zap.Error(err))
		}

		var suspended bool
		err := o.db.Transaction(func(txDB *gorm.DB) error {
			machine := o.clients.WithTx(txDB)
			var err error
			suspended, err = machine.Suspend(ctx, c, clientdomain.SuspensionTrialExpired, now)
			return err
		})
		if err != nil {
			o.log.Error("trial expiry sweep failed",
				zap.Int64("client_id", int64(c.ID)), zap.Error(err))
			o.audit.LogError(ctx, "billing.trial_expiry", err.Error(),
				auditdomain.ErrorLevelError, &c.ID, nil)
			counter.failure(err)
			continue
		}

		if suspended {
			o.notifier.TrialExpired(c)
		}
		counter.success()
	}
	return counter.result(), nil
}

// SendTrialWarnings notifies clients whose trial ends on a configured
// warning offset, issuing the first invoice alongside the earliest warning.
func (o *Orchestrator) SendTrialWarnings(ctx context.Context, now time.Time) (auditdomain.JobStats, error) {
	var counter jobCounter
	for _, days := range o.reminders.Current().TrialWarningDays {
		clients, err := o.clients.ListTrialsEndingOn(ctx, now.AddDate(0, 0, days))
		if err != nil {
			return counter.result(), err
		}

		for i := range clients {
			c := &clients[i]
			inv, err := o.IssueTrialInvoice(ctx, c)
			if err != nil {
				o.log.Warn("trial invoice issuance failed during warning",
					zap.Int64("client_id", int64(c.ID)), zap.Error(err))
				counter.failure(err)
				continue
			}

			if inv != nil && inv.Status == invoicedomain.InvoiceStatusPending {
				o.notifier.TrialWarningWithInvoice(c, inv, days)
			} else {
				o.notifier.TrialWarning(c, days)
			}
			counter.success()
		}
	}
	return counter.result(), nil
}

// SendInvoiceReminders notifies clients with pending invoices due on a
// configured warning offset.
func (o *Orchestrator) SendInvoiceReminders(ctx context.Context, now time.Time) (auditdomain.JobStats, error) {
	var counter jobCounter
	for _, days := range o.reminders.Current().InvoiceWarningDays {
		invoices, err := o.invoices.ListPendingDueOn(ctx, now.AddDate(0, 0, days))
		if err != nil {
			return counter.result(), err
		}

		for i := range invoices {
			inv := &invoices[i]
			c, err := o.clients.FindByID(ctx, inv.ClientID)
			if err != nil {
				o.log.Warn("client lookup failed for reminder",
					zap.Int64("invoice_id", int64(inv.ID)), zap.Error(err))
				counter.failure(err)
				continue
			}
			if c.Status == clientdomain.ClientStatusTrial {
				// Trial clients get the trial warning flow instead.
				counter.success()
				continue
			}
			o.notifier.PaymentReminder(c, inv, days)
			counter.success()
		}
	}
	return counter.result(), nil
}
