package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/tagihin/tagihin/internal/billing/domain"
	clientdomain "github.com/tagihin/tagihin/internal/client/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EvaluateAccess is the lazy suspension check run on authenticated requests.
// A trial that expired or an invoice that went past due between scheduler
// runs is acted on here rather than waiting for the nightly sweep.
func (o *Orchestrator) EvaluateAccess(ctx context.Context, clientID snowflake.ID, now time.Time) (*billingdomain.AccessDecision, error) {
	c, err := o.clients.FindByID(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if !c.Billable() {
		return &billingdomain.AccessDecision{Allowed: true}, nil
	}

	if c.Status == clientdomain.ClientStatusSuspended {
		return o.denied(ctx, c)
	}

	if c.TrialExpired(now) {
		if _, err := o.IssueTrialInvoice(ctx, c); err != nil {
			o.log.Warn("trial invoice issuance failed during access check", zap.Error(err))
		}

		var suspended bool
		err := o.db.Transaction(func(txDB *gorm.DB) error {
			var err error
			suspended, err = o.clients.WithTx(txDB).Suspend(ctx, c, clientdomain.SuspensionTrialExpired, now)
			return err
		})
		if err != nil {
			return nil, err
		}
		if suspended {
			o.notifier.TrialExpired(c)
		}
		return o.denied(ctx, c)
	}

	if c.Status == clientdomain.ClientStatusActive {
		due, err := o.invoices.FindPendingDue(ctx, c.ID, now)
		if err != nil {
			return nil, err
		}
		if due != nil {
			var suspended bool
			err := o.db.Transaction(func(txDB *gorm.DB) error {
				ledger := o.invoices.WithTx(txDB)
				locked, err := ledger.LockByID(ctx, due.ID)
				if err != nil {
					return err
				}
				if _, err := ledger.MarkOverdue(ctx, locked, now); err != nil {
					return err
				}
				suspended, err = o.clients.WithTx(txDB).Suspend(ctx, c, clientdomain.SuspensionPaymentOverdue, now)
				return err
			})
			if err != nil {
				return nil, err
			}
			if suspended {
				o.notifier.AccountSuspended(c, clientdomain.SuspensionPaymentOverdue)
			}
			return o.denied(ctx, c)
		}
	}

	return &billingdomain.AccessDecision{Allowed: true}, nil
}

func (o *Orchestrator) denied(ctx context.Context, c *clientdomain.Client) (*billingdomain.AccessDecision, error) {
	reason := clientdomain.SuspensionPaymentOverdue
	if c.SuspensionReason != nil {
		reason = *c.SuspensionReason
	}

	inv, err := o.invoices.FindOutstanding(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &billingdomain.AccessDecision{
		Allowed: false,
		Reason:  reason,
		Invoice: inv,
	}, nil
}
