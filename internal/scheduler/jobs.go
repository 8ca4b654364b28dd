package scheduler

import (
	billingdomain "github.com/tagihin/tagihin/internal/billing/domain"
)

// Daily job slots, local to the scheduler timezone. Suspension sweeps run
// in the small hours; reminders go out at a civil time.
func defaultJobs(billing billingdomain.Service) []JobSpec {
	return []JobSpec{
		{Name: "trial_expiry", At: "00:00", Run: billing.SweepTrialExpiry},
		{Name: "monthly_billing", At: "01:00", Run: billing.RunMonthlyBilling},
		{Name: "upcoming_invoices", At: "01:00", Run: billing.IssueUpcomingInvoices},
		{Name: "overdue_check", At: "02:00", Run: billing.SweepOverdue},
		{Name: "trial_warnings", At: "09:00", Run: billing.SendTrialWarnings},
		{Name: "invoice_reminders", At: "09:00", Run: billing.SendInvoiceReminders},
	}
}
