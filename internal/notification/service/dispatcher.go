// Package service builds lifecycle messages and dispatches them off the
// request and transaction path.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	auditdomain "github.com/tagihin/tagihin/internal/audit/domain"
	clientdomain "github.com/tagihin/tagihin/internal/client/domain"
	"github.com/tagihin/tagihin/internal/config"
	invoicedomain "github.com/tagihin/tagihin/internal/invoice/domain"
	notificationdomain "github.com/tagihin/tagihin/internal/notification/domain"
	"github.com/tagihin/tagihin/internal/notification/provider"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const sendDeadline = 30 * time.Second

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Audit auditdomain.Service
}

type Dispatcher struct {
	provider    notificationdomain.Provider
	frontendURL string
	log         *zap.Logger
	audit       auditdomain.Service
}

func NewDispatcher(p Params) notificationdomain.Notifier {
	var prov notificationdomain.Provider
	if p.Cfg.WhatsAppAPIURL != "" && p.Cfg.WhatsAppToken != "" {
		prov = provider.NewWhatsApp(p.Cfg, p.Log)
	} else {
		prov = provider.NewNoOp(p.Log)
	}

	return &Dispatcher{
		provider:    prov,
		frontendURL: p.Cfg.FrontendURL,
		log:         p.Log.Named("notification.dispatcher"),
		audit:       p.Audit,
	}
}

// dispatch sends one message on its own goroutine. A panic or delivery
// failure is recorded and never reaches the caller.
func (d *Dispatcher) dispatch(kind string, c *clientdomain.Client, message string) {
	if c.ContactWhatsapp == "" {
		d.log.Debug("client has no whatsapp contact", zap.Int64("client_id", int64(c.ID)))
		return
	}

	clientID := c.ID
	to := c.ContactWhatsapp

	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("notification dispatch panic",
					zap.String("kind", kind),
					zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), sendDeadline)
		defer cancel()

		if err := d.provider.Send(ctx, to, message); err != nil {
			d.log.Warn("notification delivery failed",
				zap.String("kind", kind),
				zap.Int64("client_id", int64(clientID)),
				zap.Error(err))
			d.audit.LogError(ctx, "notification", err.Error(), auditdomain.ErrorLevelWarning, &clientID, map[string]any{
				"kind": kind,
			})
		}
	}()
}

func (d *Dispatcher) PaymentReminder(c *clientdomain.Client, inv *invoicedomain.PlatformInvoice, daysLeft int) {
	var b strings.Builder
	fmt.Fprintf(&b, "Halo %s,\n\n", c.BusinessName)
	fmt.Fprintf(&b, "Pengingat: tagihan %s sebesar %s jatuh tempo dalam %d hari (%s).\n\n",
		inv.InvoiceNumber, formatRupiah(inv.TotalAmount), daysLeft, formatDate(inv.DueDate))
	fmt.Fprintf(&b, "Bayar sekarang melalui %s/billing agar layanan tetap aktif.", d.frontendURL)
	d.dispatch("payment_reminder", c, b.String())
}

func (d *Dispatcher) TrialWarning(c *clientdomain.Client, daysLeft int) {
	var b strings.Builder
	fmt.Fprintf(&b, "Halo %s,\n\n", c.BusinessName)
	fmt.Fprintf(&b, "Masa trial Anda berakhir dalam %d hari.\n\n", daysLeft)
	fmt.Fprintf(&b, "Lakukan pembayaran melalui %s/billing untuk melanjutkan layanan tanpa gangguan.", d.frontendURL)
	d.dispatch("trial_warning", c, b.String())
}

func (d *Dispatcher) TrialWarningWithInvoice(c *clientdomain.Client, inv *invoicedomain.PlatformInvoice, daysLeft int) {
	var b strings.Builder
	fmt.Fprintf(&b, "Halo %s,\n\n", c.BusinessName)
	fmt.Fprintf(&b, "Masa trial Anda berakhir dalam %d hari.\n\n", daysLeft)
	fmt.Fprintf(&b, "Tagihan pertama %s sebesar %s sudah diterbitkan. ", inv.InvoiceNumber, formatRupiah(inv.TotalAmount))
	fmt.Fprintf(&b, "Bayar melalui %s/billing untuk melanjutkan layanan.", d.frontendURL)
	d.dispatch("trial_warning", c, b.String())
}

func (d *Dispatcher) InvoiceIssued(c *clientdomain.Client, inv *invoicedomain.PlatformInvoice) {
	var b strings.Builder
	fmt.Fprintf(&b, "Halo %s,\n\n", c.BusinessName)
	fmt.Fprintf(&b, "Tagihan %s periode %02d/%d sebesar %s telah diterbitkan.\n",
		inv.InvoiceNumber, inv.PeriodMonth, inv.PeriodYear, formatRupiah(inv.TotalAmount))
	fmt.Fprintf(&b, "Jatuh tempo: %s.\n\n", formatDate(inv.DueDate))
	fmt.Fprintf(&b, "Bayar melalui %s/billing.", d.frontendURL)
	d.dispatch("invoice_issued", c, b.String())
}

func (d *Dispatcher) PaymentConfirmation(c *clientdomain.Client, inv *invoicedomain.PlatformInvoice) {
	var b strings.Builder
	fmt.Fprintf(&b, "Halo %s,\n\n", c.BusinessName)
	fmt.Fprintf(&b, "Pembayaran tagihan %s sebesar %s telah kami terima. Terima kasih!\n\n",
		inv.InvoiceNumber, formatRupiah(inv.TotalAmount))
	b.WriteString("Akun Anda aktif dan semua layanan dapat digunakan kembali.")
	d.dispatch("payment_confirmation", c, b.String())
}

func (d *Dispatcher) PaymentExpired(c *clientdomain.Client, inv *invoicedomain.PlatformInvoice) {
	var b strings.Builder
	fmt.Fprintf(&b, "Halo %s,\n\n", c.BusinessName)
	fmt.Fprintf(&b, "Metode pembayaran untuk tagihan %s telah kedaluwarsa.\n\n", inv.InvoiceNumber)
	fmt.Fprintf(&b, "Tagihan masih menunggu pembayaran. Buat pembayaran baru melalui %s/billing.", d.frontendURL)
	d.dispatch("payment_expired", c, b.String())
}

func (d *Dispatcher) AccountSuspended(c *clientdomain.Client, reason clientdomain.SuspensionReason) {
	var b strings.Builder
	fmt.Fprintf(&b, "Halo %s,\n\n", c.BusinessName)
	switch reason {
	case clientdomain.SuspensionTrialExpired:
		b.WriteString("Masa trial Anda telah berakhir dan akun dinonaktifkan sementara.\n\n")
	default:
		b.WriteString("Akun Anda dinonaktifkan sementara karena tagihan yang melewati jatuh tempo.\n\n")
	}
	fmt.Fprintf(&b, "Selesaikan pembayaran melalui %s/billing untuk mengaktifkan kembali akun Anda.", d.frontendURL)
	d.dispatch("account_suspended", c, b.String())
}

func (d *Dispatcher) TrialExpired(c *clientdomain.Client) {
	var b strings.Builder
	fmt.Fprintf(&b, "Halo %s,\n\n", c.BusinessName)
	b.WriteString("Masa trial Anda telah berakhir. Terima kasih sudah mencoba layanan kami.\n\n")
	fmt.Fprintf(&b, "Untuk melanjutkan, selesaikan pembayaran tagihan pertama melalui %s/billing.", d.frontendURL)
	d.dispatch("trial_expired", c, b.String())
}

func (d *Dispatcher) AccountActivated(c *clientdomain.Client) {
	var b strings.Builder
	fmt.Fprintf(&b, "Halo %s,\n\n", c.BusinessName)
	b.WriteString("Akun Anda telah aktif. Selamat menggunakan layanan kami!")
	d.dispatch("account_activated", c, b.String())
}

// formatRupiah renders an amount as "Rp 15.000" with dot thousand separators.
func formatRupiah(amount decimal.Decimal) string {
	digits := amount.StringFixed(0)
	negative := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var parts []string
	for len(digits) > 3 {
		parts = append([]string{digits[len(digits)-3:]}, parts...)
		digits = digits[:len(digits)-3]
	}
	parts = append([]string{digits}, parts...)

	out := "Rp " + strings.Join(parts, ".")
	if negative {
		out = "-" + out
	}
	return out
}

func formatDate(t time.Time) string {
	return t.Format("02-01-2006")
}
