package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	auditservice "github.com/tagihin/tagihin/internal/audit/service"
	billingservice "github.com/tagihin/tagihin/internal/billing/service"
	clientdomain "github.com/tagihin/tagihin/internal/client/domain"
	clientservice "github.com/tagihin/tagihin/internal/client/service"
	"github.com/tagihin/tagihin/internal/clock"
	"github.com/tagihin/tagihin/internal/config"
	"github.com/tagihin/tagihin/internal/gateway/tripay"
	invoicedomain "github.com/tagihin/tagihin/internal/invoice/domain"
	invoiceservice "github.com/tagihin/tagihin/internal/invoice/service"
	notificationdomain "github.com/tagihin/tagihin/internal/notification/domain"
	settingsservice "github.com/tagihin/tagihin/internal/settings/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const apiTestPrivateKey = "private-key-api-test"

// silentNotifier drops everything; handler tests do not care about
// notification traffic.
type silentNotifier struct{}

func (silentNotifier) PaymentReminder(*clientdomain.Client, *invoicedomain.PlatformInvoice, int) {}
func (silentNotifier) TrialWarning(*clientdomain.Client, int)                                   {}
func (silentNotifier) TrialWarningWithInvoice(*clientdomain.Client, *invoicedomain.PlatformInvoice, int) {
}
func (silentNotifier) InvoiceIssued(*clientdomain.Client, *invoicedomain.PlatformInvoice)       {}
func (silentNotifier) PaymentConfirmation(*clientdomain.Client, *invoicedomain.PlatformInvoice) {}
func (silentNotifier) PaymentExpired(*clientdomain.Client, *invoicedomain.PlatformInvoice)      {}
func (silentNotifier) AccountSuspended(*clientdomain.Client, clientdomain.SuspensionReason)     {}
func (silentNotifier) TrialExpired(*clientdomain.Client)                                        {}
func (silentNotifier) AccountActivated(*clientdomain.Client)                                    {}

var _ notificationdomain.Notifier = silentNotifier{}

type apiHarness struct {
	engine   *gin.Engine
	db       *gorm.DB
	clients  clientdomain.Service
	invoices invoicedomain.Service
	clock    *clock.FakeClock
}

func setupAPIDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	schema := []string{
		`CREATE TABLE clients (
			id BIGINT PRIMARY KEY,
			business_name TEXT NOT NULL,
			business_type TEXT,
			email TEXT NOT NULL,
			contact_whatsapp TEXT,
			role TEXT NOT NULL DEFAULT 'client',
			status TEXT NOT NULL DEFAULT 'trial',
			trial_ends_at DATETIME,
			billing_date INTEGER NOT NULL,
			total_users INTEGER NOT NULL DEFAULT 0,
			monthly_bill NUMERIC(12,2) NOT NULL DEFAULT 0,
			suspended_at DATETIME,
			suspension_reason TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX ux_clients_email ON clients (email)`,
		`CREATE TABLE platform_invoices (
			id BIGINT PRIMARY KEY,
			client_id BIGINT NOT NULL,
			invoice_number TEXT NOT NULL,
			period_month INTEGER NOT NULL,
			period_year INTEGER NOT NULL,
			total_users INTEGER NOT NULL,
			price_per_user NUMERIC(12,2) NOT NULL,
			total_amount NUMERIC(12,2) NOT NULL,
			due_date DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			payment_method_selected TEXT,
			gateway_reference TEXT,
			merchant_ref TEXT,
			checkout_url TEXT,
			va_number TEXT,
			qr_url TEXT,
			instrument_expires_at DATETIME,
			paid_at DATETIME,
			amount_received NUMERIC(12,2),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX ux_platform_invoices_client_period
			ON platform_invoices (client_id, period_month, period_year)`,
		`CREATE UNIQUE INDEX ux_platform_invoices_number ON platform_invoices (invoice_number)`,
		`CREATE TABLE platform_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE cron_job_logs (
			id BIGINT PRIMARY KEY,
			job_name TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			duration_ms BIGINT,
			records_processed INTEGER NOT NULL DEFAULT 0,
			records_success INTEGER NOT NULL DEFAULT 0,
			records_failed INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE error_logs (
			id BIGINT PRIMARY KEY,
			level TEXT NOT NULL,
			service TEXT NOT NULL,
			message TEXT NOT NULL,
			client_id BIGINT,
			metadata TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func newAPIHarness(t *testing.T, now time.Time) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := setupAPIDB(t)
	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	fc := clock.NewFakeClock(now)
	log := zap.NewNop()

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"reference":    "TREF-API-1",
				"merchant_ref": req["merchant_ref"],
				"checkout_url": "https://pay.example/checkout",
				"pay_code":     "8800123456",
				"qr_url":       "https://pay.example/qr",
			},
		})
	}))
	t.Cleanup(gateway.Close)

	cfg := config.Config{
		FrontendURL:         "https://app.example",
		GatewayAPIURL:       gateway.URL,
		GatewayAPIKey:       "api-key-test",
		GatewayPrivateKey:   apiTestPrivateKey,
		GatewayMerchantCode: "T12345",
	}

	clients := clientservice.NewService(clientservice.Params{DB: db, Log: log, GenID: node, Clock: fc})
	invoices := invoiceservice.NewService(invoiceservice.Params{DB: db, Log: log, GenID: node})
	settings := settingsservice.NewService(settingsservice.Params{DB: db, Log: log})
	audit := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Clock: fc})

	reminders, err := config.NewReminderConfigHolder(log)
	require.NoError(t, err)

	billing := billingservice.NewOrchestrator(billingservice.Params{
		DB:        db,
		Log:       log,
		Cfg:       cfg,
		Clients:   clients,
		Invoices:  invoices,
		Settings:  settings,
		Gateway:   tripay.NewClient(cfg, log),
		Notifier:  silentNotifier{},
		Audit:     audit,
		Reminders: reminders,
		Clock:     fc,
	})

	srv := New(Params{
		Log:      log,
		Cfg:      cfg,
		Billing:  billing,
		Clients:  clients,
		Invoices: invoices,
		Clock:    fc,
	})

	return &apiHarness{
		engine:   registerGin(srv, cfg),
		db:       db,
		clients:  clients,
		invoices: invoices,
		clock:    fc,
	}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func signAPIBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(apiTestPrivateKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *apiHarness) registerClient(t *testing.T, totalUsers int) *clientdomain.Client {
	t.Helper()
	c, err := h.clients.Register(context.Background(), clientdomain.RegisterInput{
		BusinessName:    "Toko Sejahtera",
		Email:           fmt.Sprintf("owner-%d@toko.example", time.Now().UnixNano()),
		ContactWhatsapp: "+628111222333",
		TotalUsers:      totalUsers,
	})
	require.NoError(t, err)
	return c
}

func (h *apiHarness) suspend(t *testing.T, c *clientdomain.Client, reason clientdomain.SuspensionReason) {
	t.Helper()
	err := h.db.Exec(
		`UPDATE clients SET status = 'suspended', suspension_reason = ? WHERE id = ?`,
		string(reason), c.ID).Error
	require.NoError(t, err)
}

func (h *apiHarness) pendingInvoice(t *testing.T, c *clientdomain.Client, due time.Time) *invoicedomain.PlatformInvoice {
	t.Helper()
	inv, err := h.invoices.Create(context.Background(), invoicedomain.CreateInvoiceInput{
		ClientID:     c.ID,
		PeriodMonth:  int(due.Month()),
		PeriodYear:   due.Year(),
		TotalUsers:   c.TotalUsers,
		PricePerUser: decimal.NewFromInt(3000),
		DueDate:      due,
	})
	require.NoError(t, err)
	return inv
}

func TestRegisterClientEndpoint(t *testing.T) {
	now := time.Date(2026, 6, 8, 10, 0, 0, 0, time.UTC)
	h := newAPIHarness(t, now)

	w := h.do(t, http.MethodPost, "/v1/clients", map[string]any{
		"business_name":    "Kopi Nusantara",
		"email":            "owner@kopi.example",
		"contact_whatsapp": "+628999888777",
		"total_users":      5,
	}, nil)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeJSON(t, w)
	assert.Equal(t, "trial", body["status"])
	assert.EqualValues(t, 8, body["billing_date"])
	assert.NotEmpty(t, body["trial_ends_at"])

	// Same email again is a conflict, not a duplicate row.
	w = h.do(t, http.MethodPost, "/v1/clients", map[string]any{
		"business_name": "Kopi Nusantara Dua",
		"email":         "owner@kopi.example",
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegisterClientValidation(t *testing.T) {
	h := newAPIHarness(t, time.Date(2026, 6, 8, 10, 0, 0, 0, time.UTC))

	w := h.do(t, http.MethodPost, "/v1/clients", map[string]any{
		"business_name": "No Email",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPost, "/v1/clients", map[string]any{
		"business_name": "Bad Email",
		"email":         "not-an-email",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSuspensionGateBlocksAppButNotBilling(t *testing.T) {
	now := time.Date(2026, 6, 8, 10, 0, 0, 0, time.UTC)
	h := newAPIHarness(t, now)
	c := h.registerClient(t, 5)
	inv := h.pendingInvoice(t, c, now.AddDate(0, 0, 3))
	h.suspend(t, c, clientdomain.SuspensionPaymentOverdue)

	w := h.do(t, http.MethodGet, fmt.Sprintf("/v1/clients/%d/profile", c.ID), nil, nil)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	body := decodeJSON(t, w)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "account_suspended", errObj["type"])
	assert.Equal(t, "payment_overdue", errObj["reason"])
	snapshot := body["invoice"].(map[string]any)
	assert.Equal(t, inv.InvoiceNumber, snapshot["invoice_number"])

	// The way out of suspension is paying, so billing stays reachable.
	w = h.do(t, http.MethodGet, fmt.Sprintf("/v1/clients/%d/invoices", c.ID), nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodPost,
		fmt.Sprintf("/v1/clients/%d/invoices/%d/payment", c.ID, inv.ID),
		map[string]any{"method": "BCA_VA"}, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestSuspensionGateCarriesOverdueInvoice(t *testing.T) {
	now := time.Date(2026, 6, 8, 10, 0, 0, 0, time.UTC)
	h := newAPIHarness(t, now)
	c := h.registerClient(t, 5)
	// The sweep already flipped the invoice to overdue before suspending.
	inv := h.pendingInvoice(t, c, now.AddDate(0, 0, -3))
	require.NoError(t, h.db.Exec(
		`UPDATE platform_invoices SET status = 'overdue' WHERE id = ?`, inv.ID).Error)
	h.suspend(t, c, clientdomain.SuspensionPaymentOverdue)

	w := h.do(t, http.MethodGet, fmt.Sprintf("/v1/clients/%d/profile", c.ID), nil, nil)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	body := decodeJSON(t, w)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "account_suspended", errObj["type"])
	assert.Equal(t, "payment_overdue", errObj["reason"])
	snapshot, ok := body["invoice"].(map[string]any)
	require.True(t, ok, "overdue invoices still surface in the denial")
	assert.Equal(t, inv.InvoiceNumber, snapshot["invoice_number"])
	assert.Equal(t, "overdue", snapshot["status"])
}

func TestSuspensionGatePassesActiveClients(t *testing.T) {
	now := time.Date(2026, 6, 8, 10, 0, 0, 0, time.UTC)
	h := newAPIHarness(t, now)
	c := h.registerClient(t, 5)

	w := h.do(t, http.MethodGet, fmt.Sprintf("/v1/clients/%d/profile", c.ID), nil, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestInitiatePaymentEndpoint(t *testing.T) {
	now := time.Date(2026, 6, 8, 10, 0, 0, 0, time.UTC)
	h := newAPIHarness(t, now)
	c := h.registerClient(t, 5)
	inv := h.pendingInvoice(t, c, now.AddDate(0, 0, 7))

	path := fmt.Sprintf("/v1/clients/%d/invoices/%d/payment", c.ID, inv.ID)
	w := h.do(t, http.MethodPost, path, map[string]any{"method": "BCA_VA"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeJSON(t, w)
	assert.Equal(t, "BCA_VA", body["payment_method"])
	assert.Equal(t, "8800123456", body["va_number"])
	assert.NotEmpty(t, body["payment_expires_at"])

	// Unknown channels never reach the gateway.
	w = h.do(t, http.MethodPost, path, map[string]any{"method": "GOPAY"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A competing channel while the VA is live conflicts.
	w = h.do(t, http.MethodPost, path, map[string]any{"method": "QRIS"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetInvoiceHidesOtherTenants(t *testing.T) {
	now := time.Date(2026, 6, 8, 10, 0, 0, 0, time.UTC)
	h := newAPIHarness(t, now)
	owner := h.registerClient(t, 5)
	intruder := h.registerClient(t, 2)
	inv := h.pendingInvoice(t, owner, now.AddDate(0, 0, 7))

	w := h.do(t, http.MethodGet,
		fmt.Sprintf("/v1/clients/%d/invoices/%d", intruder.ID, inv.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodGet,
		fmt.Sprintf("/v1/clients/%d/invoices/%d", owner.ID, inv.ID), nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPaymentCallbackEndpoint(t *testing.T) {
	now := time.Date(2026, 6, 8, 10, 0, 0, 0, time.UTC)
	h := newAPIHarness(t, now)
	c := h.registerClient(t, 5)
	inv := h.pendingInvoice(t, c, now.AddDate(0, 0, 7))

	w := h.do(t, http.MethodPost,
		fmt.Sprintf("/v1/clients/%d/invoices/%d/payment", c.ID, inv.ID),
		map[string]any{"method": "BCA_VA"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	payload, err := json.Marshal(map[string]any{
		"reference":    "TREF-API-1",
		"merchant_ref": "ref",
		"status":       "PAID",
		"total_amount": 15000,
		"paid_at":      now.Unix(),
	})
	require.NoError(t, err)

	w = h.do(t, http.MethodPost, "/v1/callbacks/payment", payload,
		map[string]string{"X-Callback-Signature": signAPIBody(payload)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decodeJSON(t, w)["success"])

	settled, err := h.invoices.FindByID(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, settled.Status)
}

func TestPaymentCallbackRejectsBadSignature(t *testing.T) {
	now := time.Date(2026, 6, 8, 10, 0, 0, 0, time.UTC)
	h := newAPIHarness(t, now)

	payload := []byte(`{"reference":"TREF-API-1","status":"PAID","total_amount":15000}`)
	w := h.do(t, http.MethodPost, "/v1/callbacks/payment", payload,
		map[string]string{"X-Callback-Signature": "deadbeef"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHealthz(t *testing.T) {
	h := newAPIHarness(t, time.Date(2026, 6, 8, 10, 0, 0, 0, time.UTC))
	w := h.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
