package server

import (
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/tagihin/tagihin/internal/invoice/domain"
)

type invoiceResponse struct {
	ID            string `json:"id"`
	InvoiceNumber string `json:"invoice_number"`
	PeriodMonth   int    `json:"period_month"`
	PeriodYear    int    `json:"period_year"`
	TotalUsers    int    `json:"total_users"`
	PricePerUser  string `json:"price_per_user"`
	TotalAmount   string `json:"total_amount"`
	DueDate       string `json:"due_date"`
	Status        string `json:"status"`

	PaymentMethod *string `json:"payment_method,omitempty"`
	CheckoutURL   *string `json:"checkout_url,omitempty"`
	VANumber      *string `json:"va_number,omitempty"`
	QRURL         *string `json:"qr_url,omitempty"`
	ExpiresAt     *string `json:"payment_expires_at,omitempty"`
	PaidAt        *string `json:"paid_at,omitempty"`
}

func toInvoiceResponse(inv *invoicedomain.PlatformInvoice) invoiceResponse {
	resp := invoiceResponse{
		ID:            strconv.FormatInt(int64(inv.ID), 10),
		InvoiceNumber: inv.InvoiceNumber,
		PeriodMonth:   inv.PeriodMonth,
		PeriodYear:    inv.PeriodYear,
		TotalUsers:    inv.TotalUsers,
		PricePerUser:  inv.PricePerUser.StringFixed(2),
		TotalAmount:   inv.TotalAmount.StringFixed(2),
		DueDate:       inv.DueDate.Format(time.RFC3339),
		Status:        string(inv.Status),
		CheckoutURL:   inv.CheckoutURL,
		VANumber:      inv.VANumber,
		QRURL:         inv.QRURL,
	}
	if inv.PaymentMethodSelected != nil {
		method := string(*inv.PaymentMethodSelected)
		resp.PaymentMethod = &method
	}
	if inv.InstrumentExpiresAt != nil {
		expires := inv.InstrumentExpiresAt.Format(time.RFC3339)
		resp.ExpiresAt = &expires
	}
	if inv.PaidAt != nil {
		paid := inv.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &paid
	}
	return resp
}

func parseID(c *gin.Context, param string) (snowflake.ID, bool) {
	raw, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return snowflake.ID(raw), true
}

func (s *Server) HandleListInvoices(c *gin.Context) {
	clientID, ok := parseID(c, "client_id")
	if !ok {
		return
	}

	invoices, err := s.invoices.ListByClient(c.Request.Context(), clientID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]invoiceResponse, 0, len(invoices))
	for i := range invoices {
		out = append(out, toInvoiceResponse(&invoices[i]))
	}
	c.JSON(200, gin.H{"invoices": out})
}

func (s *Server) HandleGetInvoice(c *gin.Context) {
	clientID, ok := parseID(c, "client_id")
	if !ok {
		return
	}
	invoiceID, ok := parseID(c, "invoice_id")
	if !ok {
		return
	}

	inv, err := s.invoices.FindByID(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if inv.ClientID != clientID {
		AbortWithError(c, invoicedomain.ErrInvoiceNotFound)
		return
	}
	c.JSON(200, toInvoiceResponse(inv))
}

type initiatePaymentRequest struct {
	Method string `json:"method" binding:"required,oneof=BCA_VA QRIS"`
}

func (s *Server) HandleInitiatePayment(c *gin.Context) {
	clientID, ok := parseID(c, "client_id")
	if !ok {
		return
	}
	invoiceID, ok := parseID(c, "invoice_id")
	if !ok {
		return
	}

	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	inv, err := s.billing.InitiatePayment(c.Request.Context(), clientID, invoiceID, invoicedomain.PaymentMethod(req.Method))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(200, toInvoiceResponse(inv))
}

func (s *Server) HandleCancelPayment(c *gin.Context) {
	clientID, ok := parseID(c, "client_id")
	if !ok {
		return
	}
	invoiceID, ok := parseID(c, "invoice_id")
	if !ok {
		return
	}

	inv, err := s.billing.CancelPayment(c.Request.Context(), clientID, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(200, toInvoiceResponse(inv))
}

func (s *Server) HandleRegeneratePayment(c *gin.Context) {
	clientID, ok := parseID(c, "client_id")
	if !ok {
		return
	}
	invoiceID, ok := parseID(c, "invoice_id")
	if !ok {
		return
	}

	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	inv, err := s.billing.RegeneratePayment(c.Request.Context(), clientID, invoiceID, invoicedomain.PaymentMethod(req.Method))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(200, toInvoiceResponse(inv))
}
