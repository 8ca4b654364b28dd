package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	clientdomain "github.com/tagihin/tagihin/internal/client/domain"
)

type registerClientRequest struct {
	BusinessName    string `json:"business_name" binding:"required"`
	BusinessType    string `json:"business_type"`
	Email           string `json:"email" binding:"required,email"`
	ContactWhatsapp string `json:"contact_whatsapp"`
	TotalUsers      int    `json:"total_users" binding:"min=0"`
}

type clientResponse struct {
	ID           string  `json:"id"`
	BusinessName string  `json:"business_name"`
	BusinessType string  `json:"business_type,omitempty"`
	Email        string  `json:"email"`
	Status       string  `json:"status"`
	TrialEndsAt  *string `json:"trial_ends_at,omitempty"`
	BillingDate  int     `json:"billing_date"`
	TotalUsers   int     `json:"total_users"`
	MonthlyBill  string  `json:"monthly_bill"`
}

func toClientResponse(c *clientdomain.Client) clientResponse {
	resp := clientResponse{
		ID:           strconv.FormatInt(int64(c.ID), 10),
		BusinessName: c.BusinessName,
		BusinessType: c.BusinessType,
		Email:        c.Email,
		Status:       string(c.Status),
		BillingDate:  c.BillingDate,
		TotalUsers:   c.TotalUsers,
		MonthlyBill:  c.MonthlyBill.StringFixed(2),
	}
	if c.TrialEndsAt != nil {
		ends := c.TrialEndsAt.Format(time.RFC3339)
		resp.TrialEndsAt = &ends
	}
	return resp
}

func (s *Server) HandleRegisterClient(c *gin.Context) {
	var req registerClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	registered, err := s.clients.Register(c.Request.Context(), clientdomain.RegisterInput{
		BusinessName:    req.BusinessName,
		BusinessType:    req.BusinessType,
		Email:           req.Email,
		ContactWhatsapp: req.ContactWhatsapp,
		TotalUsers:      req.TotalUsers,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toClientResponse(registered))
}

func (s *Server) HandleGetProfile(c *gin.Context) {
	clientID, ok := parseID(c, "client_id")
	if !ok {
		return
	}

	found, err := s.clients.FindByID(c.Request.Context(), clientID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toClientResponse(found))
}
