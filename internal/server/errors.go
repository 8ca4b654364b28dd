package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	clientdomain "github.com/tagihin/tagihin/internal/client/domain"
	gatewaydomain "github.com/tagihin/tagihin/internal/gateway/domain"
	invoicedomain "github.com/tagihin/tagihin/internal/invoice/domain"
	"gorm.io/gorm"
)

var ErrInvalidRequest = errors.New("invalid_request")

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: "invalid request"}
	case errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, clientdomain.ErrClientNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}
	case errors.Is(err, invoicedomain.ErrDuplicatePeriod),
		errors.Is(err, invoicedomain.ErrInvoiceNotPending),
		errors.Is(err, invoicedomain.ErrConflictingPaymentMethod),
		errors.Is(err, invoicedomain.ErrNoPaymentInstrument),
		errors.Is(err, clientdomain.ErrEmailTaken):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}
	case errors.Is(err, gatewaydomain.ErrInvalidSignature):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: err.Error()}
	case errors.Is(err, gatewaydomain.ErrUnsupportedChannel):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: err.Error()}
	default:
		var gwErr *gatewaydomain.Error
		if errors.As(err, &gwErr) {
			return http.StatusBadGateway, errorPayload{Type: "gateway_error", Message: gwErr.Message}
		}
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}
