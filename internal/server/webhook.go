package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandlePaymentCallback ingests a gateway status notification. The raw body
// is verified against the X-Callback-Signature header before anything else
// reads it.
func (s *Server) HandlePaymentCallback(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	signature := c.GetHeader("X-Callback-Signature")
	if err := s.billing.ReconcileCallback(c.Request.Context(), payload, signature); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
