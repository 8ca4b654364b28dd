package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SuspensionGate blocks requests from suspended clients. The response names
// the reason and carries the outstanding invoice so the caller can route the
// client straight to payment. Trials that lapsed since the last sweep are
// suspended here on the spot.
func (s *Server) SuspensionGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID, ok := parseID(c, "client_id")
		if !ok {
			return
		}

		decision, err := s.billing.EvaluateAccess(c.Request.Context(), clientID, s.clock.Now())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if decision.Allowed {
			c.Next()
			return
		}

		body := gin.H{
			"error": gin.H{
				"type":    "account_suspended",
				"message": "account is suspended",
				"reason":  string(decision.Reason),
			},
		}
		if decision.Invoice != nil {
			body["invoice"] = toInvoiceResponse(decision.Invoice)
		}
		c.AbortWithStatusJSON(http.StatusForbidden, body)
	}
}
