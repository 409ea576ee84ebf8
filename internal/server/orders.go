package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/playtestlabs/playtest/internal/order/domain"
)

// GetOrder
// GET /api/orders/:session_id
func (s *Server) GetOrder(c *gin.Context) {
	sessionID := c.Param("session_id")

	order, err := s.orders.FindBySessionID(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, orderdomain.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load order"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}
