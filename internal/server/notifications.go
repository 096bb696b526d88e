package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const defaultNotificationLimit = 20

func (s *Server) RecentPurchases(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"), defaultNotificationLimit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a number"))
		return
	}

	items, err := s.subscriptionSvc.RecentNotifications(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// LatestPurchase feeds the floating trust badge with the newest purchase.
func (s *Server) LatestPurchase(c *gin.Context) {
	items, err := s.subscriptionSvc.RecentNotifications(c.Request.Context(), 1)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if len(items) == 0 {
		c.JSON(http.StatusOK, gin.H{"notification": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notification": items[0]})
}
