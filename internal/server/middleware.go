package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/licensor/internal/observability/context"
)

const (
	HeaderAccountID     = "X-Account-ID"
	HeaderLicenseKey    = "X-License-Key"
	HeaderSiteID        = "X-Site-ID"
	contextAccountIDKey = "account_id"
)

// AccountRequired trusts the account id injected by the credential gateway
// in front of the dashboard.
func (s *Server) AccountRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderAccountID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		id, err := snowflake.ParseString(raw)
		if err != nil || id <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextAccountIDKey, id)
		c.Request = c.Request.WithContext(obscontext.WithAccountID(c.Request.Context(), id.String()))
		c.Next()
	}
}

func accountIDFrom(c *gin.Context) snowflake.ID {
	v, ok := c.Get(contextAccountIDKey)
	if !ok {
		return 0
	}
	id, _ := v.(snowflake.ID)
	return id
}
