package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"liyu1981.xyz/greenhouse-relay/pkg/common"
)

// RequireAPIKey rejects write requests whose x-api-key header differs from
// the configured key. The comparison is plain string equality, not
// constant-time; the shared secret is the only protection the devices use.
func (rs *RestfulServer) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(common.HeaderAPIKey) != rs.APIKey {
			rs.logger().Warn("Rejected request with bad api key",
				zap.String(common.LoggerFieldCategory, common.LoggerCategoryAuth),
				zap.String("route", c.FullPath()),
				zap.String("client_ip", c.ClientIP()))
			rs.Metrics.ObserveAuthFailure(transportName, c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad key"})
			return
		}
		c.Next()
	}
}
