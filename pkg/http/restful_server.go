package http

import (
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"liyu1981.xyz/greenhouse-relay/pkg/common"
	"liyu1981.xyz/greenhouse-relay/pkg/metrics"
	"liyu1981.xyz/greenhouse-relay/pkg/relay"
)

const transportName = "http"

type RestfulServer struct {
	Server           *gin.Engine
	Relay            *relay.Relay
	RateLimiterStore *relay.RateLimiterStore
	Metrics          *metrics.Metrics
	// APIKey guards the write routes, empty falls back to common.DefaultAPIKey.
	APIKey string
}

func (rs *RestfulServer) logger() *zap.Logger {
	return common.GetLoggerWith(common.LoggerNameRestfulServer)
}

func (rs *RestfulServer) CheckDeviceLimiter(device string) bool {
	return rs.RateLimiterStore.Allow(device)
}

func corsConfig() cors.Config {
	return cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", common.HeaderAPIKey},
		MaxAge:          12 * time.Hour,
	}
}

func (rs *RestfulServer) observeRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		rs.Metrics.ObserveRequest(transportName, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

func (rs *RestfulServer) Setup() {
	if rs.APIKey == "" {
		rs.APIKey = common.DefaultAPIKey
	}

	rs.Server.Use(cors.New(corsConfig()))
	rs.Server.Use(rs.observeRequests())
	rs.Server.SetHTMLTemplate(dashboardTemplate)

	rs.Server.GET("/", rs.Dashboard)
	rs.Server.GET("/healthz", rs.HealthCheck)
	rs.Server.GET("/metrics", gin.WrapH(rs.Metrics.Handler()))

	api := rs.Server.Group("/api")
	{
		api.POST("/ingest", rs.RequireAPIKey(), rs.PostIngest)
		api.GET("/history", rs.GetHistory)
		api.POST("/cmd", rs.RequireAPIKey(), rs.PostCommand)
		api.GET("/cmd", rs.GetCommand)
	}
}
