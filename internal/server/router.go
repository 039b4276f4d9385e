package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter builds the HTTP API.
func NewRouter(api *API) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.MaxMultipartMemory = 32 << 20

	router.GET("/healthz", api.HealthHandler)

	v1 := router.Group("/api/v1")
	sessions := v1.Group("/sessions")
	{
		sessions.POST("", api.UploadHandler)
		sessions.POST("/:id/query", api.QueryHandler)
		sessions.DELETE("/:id", api.EndHandler)
	}
	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request")
	}
}
