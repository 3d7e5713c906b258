package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// NewEngine builds a gin engine with recovery, request IDs and request
// logging.
func NewEngine(logger Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(logger))
	return r
}

// SetupRoutes registers the handler's endpoints.
func SetupRoutes(r *gin.Engine, handler *Handler) {
	r.GET("/healthz", handler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/route", handler.Route)
		v1.GET("/pools/:address", handler.GetPool)
		v1.GET("/tokens/:token/pools", handler.GetTokenPools)
	}
}

// SetupFeed registers the block feed websocket.
func SetupFeed(r *gin.Engine, feed *BlockFeed) {
	r.GET("/api/v1/blocks", feed.Serve)
}

// requestID echoes a caller-supplied UUID in X-Request-ID or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
