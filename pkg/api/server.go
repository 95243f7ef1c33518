// Package api is the HTTP surface over the Context API facade
// (pkg/ctxapi) and the generation queue (pkg/queue), so reader and
// writer agents running as separate OS processes have a transport to
// reach the engine: a gin.Engine, a thin Server holding the services
// it dispatches to, and one method per route.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/ctxengine/pkg/ctxapi"
	"github.com/codeready-toolchain/ctxengine/pkg/queue"
)

// Server holds every dependency a handler needs.
type Server struct {
	API        *ctxapi.Service
	Queue      *queue.Queue
	HeadLookup queue.HeadLookup
	// GenerateTimeout bounds ?wait=true requests to POST /v1/generate.
	GenerateTimeout time.Duration
	Log             *slog.Logger
}

func (s *Server) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

// NewRouter builds a gin.Engine with every route registered against s.
func (s *Server) NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.logger()))

	v1 := router.Group("/v1")
	{
		v1.GET("/health", s.Health)
		v1.GET("/nodes/:node_id", s.GetNode)
		v1.POST("/nodes/:node_id/frames", s.PutFrame)
		v1.POST("/nodes/:node_id/compose", s.Compose)
		v1.POST("/nodes/:node_id/tombstone", s.Tombstone)
		v1.POST("/nodes/:node_id/restore", s.Restore)
		v1.POST("/compact", s.Compact)
		v1.POST("/generate", s.Generate)
	}
	return router
}

// requestLogger replaces gin's built-in access log with a slog line
// so the HTTP surface matches the rest of the engine's structured
// logging.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// Health handles GET /v1/health.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Queue:  s.Queue.Stats(),
	})
}
