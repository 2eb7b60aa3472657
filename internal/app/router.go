package app

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/profilehub/internal/api/handler"
	"github.com/jmerrifield20/profilehub/internal/media"
)

// Router builds the HTTP handler for the service.
func (a *App) Router() *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	if corsOrigins := a.Config.Server.CORSOrigins; len(corsOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     corsOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: !containsWildcard(corsOrigins),
			MaxAge:           12 * time.Hour,
		}))
	}

	router.Use(securityHeaders())

	maxBody := a.Config.Server.MaxBodyBytes
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		c.Next()
	})

	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(a.logger))

	handler.NewHealthHandler(map[string]handler.Pinger{
		"database": a.Store,
		"media":    a.Media,
	}, a.logger).Register(router)
	router.GET("/metrics", handler.MetricsHandler())

	if local, ok := a.Media.(*media.LocalStore); ok && strings.HasPrefix(a.Config.Storage.BaseURL, "/") {
		router.Static(a.Config.Storage.BaseURL, local.Root())
	}

	users := handler.NewUserHandler(a.Users, a.Media.URL, a.logger)
	users.SetMaxImageBytes(a.Config.Media.MaxImageBytes)
	users.Register(router.Group("/api/v1"))

	return router
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
