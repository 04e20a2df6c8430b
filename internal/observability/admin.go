package observability

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// StatusReporter is what the admin surface exposes about the running process.
type StatusReporter interface {
	// Ready reports whether the session is connected and the provider usable.
	Ready() bool
	// Status returns a JSON-serializable view.
	Status() any
}

// AdminConfig describes the admin HTTP surface.
type AdminConfig struct {
	Component   string
	Version     string
	CORSOrigins []string
}

// NewAdminRouter serves /health, /ready, /status and /metrics.
func NewAdminRouter(cfg AdminConfig, logger zerolog.Logger, m *Metrics, gatherer prometheus.Gatherer, status StatusReporter) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Instrument(logger.With().Str("component", "admin").Logger(), m))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	started := time.Now()
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(started).String(),
			"component": cfg.Component,
			"version":   cfg.Version,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		ready := status != nil && status.Ready()
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":     ready,
			"component": cfg.Component,
		})
	})

	r.GET("/status", func(c *gin.Context) {
		if status == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no status reporter"})
			return
		}
		c.JSON(http.StatusOK, status.Status())
	})

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}
