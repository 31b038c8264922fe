package v1

import (
	"net/http"
	"time"

	"github.com/IvanBrykalov/tilewindow/internal/transport/http/v1/handler"
	"github.com/IvanBrykalov/tilewindow/pkg/logger"
	"github.com/IvanBrykalov/tilewindow/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the API. ws serves viewer sessions; gatherer backs
// /metrics (nil => the default registry).
func NewRouter(h *handler.Handler, ws http.Handler, gatherer prometheus.Gatherer, l logger.Logger, telemetryEnabled bool) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())

	if telemetryEnabled {
		r.Use(telemetry.GinMiddleware("/metrics", "/api/v1/healthz"))
	}

	r.Use(ginZapLogger(l))

	api := r.Group("/api")
	v1 := api.Group("/v1")

	v1.GET("/healthz", h.Healthz)
	v1.GET("/ws", gin.WrapH(ws))
	v1.GET("/tiles/:x/:z", h.Tile)

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

func ginZapLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("logger", l)

		start := time.Now()

		c.Next()

		l.Info("request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", time.Since(start),
			"size", c.Writer.Size(),
		)
	}
}
