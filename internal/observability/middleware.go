package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const logFieldsKey = "vicictl.log_fields"

// Annotate adds a field to the request's access log line.
func Annotate(c *gin.Context, key string, value any) {
	var fields map[string]any
	if v, ok := c.Get(logFieldsKey); ok {
		fields, _ = v.(map[string]any)
	}
	if fields == nil {
		fields = make(map[string]any)
		c.Set(logFieldsKey, fields)
	}
	fields[key] = value
}

// RequestLogger writes one access log line per request. Scrapes of /metrics
// log at trace so a prometheus poller does not flood debug output.
func RequestLogger(node string, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := routePath(c)

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case path == "/metrics":
			event = logger.Trace()
		default:
			event = logger.Debug()
		}
		if v, ok := c.Get(logFieldsKey); ok {
			if fields, ok := v.(map[string]any); ok {
				event = event.Fields(fields)
			}
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Str("node", node).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	}
}

func RequestMetricsMiddleware(node string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(node, c.Request.Method, routePath(c), c.Writer.Status(), time.Since(start))
	}
}

// routePath is the matched route template, or the raw path for 404s.
func routePath(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return c.Request.URL.Path
}

// NewRouter returns a gin engine serving /health and /metrics for node.
// Callers add their own routes before serving it.
func NewRouter(node string, logger zerolog.Logger) *gin.Engine {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(node, logger), RequestMetricsMiddleware(node))

	started := time.Now()
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(started).String(),
			"service": node,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}
