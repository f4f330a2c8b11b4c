package echoapi

import (
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/services/metrics"
)

func requestLogger(logger core.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		HandleError: true,
		LogValuesFunc: func(ctx echo.Context, v middleware.RequestLoggerValues) error {
			extra := map[string]interface{}{
				"method":    v.Method,
				"uri":       v.URI,
				"status":    v.Status,
				"latency":   v.Latency.String(),
				"remote_ip": v.RemoteIP,
			}
			if actor := actorFrom(ctx); !actor.IsAnonymous() {
				extra["account_id"] = actor.ID
			}
			logger.Info(fmt.Sprintf("%s %s %d", v.Method, v.URI, v.Status), extra)
			return nil
		},
	})
}

// metricsMiddleware counts requests by route template, handling errors first so
// the final status is known.
func metricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if err != nil {
				ctx.Error(err)
			}

			path := ctx.Path()
			if path == "" {
				path = "unmatched"
			}
			method := ctx.Request().Method
			status := strconv.Itoa(ctx.Response().Status)
			m.HTTPRequests.WithLabelValues(method, path, status).Inc()
			m.HTTPDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
