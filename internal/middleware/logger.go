package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// LoggerMiddleware writes one access log line per request. Health and
// metrics scrapes are logged at debug.
func LoggerMiddleware(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		fields := []zap.Field{
			zap.String("request_id", GetRequestID(c)),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}

		switch {
		case c.Path() == "/health" || c.Path() == "/metrics":
			log.Debug("request", fields...)
		case status >= fiber.StatusInternalServerError:
			log.Warn("request", append(fields, zap.Error(err))...)
		default:
			log.Info("request", fields...)
		}

		return err
	}
}
