package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/congo-pay/walletledger/internal/webapi"
)

// Audit emits structured logs for each request/response lifecycle event.
func Audit(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("duration", time.Since(start)),
		}
		if requestID := RequestIDFrom(c); requestID != "" {
			fields = append(fields, zap.String("request_id", requestID))
		}
		if p, perr := webapi.CurrentPrincipal(c); perr == nil {
			fields = append(fields, zap.String("user_id", p.UserID))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
			logger.Warn("request completed", fields...)
			return err
		}

		logger.Info("request completed", fields...)
		return nil
	}
}
