package middleware

import (
	"github.com/labstack/echo/v4"

	"zarigaas/internal/infrastructure/ratelimit"
	"zarigaas/pkg/errors"
	"zarigaas/pkg/logger"
	"zarigaas/pkg/response"
)

// RateLimit throttles requests per signed-in user, or per client IP for
// anonymous callers.
func RateLimit(limiter *ratelimit.RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key, _ := c.Get(KeyUID).(string)
			if key == "" {
				key = "ip:" + c.RealIP()
			}
			if ok, wait := limiter.Allow(key, ratelimit.ActionAPI); !ok {
				logger.Warn("Rate limit exceeded for %s on %s", key, c.Path())
				return response.Error(c, errors.TooManyRequests("Too many requests, please slow down", wait))
			}
			return next(c)
		}
	}
}
