package httpserver

import (
	"math"
	"strconv"
	"time"

	apperrors "github.com/SYSCYCLE/apk-builder/internal/platform/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// newRateLimiter limits builds per client IP. Each build runs two JVM tools,
// so the budget is far lower than for ordinary endpoints.
func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	retryAfter := retryAfterSeconds(ratePerSecond)

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			c.Response().Header().Set(echo.HeaderRetryAfter, strconv.Itoa(retryAfter))
			return apperrors.RateLimitedError("too many build requests").
				WithField("client", identifier).
				WithField("retry_after_seconds", retryAfter)
		},
	})
}

// retryAfterSeconds is the time until one build token refills, at least 1s.
func retryAfterSeconds(ratePerSecond float64) int {
	if ratePerSecond <= 0 {
		return 1
	}
	return max(1, int(math.Ceil(1/ratePerSecond)))
}

// bodyLimit caps the multipart upload. An empty limit disables the cap.
func bodyLimit(limit string) echo.MiddlewareFunc {
	if limit == "" {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return middleware.BodyLimit(limit)
}
