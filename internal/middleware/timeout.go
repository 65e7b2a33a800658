package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskhive/backend/pkg/response"
)

// Timeout bounds each request's execution. The deadline propagates through
// every store call on the request's path; on expiry the request's partition
// binding dies with its context rather than leaking into a reused one.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			response.Timeout(c, "request timed out")
		}
	}
}
