package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const outcomeKey = "outcome"

// accessLog logs one line per handled request
func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		outcome, _ := c.Get(outcomeKey)
		logger.Debug("request handled",
			"method", c.Request.Method,
			"uri", c.Request.RequestURI,
			"status", c.Writer.Status(),
			"outcome", outcome,
			"latency_ms", time.Since(start).Milliseconds())
	}
}

// recovery logs a panicking handler and answers 500.
// http.ErrAbortHandler is passed through so net/http can drop the connection.
func recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r == http.ErrAbortHandler {
				panic(r)
			}

			logger.Error("request handler panicked",
				"method", c.Request.Method,
				"uri", c.Request.RequestURI,
				"panic", r)
			if !c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}
