package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/skin-check/internal/failure"
)

func failBody(message string) gin.H {
	return gin.H{"status": "fail", "message": message}
}

// ErrorMapper turns errors recorded with c.Error into the uniform
// {status: "fail", message} body. It must be registered before every
// handler that can fail, including recovery.
func ErrorMapper(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		f := failure.From(err)
		fields := []zap.Field{
			zap.String("kind", f.Kind.String()),
			zap.Int("status", f.StatusCode()),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		}

		if c.Writer.Written() {
			logger.Warn("error raised after response was written", fields...)
			return
		}
		if f.StatusCode() >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
		} else {
			logger.Info("request rejected", fields...)
		}
		c.AbortWithStatusJSON(f.StatusCode(), failBody(f.PublicMessage()))
	}
}

// HandlePanics records a recovered panic as an unexpected error so that
// ErrorMapper answers with the generic body.
func HandlePanics(logger *zap.Logger) gin.RecoveryFunc {
	return func(c *gin.Context, recovered any) {
		logger.Error("panic recovered", zap.Any("panic", recovered), zap.Stack("stack"))
		_ = c.Error(failure.NewUnexpected(fmt.Errorf("panic: %v", recovered)))
		c.Abort()
	}
}

// CORS allows every origin and answers preflight requests.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestLogger writes one access log entry per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("bytes", c.Writer.Size()))
	}
}
