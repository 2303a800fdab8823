// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"smarthomes-semantic/pkg/log"
	"smarthomes-semantic/pkg/metrics"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// maxLoggedBody 是日志中保留的请求体/响应体长度上限。
const maxLoggedBody = 2048

// cappedWriter 在写出响应的同时保留前 maxLoggedBody 字节。
type cappedWriter struct {
	gin.ResponseWriter
	captured *bytes.Buffer
}

func (w cappedWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - w.captured.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		w.captured.Write(b[:room])
	}
	return w.ResponseWriter.Write(b)
}

// RequestLogger 记录每个请求的结构化日志并更新 HTTP 指标。
// quietPaths 中的路径（如 /metrics、/healthz）只计指标，不打日志。
func RequestLogger(quietPaths ...string) gin.HandlerFunc {
	quiet := make(map[string]struct{}, len(quietPaths))
	for _, p := range quietPaths {
		quiet[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		_, isQuiet := quiet[c.Request.URL.Path]

		var requestBody []byte
		var captured *bytes.Buffer
		if !isQuiet {
			if c.Request.Body != nil {
				requestBody, _ = io.ReadAll(c.Request.Body)
				// 读完后放回，后续 handler 才能绑定请求体
				c.Request.Body = io.NopCloser(bytes.NewReader(requestBody))
			}
			captured = &bytes.Buffer{}
			c.Writer = cappedWriter{ResponseWriter: c.Writer, captured: captured}
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPLatency.WithLabelValues(route).Observe(latency.Seconds())

		if isQuiet {
			return
		}
		log.Infow("[HTTP] request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", latency.String(),
			"clientIP", c.ClientIP(),
			"requestBody", truncate(requestBody),
			"responseBody", captured.String(),
		)
	}
}

func truncate(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "..."
	}
	return string(b)
}
