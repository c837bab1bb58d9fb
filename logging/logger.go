// Package logging builds the zerolog logger shared by every module.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// L is the process-wide logger. Setup replaces it; until then it writes JSON to stdout.
var L = zerolog.New(os.Stdout).With().Timestamp().Logger()

// New builds a logger writing to w. format is "console" or "json".
func New(w io.Writer, format, level string) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Setup installs a new process-wide logger.
func Setup(format, level string) {
	L = New(os.Stdout, format, level)
}

// Middleware logs one line per request.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		ev := L.Info()
		if status >= 500 {
			ev = L.Error()
		} else if status >= 400 {
			ev = L.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP())
		if len(c.Errors) > 0 {
			ev.Str("errors", c.Errors.String())
		}
		ev.Msg("request")
	}
}
