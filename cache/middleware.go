package cache

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
)

// bufferedWriter holds the response until the handler finishes so the ETag
// header can be set before anything reaches the client.
type bufferedWriter struct {
	gin.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 {
		w.status = code
	}
}

func (w *bufferedWriter) WriteHeaderNow() {}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

func (w *bufferedWriter) Status() int {
	return w.status
}

func (w *bufferedWriter) Size() int {
	return w.body.Len()
}

func (w *bufferedWriter) Written() bool {
	return w.body.Len() > 0
}

// ETagMiddleware tags successful GET responses with a content hash and answers
// 304 Not Modified when the client already has that version.
func ETagMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Next()
			return
		}

		original := c.Writer
		writer := &bufferedWriter{ResponseWriter: original, status: http.StatusOK}
		c.Writer = writer
		c.Next()
		c.Writer = original

		if writer.status == http.StatusOK {
			etag := ETag(writer.body.Bytes())
			original.Header().Set("ETag", etag)
			if Matches(c.GetHeader("If-None-Match"), etag) {
				original.WriteHeader(http.StatusNotModified)
				original.WriteHeaderNow()
				return
			}
		}

		original.WriteHeader(writer.status)
		_, _ = original.Write(writer.body.Bytes())
	}
}
