// Package uploads serves stored image files from an object backend.
package uploads

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Opener is implemented by object backends that can stream a stored file.
type Opener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, int64, string, error)
}

// Serve streams the object named by the "key" wildcard. Variants never change for a
// given hash, so responses are cacheable for a long time.
func Serve(objects Opener, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(path.Clean("/"+c.Param("key")), "/")
		if key == "" || strings.Contains(key, "..") {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}

		body, size, contentType, err := objects.Open(c.Request.Context(), key)
		if err != nil {
			log.WithError(err).WithField("key", key).Debug("upload not found")
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		defer body.Close()

		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.Header("Cache-Control", "public, max-age=31536000, immutable")
		c.DataFromReader(http.StatusOK, size, contentType, body, nil)
	}
}
