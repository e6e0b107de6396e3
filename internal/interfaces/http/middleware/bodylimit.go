package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/invoicehub/backend/internal/interfaces/http/dto"
)

// multipartOverhead covers boundaries and part headers around an uploaded file
const multipartOverhead = 64 << 10

// BodyLimit returns a middleware that limits request body size
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return BodyLimitWithUploads(maxBytes, 0)
}

// BodyLimitWithUploads limits JSON bodies to maxBytes and multipart uploads
// to maxUpload plus form overhead. A zero maxUpload applies maxBytes to both.
func BodyLimitWithUploads(maxBytes, maxUpload int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		maxBytes := maxBytes
		if maxUpload > 0 && strings.HasPrefix(c.ContentType(), "multipart/form-data") {
			maxBytes = maxUpload + multipartOverhead
		}
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRequestTooLarge,
				"Request body exceeds maximum allowed size",
				GetRequestID(c),
			))
			return
		}

		// Wrap the body with a limited reader for streaming requests
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
