// Package middleware provides HTTP middleware for the webhook surface.
package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/support-bridge/internal/supportbridge/metrics"
)

// signatureHeader carries the webhook body signature.
const signatureHeader = "X-Hub-Signature"

const signaturePrefix = "sha1="

// VerifySignature authenticates webhook deliveries by checking the
// HMAC-SHA1 body signature against the shared client secret. The body is
// restored for downstream handlers. With an empty secret, verification is
// disabled.
func VerifySignature(secret string) gin.HandlerFunc {
	if secret == "" {
		logger.Warn("webhook signature verification disabled, no client secret configured")
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if !ValidSignature(secret, c.GetHeader(signatureHeader), body) {
			metrics.Get().RecordWebhook(false)
			logger.Warnw("rejecting webhook with bad signature",
				"remote_addr", c.ClientIP(),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}

// ValidSignature reports whether the header matches the HMAC-SHA1 digest of
// the body under the secret. Comparison is constant time.
func ValidSignature(secret, header string, body []byte) bool {
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	expected := signaturePrefix + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(header), []byte(expected))
}
