package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestValidSignature(t *testing.T) {
	body := []byte(`{"topic":"conversation.user.created"}`)

	assert.True(t, ValidSignature("secret", sign("secret", body), body))
	assert.False(t, ValidSignature("secret", sign("wrong", body), body))
	assert.False(t, ValidSignature("secret", "sha256=abcdef", body))
	assert.False(t, ValidSignature("secret", "", body))
	assert.False(t, ValidSignature("secret", sign("secret", body), []byte("tampered")))
}

func newSignatureRouter(secret string) (*gin.Engine, *string) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	var received string
	engine.POST("/webhook", VerifySignature(secret), func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		received = string(body)
		c.String(http.StatusOK, "OK")
	})
	return engine, &received
}

func TestVerifySignatureAcceptsSignedBody(t *testing.T) {
	engine, received := newSignatureRouter("secret")
	body := []byte(`{"topic":"x"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature", sign("secret", body))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	// The body must be readable downstream after verification.
	assert.Equal(t, string(body), *received)
}

func TestVerifySignatureRejectsBadSignature(t *testing.T) {
	engine, _ := newSignatureRouter("secret")
	body := []byte(`{"topic":"x"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature", sign("other", body))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifySignatureRejectsMissingHeader(t *testing.T) {
	engine, _ := newSignatureRouter("secret")

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifySignatureDisabledWithoutSecret(t *testing.T) {
	engine, _ := newSignatureRouter("")

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
