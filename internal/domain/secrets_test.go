package domain_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/aelexs/authkit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretString(t *testing.T) {
	secret := domain.SecretString("resend-token-9f2c")

	t.Run("String returns REDACTED", func(t *testing.T) {
		assert.Equal(t, "[REDACTED]", secret.String())
	})

	t.Run("Expose returns actual value", func(t *testing.T) {
		assert.Equal(t, "resend-token-9f2c", secret.Expose())
	})

	t.Run("IsEmpty returns false for non-empty", func(t *testing.T) {
		assert.False(t, secret.IsEmpty())
	})

	t.Run("IsEmpty returns true for empty", func(t *testing.T) {
		empty := domain.SecretString("")
		assert.True(t, empty.IsEmpty())
	})

	t.Run("LogValue returns REDACTED slog value", func(t *testing.T) {
		logValue := secret.LogValue()
		assert.Equal(t, slog.KindString, logValue.Kind())
		assert.Equal(t, "[REDACTED]", logValue.String())
	})

	t.Run("slog output contains REDACTED", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))

		logger.Info("test", "token", secret)

		output := buf.String()
		assert.Contains(t, output, "[REDACTED]")
		assert.NotContains(t, output, "resend-token-9f2c")
	})
}

func TestSecretBytes(t *testing.T) {
	secret := domain.SecretBytes([]byte("code-pepper-32-bytes-long-ok!!!"))

	t.Run("String returns REDACTED", func(t *testing.T) {
		assert.Equal(t, "[REDACTED]", secret.String())
	})

	t.Run("Expose returns actual value", func(t *testing.T) {
		assert.Equal(t, []byte("code-pepper-32-bytes-long-ok!!!"), secret.Expose())
	})

	t.Run("IsEmpty returns false for non-empty", func(t *testing.T) {
		assert.False(t, secret.IsEmpty())
	})

	t.Run("IsEmpty returns true for empty", func(t *testing.T) {
		empty := domain.SecretBytes{}
		assert.True(t, empty.IsEmpty())
	})

	t.Run("LogValue returns REDACTED slog value", func(t *testing.T) {
		logValue := secret.LogValue()
		assert.Equal(t, slog.KindString, logValue.Kind())
		assert.Equal(t, "[REDACTED]", logValue.String())
	})
}

func TestSecretStringFormatting(t *testing.T) {
	secret := domain.SecretString("resend-token-9f2c")

	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", secret))
	assert.Equal(t, "token=[REDACTED]", fmt.Sprintf("token=%v", secret))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", secret))

	session := struct {
		Phone       string
		ResendToken domain.SecretString
	}{Phone: "+15551234567", ResendToken: secret}
	assert.NotContains(t, fmt.Sprintf("%+v", session), "resend-token-9f2c")
	assert.NotContains(t, fmt.Sprintf("%#v", session), "resend-token-9f2c")
}

func TestSecretJSON(t *testing.T) {
	out, err := json.Marshal(struct {
		Token  domain.SecretString `json:"token"`
		Pepper domain.SecretBytes  `json:"pepper"`
	}{Token: "resend-token-9f2c", Pepper: domain.SecretBytes("pepper")})

	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"[REDACTED]","pepper":"[REDACTED]"}`, string(out))
}
