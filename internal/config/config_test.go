package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/authkit/internal/config"
	"github.com/aelexs/authkit/internal/domain"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.Equal(t, domain.PhoneVerificationTimeout, cfg.Phone.VerificationTimeout)
	assert.Equal(t, domain.VerificationCodeValidity, cfg.Phone.CodeTTL)
	assert.Equal(t, domain.CodeSendLimitPerPhone, cfg.Phone.SendLimit)
	assert.Equal(t, domain.CodeSendWindow, cfg.Phone.SendWindow)

	assert.Equal(t, config.SMSProviderLog, cfg.SMS.Provider)
	assert.Equal(t, domain.SessionTokenLifetime, cfg.Identity.TokenTTL)
	assert.Equal(t, 8080, cfg.Host.HTTPPort)
	assert.Equal(t, "+15550100000", cfg.Demo.Phone)
	assert.False(t, cfg.Demo.Serve)

	assert.Empty(t, cfg.Redis.Addr, "local runs default to the embedded server")
	assert.Equal(t, domain.RedisTimeout, cfg.Redis.Timeout)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AUTHKIT_LOG__LEVEL", "debug")
	t.Setenv("AUTHKIT_PHONE__CODE_TTL", "90s")
	t.Setenv("AUTHKIT_PHONE__SEND_LIMIT", "10")
	t.Setenv("AUTHKIT_FEDERATED__CLIENT_ID", "client-123")
	t.Setenv("AUTHKIT_REDIS__ADDR", "redis:6379")
	t.Setenv("AUTHKIT_SMS__PROVIDER", "outbox")
	t.Setenv("AUTHKIT_HOST__HTTP_PORT", "9000")
	t.Setenv("AUTHKIT_DEMO__SERVE", "true")

	cfg, err := config.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 90*time.Second, cfg.Phone.CodeTTL)
	assert.Equal(t, 10, cfg.Phone.SendLimit)
	assert.Equal(t, "client-123", cfg.Federated.ClientID)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, config.SMSProviderOutbox, cfg.SMS.Provider)
	assert.Equal(t, 9000, cfg.Host.HTTPPort)
	assert.True(t, cfg.Demo.Serve)
	assert.Equal(t, domain.CodeSendWindow, cfg.Phone.SendWindow, "unset keys keep defaults")
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{
			name:    "unknown sms provider",
			env:     map[string]string{"AUTHKIT_SMS__PROVIDER": "carrier-pigeon"},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "non-positive send limit",
			env:     map[string]string{"AUTHKIT_PHONE__SEND_LIMIT": "0"},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "malformed test numbers",
			env:     map[string]string{"AUTHKIT_PHONE__TEST_NUMBERS": "+15550000000"},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "invalid test number",
			env:     map[string]string{"AUTHKIT_PHONE__TEST_NUMBERS": "555=123456"},
			wantErr: domain.ErrInvalidPhoneNumber,
		},
		{
			name:    "dev without pepper",
			env:     map[string]string{"AUTHKIT_ENVIRONMENT": "dev"},
			wantErr: domain.ErrConfigRequired,
		},
		{
			name: "prod without redis",
			env: map[string]string{
				"AUTHKIT_ENVIRONMENT":     "prod",
				"AUTHKIT_IDENTITY__PEPPER": "p",
				"AUTHKIT_SMS__PROVIDER":   "sns",
			},
			wantErr: domain.ErrConfigRequired,
		},
		{
			name: "prod with log delivery",
			env: map[string]string{
				"AUTHKIT_ENVIRONMENT":     "prod",
				"AUTHKIT_IDENTITY__PEPPER": "p",
				"AUTHKIT_REDIS__ADDR":     "redis:6379",
			},
			wantErr: domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load(context.Background())

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestProdConfig(t *testing.T) {
	t.Setenv("AUTHKIT_ENVIRONMENT", "prod")
	t.Setenv("AUTHKIT_IDENTITY__PEPPER", "prod-pepper")
	t.Setenv("AUTHKIT_REDIS__ADDR", "redis:6379")
	t.Setenv("AUTHKIT_SMS__PROVIDER", "sns")

	cfg, err := config.Load(context.Background())

	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
}

func TestTestPhoneNumbers(t *testing.T) {
	numbers, err := config.PhoneConfig{TestNumbers: " +15550000000=123456, +15550000001=654321 "}.TestPhoneNumbers()

	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"+15550000000": "123456",
		"+15550000001": "654321",
	}, numbers)

	empty, err := config.PhoneConfig{}.TestPhoneNumbers()
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestIsLocal(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"local returns true", "local", true},
		{"prod returns false", "prod", false},
		{"dev returns false", "dev", false},
		{"empty returns false", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Environment: tt.env}

			assert.Equal(t, tt.want, cfg.IsLocal())
		})
	}
}

func TestIsProd(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"prod returns true", "prod", true},
		{"local returns false", "local", false},
		{"dev returns false", "dev", false},
		{"empty returns false", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Environment: tt.env}

			assert.Equal(t, tt.want, cfg.IsProd())
		})
	}
}
