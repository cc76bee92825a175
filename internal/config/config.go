// Package config loads configuration with koanf.
// Precedence: environment variables, then compiled defaults.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/aelexs/authkit/internal/domain"
)

// EnvPrefix prefixes every recognized environment variable. A double
// underscore separates nesting levels: AUTHKIT_PHONE__CODE_TTL sets
// phone.code_ttl.
const EnvPrefix = "AUTHKIT_"

// SMS delivery backends.
const (
	SMSProviderLog    = "log"
	SMSProviderSNS    = "sns"
	SMSProviderOutbox = "outbox"
)

// localPepper keys code MACs in local runs. Any other environment must set
// its own.
const localPepper = "local-dev-pepper"

// Config holds all configuration.
type Config struct {
	// Environment identifier: "local", "dev", "prod"
	Environment string `koanf:"environment"`

	Log       LogConfig       `koanf:"log"`
	Phone     PhoneConfig     `koanf:"phone"`
	Identity  IdentityConfig  `koanf:"identity"`
	Federated FederatedConfig `koanf:"federated"`
	SMS       SMSConfig       `koanf:"sms"`
	Host      HostConfig      `koanf:"host"`
	Demo      DemoConfig      `koanf:"demo"`

	// Infrastructure configurations
	Redis RedisConfig `koanf:"redis"`
	AWS   AWSConfig   `koanf:"aws"`
	OTEL  OTELConfig  `koanf:"otel"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "text"
}

// PhoneConfig holds phone verification settings.
type PhoneConfig struct {
	VerificationTimeout time.Duration `koanf:"verification_timeout"`
	CodeTTL             time.Duration `koanf:"code_ttl"`
	SendLimit           int           `koanf:"send_limit"`
	SendWindow          time.Duration `koanf:"send_window"`
	// TestNumbers lists fixed codes as "+15550000000=123456,+15550000001=654321".
	TestNumbers string `koanf:"test_numbers"`
}

// IdentityConfig holds development identity backend settings.
type IdentityConfig struct {
	Issuer   string        `koanf:"issuer"`
	Audience string        `koanf:"audience"`
	TokenTTL time.Duration `koanf:"token_ttl"`
	KeyID    string        `koanf:"key_id"`
	Pepper   string        `koanf:"pepper"` // Required outside local
}

// FederatedConfig holds federated sign-in settings.
type FederatedConfig struct {
	ClientID string `koanf:"client_id"`
}

// SMSConfig selects and configures code delivery.
type SMSConfig struct {
	Provider string `koanf:"provider"` // "log", "sns" or "outbox"
	SenderID string `koanf:"sender_id"`
}

// HostConfig holds demo host settings.
type HostConfig struct {
	HTTPPort int `koanf:"http_port"`
}

// DemoConfig drives the scripted sign-in of cmd/phoneauth-demo.
type DemoConfig struct {
	Phone    string `koanf:"phone"`
	Username string `koanf:"username"`
	// Serve keeps the host running after the sign-in completes.
	Serve bool `koanf:"serve"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string        `koanf:"addr"` // Empty starts an embedded server
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Timeout  time.Duration `koanf:"timeout"`
}

// AWSConfig holds AWS SDK configuration.
type AWSConfig struct {
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"` // LocalStack endpoint for development
}

// OTELConfig holds OpenTelemetry configuration.
type OTELConfig struct {
	Endpoint    string `koanf:"endpoint"` // Empty disables OTLP export
	ServiceName string `koanf:"service_name"`
}

// defaults returns a Config with compiled default values.
func defaults() *Config {
	return &Config{
		Environment: "local",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Phone: PhoneConfig{
			VerificationTimeout: domain.PhoneVerificationTimeout,
			CodeTTL:             domain.VerificationCodeValidity,
			SendLimit:           domain.CodeSendLimitPerPhone,
			SendWindow:          domain.CodeSendWindow,
		},
		Identity: IdentityConfig{
			Issuer:   "authkit-dev",
			Audience: "authkit",
			TokenTTL: domain.SessionTokenLifetime,
			KeyID:    "dev-key-1",
			Pepper:   localPepper,
		},
		SMS: SMSConfig{
			Provider: SMSProviderLog,
		},
		Host: HostConfig{
			HTTPPort: 8080,
		},
		Demo: DemoConfig{
			Phone: "+15550100000",
		},
		Redis: RedisConfig{
			Timeout: domain.RedisTimeout,
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		OTEL: OTELConfig{
			ServiceName: "phoneauth-demo",
		},
	}
}

// envKey maps AUTHKIT_PHONE__CODE_TTL to phone.code_ttl.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Load loads configuration from the environment over compiled defaults.
// A missing required key fails startup.
func Load(ctx context.Context) (*Config, error) {
	k := koanf.New(".")
	cfg := defaults()

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate rejects unusable values everywhere and enforces required keys
// outside local.
func validate(cfg *Config) error {
	switch cfg.SMS.Provider {
	case SMSProviderLog, SMSProviderSNS, SMSProviderOutbox:
	default:
		return fmt.Errorf("sms.provider %q: %w", cfg.SMS.Provider, domain.ErrInvalidInput)
	}
	if cfg.Phone.SendLimit <= 0 {
		return fmt.Errorf("phone.send_limit must be positive: %w", domain.ErrInvalidInput)
	}
	if cfg.Phone.VerificationTimeout <= 0 || cfg.Phone.CodeTTL <= 0 || cfg.Phone.SendWindow <= 0 {
		return fmt.Errorf("phone durations must be positive: %w", domain.ErrInvalidInput)
	}
	if _, err := cfg.Phone.TestPhoneNumbers(); err != nil {
		return err
	}

	if cfg.IsLocal() {
		return nil
	}

	if cfg.Identity.Pepper == "" || cfg.Identity.Pepper == localPepper {
		return fmt.Errorf("%w: identity.pepper", domain.ErrConfigRequired)
	}
	if cfg.IsProd() {
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr", domain.ErrConfigRequired)
		}
		if cfg.SMS.Provider != SMSProviderSNS {
			return fmt.Errorf("sms.provider must be %q in prod: %w", SMSProviderSNS, domain.ErrInvalidInput)
		}
	}

	return nil
}

// TestPhoneNumbers parses TestNumbers into a number to code map.
func (c PhoneConfig) TestPhoneNumbers() (map[string]string, error) {
	numbers := make(map[string]string)
	if strings.TrimSpace(c.TestNumbers) == "" {
		return numbers, nil
	}
	for _, pair := range strings.Split(c.TestNumbers, ",") {
		number, code, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || code == "" {
			return nil, fmt.Errorf("phone.test_numbers entry %q: %w", domain.MaskPhone(pair), domain.ErrInvalidInput)
		}
		parsed, err := domain.NewPhoneNumber(number)
		if err != nil {
			return nil, fmt.Errorf("phone.test_numbers: %w", err)
		}
		numbers[parsed.String()] = code
	}
	return numbers, nil
}

// IsLocal returns true if running in local development environment.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}

// IsProd returns true if running in production environment.
func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}
