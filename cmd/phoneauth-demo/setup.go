package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aelexs/authkit/internal/auth"
	"github.com/aelexs/authkit/internal/auth/delegated"
	"github.com/aelexs/authkit/internal/auth/federated"
	"github.com/aelexs/authkit/internal/auth/phone"
	"github.com/aelexs/authkit/internal/awsclient"
	"github.com/aelexs/authkit/internal/config"
	"github.com/aelexs/authkit/internal/credential"
	"github.com/aelexs/authkit/internal/domain"
	"github.com/aelexs/authkit/internal/identity"
	"github.com/aelexs/authkit/internal/identity/adapter"
	redisclient "github.com/aelexs/authkit/internal/redis"
)

// outboxCapacity bounds undelivered codes in outbox mode.
const outboxCapacity = 8

// app is everything setup wires together.
type app struct {
	logger      *slog.Logger
	redis       *redisclient.Client
	backend     *identity.Service
	outbox      *adapter.OutboxSMSProvider // nil unless sms.provider=outbox
	testNumbers map[string]string

	registry  *auth.Registry
	phone     *phone.Engine
	federated *federated.Provider
	delegated *delegated.Provider
}

// setup is the composition root. It creates infrastructure clients, the
// development identity backend and the provider registry.
func setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	// 1. Infrastructure clients.
	redisClient, err := newRedisClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = redisClient.Close()
		}
	}()

	// 2. Token signing. Keys are generated per process; tokens do not
	// survive a restart.
	keyStore, err := credential.GenerateStaticKeyStore(cfg.Identity.KeyID)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	clock := domain.RealClock{}
	minter := credential.NewMinter(credential.MinterConfig{
		KeyStore: keyStore,
		TTL:      cfg.Identity.TokenTTL,
		Issuer:   cfg.Identity.Issuer,
		Audience: cfg.Identity.Audience,
		Clock:    clock,
	})
	validator := credential.NewValidator(credential.ValidatorConfig{
		KeyStore: keyStore,
		Issuer:   cfg.Identity.Issuer,
		Audience: cfg.Identity.Audience,
		Clock:    clock,
	})

	// 3. Code delivery.
	smsProvider, outbox, err := createSMSProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	testNumbers, err := cfg.Phone.TestPhoneNumbers()
	if err != nil {
		return nil, err
	}

	// 4. Identity backend.
	backend := identity.NewService(identity.ServiceConfig{
		SMSProvider:      smsProvider,
		RateLimiter:      adapter.NewRateLimiter(redisClient.RDB),
		Minter:           minter,
		Validator:        validator,
		Revocations:      adapter.NewRevocationStore(redisClient.RDB),
		Clock:            clock,
		Pepper:           domain.SecretBytes(cfg.Identity.Pepper),
		CodeTTL:          cfg.Phone.CodeTTL,
		SendLimit:        cfg.Phone.SendLimit,
		SendWindow:       cfg.Phone.SendWindow,
		TestPhoneNumbers: testNumbers,
		Logger:           logger,
	})

	// 5. Providers.
	reg := auth.NewRegistry(ctx, logger)

	phoneEngine, err := phone.From(reg, phone.Config{
		Verifier:  backend,
		Exchanger: backend,
		Timeout:   cfg.Phone.VerificationTimeout,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("register phone provider: %w", err)
	}
	fed, err := federated.From(reg, federated.Config{
		ClientID:  cfg.Federated.ClientID,
		Exchanger: backend,
		Clock:     clock,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("register federated provider: %w", err)
	}
	del, err := delegated.From(reg, delegated.Config{
		Authenticator: backend.DelegatedAuthenticator(),
		Confirmator:   backend.DelegatedConfirmator(),
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("register delegated provider: %w", err)
	}

	reg.SetResultChannel(headlessHost(logger))
	reg.OnLifecycleEvent(auth.EventCreate)

	logger.Info("providers registered", slog.Int("count", reg.Len()))

	return &app{
		logger:      logger,
		redis:       redisClient,
		backend:     backend,
		outbox:      outbox,
		testNumbers: testNumbers,
		registry:    reg,
		phone:       phoneEngine,
		federated:   fed,
		delegated:   del,
	}, nil
}

// close tears down in reverse order of setup.
func (a *app) close() error {
	a.registry.OnLifecycleEvent(auth.EventDestroy)
	a.phone.Wait()
	a.federated.Wait()
	a.delegated.Wait()
	a.backend.Wait()
	return a.redis.Close()
}

func newRedisClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*redisclient.Client, error) {
	redisCfg := redisclient.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		ReadTimeout:  cfg.Redis.Timeout,
		WriteTimeout: cfg.Redis.Timeout,
	}

	var client *redisclient.Client
	if cfg.Redis.Addr == "" {
		var err error
		client, err = redisclient.NewEmbeddedClient(redisCfg)
		if err != nil {
			return nil, err
		}
		logger.Info("using embedded redis; rate limits reset on restart")
	} else {
		client = redisclient.NewClient(redisCfg)
	}

	if err := client.Ping(ctx); err != nil {
		return nil, errors.Join(err, client.Close())
	}
	return client, nil
}

// createSMSProvider returns the delivery backend selected by sms.provider.
// The outbox is returned separately so scripted sign-ins can read codes.
func createSMSProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (identity.SMSProvider, *adapter.OutboxSMSProvider, error) {
	switch cfg.SMS.Provider {
	case config.SMSProviderSNS:
		client, err := awsclient.NewSNSClient(ctx, awsclient.Config{
			Endpoint: cfg.AWS.Endpoint,
			Region:   cfg.AWS.Region,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create sns client: %w", err)
		}
		return adapter.NewSNSSMSProvider(client, adapter.SNSConfig{SenderID: cfg.SMS.SenderID}), nil, nil
	case config.SMSProviderOutbox:
		outbox := adapter.NewOutboxSMSProvider(outboxCapacity)
		return outbox, outbox, nil
	default:
		logger.Info("using log-only SMS provider for local development")
		return adapter.NewLogSMSProvider(logger), nil, nil
	}
}

// headlessHost is the result channel of a process without UI. Every launch
// fails, so federated sign-in only succeeds from a cached account.
func headlessHost(logger *slog.Logger) auth.ResultChannel {
	return auth.ResultChannelFunc(func(ctx context.Context, req auth.LaunchRequest) error {
		logger.InfoContext(ctx, "launch requested",
			slog.Int("request_code", req.RequestCode),
			slog.String("action", req.Action),
		)
		return fmt.Errorf("headless host cannot launch %s: %w", req.Action, domain.ErrProviderNotConfigured)
	})
}
