// Package identity is an in-memory identity backend for development. It
// dispatches phone verification codes, exchanges verified credentials for
// accounts, and mints RS256 ID tokens, reporting failures as gRPC status
// errors the way a remote identity service would.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/aelexs/authkit/internal/auth/federated"
	"github.com/aelexs/authkit/internal/auth/phone"
	"github.com/aelexs/authkit/internal/credential"
	"github.com/aelexs/authkit/internal/domain"
	"github.com/aelexs/authkit/internal/errmap"
	"github.com/aelexs/authkit/internal/observability"
)

var tracer = otel.Tracer("identity")

var (
	codesSentTotal      metric.Int64Counter
	tokensMintedTotal   metric.Int64Counter
	tokensRevokedTotal  metric.Int64Counter
	accountsCreated     metric.Int64Counter
	rateLimitsTotal     metric.Int64Counter
	verifyFailuresTotal metric.Int64Counter
)

func init() {
	m := otel.Meter("identity")

	codesSentTotal, _ = m.Int64Counter("identity_codes_sent_total",
		metric.WithDescription("Total verification codes dispatched"))
	tokensMintedTotal, _ = m.Int64Counter("identity_tokens_minted_total",
		metric.WithDescription("Total ID tokens minted"))
	tokensRevokedTotal, _ = m.Int64Counter("identity_tokens_revoked_total",
		metric.WithDescription("Total ID tokens revoked on sign-out"))
	accountsCreated, _ = m.Int64Counter("identity_accounts_created_total",
		metric.WithDescription("Total accounts created"))
	rateLimitsTotal, _ = m.Int64Counter("security_rate_limits_total",
		metric.WithDescription("Total rate limit hits"))
	verifyFailuresTotal, _ = m.Int64Counter("identity_verify_failures_total",
		metric.WithDescription("Total rejected verification codes"))
}

// ServiceConfig holds the dependencies for Service.
type ServiceConfig struct {
	SMSProvider SMSProvider
	RateLimiter RateLimiter
	Minter      *credential.Minter
	// Validator accepts ID tokens for federated sign-in. Optional.
	Validator   *credential.Validator
	// Revocations invalidates tokens on sign-out. Optional.
	Revocations RevocationStore
	Clock       domain.Clock
	Pepper      domain.SecretBytes

	CodeTTL    time.Duration
	SendLimit  int
	SendWindow time.Duration

	// TestPhoneNumbers maps numbers to fixed codes. Dispatches to them skip
	// delivery and complete verification automatically.
	TestPhoneNumbers map[string]string

	Logger *slog.Logger
}

type verification struct {
	phone     string
	phoneHash string
	mac       string
	expiresAt time.Time
	attempts  int
	used      bool
}

type user struct {
	uid         string
	phone       string
	subject     string // federated subject, if any
	displayName string
	createdAt   time.Time
}

type cachedToken struct {
	uid       string
	token     string
	jti       string
	expiresAt time.Time
}

// Service implements phone.Backend and federated.TokenExchanger in memory.
type Service struct {
	smsProvider SMSProvider
	rateLimiter RateLimiter
	minter      *credential.Minter
	validator   *credential.Validator
	revocations RevocationStore
	clock       domain.Clock
	pepper      domain.SecretBytes
	codeTTL     time.Duration
	sendLimit   int
	sendWindow  time.Duration
	testNumbers map[string]string
	logger      *slog.Logger

	mu            sync.Mutex
	verifications map[string]*verification // by verification ID
	resendTokens  map[string]string        // token -> phone
	users         map[string]*user         // by user ID
	byPhone       map[string]string
	bySubject     map[string]string
	currentUID    string
	token         cachedToken

	bgWG sync.WaitGroup // owns code delivery goroutines
}

var (
	_ phone.Backend            = (*Service)(nil)
	_ federated.TokenExchanger = (*Service)(nil)
)

// NewService creates a new Service with the given dependencies.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		smsProvider:   cfg.SMSProvider,
		rateLimiter:   cfg.RateLimiter,
		minter:        cfg.Minter,
		validator:     cfg.Validator,
		revocations:   cfg.Revocations,
		clock:         cfg.Clock,
		pepper:        cfg.Pepper,
		codeTTL:       cfg.CodeTTL,
		sendLimit:     cfg.SendLimit,
		sendWindow:    cfg.SendWindow,
		testNumbers:   cfg.TestPhoneNumbers,
		logger:        cfg.Logger,
		verifications: make(map[string]*verification),
		resendTokens:  make(map[string]string),
		users:         make(map[string]*user),
		byPhone:       make(map[string]string),
		bySubject:     make(map[string]string),
	}
	if s.clock == nil {
		s.clock = domain.RealClock{}
	}
	if s.codeTTL <= 0 {
		s.codeTTL = domain.VerificationCodeValidity
	}
	if s.sendLimit <= 0 {
		s.sendLimit = domain.CodeSendLimitPerPhone
	}
	if s.sendWindow <= 0 {
		s.sendWindow = domain.CodeSendWindow
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Wait blocks until all background goroutines owned by this service complete.
// The wiring layer must invoke this during shutdown.
func (s *Service) Wait() {
	s.bgWG.Wait()
}

// CurrentUserID returns the signed-in user, if any.
func (s *Service) CurrentUserID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentUID, s.currentUID != ""
}

// VerifyPhoneNumber validates the number, enforces dispatch limits, and
// delivers a fresh code in the background. A resend token issued for the
// same number skips the dispatch limit once.
func (s *Service) VerifyPhoneNumber(ctx context.Context, opts phone.VerifyOptions, cb phone.Callbacks) error {
	ctx, span := tracer.Start(ctx, "identity.verify_phone_number")
	defer span.End()

	logger := observability.WithTraceID(ctx, s.logger)

	number, err := domain.NewPhoneNumber(opts.PhoneNumber)
	if err != nil {
		return fail(span, err)
	}
	phoneHash := credential.HashPhone(number.String())

	locked, err := s.rateLimiter.CheckLockout(ctx, lockoutKey(phoneHash))
	if err != nil {
		logger.ErrorContext(ctx, "lockout check failed", "error", err, "phone_hash", phoneHash)
		return fail(span, fmt.Errorf("check lockout: %w", domain.ErrUnavailable))
	}
	if locked {
		rateLimitsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("limit_type", "lockout")))
		return fail(span, fmt.Errorf("number locked after failed verifications: %w", domain.ErrRateLimited))
	}

	resend := s.redeemResendToken(opts.ResendToken, number.String())
	if !resend {
		allowed, err := s.rateLimiter.CheckAndIncrement(ctx, sendKey(phoneHash), s.sendLimit, int(s.sendWindow.Seconds()))
		if err != nil {
			logger.ErrorContext(ctx, "dispatch rate limit check failed", "error", err, "phone_hash", phoneHash)
			return fail(span, fmt.Errorf("check dispatch rate limit: %w", domain.ErrUnavailable))
		}
		if !allowed {
			rateLimitsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("limit_type", "phone")))
			return fail(span, fmt.Errorf("dispatch limit reached: %w", domain.ErrRateLimited))
		}
	}

	code, isTestNumber := s.testNumbers[number.String()]
	if !isTestNumber {
		code, err = credential.GenerateCode(domain.VerificationCodeLength)
		if err != nil {
			return fail(span, err)
		}
	}

	verificationID := uuid.NewString()
	resendToken := uuid.NewString()
	expiresAt := s.clock.Now().UTC().Add(s.codeTTL)

	s.mu.Lock()
	s.verifications[verificationID] = &verification{
		phone:     number.String(),
		phoneHash: phoneHash,
		mac:       credential.ComputeCodeMAC(s.pepper.Expose(), code, verificationID, phoneHash, expiresAt.Format(time.RFC3339)),
		expiresAt: expiresAt,
	}
	s.resendTokens[resendToken] = number.String()
	s.mu.Unlock()

	// Detach from the caller so an accepted dispatch is not aborted midway.
	// WithoutCancel preserves trace values for logging.
	sendCtx := context.WithoutCancel(ctx)
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()

		if isTestNumber {
			logger.InfoContext(sendCtx, "identity.test_number_verified", "phone", number.Masked())
			cb.OnCodeSent(verificationID, domain.SecretString(resendToken))
			cb.OnVerificationCompleted(phone.Credential{VerificationID: verificationID, Code: code})
			return
		}

		if sendErr := s.smsProvider.SendCode(sendCtx, number.String(), code); sendErr != nil {
			logger.ErrorContext(sendCtx, "failed to send verification code",
				"error", sendErr, "phone_hash", phoneHash)
			cb.OnVerificationFailed(errmap.ToGRPCError(fmt.Errorf("deliver code: %w", domain.ErrUnavailable)))
			return
		}

		codesSentTotal.Add(sendCtx, 1, metric.WithAttributes(attribute.Bool("resend", resend)))
		logger.InfoContext(sendCtx, "identity.code_sent", "phone_hash", phoneHash, "resend", resend)
		cb.OnCodeSent(verificationID, domain.SecretString(resendToken))
	}()

	return nil
}

// redeemResendToken consumes token if it was issued for phoneNumber.
func (s *Service) redeemResendToken(token domain.SecretString, phoneNumber string) bool {
	if token.IsEmpty() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	issuedFor, ok := s.resendTokens[token.Expose()]
	if !ok || issuedFor != phoneNumber {
		return false
	}
	delete(s.resendTokens, token.Expose())
	return true
}

// fail records err on span and converts it to a gRPC status error.
func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return errmap.ToGRPCError(err)
}
