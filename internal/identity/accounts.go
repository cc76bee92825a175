package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/authkit/internal/auth/federated"
	"github.com/aelexs/authkit/internal/auth/phone"
	"github.com/aelexs/authkit/internal/credential"
	"github.com/aelexs/authkit/internal/domain"
	"github.com/aelexs/authkit/internal/observability"
)

// tokenRefreshSkew forces a fresh token shortly before the cached one expires.
const tokenRefreshSkew = time.Minute

var errTooManyAttempts = errors.New("too many wrong codes")

// SignIn checks cred against its pending verification and signs in to the
// account owning the verified number, creating it on first use.
func (s *Service) SignIn(ctx context.Context, cred phone.Credential) (*phone.Account, error) {
	ctx, span := tracer.Start(ctx, "identity.sign_in")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := observability.WithTraceID(ctx, s.logger)

	v, err := s.checkCode(cred)
	if err != nil {
		verifyFailuresTotal.Add(ctx, 1)
		if errors.Is(err, errTooManyAttempts) {
			if lockErr := s.rateLimiter.SetLockout(ctx, lockoutKey(v.phoneHash), int(domain.VerifyLockoutDuration.Seconds())); lockErr != nil {
				logger.ErrorContext(ctx, "failed to set verification lockout", "error", lockErr, "phone_hash", v.phoneHash)
			}
			logger.WarnContext(ctx, "identity.number_locked", "phone_hash", v.phoneHash)
		}
		return nil, fail(span, err)
	}

	s.mu.Lock()
	u, created := s.userByPhoneLocked(v.phone)
	s.signInLocked(u.uid)
	s.mu.Unlock()

	if created {
		accountsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("method", credential.SignInMethodPhone)))
	}
	logger.InfoContext(ctx, "identity.signed_in", "user_id", u.uid, "created", created, "auto_retrieved", cred.AutoRetrieved)

	return &phone.Account{UID: u.uid, DisplayName: u.displayName, CreatedNow: created}, nil
}

// checkCode consumes a correct code. A wrong code counts against the
// verification; the last allowed attempt discards it and returns
// errTooManyAttempts along with the verification so the caller can lock
// the number out.
func (s *Service) checkCode(cred phone.Credential) (*verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.verifications[cred.VerificationID]
	if !ok {
		return nil, fmt.Errorf("unknown verification: %w", domain.ErrWrongCode)
	}
	if v.used {
		return nil, fmt.Errorf("verification already used: %w", domain.ErrWrongCode)
	}
	if domain.Expired(s.clock, v.expiresAt) {
		delete(s.verifications, cred.VerificationID)
		return nil, fmt.Errorf("verification code expired: %w", domain.ErrWrongCode)
	}

	if !credential.VerifyCodeMAC(s.pepper.Expose(), cred.Code, cred.VerificationID, v.phoneHash, v.expiresAt.Format(time.RFC3339), v.mac) {
		v.attempts++
		if v.attempts >= domain.MaxVerifyAttempts {
			delete(s.verifications, cred.VerificationID)
			return v, fmt.Errorf("%w: %w", errTooManyAttempts, domain.ErrWrongCode)
		}
		return nil, domain.ErrWrongCode
	}

	v.used = true
	return v, nil
}

// LinkCredential attaches the number verified by cred to uid.
func (s *Service) LinkCredential(ctx context.Context, uid string, cred phone.Credential) error {
	_, span := tracer.Start(ctx, "identity.link_credential")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[uid]
	if !ok {
		return fail(span, fmt.Errorf("user %s: %w", uid, domain.ErrNotFound))
	}
	v, ok := s.verifications[cred.VerificationID]
	if !ok {
		return fail(span, fmt.Errorf("unknown verification: %w", domain.ErrWrongCode))
	}
	if u.phone != "" {
		return fail(span, fmt.Errorf("phone credential already linked: %w", domain.ErrAlreadyExists))
	}
	if owner, taken := s.byPhone[v.phone]; taken && owner != uid {
		return fail(span, fmt.Errorf("phone linked to another account: %w", domain.ErrAlreadyExists))
	}

	u.phone = v.phone
	s.byPhone[v.phone] = uid
	return nil
}

// IDToken returns an ID token for the signed-in user. A cached token is
// reused until shortly before it expires unless forceRefresh is set.
func (s *Service) IDToken(ctx context.Context, uid string, forceRefresh bool) (string, error) {
	ctx, span := tracer.Start(ctx, "identity.id_token")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentUID == "" || s.currentUID != uid {
		return "", fail(span, fmt.Errorf("no signed-in user %s: %w", uid, domain.ErrAuthorizationFailure))
	}
	if !forceRefresh && s.token.uid == uid && !domain.Expired(s.clock, s.token.expiresAt.Add(-tokenRefreshSkew)) {
		return s.token.token, nil
	}

	u := s.users[uid]
	method := credential.SignInMethodPhone
	if u.subject != "" {
		method = credential.SignInMethodFederated
	}

	minted, err := s.minter.MintIDToken(credential.Subject{
		UserID:      u.uid,
		PhoneNumber: u.phone,
		DisplayName: u.displayName,
		Method:      method,
	})
	if err != nil {
		return "", fail(span, err)
	}

	s.token = cachedToken{uid: uid, token: minted.Token, jti: minted.JTI, expiresAt: minted.ExpiresAt}
	tokensMintedTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("forced", forceRefresh)))
	return minted.Token, nil
}

// SignOut ends the current session. With a revocation store configured the
// last token minted for the session is revoked for the rest of its lifetime.
// The local session is cleared even when revocation fails.
func (s *Service) SignOut(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "identity.sign_out")
	defer span.End()

	s.mu.Lock()
	uid := s.currentUID
	tok := s.token
	s.currentUID = ""
	s.token = cachedToken{}
	s.mu.Unlock()

	if uid == "" {
		return nil
	}
	logger := observability.WithTraceID(ctx, s.logger)
	logger.InfoContext(ctx, "identity.signed_out", "user_id", uid)

	if s.revocations == nil || tok.jti == "" {
		return nil
	}
	ttl := tok.expiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return nil
	}
	if err := s.revocations.Revoke(ctx, tok.jti, ttl); err != nil {
		logger.ErrorContext(ctx, "failed to revoke id token", "error", err, "user_id", uid)
		return fail(span, fmt.Errorf("revoke id token: %w", errors.Join(domain.ErrUnavailable, err)))
	}
	tokensRevokedTotal.Add(ctx, 1)
	return nil
}

// SignInWithIDToken validates an externally issued ID token and signs in to
// the account bound to its subject, creating it on first use.
func (s *Service) SignInWithIDToken(ctx context.Context, idToken string) (*federated.Account, error) {
	ctx, span := tracer.Start(ctx, "identity.sign_in_with_id_token")
	defer span.End()

	if s.validator == nil {
		return nil, fail(span, fmt.Errorf("id token validator: %w", domain.ErrProviderNotConfigured))
	}

	claims, err := s.validator.ValidateIDToken(idToken)
	if err != nil {
		return nil, fail(span, fmt.Errorf("validate id token: %w", errors.Join(domain.ErrAuthorizationFailure, err)))
	}

	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fail(span, fmt.Errorf("check revocation: %w", errors.Join(domain.ErrUnavailable, err)))
		}
		if revoked {
			return nil, fail(span, fmt.Errorf("id token revoked: %w", domain.ErrAuthorizationFailure))
		}
	}

	s.mu.Lock()
	uid, ok := s.bySubject[claims.Subject]
	created := !ok
	if created {
		uid = uuid.NewString()
		s.users[uid] = &user{uid: uid, subject: claims.Subject, displayName: claims.Name, createdAt: s.clock.Now().UTC()}
		s.bySubject[claims.Subject] = uid
	}
	u := s.users[uid]
	s.signInLocked(uid)
	s.mu.Unlock()

	if created {
		accountsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("method", credential.SignInMethodFederated)))
	}
	observability.WithTraceID(ctx, s.logger).InfoContext(ctx, "identity.signed_in", "user_id", uid, "created", created, "method", "federated")

	return &federated.Account{UID: u.uid, DisplayName: u.displayName}, nil
}

func (s *Service) userByPhoneLocked(number string) (*user, bool) {
	if uid, ok := s.byPhone[number]; ok {
		return s.users[uid], false
	}
	u := &user{uid: uuid.NewString(), phone: number, createdAt: s.clock.Now().UTC()}
	s.users[u.uid] = u
	s.byPhone[number] = u.uid
	return u, true
}

func (s *Service) signInLocked(uid string) {
	if s.currentUID != uid {
		s.token = cachedToken{}
	}
	s.currentUID = uid
}
