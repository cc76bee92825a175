package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aelexs/authkit/internal/domain"
)

// ErrTokenExpired is returned when a validly signed token has expired.
var ErrTokenExpired = jwt.ErrTokenExpired

// sign_in_provider claim values.
const (
	SignInMethodPhone     = "phone"
	SignInMethodFederated = "federated"
)

// IDTokenClaims are the claims carried by an ID token.
type IDTokenClaims struct {
	jwt.RegisteredClaims
	PhoneNumber    string `json:"phone_number,omitempty"`
	Name           string `json:"name,omitempty"`
	SignInProvider string `json:"sign_in_provider"`
}

// Subject identifies the account an ID token is minted for.
type Subject struct {
	UserID      string
	PhoneNumber string
	DisplayName string
	Method      string
}

// MintResult holds a signed ID token.
type MintResult struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// MinterConfig holds configuration for creating a Minter.
type MinterConfig struct {
	KeyStore KeyStore
	TTL      time.Duration
	Issuer   string
	Audience string
	Clock    domain.Clock
}

// Minter creates signed RS256 ID tokens.
type Minter struct {
	keyStore KeyStore
	ttl      time.Duration
	issuer   string
	audience string
	clock    domain.Clock
}

// NewMinter creates a new ID token minter.
func NewMinter(cfg MinterConfig) *Minter {
	return &Minter{
		keyStore: cfg.KeyStore,
		ttl:      cfg.TTL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		clock:    cfg.Clock,
	}
}

// MintIDToken signs a fresh ID token for sub. Every call yields a new JTI.
func (m *Minter) MintIDToken(sub Subject) (MintResult, error) {
	if sub.UserID == "" {
		return MintResult{}, fmt.Errorf("mint id token: %w", domain.ErrInvalidInput)
	}

	privateKey, keyID, err := m.keyStore.SigningKey()
	if err != nil {
		return MintResult{}, fmt.Errorf("get signing key: %w", err)
	}

	now := m.clock.Now().UTC()
	jti := uuid.NewString()
	expiresAt := now.Add(m.ttl)

	claims := IDTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
		PhoneNumber:    sub.PhoneNumber,
		Name:           sub.DisplayName,
		SignInProvider: sub.Method,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &claims)
	token.Header["kid"] = keyID

	signed, err := token.SignedString(privateKey)
	if err != nil {
		return MintResult{}, fmt.Errorf("sign id token: %w", err)
	}

	return MintResult{Token: signed, JTI: jti, ExpiresAt: expiresAt}, nil
}

// ValidatorConfig holds configuration for creating a Validator.
type ValidatorConfig struct {
	KeyStore KeyStore
	Issuer   string
	Audience string
	Clock    domain.Clock
}

// Validator verifies ID tokens minted by a Minter sharing its key store.
type Validator struct {
	keyStore KeyStore
	issuer   string
	audience string
	clock    domain.Clock
}

// NewValidator creates a new ID token validator.
func NewValidator(cfg ValidatorConfig) *Validator {
	return &Validator{
		keyStore: cfg.KeyStore,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		clock:    cfg.Clock,
	}
}

// ValidateIDToken parses and fully validates an ID token.
func (v *Validator) ValidateIDToken(tokenString string) (*IDTokenClaims, error) {
	var claims IDTokenClaims

	_, err := jwt.ParseWithClaims(tokenString, &claims, v.keyFunc,
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("id token: %w", err)
		}
		return nil, fmt.Errorf("invalid id token: %w", errors.Join(err, domain.ErrAuthorizationFailure))
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("missing sub claim: %w", domain.ErrAuthorizationFailure)
	}

	return &claims, nil
}

func (v *Validator) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("missing or invalid kid in token header")
	}

	return v.keyStore.PublicKey(kid)
}
