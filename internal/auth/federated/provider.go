// Package federated implements sign-in with an ID token from an external
// identity provider. The host runs the interactive flow through the result
// channel and hands the ID token back as an external result.
package federated

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc/codes"

	"github.com/aelexs/authkit/internal/auth"
	"github.com/aelexs/authkit/internal/domain"
	"github.com/aelexs/authkit/internal/errmap"
)

// ProviderName is the registry name of the federated provider.
const ProviderName = "FederatedAuthProvider"

// ActionSignIn is the LaunchRequest action for the interactive sign-in flow.
const ActionSignIn = "federated.sign_in"

// CachedAccount is an account the host signed in to earlier.
type CachedAccount struct {
	IDToken   string
	ExpiresAt time.Time
}

// AccountCache returns the last signed-in account, or nil if there is none.
type AccountCache interface {
	LastSignedIn(ctx context.Context) (*CachedAccount, error)
}

// Account is the backend account an ID token signed in to.
type Account struct {
	UID         string
	DisplayName string
}

// TokenExchanger exchanges an external ID token for a backend session.
type TokenExchanger interface {
	SignInWithIDToken(ctx context.Context, idToken string) (*Account, error)
	IDToken(ctx context.Context, uid string, forceRefresh bool) (string, error)
}

// Config holds the dependencies for a Provider.
type Config struct {
	ClientID  string
	Accounts  AccountCache // optional
	Exchanger TokenExchanger
	Clock     domain.Clock
	Logger    *slog.Logger
}

// Provider is the federated sign-in provider.
type Provider struct {
	*auth.Base

	clientID  string
	accounts  AccountCache
	exchanger TokenExchanger
	clock     domain.Clock
	logger    *slog.Logger

	mu     sync.Mutex
	params map[string]string // sign-in options built by Init

	bgWG sync.WaitGroup
}

var _ auth.Provider = (*Provider)(nil)

// New creates a Provider.
func New(cfg Config) *Provider {
	clock := cfg.Clock
	if clock == nil {
		clock = domain.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		Base:      auth.NewBase(domain.RequestCodeFederated),
		clientID:  cfg.ClientID,
		accounts:  cfg.Accounts,
		exchanger: cfg.Exchanger,
		clock:     clock,
		logger:    logger.With("provider", ProviderName),
	}
}

// From registers a Provider built from cfg under ProviderName, or returns
// the one already registered.
func From(reg *auth.Registry, cfg Config) (*Provider, error) {
	return auth.Register(reg, ProviderName, func() *Provider { return New(cfg) })
}

// Init builds the sign-in options sent with every launch.
func (p *Provider) Init(auth.InitConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.params = map[string]string{
		"client_id":        p.clientID,
		"request_id_token": "true",
		"scope":            "openid email",
	}
}

// Login signs in with a cached, unexpired ID token when one exists and
// otherwise launches the interactive flow.
func (p *Provider) Login(ctx context.Context, req auth.LoginRequest) {
	if _, ok := req.(auth.SignIn); !ok {
		p.logger.DebugContext(ctx, "login request ignored", "request", fmt.Sprintf("%T", req))
		return
	}

	p.bgWG.Add(1)
	go func() {
		defer p.bgWG.Done()
		if res := p.signIn(ctx); res != nil {
			p.Emit(res)
		}
	}()
}

// signIn returns nil when the outcome will arrive as an external result.
func (p *Provider) signIn(ctx context.Context) auth.Result {
	if p.accounts != nil {
		cached, err := p.accounts.LastSignedIn(ctx)
		if err != nil {
			p.logger.WarnContext(ctx, "account cache lookup failed", "error", err)
		}
		if cached != nil && cached.IDToken != "" && !domain.Expired(p.clock, cached.ExpiresAt) {
			return p.exchange(ctx, cached.IDToken)
		}
	}

	ch := p.ResultChannel()
	if ch == nil {
		return auth.NewError(domain.ErrProviderNotConfigured, errors.New("no result channel to launch sign-in"))
	}

	p.mu.Lock()
	params := make(map[string]string, len(p.params))
	for k, v := range p.params {
		params[k] = v
	}
	p.mu.Unlock()

	err := ch.Launch(ctx, auth.LaunchRequest{
		RequestCode: p.RequestCode(),
		Action:      ActionSignIn,
		Params:      params,
	})
	if err != nil {
		return classify(ctx, fmt.Errorf("launch sign-in: %w", err))
	}
	return nil
}

// HandleExternalResult claims results tagged with the provider's request
// code and exchanges the ID token they carry.
func (p *Provider) HandleExternalResult(ctx context.Context, res auth.ExternalResult) bool {
	if res.RequestCode != p.RequestCode() {
		return false
	}
	if res.Status != auth.StatusOK {
		p.Emit(&auth.Error{Kind: domain.ErrAuthorizationFailure, Message: "sign-in flow did not complete"})
		return true
	}
	idToken := res.Value(auth.DataIDToken)
	if idToken == "" {
		p.Emit(&auth.Error{Kind: domain.ErrAuthorizationFailure, Message: "sign-in result carried no id token"})
		return true
	}

	p.bgWG.Add(1)
	go func() {
		defer p.bgWG.Done()
		p.Emit(p.exchange(ctx, idToken))
	}()
	return true
}

func (p *Provider) exchange(ctx context.Context, idToken string) auth.Result {
	account, err := p.exchanger.SignInWithIDToken(ctx, idToken)
	if err != nil {
		return classify(ctx, fmt.Errorf("sign in with id token: %w", err))
	}
	token, err := p.exchanger.IDToken(ctx, account.UID, true)
	if err != nil {
		return classify(ctx, fmt.Errorf("get id token: %w", err))
	}
	if token == "" {
		return &auth.Error{Kind: domain.ErrAuthorizationFailure, Message: "Got empty token"}
	}
	p.logger.InfoContext(ctx, "federated.signed_in", "user_id", account.UID)
	return auth.Success{Token: token, UserID: account.UID, Username: account.DisplayName}
}

// Wait blocks until all background goroutines owned by the provider complete.
func (p *Provider) Wait() {
	p.bgWG.Wait()
}

func classify(ctx context.Context, err error) auth.Result {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return auth.Cancellation{}
	}
	switch errmap.FromGRPCError(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return auth.NewError(domain.ErrNetwork, err)
	}
	if errors.Is(err, domain.ErrNetwork) || errors.Is(err, domain.ErrUnavailable) {
		return auth.NewError(domain.ErrNetwork, err)
	}
	return auth.NewError(domain.ErrAuthorizationFailure, err)
}
