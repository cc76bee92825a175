// Package delegated implements phone sign-in where code dispatch and
// confirmation are performed by caller-supplied functions, typically a call
// to the application's own backend.
package delegated

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aelexs/authkit/internal/auth"
	"github.com/aelexs/authkit/internal/domain"
)

// ProviderName is the registry name of the delegated phone provider.
const ProviderName = "ExternalPhoneAuthProvider"

// Authenticator requests a code for phone and returns the key that later
// confirms it.
type Authenticator func(ctx context.Context, phone string) (authKey string, err error)

// Confirmator exchanges an auth key and the code the user entered for a
// session token.
type Confirmator func(ctx context.Context, authKey, code string) (token string, err error)

// Config holds the dependencies for a Provider. Authenticator and
// Confirmator may also be installed later.
type Config struct {
	Authenticator Authenticator
	Confirmator   Confirmator
	Logger        *slog.Logger
}

// Provider is the delegated phone sign-in provider.
type Provider struct {
	*auth.Base

	logger *slog.Logger

	mu            sync.Mutex
	authenticator Authenticator
	confirmator   Confirmator
	listener      auth.SMSListener
	authKey       string

	bgWG sync.WaitGroup
}

var _ auth.Provider = (*Provider)(nil)

// New creates a Provider.
func New(cfg Config) *Provider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		Base:          auth.NewBase(domain.RequestCodeDelegatedPhone),
		logger:        logger.With("provider", ProviderName),
		authenticator: cfg.Authenticator,
		confirmator:   cfg.Confirmator,
	}
}

// From registers a Provider built from cfg under ProviderName, or returns
// the one already registered.
func From(reg *auth.Registry, cfg Config) (*Provider, error) {
	return auth.Register(reg, ProviderName, func() *Provider { return New(cfg) })
}

// SetAuthenticator installs the function that dispatches codes.
func (p *Provider) SetAuthenticator(fn Authenticator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authenticator = fn
}

// SetConfirmator installs the function that confirms codes.
func (p *Provider) SetConfirmator(fn Confirmator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmator = fn
}

// Init installs cfg.SMSListener when set.
func (p *Provider) Init(cfg auth.InitConfig) {
	if cfg.SMSListener == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = cfg.SMSListener
}

// Login runs the authenticator for auth.SendCode and the confirmator for
// auth.ConfirmCode, both in the background.
func (p *Provider) Login(ctx context.Context, req auth.LoginRequest) {
	switch r := req.(type) {
	case auth.SendCode:
		p.goRun(func() { p.sendCode(ctx, r.Phone) })
	case auth.ConfirmCode:
		p.goRun(func() { p.confirmCode(ctx, r.Code) })
	default:
		p.logger.DebugContext(ctx, "login request ignored", "request", fmt.Sprintf("%T", req))
	}
}

// HandleExternalResult confirms a code delivered by the host under the
// provider's request code.
func (p *Provider) HandleExternalResult(ctx context.Context, res auth.ExternalResult) bool {
	if res.RequestCode != p.RequestCode() || res.Status != auth.StatusOK {
		return false
	}
	code := res.Value(auth.DataSMSCode)
	if code == "" {
		return false
	}
	p.goRun(func() { p.confirmCode(ctx, code) })
	return true
}

// Destroy forgets the auth key and listener.
func (p *Provider) Destroy() {
	p.mu.Lock()
	p.authKey = ""
	p.listener = nil
	p.mu.Unlock()
	p.SetResultChannel(nil)
}

// Wait blocks until all background goroutines owned by the provider complete.
func (p *Provider) Wait() {
	p.bgWG.Wait()
}

func (p *Provider) goRun(fn func()) {
	p.bgWG.Add(1)
	go func() {
		defer p.bgWG.Done()
		fn()
	}()
}

func (p *Provider) sendCode(ctx context.Context, phone string) {
	p.mu.Lock()
	authenticate := p.authenticator
	p.mu.Unlock()

	if authenticate == nil {
		p.Emit(auth.NewError(domain.ErrProviderNotConfigured, errors.New("no authenticator installed")))
		return
	}

	key, err := authenticate(ctx, phone)
	if err != nil {
		p.logger.WarnContext(ctx, "delegated code request failed",
			"phone", domain.MaskPhone(phone), "error", err)
		p.Emit(classify(ctx, domain.ErrAuthorizationFailure, err))
		return
	}

	p.mu.Lock()
	p.authKey = key
	listener := p.listener
	p.mu.Unlock()

	if listener != nil {
		listener.OnSMSSent()
	}
}

func (p *Provider) confirmCode(ctx context.Context, code string) {
	p.mu.Lock()
	confirm := p.confirmator
	key := p.authKey
	p.mu.Unlock()

	if confirm == nil {
		p.Emit(auth.NewError(domain.ErrProviderNotConfigured, errors.New("no confirmator installed")))
		return
	}

	token, err := confirm(ctx, key, code)
	switch {
	case err != nil:
		p.Emit(classify(ctx, domain.ErrWrongCode, err))
	case token == "":
		p.Emit(&auth.Error{Kind: domain.ErrAuthorizationFailure, Message: "Got empty token"})
	default:
		p.Emit(auth.Success{Token: token})
	}
}

// classify keeps the failure's own kind when it has one and falls back to
// fallback otherwise.
func classify(ctx context.Context, fallback, err error) auth.Result {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		return authErr
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return auth.Cancellation{}
	}
	for _, kind := range []error{
		domain.ErrNetwork,
		domain.ErrInvalidPhoneNumber,
		domain.ErrRateLimited,
		domain.ErrWrongCode,
	} {
		if errors.Is(err, kind) {
			return auth.NewError(kind, err)
		}
	}
	if errors.Is(err, domain.ErrUnavailable) {
		return auth.NewError(domain.ErrNetwork, err)
	}
	return &auth.Error{Kind: fallback, Message: err.Error(), Cause: err}
}
