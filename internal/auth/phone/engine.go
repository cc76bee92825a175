// Package phone implements phone number sign-in: a verification code is
// dispatched by SMS, confirmed automatically by the device or manually by the
// user, and exchanged with the identity backend for a session token.
package phone

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

	"github.com/aelexs/authkit/internal/auth"
	"github.com/aelexs/authkit/internal/domain"
	"github.com/aelexs/authkit/internal/observability"
)

// ProviderName is the registry name of the phone provider.
const ProviderName = "PhoneAuthProvider"

var tracer = otel.Tracer("auth/phone")

var (
	codeRequestsTotal metric.Int64Counter
	authFailuresTotal metric.Int64Counter
)

func init() {
	m := otel.Meter("auth/phone")

	codeRequestsTotal, _ = m.Int64Counter("auth_phone_code_requests_total",
		metric.WithDescription("Total verification code dispatch requests"))
	authFailuresTotal, _ = m.Int64Counter("security_auth_failures_total",
		metric.WithDescription("Total authentication failures"))
}

// State is the position of the engine in the verification protocol.
type State int

const (
	StateIdle State = iota
	StateCodeRequested
	StateCodeSent
	StateVerifying
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCodeRequested:
		return "code_requested"
	case StateCodeSent:
		return "code_sent"
	case StateVerifying:
		return "verifying"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is the correlation state carried between Login calls.
type Session struct {
	PhoneNumber    string
	Username       string
	VerificationID string
	ResendToken    domain.SecretString
	PendingCode    domain.SecretString
}

// Config holds the dependencies for an Engine.
type Config struct {
	Verifier  Verifier
	Exchanger Exchanger
	// Timeout is passed to the backend for automatic retrieval and also
	// bounds the wait for dispatch acknowledgement. Zero means
	// domain.PhoneVerificationTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// attempt is one code dispatch and everything confirmed against it.
type attempt struct {
	id       string
	ctx      context.Context
	username string

	acked     chan struct{} // closed by the first dispatch callback
	ackedOnce sync.Once
}

func (a *attempt) ack() {
	a.ackedOnce.Do(func() { close(a.acked) })
}

// Engine is the phone sign-in provider.
type Engine struct {
	*auth.Base

	verifier  Verifier
	exchanger Exchanger
	timeout   time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	state    State
	session  Session
	listener auth.SMSListener
	current  *attempt
	outcome  auth.Result // terminal result of the last completed attempt

	bgWG sync.WaitGroup // owns dispatch and finalization goroutines
}

var _ auth.Provider = (*Engine)(nil)

// New creates an Engine.
func New(cfg Config) *Engine {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = domain.PhoneVerificationTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Base:      auth.NewBase(domain.RequestCodePhone),
		verifier:  cfg.Verifier,
		exchanger: cfg.Exchanger,
		timeout:   timeout,
		logger:    logger.With("provider", ProviderName),
	}
}

// From registers an Engine built from cfg under ProviderName, or returns the
// one already registered.
func From(reg *auth.Registry, cfg Config) (*Engine, error) {
	return auth.Register(reg, ProviderName, func() *Engine { return New(cfg) })
}

// Init installs cfg.SMSListener when set.
func (e *Engine) Init(cfg auth.InitConfig) {
	if cfg.SMSListener == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = cfg.SMSListener
}

// Login dispatches a code for auth.SendCode or confirms one for
// auth.ConfirmCode. Other requests are ignored.
func (e *Engine) Login(ctx context.Context, req auth.LoginRequest) {
	switch r := req.(type) {
	case auth.SendCode:
		e.sendCode(ctx, r)
	case auth.ConfirmCode:
		e.confirm(ctx, r.Code)
	default:
		observability.WithTraceID(ctx, e.logger).DebugContext(ctx, "login request ignored", "request", fmt.Sprintf("%T", req))
	}
}

// HandleExternalResult confirms a code delivered by the host. It claims only
// OK results tagged with the engine's request code that carry a code, and
// once a code has been sent for the current attempt.
func (e *Engine) HandleExternalResult(ctx context.Context, res auth.ExternalResult) bool {
	if res.RequestCode != e.RequestCode() || res.Status != auth.StatusOK {
		return false
	}
	code := res.Value(auth.DataSMSCode)
	if code == "" {
		return false
	}
	return e.confirm(ctx, code)
}

// Destroy forgets the session, listener and result channel and returns the
// engine to Idle. The backend stays signed in and in-flight work is not
// cancelled; results it produces are still emitted.
func (e *Engine) Destroy() {
	e.mu.Lock()
	e.state = StateIdle
	e.session = Session{}
	e.listener = nil
	e.current = nil
	e.outcome = nil
	e.mu.Unlock()

	e.SetResultChannel(nil)
}

// Wait blocks until all background goroutines owned by the engine complete.
func (e *Engine) Wait() {
	e.bgWG.Wait()
}

// State returns the current protocol state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Session returns a copy of the current session.
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

func (e *Engine) sendCode(ctx context.Context, req auth.SendCode) {
	e.mu.Lock()
	resend := e.session.PhoneNumber != "" && req.Phone == e.session.PhoneNumber
	var token domain.SecretString
	if resend {
		token = e.session.ResendToken
	} else {
		e.session.ResendToken = ""
		e.session.VerificationID = ""
	}
	e.session.PhoneNumber = req.Phone
	e.session.Username = req.Username
	e.session.PendingCode = ""

	a := &attempt{
		id:       uuid.NewString(),
		ctx:      ctx,
		username: req.Username,
		acked:    make(chan struct{}),
	}
	e.current = a
	e.state = StateCodeRequested
	e.mu.Unlock()

	e.bgWG.Add(1)
	go e.dispatch(a, req.Phone, token, !resend)
}

// dispatch asks the backend for a code and waits for its first answer.
func (e *Engine) dispatch(a *attempt, phoneNumber string, token domain.SecretString, signOut bool) {
	defer e.bgWG.Done()

	ctx, span := tracer.Start(a.ctx, "phone.request_code")
	defer span.End()

	logger := observability.WithTraceID(ctx, e.logger).With("attempt_id", a.id)
	resend := !token.IsEmpty()

	if signOut {
		if err := e.exchanger.SignOut(ctx); err != nil {
			logger.WarnContext(ctx, "sign out before fresh number failed", "error", err)
		}
	}

	codeRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("resend", resend)))
	logger.InfoContext(ctx, "phone.code_requested",
		"phone", domain.MaskPhone(phoneNumber), "resend", resend)

	opts := VerifyOptions{
		PhoneNumber: phoneNumber,
		Timeout:     e.timeout,
		ResendToken: token,
	}
	cb := Callbacks{
		OnCodeSent: func(verificationID string, resendToken domain.SecretString) {
			e.onCodeSent(a, verificationID, resendToken)
		},
		OnVerificationCompleted: func(cred Credential) {
			e.onAutoVerified(a, cred)
		},
		OnVerificationFailed: func(err error) {
			e.onDispatchFailed(a, err)
		},
	}

	if err := e.verifier.VerifyPhoneNumber(ctx, opts, cb); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.onDispatchFailed(a, err)
		return
	}

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case <-a.acked:
	case <-ctx.Done():
		e.abandonDispatch(a, auth.Cancellation{})
	case <-timer.C:
		span.SetStatus(codes.Error, "dispatch not acknowledged")
		e.abandonDispatch(a, auth.NewError(domain.ErrNetwork,
			fmt.Errorf("code dispatch not acknowledged within %s", e.timeout)))
	}
}

// abandonDispatch ends a that is still waiting for its dispatch
// acknowledgement.
func (e *Engine) abandonDispatch(a *attempt, res auth.Result) {
	e.mu.Lock()
	if e.current != a || e.state != StateCodeRequested {
		e.mu.Unlock()
		return
	}
	e.completeLocked(res)
	e.mu.Unlock()

	a.ack()
	e.emit(a.ctx, a, res)
}

// onCodeSent records the verification ID and resend token of the current
// attempt whatever its state; only the first callback moves the engine to
// CodeSent and notifies the listener.
func (e *Engine) onCodeSent(a *attempt, verificationID string, resendToken domain.SecretString) {
	defer a.ack()
	logger := observability.WithTraceID(a.ctx, e.logger).With("attempt_id", a.id)

	e.mu.Lock()
	if e.current != a {
		e.mu.Unlock()
		logger.DebugContext(a.ctx, "stale code sent callback ignored")
		return
	}
	e.session.VerificationID = verificationID
	e.session.ResendToken = resendToken
	if e.state != StateCodeRequested {
		state := e.state
		e.mu.Unlock()
		logger.DebugContext(a.ctx, "code sent after dispatch settled, session updated", "state", state)
		return
	}
	e.state = StateCodeSent
	listener := e.listener
	e.mu.Unlock()

	logger.InfoContext(a.ctx, "phone.code_sent")
	if listener == nil {
		logger.DebugContext(a.ctx, "no sms listener configured, code sent notification dropped")
		return
	}
	listener.OnSMSSent()
}

func (e *Engine) onAutoVerified(a *attempt, cred Credential) {
	defer a.ack()
	cred.AutoRetrieved = true

	e.mu.Lock()
	if e.current != a || (e.state != StateCodeRequested && e.state != StateCodeSent) {
		e.mu.Unlock()
		observability.WithTraceID(a.ctx, e.logger).DebugContext(a.ctx, "automatic verification ignored", "attempt_id", a.id)
		return
	}
	e.state = StateVerifying
	e.mu.Unlock()

	e.finalizeAsync(a.ctx, a, cred)
}

// onDispatchFailed ends an attempt still waiting for its code. Once the code
// is sent the dispatch has produced its outcome and later failures are
// dropped.
func (e *Engine) onDispatchFailed(a *attempt, err error) {
	defer a.ack()
	logger := observability.WithTraceID(a.ctx, e.logger).With("attempt_id", a.id)

	e.mu.Lock()
	if e.current != a || e.state != StateCodeRequested {
		e.mu.Unlock()
		logger.DebugContext(a.ctx, "verification failure after dispatch settled ignored", "error", err)
		return
	}
	res := classify(a.ctx, phaseDispatch, err)
	e.completeLocked(res)
	e.mu.Unlock()

	logger.WarnContext(a.ctx, "phone.code_request_failed", "error", err)
	e.emit(a.ctx, a, res)
}

// confirm starts finalization of code against the held verification ID and
// reports whether it did.
func (e *Engine) confirm(ctx context.Context, code string) bool {
	logger := observability.WithTraceID(ctx, e.logger)

	e.mu.Lock()
	a := e.current
	verificationID := e.session.VerificationID
	if a == nil || verificationID == "" {
		e.mu.Unlock()
		logger.DebugContext(ctx, "confirmation ignored, no code sent")
		return false
	}
	switch e.state {
	case StateCodeRequested:
		e.mu.Unlock()
		logger.DebugContext(ctx, "confirmation ignored, code request in flight", "attempt_id", a.id)
		return false
	case StateVerifying:
		e.mu.Unlock()
		logger.DebugContext(ctx, "confirmation ignored, verification in progress", "attempt_id", a.id)
		return false
	}
	if _, ok := e.outcome.(auth.Success); ok && e.state == StateCompleted {
		e.mu.Unlock()
		logger.DebugContext(ctx, "confirmation ignored, already signed in", "attempt_id", a.id)
		return false
	}
	e.session.PendingCode = domain.SecretString(code)
	e.state = StateVerifying
	e.mu.Unlock()

	e.finalizeAsync(ctx, a, NewCredential(verificationID, code))
	return true
}

// finalizeAsync exchanges cred in the background and emits the terminal
// result. The result is emitted even if a was superseded or the engine was
// destroyed meanwhile; only the state update is skipped.
func (e *Engine) finalizeAsync(ctx context.Context, a *attempt, cred Credential) {
	e.bgWG.Add(1)
	go func() {
		defer e.bgWG.Done()

		res := e.finalize(ctx, a, cred)

		e.mu.Lock()
		if e.current == a && e.state == StateVerifying {
			e.session.PendingCode = ""
			e.completeLocked(res)
		}
		e.mu.Unlock()

		e.emit(ctx, a, res)
	}()
}

func (e *Engine) finalize(ctx context.Context, a *attempt, cred Credential) auth.Result {
	ctx, span := tracer.Start(ctx, "phone.finalize")
	defer span.End()

	span.SetAttributes(attribute.Bool("auto_retrieved", cred.AutoRetrieved))

	res, err := e.exchange(ctx, a, cred)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return classify(ctx, phaseConfirm, err)
	}
	return res
}

func (e *Engine) exchange(ctx context.Context, a *attempt, cred Credential) (auth.Result, error) {
	logger := observability.WithTraceID(ctx, e.logger).With("attempt_id", a.id)

	if cred.AutoRetrieved && cred.Code != "" {
		e.mu.Lock()
		listener := e.listener
		e.mu.Unlock()
		if listener != nil {
			listener.OnSMSReceived(cred.Code)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	account, err := e.exchanger.SignIn(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("sign in with phone credential: %w", err)
	}

	if a.username != "" && !account.CreatedNow {
		logger.WarnContext(ctx, "registration resolved to an existing account")
		return nil, auth.NewError(domain.ErrAccountConflict, nil)
	}

	if err := e.exchanger.LinkCredential(ctx, account.UID, cred); err != nil {
		logger.DebugContext(ctx, "link phone credential failed, ignoring", "error", err)
	}

	token, err := e.exchanger.IDToken(ctx, account.UID, true)
	if err != nil {
		return nil, fmt.Errorf("get id token: %w", err)
	}
	if token == "" {
		return nil, auth.NewError(domain.ErrAuthorizationFailure, nil)
	}

	username := account.DisplayName
	if username == "" {
		username = a.username
	}

	logger.InfoContext(ctx, "phone.signed_in", "user_id", account.UID, "created", account.CreatedNow)
	return auth.Success{Token: token, UserID: account.UID, Username: username}, nil
}

// completeLocked records a terminal result. Caller holds e.mu.
func (e *Engine) completeLocked(res auth.Result) {
	e.state = StateCompleted
	e.outcome = res
}

func (e *Engine) emit(ctx context.Context, a *attempt, res auth.Result) {
	if authErr, ok := res.(*auth.Error); ok {
		reason := "unknown"
		if authErr.Kind != nil {
			reason = authErr.Kind.Error()
		}
		authFailuresTotal.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
			attribute.String("provider", ProviderName),
			attribute.String("reason", reason),
		))
	}
	observability.WithTraceID(ctx, e.logger).DebugContext(ctx, "phone.attempt_completed", "attempt_id", a.id, "kind", auth.KindOf(res))
	e.Emit(res)
}
