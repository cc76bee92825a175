package auth

import (
	"context"
	"sync"
)

// Well-known ExternalResult.Data keys.
const (
	DataSMSCode = "sms_code"
	DataIDToken = "id_token"
)

// SMSListener receives code delivery notifications from phone providers.
type SMSListener interface {
	// OnSMSSent is called once the backend has dispatched a code.
	OnSMSSent()
	// OnSMSReceived is called with a code the device retrieved on its own.
	OnSMSReceived(code string)
}

// SMSListenerFuncs adapts plain functions to SMSListener. Nil fields are
// skipped.
type SMSListenerFuncs struct {
	Sent     func()
	Received func(code string)
}

func (f SMSListenerFuncs) OnSMSSent() {
	if f.Sent != nil {
		f.Sent()
	}
}

func (f SMSListenerFuncs) OnSMSReceived(code string) {
	if f.Received != nil {
		f.Received(code)
	}
}

// InitConfig carries optional provider setup. A nil SMSListener leaves any
// previously configured listener in place.
type InitConfig struct {
	SMSListener SMSListener
}

// LaunchRequest asks the host to start an interactive flow whose outcome
// comes back later as an ExternalResult tagged with RequestCode.
type LaunchRequest struct {
	RequestCode int
	Action      string
	Params      map[string]string
}

// ResultChannel is the host side of the external result plumbing. Providers
// must tolerate a nil channel as "not available yet".
type ResultChannel interface {
	Launch(ctx context.Context, req LaunchRequest) error
}

// ResultChannelFunc adapts a function to ResultChannel.
type ResultChannelFunc func(ctx context.Context, req LaunchRequest) error

func (f ResultChannelFunc) Launch(ctx context.Context, req LaunchRequest) error {
	return f(ctx, req)
}

// ResultStatus reports how the host flow ended.
type ResultStatus int

const (
	StatusOK ResultStatus = iota
	StatusCanceled
)

// ExternalResult is an asynchronous host result routed back by request code.
type ExternalResult struct {
	RequestCode int
	Status      ResultStatus
	Data        map[string]string
}

// Value returns Data[key], or "" when absent.
func (r ExternalResult) Value(key string) string {
	return r.Data[key]
}

// Provider is one login mechanism.
type Provider interface {
	// RequestCode is the tag routing external results to this provider.
	RequestCode() int
	// Results is where the provider emits one terminal Result per attempt.
	Results() *Stream
	// Init prepares the provider. Calling it again is harmless.
	Init(cfg InitConfig)
	// Login begins or advances an attempt. The outcome arrives on Results.
	Login(ctx context.Context, req LoginRequest)
	// SetResultChannel installs or clears (nil) the host channel.
	SetResultChannel(ch ResultChannel)
	// HandleExternalResult reports whether the provider consumed res.
	HandleExternalResult(ctx context.Context, res ExternalResult) bool
	// Destroy releases per-attempt state.
	Destroy()
}

// Base holds what every provider has in common. Embed *Base and implement
// Init, Login and HandleExternalResult.
type Base struct {
	requestCode int
	stream      *Stream

	mu      sync.RWMutex
	channel ResultChannel
}

// NewBase creates a Base for a provider tagged with requestCode.
func NewBase(requestCode int) *Base {
	return &Base{
		requestCode: requestCode,
		stream:      NewStream(),
	}
}

func (b *Base) RequestCode() int { return b.requestCode }
func (b *Base) Results() *Stream { return b.stream }

func (b *Base) SetResultChannel(ch ResultChannel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channel = ch
}

// ResultChannel returns the installed host channel, or nil.
func (b *Base) ResultChannel() ResultChannel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.channel
}

// Emit publishes r on the provider's stream.
func (b *Base) Emit(r Result) {
	b.stream.Emit(r)
}

// Destroy is a no-op.
func (b *Base) Destroy() {}
