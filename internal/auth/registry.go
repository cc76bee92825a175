package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/aelexs/authkit/internal/domain"
	"github.com/aelexs/authkit/internal/observability"
)

var resultsTotal metric.Int64Counter

func init() {
	m := otel.Meter("auth")

	resultsTotal, _ = m.Int64Counter("auth_results_total",
		metric.WithDescription("Total terminal login results by provider and kind"))
}

// Factory constructs a provider on first registration.
type Factory func() Provider

type entry struct {
	provider Provider
	sub      *Subscription
}

// Registry owns provider instances by name and merges their result streams.
// Providers are built lazily, once per name, and belong to the registry until
// Destroy.
type Registry struct {
	ctx    context.Context // values only; never cancelled
	logger *slog.Logger
	merged *Stream
	group  singleflight.Group

	mu        sync.Mutex
	providers map[string]*entry
	channel   ResultChannel

	fwdWG sync.WaitGroup // owns stream forwarding goroutines
}

// NewRegistry creates an empty Registry owned by the scope of ctx. Result
// metrics and logs carry ctx's values (trace, baggage); its cancellation
// does not stop forwarding, Destroy does. A nil logger uses slog.Default().
func NewRegistry(ctx context.Context, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		ctx:       context.WithoutCancel(ctx),
		logger:    logger,
		merged:    NewStream(),
		providers: make(map[string]*entry),
	}
}

// Register returns the provider registered under name, building it with
// factory if absent. factory runs at most once per name, even when several
// goroutines register the same name concurrently. A provider whose request
// code is already claimed is destroyed and rejected.
func (r *Registry) Register(name string, factory Factory) (Provider, error) {
	if p, ok := r.Provider(name); ok {
		return p, nil
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		if p, ok := r.Provider(name); ok {
			return p, nil
		}

		p := factory()
		if p == nil {
			return nil, fmt.Errorf("provider %q: factory returned nil: %w", name, domain.ErrInvalidInput)
		}

		r.mu.Lock()
		for other, e := range r.providers {
			if e.provider.RequestCode() == p.RequestCode() {
				r.mu.Unlock()
				p.Destroy()
				return nil, fmt.Errorf("provider %q: request code %d held by %q: %w",
					name, p.RequestCode(), other, domain.ErrRequestCodeConflict)
			}
		}
		if ch := r.channel; ch != nil {
			p.SetResultChannel(ch)
		}
		r.providers[name] = r.forward(name, p)
		r.mu.Unlock()

		r.logger.Debug("auth provider registered", "provider", name, "request_code", p.RequestCode())
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Provider), nil
}

// Register is the typed form of Registry.Register. It fails with
// domain.ErrProviderTypeMismatch when name already holds a provider of
// another type.
func Register[P Provider](r *Registry, name string, factory func() P) (P, error) {
	var zero P
	p, err := r.Register(name, func() Provider { return factory() })
	if err != nil {
		return zero, err
	}
	typed, ok := p.(P)
	if !ok {
		return zero, fmt.Errorf("provider %q is %T: %w", name, p, domain.ErrProviderTypeMismatch)
	}
	return typed, nil
}

// forward pipes p's results into the merged stream. Caller holds r.mu.
func (r *Registry) forward(name string, p Provider) *entry {
	sub := p.Results().Subscribe()
	r.fwdWG.Add(1)
	go func() {
		defer r.fwdWG.Done()
		for res := range sub.C() {
			kind := KindOf(res)
			resultsTotal.Add(r.ctx, 1, metric.WithAttributes(
				attribute.String("provider", name),
				attribute.String("kind", string(kind)),
			))
			observability.WithTraceID(r.ctx, r.logger).DebugContext(r.ctx, "auth result", "provider", name, "kind", kind)
			r.merged.Emit(res)
		}
	}()
	return &entry{provider: p, sub: sub}
}

// Provider returns the provider registered under name.
func (r *Registry) Provider(name string) (Provider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.providers[name]
	if !ok {
		return nil, false
	}
	return e.provider, true
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.providers)
}

func (r *Registry) snapshot() map[string]Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Provider, len(r.providers))
	for name, e := range r.providers {
		out[name] = e.provider
	}
	return out
}

// Init initializes every registered provider with an empty InitConfig, in no
// particular order.
func (r *Registry) Init() {
	for _, p := range r.snapshot() {
		p.Init(InitConfig{})
	}
}

// SetResultChannel installs ch on every registered provider and on providers
// registered later.
func (r *Registry) SetResultChannel(ch ResultChannel) {
	r.mu.Lock()
	r.channel = ch
	r.mu.Unlock()

	for _, p := range r.snapshot() {
		p.SetResultChannel(ch)
	}
}

// HandleExternalResult offers res to every provider and reports whether any
// of them consumed it.
func (r *Registry) HandleExternalResult(ctx context.Context, res ExternalResult) bool {
	handled := false
	for name, p := range r.snapshot() {
		if p.HandleExternalResult(ctx, res) {
			r.logger.DebugContext(ctx, "external result handled",
				"provider", name, "request_code", res.RequestCode)
			handled = true
		}
	}
	return handled
}

// Results returns the merged stream of every provider's results.
func (r *Registry) Results() *Stream {
	return r.merged
}

// Destroy destroys every provider and empties the registry. Forwarding
// goroutines have exited when it returns. Names may be registered again
// afterwards.
func (r *Registry) Destroy() {
	r.mu.Lock()
	entries := r.providers
	r.providers = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.sub.Close()
	}
	for name, e := range entries {
		e.provider.Destroy()
		r.logger.Debug("auth provider destroyed", "provider", name)
	}
	r.fwdWG.Wait()
}
