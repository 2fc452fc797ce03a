package bus

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/schoolhouse/pkg/apierrors"
	"github.com/platinummonkey/schoolhouse/pkg/observability"
	"github.com/platinummonkey/schoolhouse/pkg/storage"
)

// Message is a command or query value
type Message interface {
	MessageName() string
}

// None is the result of handlers that return nothing
type None struct{}

// Kind distinguishes commands, which mutate, from queries
type Kind string

const (
	KindCommand Kind = "command"
	KindQuery   Kind = "query"
)

// Registration binds one message name to its handler
type Registration struct {
	name   string
	kind   Kind
	invoke func(ctx context.Context, msg Message) (interface{}, error)
}

// Name returns the message name the registration handles
func (r Registration) Name() string { return r.name }

// Kind returns whether the registration is a command or a query
func (r Registration) Kind() Kind { return r.kind }

// Command registers a handler that runs inside a unit of work
func Command[M Message, R any](handler func(ctx context.Context, msg M) (R, error)) Registration {
	return register(KindCommand, handler)
}

// Query registers a handler that runs without a transaction
func Query[M Message, R any](handler func(ctx context.Context, msg M) (R, error)) Registration {
	return register(KindQuery, handler)
}

func register[M Message, R any](kind Kind, handler func(ctx context.Context, msg M) (R, error)) Registration {
	var zero M
	return Registration{
		name: zero.MessageName(),
		kind: kind,
		invoke: func(ctx context.Context, msg Message) (interface{}, error) {
			typed, ok := msg.(M)
			if !ok {
				return nil, apierrors.Internal("message type mismatch", fmt.Errorf("%s: got %T", zero.MessageName(), msg))
			}
			return handler(ctx, typed)
		},
	}
}

// Option configures a Bus
type Option func(*Bus)

// WithTracerProvider sets the provider used for dispatch spans. A nil
// provider keeps the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(b *Bus) {
		if tp != nil {
			b.tracer = tp.Tracer("schoolhouse/bus")
		}
	}
}

// WithMetrics records dispatch counts and durations
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// Bus is an immutable message name to handler table
type Bus struct {
	handlers map[string]Registration
	uow      storage.UnitOfWork
	tracer   trace.Tracer
	metrics  *observability.Metrics
}

// New builds a bus. Duplicate message names are an error.
func New(uow storage.UnitOfWork, registrations []Registration, opts ...Option) (*Bus, error) {
	if uow == nil {
		return nil, fmt.Errorf("bus: unit of work is required")
	}
	b := &Bus{
		handlers: make(map[string]Registration, len(registrations)),
		uow:      uow,
		tracer:   otel.Tracer("schoolhouse/bus"),
	}
	for _, reg := range registrations {
		if reg.name == "" || reg.invoke == nil {
			return nil, fmt.Errorf("bus: invalid registration")
		}
		if _, exists := b.handlers[reg.name]; exists {
			return nil, fmt.Errorf("bus: duplicate handler for %s", reg.name)
		}
		b.handlers[reg.name] = reg
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Require reports every name that has no handler
func (b *Bus) Require(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, ok := b.handlers[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("bus: no handler registered for %v", missing)
	}
	return nil
}

// Names returns the registered message names in sorted order
func (b *Bus) Names() []string {
	names := make([]string, 0, len(b.handlers))
	for name := range b.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch sends msg to its handler and returns the handler's result
func Dispatch[R any](ctx context.Context, b *Bus, msg Message) (R, error) {
	var zero R
	out, err := b.dispatch(ctx, msg)
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	result, ok := out.(R)
	if !ok {
		return zero, apierrors.Internal("handler result type mismatch", fmt.Errorf("%s: got %T, want %T", msg.MessageName(), out, zero))
	}
	return result, nil
}

func (b *Bus) dispatch(ctx context.Context, msg Message) (out interface{}, err error) {
	name := msg.MessageName()
	reg, ok := b.handlers[name]
	if !ok {
		return nil, apierrors.Internal("no handler registered", fmt.Errorf("bus: %s", name))
	}

	ctx, span := b.tracer.Start(ctx, "bus."+string(reg.kind)+"."+name,
		trace.WithAttributes(
			attribute.String("bus.kind", string(reg.kind)),
			attribute.String("bus.message", name),
		),
	)
	start := time.Now()
	defer func() {
		if perr := observability.MustRecover(recover()); perr != nil {
			observability.FromContext(ctx).WithError(perr).WithField("message", name).Error("handler panicked")
			out, err = nil, apierrors.Internal("handler panicked", perr)
		}
		b.observe(reg, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(apierrors.KindOf(err)))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	if reg.kind == KindQuery {
		return reg.invoke(ctx, msg)
	}

	err = b.uow.RunInTx(ctx, func(txCtx context.Context) error {
		var herr error
		out, herr = reg.invoke(txCtx, msg)
		return herr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bus) observe(reg Registration, elapsed time.Duration, err error) {
	if b.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(apierrors.KindOf(err))
	}
	b.metrics.BusDispatchTotal.WithLabelValues(string(reg.kind), reg.name, outcome).Inc()
	b.metrics.BusDispatchDuration.WithLabelValues(string(reg.kind), reg.name).Observe(elapsed.Seconds())
}
