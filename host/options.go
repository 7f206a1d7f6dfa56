package host

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/comalice/scxml/internal/content"
	"github.com/comalice/scxml/internal/production/publish"
)

// options collects Host construction parameters, applied via functional
// options the same way the teacher's Machine takes Option funcs
// (comalice/statechartx internal/core/machine.go).
type options struct {
	logger         *zap.Logger
	tracer         trace.Tracer
	clock          func() int64
	sessionID      string
	queueSize      int
	pollInterval   int64 // nanoseconds between delayed-send scheduler checks
	invokeHandlers map[string]content.InvokeHandler
	sendHandlers   map[string]content.SendHandler
	publisher      publish.Publisher
	registry       Registry
}

// Option configures a Host at construction time.
type Option func(*options)

// WithLogger sets the structured logger used for <log> output and host
// lifecycle/transition events. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracer sets the OpenTelemetry tracer used for the initialization span
// and per-macrostep spans. Defaults to the global tracer named "scxml/host".
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithClock overrides the monotonic clock (nanoseconds) used for delayed
// send deadlines. Defaults to time.Now().UnixNano(); tests supply a fake.
func WithClock(c func() int64) Option {
	return func(o *options) { o.clock = c }
}

// WithSessionID sets the instance's session id, surfaced via `_event` and
// used as the invoke-id prefix. Defaults to a generated uuid.
func WithSessionID(id string) Option {
	return func(o *options) { o.sessionID = id }
}

// WithQueueSize sets the external-event inbox buffer size. Defaults to 64.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithInvokeHandler registers the handler for <invoke type="typ">.
func WithInvokeHandler(typ string, h content.InvokeHandler) Option {
	return func(o *options) { o.invokeHandlers[typ] = h }
}

// WithSendHandler registers the handler for <send type="typ"> whose target
// leaves the instance.
func WithSendHandler(typ string, h content.SendHandler) Option {
	return func(o *options) { o.sendHandlers[typ] = h }
}

// WithPublisher registers an observer notified, once per processed
// macrostep event, of the event and the active-state transition it
// drove (internal/production/publish.Publisher). Unset by default - a
// Host with no publisher configured pays no publishing cost.
func WithPublisher(p publish.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithRegistry registers a Registry to receive a versioned Snapshot after
// every processed macrostep event - e.g. internal/production's
// InMemoryRegistry, for a supervisor tracking multiple concurrently
// running instances. Unset by default.
func WithRegistry(r Registry) Option {
	return func(o *options) { o.registry = r }
}
