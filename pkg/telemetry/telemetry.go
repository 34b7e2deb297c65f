package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/stowage/pkg/engine"
)

// Telemetry bundles the logger, tracer, metrics and event publisher built
// from one Config.
type Telemetry struct {
	Config  *Config
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher

	mu            sync.Mutex
	metricsServer *http.Server
}

type telemetryKey struct{}

// NewTelemetry validates cfg and builds every component. Components built
// before a failure are released.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	tracer, err := NewTracer(cfg)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		_ = tracer.Shutdown(context.Background())
		_ = logger.Close()
		return nil, err
	}
	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		_ = tracer.Shutdown(context.Background())
		_ = logger.Close()
		return nil, err
	}

	return &Telemetry{Config: cfg, Logger: logger, Tracer: tracer, Metrics: metrics, Events: events}, nil
}

// WithContext stores t and its logger in ctx.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromContext returns the Telemetry stored by WithContext, or nil.
func FromContext(ctx context.Context) *Telemetry {
	t, _ := ctx.Value(telemetryKey{}).(*Telemetry)
	return t
}

// Observer returns an engine.Observer reporting to t.
func (t *Telemetry) Observer() *EngineObserver {
	return NewEngineObserver(t.Logger, t.Metrics, t.Events)
}

// ObserveCatalogue refreshes the catalogue gauges from eng. It takes the
// engine's read lock, so it must not run inside an observer callback.
func (t *Telemetry) ObserveCatalogue(ctx context.Context, eng *engine.Engine) {
	s := eng.Stats()
	t.Metrics.SetCatalogueSize(s.Containers, s.Items, s.Assigned)
	t.Metrics.ResetContainerMass()
	for _, a := range eng.Arrangement(ctx) {
		t.Metrics.SetContainerMass(a.ContainerID, a.Mass)
	}
}

// StartMetricsServer serves the registry on Metrics.ListenAddress. It does
// nothing when metrics are off or no address is configured. The listener is
// bound before returning so address errors surface here.
func (t *Telemetry) StartMetricsServer() error {
	mc := t.Config.Metrics
	if !mc.Enabled || mc.ListenAddress == "" {
		return nil
	}

	ln, err := net.Listen("tcp", mc.ListenAddress)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(mc.Path, t.Metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	t.mu.Lock()
	t.metricsServer = srv
	t.mu.Unlock()

	log := t.Logger.NewComponentLogger("metrics")
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics listener stopped")
		}
	}()
	log.Info().Str("address", ln.Addr().String()).Str("path", mc.Path).Msg("Serving metrics")
	return nil
}

// Shutdown stops the metrics listener, delivers queued events, flushes
// spans and closes the log file. It returns the first error but always runs
// every step.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	t.mu.Lock()
	srv := t.metricsServer
	t.metricsServer = nil
	t.mu.Unlock()
	if srv != nil {
		errs = append(errs, srv.Shutdown(ctx))
	}

	errs = append(errs, t.Events.Shutdown(ctx), t.Tracer.Shutdown(ctx), t.Logger.Close())
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Operation is one instrumented engine call: a span, an operation-scoped
// logger and a latency measurement.
type Operation struct {
	name    string
	started time.Time
	span    trace.Span
	logger  *Logger
	tel     *Telemetry
}

// StartOperation begins op. Without a Telemetry in ctx it still times the
// call and uses the context logger, but records no metrics.
func StartOperation(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, *Operation) {
	o := &Operation{name: op, started: time.Now(), tel: FromContext(ctx)}
	if o.tel == nil {
		o.span = trace.SpanFromContext(ctx)
		o.logger = LoggerFrom(ctx)
		return ctx, o
	}

	ctx, o.span = o.tel.Tracer.StartOperationSpan(ctx, op, attrs...)
	lc := o.tel.Logger.With().Str("operation", op)
	if sc := o.span.SpanContext(); sc.IsValid() {
		lc = lc.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}
	o.logger = &Logger{Logger: lc.Logger()}
	return o.logger.WithContext(ctx), o
}

// Logger returns the operation-scoped logger.
func (o *Operation) Logger() *Logger { return o.logger }

// Finish records the outcome. Engine errors count toward the error metrics
// by kind and code; anything else is "internal".
func (o *Operation) Finish(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	if o.tel == nil {
		return
	}

	o.tel.Metrics.RecordOperation(o.name, status, time.Since(o.started))
	if err != nil {
		kind, code := classify(err)
		o.tel.Metrics.RecordError(kind, code)
		o.span.SetAttributes(AttrErrorKind.String(kind), AttrErrorCode.String(code))
	}
	endSpan(o.span, err)
}

// InstrumentOperation runs fn as operation op.
func InstrumentOperation(ctx context.Context, op string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, o := StartOperation(ctx, op, attrs...)
	err := fn(ctx)
	o.Finish(err)
	return err
}

func classify(err error) (kind, code string) {
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		return string(ee.Kind), ee.Code
	}
	return "internal", ""
}
