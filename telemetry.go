// Package telemetry is an embeddable export pipeline for logs, spans, and
// metrics. Applications record events through a Client; a bounded queue
// absorbs bursts, batches form by size and age, and an OTLP exporter ships
// them with retries, a circuit breaker, and bounded export concurrency.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/spire-labs/telemetry/internal/config"
	"github.com/spire-labs/telemetry/internal/event"
	"github.com/spire-labs/telemetry/internal/exporter"
	"github.com/spire-labs/telemetry/internal/logging"
	"github.com/spire-labs/telemetry/internal/pipeline"
	"github.com/spire-labs/telemetry/internal/queue"
	"github.com/spire-labs/telemetry/internal/stats"
	tlsconfig "github.com/spire-labs/telemetry/internal/tls"
)

// Severity numbers for Log, matching the OTEL log data model.
const (
	SeverityDebug = event.SeverityDebug
	SeverityInfo  = event.SeverityInfo
	SeverityWarn  = event.SeverityWarn
	SeverityError = event.SeverityError
	SeverityFatal = event.SeverityFatal
)

// Client is the application-facing handle on a running pipeline.
type Client struct {
	pipe      *pipeline.Pipeline
	stats     *stats.Collector
	statsStop context.CancelFunc
	statsDone chan struct{}
}

// Init validates cfg, connects the exporter, and starts the pipeline.
// The returned Client is safe for concurrent use. Call Shutdown to flush
// and release resources.
func Init(ctx context.Context, cfg config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	headers, err := cfg.Headers()
	if err != nil {
		return nil, err
	}
	compression, err := exporter.ParseCompression(cfg.ExporterCompression)
	if err != nil {
		return nil, err
	}
	policy, err := queue.ParsePolicy(cfg.FullPolicy)
	if err != nil {
		return nil, err
	}

	identity := resourceIdentity(cfg)
	logging.SetResource(identity)

	res, err := resource.New(ctx, resource.WithAttributes(resourceAttrs(identity)...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	enc := event.NewEncoder(res.Attributes())

	exp, err := exporter.New(exporter.Config{
		Endpoint:    cfg.ExporterEndpoint,
		Protocol:    exporter.Protocol(cfg.ExporterProtocol),
		Insecure:    cfg.ExporterInsecure,
		Timeout:     cfg.ExportTimeout,
		Headers:     headers,
		Compression: compression,
		TLS: tlsconfig.ClientConfig{
			CertFile:           cfg.TLSCertFile,
			KeyFile:            cfg.TLSKeyFile,
			CAFile:             cfg.TLSCAFile,
			ServerName:         cfg.TLSServerName,
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	c := &Client{
		stats: stats.NewCollector(stats.Config{}),
	}

	pipe, err := pipeline.New(pipeline.Config{
		Queue: queue.Config{
			Capacity:     cfg.QueueCapacity,
			FullPolicy:   policy,
			BlockTimeout: cfg.BlockTimeout,
		},
		MaxBatchSize: cfg.MaxBatchSize,
		MaxBatchAge:  cfg.MaxBatchAge,
		Retry: exporter.RetryConfig{
			MaxAttempts: cfg.MaxAttempts,
			BaseBackoff: cfg.BaseBackoff,
			MaxBackoff:  cfg.MaxBackoff,
		},
		MaxInFlightExports: cfg.MaxInFlightExports,
		ShutdownDeadline:   cfg.ShutdownDeadline,
		BreakerThreshold:   cfg.BreakerThreshold,
		BreakerCooldown:    cfg.BreakerCooldown,
		Observer:           c.stats,
	}, enc, exp)
	if err != nil {
		exp.Close()
		return nil, err
	}
	c.pipe = pipe

	if cfg.StatsInterval > 0 {
		statsCtx, cancel := context.WithCancel(context.Background())
		c.statsStop = cancel
		c.statsDone = make(chan struct{})
		go func() {
			defer close(c.statsDone)
			c.stats.StartPeriodicLogging(statsCtx, cfg.StatsInterval)
		}()
	}

	return c, nil
}

// resourceIdentity resolves the service identity stamped on exported
// events and on the pipeline's own log entries. Commit and environment
// fall back to CI conventions so deployed binaries are attributable
// without flags.
func resourceIdentity(cfg config.Config) map[string]string {
	commit := cfg.Commit
	if commit == "" {
		commit = envOr("GITHUB_SHA", "dev")
	}
	environment := cfg.Environment
	if environment == "" {
		environment = envOr("ENVIRONMENT", "dev")
	}
	return map[string]string{
		"service.name":        cfg.ServiceName,
		"service.version":     cfg.ServiceVersion,
		"service.commit":      commit,
		"service.environment": environment,
	}
}

func resourceAttrs(identity map[string]string) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.ServiceName(identity["service.name"]),
		semconv.ServiceVersion(identity["service.version"]),
		attribute.String("service.commit", identity["service.commit"]),
		attribute.String("service.environment", identity["service.environment"]),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Record submits a pre-built event to the pipeline. It never blocks longer
// than the configured backpressure policy allows.
func (c *Client) Record(ev event.Event) error {
	return c.pipe.Record(ev)
}

// Log records a log event, correlated with the request trace when ctx
// carries one.
func (c *Client) Log(ctx context.Context, severity int32, body string, attrs ...attribute.KeyValue) error {
	return c.Record(stampFromContext(ctx, event.NewLog(severity, body, attrs...)))
}

// Info records an info-level log event.
func (c *Client) Info(ctx context.Context, body string, attrs ...attribute.KeyValue) error {
	return c.Log(ctx, event.SeverityInfo, body, attrs...)
}

// Warn records a warn-level log event.
func (c *Client) Warn(ctx context.Context, body string, attrs ...attribute.KeyValue) error {
	return c.Log(ctx, event.SeverityWarn, body, attrs...)
}

// Error records an error-level log event.
func (c *Client) Error(ctx context.Context, body string, attrs ...attribute.KeyValue) error {
	return c.Log(ctx, event.SeverityError, body, attrs...)
}

// Metric records a metric data point, correlated with the request trace
// when ctx carries one.
func (c *Client) Metric(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) error {
	return c.Record(stampFromContext(ctx, event.NewMetric(name, value, attrs...)))
}

// Span is an open span started by StartSpan. End records its completion.
type Span struct {
	client  *Client
	name    string
	traceID trace.TraceID
	spanID  trace.SpanID
	start   time.Time
	attrs   []attribute.KeyValue
}

// StartSpan records a span-start event and returns a context carrying the
// span's correlation IDs, so events recorded under it join the same trace.
// Nested spans reuse the parent trace.
func (c *Client) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	traceID, _, ok := event.CorrelationFromContext(ctx)
	if !ok {
		traceID = event.NewTraceID()
	}
	spanID := event.NewSpanID()

	s := &Span{
		client:  c,
		name:    name,
		traceID: traceID,
		spanID:  spanID,
		start:   time.Now(),
		attrs:   attrs,
	}
	_ = c.Record(event.NewSpanStart(name, traceID, spanID, attrs...))
	return event.ContextWithCorrelation(ctx, traceID, spanID), s
}

// End records the span-end event carrying the span's full timing.
func (s *Span) End(attrs ...attribute.KeyValue) error {
	all := append(append([]attribute.KeyValue{}, s.attrs...), attrs...)
	return s.client.Record(event.NewSpanEnd(s.name, s.traceID, s.spanID, s.start, all...))
}

func stampFromContext(ctx context.Context, ev event.Event) event.Event {
	if traceID, spanID, ok := event.CorrelationFromContext(ctx); ok {
		return ev.WithCorrelation(traceID, spanID)
	}
	return ev
}

// Snapshot reports current pipeline counters and queue depth.
func (c *Client) Snapshot() pipeline.Snapshot {
	return c.pipe.Snapshot()
}

// Stats reports the client's event statistics.
func (c *Client) Stats() stats.Stats {
	return c.stats.Snapshot()
}

// Shutdown stops intake, drains what it can before the deadline, and
// returns the final delivery report. Safe to call more than once.
func (c *Client) Shutdown(ctx context.Context) pipeline.Report {
	if c.statsStop != nil {
		c.statsStop()
		<-c.statsDone
	}
	return c.pipe.Shutdown(ctx)
}
