package exporter

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"golang.org/x/net/http2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"

	"github.com/spire-labs/telemetry/internal/event"
	tlsconfig "github.com/spire-labs/telemetry/internal/tls"
)

// Protocol selects the OTLP transport.
type Protocol string

const (
	// ProtocolGRPC uses OTLP/gRPC.
	ProtocolGRPC Protocol = "grpc"
	// ProtocolHTTP uses OTLP/HTTP with protobuf payloads.
	ProtocolHTTP Protocol = "http"
)

// Default OTLP/HTTP signal paths.
const (
	logsPath    = "/v1/logs"
	tracesPath  = "/v1/traces"
	metricsPath = "/v1/metrics"
)

// Config holds exporter connection settings.
type Config struct {
	// Endpoint is the collector address (host:port for gRPC, URL for HTTP).
	Endpoint string
	// Protocol is the transport (grpc or http). Defaults to grpc.
	Protocol Protocol
	// Insecure disables TLS.
	Insecure bool
	// Timeout is the per-attempt export timeout.
	Timeout time.Duration
	// Headers are added to every export call (auth tokens etc.).
	Headers map[string]string
	// Compression applies to HTTP payloads.
	Compression Compression
	// TLS customizes certificate handling when Insecure is false.
	TLS tlsconfig.ClientConfig

	// HTTP connection pool settings.
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	ForceAttemptHTTP2   bool
}

// Exporter sends encoded batches to the collector.
type Exporter interface {
	Export(ctx context.Context, reqs event.Requests) error
	Close() error
}

// OTLPExporter is the network exporter for all three OTLP signals over a
// single connection.
type OTLPExporter struct {
	protocol    Protocol
	timeout     time.Duration
	headers     map[string]string
	compression Compression

	// gRPC transport
	grpcConn      *grpc.ClientConn
	logsClient    collogspb.LogsServiceClient
	tracesClient  coltracepb.TraceServiceClient
	metricsClient colmetricspb.MetricsServiceClient

	// HTTP transport
	httpClient *http.Client
	logsURL    string
	tracesURL  string
	metricsURL string
}

// New creates an OTLPExporter for the configured protocol.
func New(cfg Config) (*OTLPExporter, error) {
	if cfg.Protocol == "" {
		cfg.Protocol = ProtocolGRPC
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	switch cfg.Protocol {
	case ProtocolGRPC:
		return newGRPCExporter(cfg)
	case ProtocolHTTP:
		return newHTTPExporter(cfg)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", cfg.Protocol)
	}
}

// clientTLS builds the TLS config for secure connections.
func clientTLS(cfg Config) (*tls.Config, error) {
	if cfg.TLS.IsZero() {
		return &tls.Config{MinVersion: tls.VersionTLS12}, nil
	}
	return tlsconfig.NewClientTLSConfig(cfg.TLS)
}

func newGRPCExporter(cfg Config) (*OTLPExporter, error) {
	var opts []grpc.DialOption
	if cfg.Insecure {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		tc, err := clientTLS(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tc)))
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	conn, err := grpc.NewClient(endpoint, opts...)
	if err != nil {
		return nil, err
	}

	return &OTLPExporter{
		protocol:      ProtocolGRPC,
		timeout:       cfg.Timeout,
		headers:       cfg.Headers,
		grpcConn:      conn,
		logsClient:    collogspb.NewLogsServiceClient(conn),
		tracesClient:  coltracepb.NewTraceServiceClient(conn),
		metricsClient: colmetricspb.NewMetricsServiceClient(conn),
	}, nil
}

func newHTTPExporter(cfg Config) (*OTLPExporter, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     cfg.ForceAttemptHTTP2,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if transport.MaxIdleConns == 0 {
		transport.MaxIdleConns = 100
	}
	if transport.MaxIdleConnsPerHost == 0 {
		transport.MaxIdleConnsPerHost = 100
	}
	if transport.IdleConnTimeout == 0 {
		transport.IdleConnTimeout = 90 * time.Second
	}
	if !cfg.Insecure {
		tc, err := clientTLS(cfg)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tc
	}
	if cfg.ForceAttemptHTTP2 || transport.TLSClientConfig != nil {
		// Errors here leave the transport on HTTP/1.1, which still works.
		_, _ = http2.ConfigureTransports(transport)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		scheme := "https"
		if cfg.Insecure {
			scheme = "http"
		}
		endpoint = scheme + "://" + endpoint
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	return &OTLPExporter{
		protocol:    ProtocolHTTP,
		timeout:     cfg.Timeout,
		headers:     cfg.Headers,
		compression: cfg.Compression,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		logsURL:    endpoint + logsPath,
		tracesURL:  endpoint + tracesPath,
		metricsURL: endpoint + metricsPath,
	}, nil
}

// Export sends every non-nil signal request from the batch, applying the
// per-attempt timeout. Delivery stops at the first failing signal; the
// retry layer resends the whole batch, and collectors deduplicate by
// embedded timestamps, so partial redelivery is acceptable.
func (e *OTLPExporter) Export(ctx context.Context, reqs event.Requests) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	switch e.protocol {
	case ProtocolGRPC:
		return e.exportGRPC(ctx, reqs)
	case ProtocolHTTP:
		return e.exportHTTP(ctx, reqs)
	default:
		return fmt.Errorf("unsupported protocol: %s", e.protocol)
	}
}

func (e *OTLPExporter) exportGRPC(ctx context.Context, reqs event.Requests) error {
	if len(e.headers) > 0 {
		pairs := make([]string, 0, len(e.headers)*2)
		for k, v := range e.headers {
			pairs = append(pairs, k, v)
		}
		ctx = metadata.AppendToOutgoingContext(ctx, pairs...)
	}

	if reqs.Logs != nil {
		exportRequestsTotal.WithLabelValues("logs").Inc()
		if _, err := e.logsClient.Export(ctx, reqs.Logs); err != nil {
			return recordError(classifyGRPC(err))
		}
		exportBytesTotal.WithLabelValues("grpc").Add(float64(proto.Size(reqs.Logs)))
	}
	if reqs.Traces != nil {
		exportRequestsTotal.WithLabelValues("traces").Inc()
		if _, err := e.tracesClient.Export(ctx, reqs.Traces); err != nil {
			return recordError(classifyGRPC(err))
		}
		exportBytesTotal.WithLabelValues("grpc").Add(float64(proto.Size(reqs.Traces)))
	}
	if reqs.Metrics != nil {
		exportRequestsTotal.WithLabelValues("metrics").Inc()
		if _, err := e.metricsClient.Export(ctx, reqs.Metrics); err != nil {
			return recordError(classifyGRPC(err))
		}
		exportBytesTotal.WithLabelValues("grpc").Add(float64(proto.Size(reqs.Metrics)))
	}
	return nil
}

func (e *OTLPExporter) exportHTTP(ctx context.Context, reqs event.Requests) error {
	if reqs.Logs != nil {
		if err := e.postProto(ctx, e.logsURL, "logs", reqs.Logs); err != nil {
			return err
		}
	}
	if reqs.Traces != nil {
		if err := e.postProto(ctx, e.tracesURL, "traces", reqs.Traces); err != nil {
			return err
		}
	}
	if reqs.Metrics != nil {
		if err := e.postProto(ctx, e.metricsURL, "metrics", reqs.Metrics); err != nil {
			return err
		}
	}
	return nil
}

func (e *OTLPExporter) postProto(ctx context.Context, url, signal string, msg proto.Message) error {
	body, err := proto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", signal, err)
	}

	compressionLabel := "none"
	if e.compression != CompressionNone && e.compression != "" {
		body, err = compress(body, e.compression)
		if err != nil {
			return fmt.Errorf("compress %s request: %w", signal, err)
		}
		compressionLabel = string(e.compression)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", signal, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	if encoding := e.compression.ContentEncoding(); encoding != "" {
		httpReq.Header.Set("Content-Encoding", encoding)
	}
	for k, v := range e.headers {
		httpReq.Header.Set(k, v)
	}

	exportRequestsTotal.WithLabelValues(signal).Inc()

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return recordError(classifyTransport(err))
	}
	defer resp.Body.Close()

	// Drain to allow connection reuse.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return recordError(classifyHTTPStatus(resp.StatusCode))
	}

	exportBytesTotal.WithLabelValues(compressionLabel).Add(float64(len(body)))
	return nil
}

// Close releases the underlying connection.
func (e *OTLPExporter) Close() error {
	switch e.protocol {
	case ProtocolGRPC:
		if e.grpcConn != nil {
			return e.grpcConn.Close()
		}
	case ProtocolHTTP:
		if e.httpClient != nil {
			e.httpClient.CloseIdleConnections()
		}
	}
	return nil
}

func recordError(ee *ExportError) error {
	exportErrorsTotal.WithLabelValues(string(ee.Type)).Inc()
	return ee
}
