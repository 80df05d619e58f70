package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spire-labs/telemetry/internal/exporter"
	"github.com/spire-labs/telemetry/internal/queue"
)

// Config holds the full telemetry pipeline configuration.
type Config struct {
	// Service identity, stamped on every exported event.
	ServiceName    string
	ServiceVersion string
	Environment    string
	Commit         string

	// Exporter settings
	ExporterEndpoint    string
	ExporterProtocol    string
	ExporterInsecure    bool
	ExportTimeout       time.Duration
	ExporterCompression string
	ExporterHeaders     string // comma-separated key=value pairs

	// Exporter TLS settings, used when ExporterInsecure is false.
	TLSCertFile   string
	TLSKeyFile    string
	TLSCAFile     string
	TLSServerName string
	TLSSkipVerify bool

	// Queue settings
	QueueCapacity int
	FullPolicy    string
	BlockTimeout  time.Duration

	// Batch settings
	MaxBatchSize int
	MaxBatchAge  time.Duration

	// Retry settings
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// Circuit breaker settings
	BreakerThreshold int
	BreakerCooldown  time.Duration

	// Concurrency and shutdown
	MaxInFlightExports int
	ShutdownDeadline   time.Duration

	// Stats logging interval (0 disables periodic stats)
	StatsInterval time.Duration

	// MetricsListenAddr serves Prometheus self-metrics when non-empty.
	MetricsListenAddr string
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		ServiceName:        "unknown-service",
		ExporterEndpoint:   "localhost:4317",
		ExporterProtocol:   "grpc",
		ExportTimeout:      10 * time.Second,
		QueueCapacity:      2048,
		FullPolicy:         string(queue.DropNewest),
		BlockTimeout:       5 * time.Second,
		MaxBatchSize:       512,
		MaxBatchAge:        5 * time.Second,
		MaxAttempts:        5,
		BaseBackoff:        500 * time.Millisecond,
		MaxBackoff:         30 * time.Second,
		BreakerThreshold:   5,
		BreakerCooldown:    30 * time.Second,
		MaxInFlightExports: 4,
		ShutdownDeadline:   5 * time.Second,
		StatsInterval:      time.Minute,
	}
}

// ParseFlags builds configuration from defaults, an optional YAML file
// (-config), and command-line flags, in increasing precedence.
func ParseFlags() (*Config, error) {
	return parseFlags(flag.CommandLine, os.Args[1:])
}

func parseFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := Default()

	var configFile string
	fs.StringVar(&configFile, "config", "", "Path to YAML configuration file")

	fs.StringVar(&cfg.ServiceName, "service-name", cfg.ServiceName, "Service name stamped on exported telemetry")
	fs.StringVar(&cfg.ServiceVersion, "service-version", cfg.ServiceVersion, "Service version stamped on exported telemetry")
	fs.StringVar(&cfg.Environment, "environment", cfg.Environment, "Deployment environment (falls back to ENVIRONMENT, then \"dev\")")

	fs.StringVar(&cfg.ExporterEndpoint, "exporter-endpoint", cfg.ExporterEndpoint, "OTLP collector endpoint")
	fs.StringVar(&cfg.ExporterProtocol, "exporter-protocol", cfg.ExporterProtocol, "Exporter protocol: grpc or http")
	fs.BoolVar(&cfg.ExporterInsecure, "exporter-insecure", cfg.ExporterInsecure, "Disable TLS for the exporter connection")
	fs.DurationVar(&cfg.ExportTimeout, "export-timeout", cfg.ExportTimeout, "Per-attempt export timeout")
	fs.StringVar(&cfg.ExporterCompression, "exporter-compression", cfg.ExporterCompression, "HTTP payload compression: none, gzip, or zstd")
	fs.StringVar(&cfg.ExporterHeaders, "exporter-headers", cfg.ExporterHeaders, "Comma-separated key=value headers for export calls")

	fs.StringVar(&cfg.TLSCertFile, "tls-cert", cfg.TLSCertFile, "Client certificate file for mTLS")
	fs.StringVar(&cfg.TLSKeyFile, "tls-key", cfg.TLSKeyFile, "Client private key file for mTLS")
	fs.StringVar(&cfg.TLSCAFile, "tls-ca", cfg.TLSCAFile, "CA certificate file for collector verification")
	fs.StringVar(&cfg.TLSServerName, "tls-server-name", cfg.TLSServerName, "Override the expected collector certificate name")
	fs.BoolVar(&cfg.TLSSkipVerify, "tls-skip-verify", cfg.TLSSkipVerify, "Skip collector certificate verification")

	fs.IntVar(&cfg.QueueCapacity, "queue-capacity", cfg.QueueCapacity, "Maximum buffered events")
	fs.StringVar(&cfg.FullPolicy, "full-policy", cfg.FullPolicy, "Backpressure policy when the queue is full: block, drop_oldest, or drop_newest")
	fs.DurationVar(&cfg.BlockTimeout, "block-timeout", cfg.BlockTimeout, "Producer wait bound under the block policy")

	fs.IntVar(&cfg.MaxBatchSize, "max-batch-size", cfg.MaxBatchSize, "Events per export batch")
	fs.DurationVar(&cfg.MaxBatchAge, "max-batch-age", cfg.MaxBatchAge, "Flush a non-empty batch after this long")

	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Export attempts per batch including the first")
	fs.DurationVar(&cfg.BaseBackoff, "base-backoff", cfg.BaseBackoff, "Delay before the first retry")
	fs.DurationVar(&cfg.MaxBackoff, "max-backoff", cfg.MaxBackoff, "Cap on the exponential retry delay")

	fs.IntVar(&cfg.BreakerThreshold, "breaker-threshold", cfg.BreakerThreshold, "Consecutive failures before the circuit opens (negative disables)")
	fs.DurationVar(&cfg.BreakerCooldown, "breaker-cooldown", cfg.BreakerCooldown, "Open-circuit wait before probing")

	fs.IntVar(&cfg.MaxInFlightExports, "max-in-flight-exports", cfg.MaxInFlightExports, "Concurrent export calls")
	fs.DurationVar(&cfg.ShutdownDeadline, "shutdown-deadline", cfg.ShutdownDeadline, "Default bound on shutdown flushing")

	fs.DurationVar(&cfg.StatsInterval, "stats-interval", cfg.StatsInterval, "Periodic stats logging interval (0 disables)")
	fs.StringVar(&cfg.MetricsListenAddr, "metrics-listen", cfg.MetricsListenAddr, "Address for the Prometheus /metrics endpoint (empty disables)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if configFile != "" {
		// Flags win over the file: re-apply explicitly set flags after the
		// file overlay.
		fileCfg, err := LoadYAML(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
		merged := cfg
		fileCfg.overlay(&merged)
		fs.Visit(func(f *flag.Flag) {
			reapply(fs, f.Name, &merged, &cfg)
		})
		cfg = merged
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// reapply copies a single flag-set field from src into dst.
func reapply(fs *flag.FlagSet, name string, dst, src *Config) {
	switch name {
	case "service-name":
		dst.ServiceName = src.ServiceName
	case "service-version":
		dst.ServiceVersion = src.ServiceVersion
	case "environment":
		dst.Environment = src.Environment
	case "exporter-endpoint":
		dst.ExporterEndpoint = src.ExporterEndpoint
	case "exporter-protocol":
		dst.ExporterProtocol = src.ExporterProtocol
	case "exporter-insecure":
		dst.ExporterInsecure = src.ExporterInsecure
	case "export-timeout":
		dst.ExportTimeout = src.ExportTimeout
	case "exporter-compression":
		dst.ExporterCompression = src.ExporterCompression
	case "exporter-headers":
		dst.ExporterHeaders = src.ExporterHeaders
	case "tls-cert":
		dst.TLSCertFile = src.TLSCertFile
	case "tls-key":
		dst.TLSKeyFile = src.TLSKeyFile
	case "tls-ca":
		dst.TLSCAFile = src.TLSCAFile
	case "tls-server-name":
		dst.TLSServerName = src.TLSServerName
	case "tls-skip-verify":
		dst.TLSSkipVerify = src.TLSSkipVerify
	case "queue-capacity":
		dst.QueueCapacity = src.QueueCapacity
	case "full-policy":
		dst.FullPolicy = src.FullPolicy
	case "block-timeout":
		dst.BlockTimeout = src.BlockTimeout
	case "max-batch-size":
		dst.MaxBatchSize = src.MaxBatchSize
	case "max-batch-age":
		dst.MaxBatchAge = src.MaxBatchAge
	case "max-attempts":
		dst.MaxAttempts = src.MaxAttempts
	case "base-backoff":
		dst.BaseBackoff = src.BaseBackoff
	case "max-backoff":
		dst.MaxBackoff = src.MaxBackoff
	case "breaker-threshold":
		dst.BreakerThreshold = src.BreakerThreshold
	case "breaker-cooldown":
		dst.BreakerCooldown = src.BreakerCooldown
	case "max-in-flight-exports":
		dst.MaxInFlightExports = src.MaxInFlightExports
	case "shutdown-deadline":
		dst.ShutdownDeadline = src.ShutdownDeadline
	case "stats-interval":
		dst.StatsInterval = src.StatsInterval
	case "metrics-listen":
		dst.MetricsListenAddr = src.MetricsListenAddr
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue capacity must be positive, got %d", c.QueueCapacity)
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("max batch size must be positive, got %d", c.MaxBatchSize)
	}
	if c.MaxBatchSize > c.QueueCapacity {
		return fmt.Errorf("max batch size %d exceeds queue capacity %d", c.MaxBatchSize, c.QueueCapacity)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.MaxBackoff < c.BaseBackoff {
		return fmt.Errorf("max backoff %v below base backoff %v", c.MaxBackoff, c.BaseBackoff)
	}
	if c.MaxInFlightExports <= 0 {
		return fmt.Errorf("max in-flight exports must be positive, got %d", c.MaxInFlightExports)
	}
	if _, err := queue.ParsePolicy(c.FullPolicy); err != nil {
		return err
	}
	if _, err := exporter.ParseCompression(c.ExporterCompression); err != nil {
		return err
	}
	switch c.ExporterProtocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("unsupported exporter protocol: %s", c.ExporterProtocol)
	}
	return nil
}

// Headers parses the comma-separated header list into a map.
func (c *Config) Headers() (map[string]string, error) {
	if strings.TrimSpace(c.ExporterHeaders) == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(c.ExporterHeaders, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" {
			return nil, fmt.Errorf("invalid header %q, expected key=value", pair)
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return out, nil
}
