package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLConfig is the configuration file structure. All fields are optional;
// unset fields keep their current value when overlaid.
type YAMLConfig struct {
	Service  ServiceYAML  `yaml:"service"`
	Exporter ExporterYAML `yaml:"exporter"`
	Queue    QueueYAML    `yaml:"queue"`
	Batch    BatchYAML    `yaml:"batch"`
	Retry    RetryYAML    `yaml:"retry"`
	Breaker  BreakerYAML  `yaml:"breaker"`
	Pipeline PipelineYAML `yaml:"pipeline"`
	Stats    StatsYAML    `yaml:"stats"`
}

// ServiceYAML identifies the instrumented service.
type ServiceYAML struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	Commit      string `yaml:"commit"`
}

// ExporterYAML holds collector connection settings.
type ExporterYAML struct {
	Endpoint    string            `yaml:"endpoint"`
	Protocol    string            `yaml:"protocol"`
	Insecure    *bool             `yaml:"insecure"`
	Timeout     Duration          `yaml:"timeout"`
	Compression string            `yaml:"compression"`
	Headers     map[string]string `yaml:"headers"`
	TLS         TLSYAML           `yaml:"tls"`
}

// TLSYAML holds exporter TLS settings.
type TLSYAML struct {
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	CAFile     string `yaml:"ca_file"`
	ServerName string `yaml:"server_name"`
	SkipVerify *bool  `yaml:"skip_verify"`
}

// QueueYAML holds event buffer settings.
type QueueYAML struct {
	Capacity     int      `yaml:"capacity"`
	FullPolicy   string   `yaml:"full_policy"`
	BlockTimeout Duration `yaml:"block_timeout"`
}

// BatchYAML holds batching settings.
type BatchYAML struct {
	MaxSize int      `yaml:"max_size"`
	MaxAge  Duration `yaml:"max_age"`
}

// RetryYAML holds retry schedule settings.
type RetryYAML struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseBackoff Duration `yaml:"base_backoff"`
	MaxBackoff  Duration `yaml:"max_backoff"`
}

// BreakerYAML holds circuit breaker settings.
type BreakerYAML struct {
	Threshold *int     `yaml:"threshold"`
	Cooldown  Duration `yaml:"cooldown"`
}

// PipelineYAML holds concurrency and shutdown settings.
type PipelineYAML struct {
	MaxInFlightExports int      `yaml:"max_in_flight_exports"`
	ShutdownDeadline   Duration `yaml:"shutdown_deadline"`
}

// StatsYAML holds self-observability settings.
type StatsYAML struct {
	Interval          Duration `yaml:"interval"`
	MetricsListenAddr string   `yaml:"metrics_listen"`
}

// LoadYAML reads a configuration file.
func LoadYAML(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg YAMLConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// overlay applies every set field onto dst.
func (y *YAMLConfig) overlay(dst *Config) {
	if y.Service.Name != "" {
		dst.ServiceName = y.Service.Name
	}
	if y.Service.Version != "" {
		dst.ServiceVersion = y.Service.Version
	}
	if y.Service.Environment != "" {
		dst.Environment = y.Service.Environment
	}
	if y.Service.Commit != "" {
		dst.Commit = y.Service.Commit
	}

	if y.Exporter.Endpoint != "" {
		dst.ExporterEndpoint = y.Exporter.Endpoint
	}
	if y.Exporter.Protocol != "" {
		dst.ExporterProtocol = y.Exporter.Protocol
	}
	if y.Exporter.Insecure != nil {
		dst.ExporterInsecure = *y.Exporter.Insecure
	}
	if y.Exporter.Timeout > 0 {
		dst.ExportTimeout = time.Duration(y.Exporter.Timeout)
	}
	if y.Exporter.Compression != "" {
		dst.ExporterCompression = y.Exporter.Compression
	}
	if len(y.Exporter.Headers) > 0 {
		pairs := ""
		for k, v := range y.Exporter.Headers {
			if pairs != "" {
				pairs += ","
			}
			pairs += k + "=" + v
		}
		dst.ExporterHeaders = pairs
	}
	if y.Exporter.TLS.CertFile != "" {
		dst.TLSCertFile = y.Exporter.TLS.CertFile
	}
	if y.Exporter.TLS.KeyFile != "" {
		dst.TLSKeyFile = y.Exporter.TLS.KeyFile
	}
	if y.Exporter.TLS.CAFile != "" {
		dst.TLSCAFile = y.Exporter.TLS.CAFile
	}
	if y.Exporter.TLS.ServerName != "" {
		dst.TLSServerName = y.Exporter.TLS.ServerName
	}
	if y.Exporter.TLS.SkipVerify != nil {
		dst.TLSSkipVerify = *y.Exporter.TLS.SkipVerify
	}

	if y.Queue.Capacity > 0 {
		dst.QueueCapacity = y.Queue.Capacity
	}
	if y.Queue.FullPolicy != "" {
		dst.FullPolicy = y.Queue.FullPolicy
	}
	if y.Queue.BlockTimeout > 0 {
		dst.BlockTimeout = time.Duration(y.Queue.BlockTimeout)
	}

	if y.Batch.MaxSize > 0 {
		dst.MaxBatchSize = y.Batch.MaxSize
	}
	if y.Batch.MaxAge > 0 {
		dst.MaxBatchAge = time.Duration(y.Batch.MaxAge)
	}

	if y.Retry.MaxAttempts > 0 {
		dst.MaxAttempts = y.Retry.MaxAttempts
	}
	if y.Retry.BaseBackoff > 0 {
		dst.BaseBackoff = time.Duration(y.Retry.BaseBackoff)
	}
	if y.Retry.MaxBackoff > 0 {
		dst.MaxBackoff = time.Duration(y.Retry.MaxBackoff)
	}

	if y.Breaker.Threshold != nil {
		dst.BreakerThreshold = *y.Breaker.Threshold
	}
	if y.Breaker.Cooldown > 0 {
		dst.BreakerCooldown = time.Duration(y.Breaker.Cooldown)
	}

	if y.Pipeline.MaxInFlightExports > 0 {
		dst.MaxInFlightExports = y.Pipeline.MaxInFlightExports
	}
	if y.Pipeline.ShutdownDeadline > 0 {
		dst.ShutdownDeadline = time.Duration(y.Pipeline.ShutdownDeadline)
	}

	if y.Stats.Interval > 0 {
		dst.StatsInterval = time.Duration(y.Stats.Interval)
	}
	if y.Stats.MetricsListenAddr != "" {
		dst.MetricsListenAddr = y.Stats.MetricsListenAddr
	}
}

// Duration is a wrapper for time.Duration that supports YAML unmarshaling
// from strings like "500ms" or "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}
