// Package tls builds client TLS configurations for the OTLP exporter,
// including mutual TLS against collectors that require client certificates.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// ClientConfig holds TLS settings for the exporter connection.
type ClientConfig struct {
	// CertFile is the path to the client certificate file (for mTLS).
	CertFile string
	// KeyFile is the path to the client private key file (for mTLS).
	KeyFile string
	// CAFile is the path to the CA certificate file for collector verification.
	CAFile string
	// InsecureSkipVerify skips collector certificate verification.
	InsecureSkipVerify bool
	// ServerName overrides the server name for certificate verification.
	ServerName string
}

// IsZero reports whether no TLS customization was requested.
func (c ClientConfig) IsZero() bool {
	return c == ClientConfig{}
}

// NewClientTLSConfig builds a *tls.Config from file-based settings.
func NewClientTLSConfig(cfg ClientConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.ServerName != "" {
		tlsConfig.ServerName = cfg.ServerName
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}

		tlsConfig.RootCAs = caCertPool
	}

	return tlsConfig, nil
}
