// Package tlsconfig builds TLS configurations for the dashboard's HTTP and
// gRPC listeners and for clients connecting to them. TLS is optional: a
// Config with no paths set is disabled.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// Config holds the certificate paths. With CACertPath set, a server requires
// and verifies client certificates and a client verifies the server against
// it.
type Config struct {
	CertPath   string
	KeyPath    string
	CACertPath string
	ServerName string
	Server     bool
}

// Enabled reports whether any TLS material is configured.
func (c *Config) Enabled() bool {
	return c != nil && (c.CertPath != "" || c.KeyPath != "" || c.CACertPath != "")
}

// Validate checks the combination of paths is usable.
func (c *Config) Validate() error {
	if !c.Enabled() {
		return nil
	}

	if c.Server && (c.CertPath == "" || c.KeyPath == "") {
		return errors.New("server TLS needs both cert-path and key-path")
	}

	if (c.CertPath == "") != (c.KeyPath == "") {
		return errors.New("cert-path and key-path must be set together")
	}

	for _, p := range []string{c.CertPath, c.KeyPath, c.CACertPath} {
		if p == "" {
			continue
		}

		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("failed to stat %s: %w", p, err)
		}
	}

	return nil
}

// SetupTLS loads the configured certificates. It returns nil and no error
// when TLS isn't enabled.
func SetupTLS(config *Config) (*tls.Config, error) {
	if !config.Enabled() {
		return nil, nil
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS13,
		ServerName: config.ServerName,
	}

	if config.CertPath != "" {
		cert, err := tls.LoadX509KeyPair(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate: %w", err)
		}

		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if config.CACertPath != "" {
		caCert, err := os.ReadFile(config.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}

		if config.Server {
			tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
			tlsConfig.ClientCAs = caCertPool
		} else {
			tlsConfig.RootCAs = caCertPool
		}
	}

	return tlsConfig, nil
}
