// Package config loads the jobdash server configuration from an optional
// YAML file overlaid by command-line flags. Flags set explicitly on the
// command line win over the file, the file wins over flag defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/nixpig/jobdash/internal/tlsconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHTTPAddr        = "localhost:8080"
	DefaultGRPCAddr        = "localhost:8443"
	DefaultTitle           = "jobdash"
	DefaultMonitorInterval = 2 * time.Second
	DefaultMonitorHistory  = 30
	DefaultShutdownTimeout = 10 * time.Second
)

// TLS holds the certificate paths shared by the HTTP and gRPC listeners.
type TLS struct {
	CertPath   string `yaml:"cert_path"`
	KeyPath    string `yaml:"key_path"`
	CACertPath string `yaml:"ca_cert_path"`
}

// Monitor controls the resource monitoring job.
type Monitor struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	History  int           `yaml:"history"`
}

// Config is the server configuration.
type Config struct {
	// Path of the YAML file the configuration was loaded from, if any.
	Path string `yaml:"-"`

	Title    string `yaml:"title"`
	HTTPAddr string `yaml:"http_addr"`

	// GRPCAddr is the address of the inspection service. Empty disables it.
	GRPCAddr string `yaml:"grpc_addr"`

	Debug           bool          `yaml:"debug"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TLS             TLS           `yaml:"tls"`
	Monitor         Monitor       `yaml:"monitor"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Title:           DefaultTitle,
		HTTPAddr:        DefaultHTTPAddr,
		GRPCAddr:        DefaultGRPCAddr,
		ShutdownTimeout: DefaultShutdownTimeout,
		Monitor: Monitor{
			Enabled:  true,
			Interval: DefaultMonitorInterval,
			History:  DefaultMonitorHistory,
		},
	}
}

// BindFlags registers the configuration flags on fs, writing into c. c's
// current values are the flag defaults.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Path, "config", c.Path, "Path to YAML config file")
	fs.StringVar(&c.Title, "title", c.Title, "Dashboard title")
	fs.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr, "HTTP server address to bind")
	fs.StringVar(&c.GRPCAddr, "grpc-addr", c.GRPCAddr, "gRPC server address to bind, empty to disable")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Enable debug logs")

	fs.DurationVar(
		&c.ShutdownTimeout,
		"shutdown-timeout",
		c.ShutdownTimeout,
		"Time allowed for servers and jobs to stop",
	)

	fs.StringVar(&c.TLS.CertPath, "cert-path", c.TLS.CertPath, "Path to server TLS certificate")
	fs.StringVar(&c.TLS.KeyPath, "key-path", c.TLS.KeyPath, "Path to server TLS private key")

	fs.StringVar(
		&c.TLS.CACertPath,
		"ca-cert-path",
		c.TLS.CACertPath,
		"Path to CA certificate, enables mTLS",
	)

	fs.BoolVar(&c.Monitor.Enabled, "monitor", c.Monitor.Enabled, "Run the resource monitoring job")

	fs.DurationVar(
		&c.Monitor.Interval,
		"monitor-interval",
		c.Monitor.Interval,
		"Resource sampling interval",
	)

	fs.IntVar(
		&c.Monitor.History,
		"monitor-history",
		c.Monitor.History,
		"Number of samples kept in the monitoring charts",
	)
}

// Load reads the file at c.Path, if set, then reapplies every flag changed on
// fs so that explicit flags take precedence.
func (c *Config) Load(fs *pflag.FlagSet) error {
	if c.Path == "" {
		return nil
	}

	changed := make(map[string]string)

	if fs != nil {
		fs.Visit(func(f *pflag.Flag) {
			changed[f.Name] = f.Value.String()
		})
	}

	path := c.Path

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	if err := c.Decode(data); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	c.Path = path

	for name, value := range changed {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("reapply flag %s: %w", name, err)
		}
	}

	return nil
}

// Decode overlays the YAML document data onto c. Unknown keys are an error.
func (c *Config) Decode(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	return dec.Decode(c)
}

// TLSConfig returns the server TLS settings.
func (c *Config) TLSConfig() *tlsconfig.Config {
	return &tlsconfig.Config{
		CertPath:   c.TLS.CertPath,
		KeyPath:    c.TLS.KeyPath,
		CACertPath: c.TLS.CACertPath,
		Server:     true,
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("http-addr cannot be empty")
	}

	if err := validateAddr(c.HTTPAddr); err != nil {
		return fmt.Errorf("http-addr: %w", err)
	}

	if c.GRPCAddr != "" {
		if err := validateAddr(c.GRPCAddr); err != nil {
			return fmt.Errorf("grpc-addr: %w", err)
		}

		if c.GRPCAddr == c.HTTPAddr {
			return errors.New("http-addr and grpc-addr must differ")
		}
	}

	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown-timeout must be positive")
	}

	if c.Monitor.Enabled {
		if c.Monitor.Interval <= 0 {
			return errors.New("monitor-interval must be positive")
		}

		if c.Monitor.History < 1 {
			return errors.New("monitor-history must be at least 1")
		}
	}

	if err := c.TLSConfig().Validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}

	return nil
}

func validateAddr(addr string) error {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("port string to number: %w", err)
	}

	// NOTE: Port 0 is allowed and picks a free port, which the tests rely on.
	if port < 0 || port > 65535 {
		return errors.New("port must be in valid range")
	}

	return nil
}
