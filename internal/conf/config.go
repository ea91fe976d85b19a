package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"kestrel/internal/blobstorage"
)

// Config is the server configuration loaded from kestrel.yaml
type Config struct {
	Listen         string             `yaml:"listen"`
	ListenTLS      string             `yaml:"listen_tls"`
	MailRoot       string             `yaml:"mail_root"`
	InboxFolder    string             `yaml:"inbox_folder"`
	MaxBadAttempts int                `yaml:"max_bad_attempts"`
	Timeouts       TimeoutConfig      `yaml:"timeouts"`
	TLS            TLSConfig          `yaml:"tls"`
	Database       DatabaseConfig     `yaml:"database"`
	Logging        LoggingConfig      `yaml:"logging"`
	Metrics        MetricsConfig      `yaml:"metrics"`
	Store          StoreConfig        `yaml:"store"`
	BlobStorage    blobstorage.Config `yaml:"blob_storage"`
}

// TimeoutConfig holds per-connection deadlines in seconds
type TimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
}

// TLSConfig points at the certificate material used for STARTTLS and implicit TLS.
// Either a PKCS#12 bundle with its passphrase or a PEM cert/key pair.
type TLSConfig struct {
	CertBundle string `yaml:"cert_bundle"`
	Passphrase string `yaml:"passphrase"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
}

// DatabaseConfig holds the subscription database location
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // logfmt, json
}

// MetricsConfig holds the Prometheus endpoint address; empty disables it
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// StoreConfig selects the message backend
type StoreConfig struct {
	Backend string `yaml:"backend"` // fs, s3
}

// Enabled reports whether any TLS material is configured
func (t TLSConfig) Enabled() bool {
	return t.CertBundle != "" || (t.CertFile != "" && t.KeyFile != "")
}

// ReadTimeout returns the idle timeout for reading a command line
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// WriteTimeout returns the deadline for flushing one response
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Listen:         "0.0.0.0:143",
		ListenTLS:      "",
		MailRoot:       "/var/mail/kestrel",
		InboxFolder:    "Inbox",
		MaxBadAttempts: 3,
		Timeouts: TimeoutConfig{
			Read:  120,
			Write: 15,
		},
		Database: DatabaseConfig{
			Path: "data/kestrel.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "logfmt",
		},
		Store: StoreConfig{
			Backend: "fs",
		},
	}
}

// configPaths are tried in order when no explicit path is given
var configPaths = []string{
	"/etc/kestrel/kestrel.yaml",
	"./config/kestrel.yaml",
	"./kestrel.yaml",
}

// LoadConfig loads configuration from a YAML file. With an empty path the
// usual locations are tried.
func LoadConfig(path string) (*Config, error) {
	candidates := configPaths
	if path != "" {
		candidates = []string{path}
	}

	var data []byte
	var err error
	for _, p := range candidates {
		data, err = os.ReadFile(filepath.Clean(p))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Listen == "" && c.ListenTLS == "" {
		return fmt.Errorf("at least one of listen or listen_tls must be specified")
	}

	if c.MailRoot == "" && c.Store.Backend == "fs" {
		return fmt.Errorf("mail_root cannot be empty")
	}

	if c.InboxFolder == "" {
		return fmt.Errorf("inbox_folder cannot be empty")
	}

	if c.MaxBadAttempts <= 0 {
		return fmt.Errorf("max_bad_attempts must be positive")
	}

	if c.Timeouts.Read <= 0 || c.Timeouts.Write <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}

	if c.ListenTLS != "" && !c.TLS.Enabled() {
		return fmt.Errorf("listen_tls requires tls.cert_bundle or tls.cert_file and tls.key_file")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"logfmt": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	switch c.Store.Backend {
	case "fs":
	case "s3":
		if err := c.BlobStorage.Validate(); err != nil {
			return fmt.Errorf("blob_storage: %w", err)
		}
	default:
		return fmt.Errorf("invalid store backend: %s", c.Store.Backend)
	}

	return nil
}
