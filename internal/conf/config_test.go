package conf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "kestrel.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}
	return path
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get current directory: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(originalDir) })

	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory: %v", err)
	}
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected default config to validate, got: %v", err)
	}
	if cfg.ReadTimeout() != 120*time.Second {
		t.Errorf("Expected read timeout 120s, got %v", cfg.ReadTimeout())
	}
	if cfg.WriteTimeout() != 15*time.Second {
		t.Errorf("Expected write timeout 15s, got %v", cfg.WriteTimeout())
	}
	if cfg.MaxBadAttempts != 3 {
		t.Errorf("Expected 3 bad attempts, got %d", cfg.MaxBadAttempts)
	}
}

func TestLoadConfig_Success(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeConfig(t, tmpDir, `listen: 127.0.0.1:1143
mail_root: /srv/mail
inbox_folder: INBOX
timeouts:
  read: 30
  write: 5
logging:
  level: debug
  format: json
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Listen != "127.0.0.1:1143" {
		t.Errorf("Expected listen '127.0.0.1:1143', got '%s'", cfg.Listen)
	}
	if cfg.MailRoot != "/srv/mail" {
		t.Errorf("Expected mail_root '/srv/mail', got '%s'", cfg.MailRoot)
	}
	if cfg.InboxFolder != "INBOX" {
		t.Errorf("Expected inbox_folder 'INBOX', got '%s'", cfg.InboxFolder)
	}
	if cfg.ReadTimeout() != 30*time.Second {
		t.Errorf("Expected read timeout 30s, got %v", cfg.ReadTimeout())
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected json format, got '%s'", cfg.Logging.Format)
	}
	// untouched keys keep their defaults
	if cfg.MaxBadAttempts != 3 {
		t.Errorf("Expected default max_bad_attempts 3, got %d", cfg.MaxBadAttempts)
	}
	if cfg.Store.Backend != "fs" {
		t.Errorf("Expected default backend 'fs', got '%s'", cfg.Store.Backend)
	}
}

func TestLoadConfig_SearchesWorkingDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "mail_root: ./mail\n")
	chdir(t, tmpDir)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.MailRoot != "./mail" {
		t.Errorf("Expected mail_root './mail', got '%s'", cfg.MailRoot)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Error("Expected error for missing config file, got nil")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `listen: [invalid yaml structure
  missing closing bracket
`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Error("Expected error for invalid YAML, got nil")
	}
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Expected no error for empty file, got: %v", err)
	}
	if cfg.Listen != DefaultConfig().Listen {
		t.Errorf("Expected default listen address, got '%s'", cfg.Listen)
	}
}

func TestLoadConfig_WithComments(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `# kestrel configuration
listen: ":2143" # plain IMAP
# inbox directory name
inbox_folder: Mail
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Listen != ":2143" {
		t.Errorf("Expected listen ':2143', got '%s'", cfg.Listen)
	}
	if cfg.InboxFolder != "Mail" {
		t.Errorf("Expected inbox_folder 'Mail', got '%s'", cfg.InboxFolder)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"no listeners", func(c *Config) { c.Listen = ""; c.ListenTLS = "" }, "listen"},
		{"empty mail root", func(c *Config) { c.MailRoot = "" }, "mail_root"},
		{"empty inbox", func(c *Config) { c.InboxFolder = "" }, "inbox_folder"},
		{"zero bad attempts", func(c *Config) { c.MaxBadAttempts = 0 }, "max_bad_attempts"},
		{"zero read timeout", func(c *Config) { c.Timeouts.Read = 0 }, "timeouts"},
		{"tls listener without cert", func(c *Config) { c.ListenTLS = ":993" }, "listen_tls"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "log level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
		{"bad backend", func(c *Config) { c.Store.Backend = "nfs" }, "backend"},
		{"s3 without bucket", func(c *Config) { c.Store.Backend = "s3" }, "blob_storage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_TLSListenerWithBundle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenTLS = ":993"
	cfg.TLS.CertBundle = "/etc/kestrel/identity.pfx"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected bundle to satisfy listen_tls, got: %v", err)
	}
}

func TestLoadEnv_Passphrase(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")
	if err := os.WriteFile(envFile, []byte(PassphraseEnv+"=hunter2\n"), 0600); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	t.Setenv(PassphraseEnv, "")
	if err := os.Unsetenv(PassphraseEnv); err != nil {
		t.Fatalf("Failed to unset env: %v", err)
	}

	cfg := DefaultConfig()
	if err := LoadEnv(cfg, envFile); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.TLS.Passphrase != "hunter2" {
		t.Errorf("Expected passphrase from .env, got '%s'", cfg.TLS.Passphrase)
	}
}

func TestLoadEnv_EnvironmentWins(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")
	if err := os.WriteFile(envFile, []byte(PassphraseEnv+"=from-file\n"), 0600); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	t.Setenv(PassphraseEnv, "from-env")

	cfg := DefaultConfig()
	if err := LoadEnv(cfg, envFile); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.TLS.Passphrase != "from-env" {
		t.Errorf("Expected environment to win, got '%s'", cfg.TLS.Passphrase)
	}
}

func TestLoadEnv_MissingFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TLS.Passphrase = "from-yaml"
	t.Setenv(PassphraseEnv, "")

	if err := LoadEnv(cfg, filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("Expected missing .env to be ignored, got: %v", err)
	}
	if cfg.TLS.Passphrase != "from-yaml" {
		t.Errorf("Expected yaml passphrase to survive, got '%s'", cfg.TLS.Passphrase)
	}
}
