package conf

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// PassphraseEnv names the variable that carries the TLS bundle passphrase
const PassphraseEnv = "KESTREL_CERT_PASSPHRASE"

// LoadEnv reads .env style files into the process environment and applies
// secrets found there to cfg. Missing files are not an error; variables
// already set in the environment win over file contents.
func LoadEnv(cfg *Config, files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if pass := os.Getenv(PassphraseEnv); pass != "" {
		cfg.TLS.Passphrase = pass
	}
	return nil
}
