// Package tlsutil loads the server certificate used by STARTTLS and the
// implicit TLS listener.
package tlsutil

import (
	"crypto/tls"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pkcs12"

	"kestrel/internal/conf"
)

// ErrNoCertificate is returned when no TLS material is configured
var ErrNoCertificate = errors.New("no TLS certificate configured")

// LoadServerConfig builds a server tls.Config from a PKCS#12 bundle or, when
// no bundle is configured, a PEM certificate and key pair.
func LoadServerConfig(c conf.TLSConfig) (*tls.Config, error) {
	var (
		cert tls.Certificate
		err  error
	)

	switch {
	case c.CertBundle != "":
		cert, err = LoadBundle(c.CertBundle, c.Passphrase)
	case c.CertFile != "" && c.KeyFile != "":
		cert, err = tls.LoadX509KeyPair(filepath.Clean(c.CertFile), filepath.Clean(c.KeyFile))
		if err != nil {
			err = fmt.Errorf("failed to load TLS cert/key: %w", err)
		}
	default:
		return nil, ErrNoCertificate
	}
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// LoadBundle decodes a PKCS#12 file protected by passphrase
func LoadBundle(path, passphrase string) (tls.Certificate, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read certificate bundle: %w", err)
	}

	blocks, err := pkcs12.ToPEM(data, passphrase)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to decode certificate bundle: %w", err)
	}

	var certPEM, keyPEM []byte
	for _, b := range blocks {
		// drop bag attributes, X509KeyPair does not need them
		block := &pem.Block{Type: b.Type, Bytes: b.Bytes}
		switch b.Type {
		case "CERTIFICATE":
			certPEM = append(certPEM, pem.EncodeToMemory(block)...)
		case "PRIVATE KEY":
			keyPEM = append(keyPEM, pem.EncodeToMemory(block)...)
		}
	}
	if certPEM == nil || keyPEM == nil {
		return tls.Certificate{}, fmt.Errorf("certificate bundle must contain a certificate and a private key")
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to build key pair from bundle: %w", err)
	}
	return cert, nil
}
