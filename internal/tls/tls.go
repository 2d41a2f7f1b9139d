// Package tls builds the HTTPS settings for the status server from
// config.TLSConfig, generating a self-signed pair on request.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/vpnr/internal/config"
)

// File names used inside TLSConfig.Dir.
const (
	CACertName = "tls_ca.crt"
	CertName   = "tls.crt"
	KeyName    = "tls.key"
)

const defaultValidDays = 365

func minVersion(v string) uint16 {
	switch v {
	case "1.2", "TLS1.2", "tls1.2":
		return tls.VersionTLS12
	default:
		return tls.VersionTLS13
	}
}

// readWithin reads p, refusing paths that escape baseDir.
func readWithin(baseDir, p string) ([]byte, error) {
	clean := filepath.Clean(p)
	if baseDir != "" {
		absBase, _ := filepath.Abs(baseDir)
		absFile, _ := filepath.Abs(clean)
		if !strings.HasPrefix(absFile, absBase+string(filepath.Separator)) && absFile != absBase {
			return nil, errors.New("file path outside of allowed directory")
		}
	}
	return os.ReadFile(clean)
}

// certLoader rereads the pair on every handshake so rotated files are picked up.
func certLoader(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	baseDir := filepath.Dir(certFile)
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		certPEM, err := readWithin(baseDir, certFile)
		if err != nil {
			return nil, err
		}
		keyPEM, err := readWithin(filepath.Dir(keyFile), keyFile)
		if err != nil {
			return nil, err
		}
		pair, err := tls.X509KeyPair(certPEM, keyPEM)
		return &pair, err
	}
}

// Setup returns nil when TLS is disabled. Explicit cert/key files take
// priority; otherwise the pair is read from Dir and, with AutoGenerate,
// created there first if missing. The pair is checked once up front so
// misconfiguration fails at startup rather than on the first handshake.
func Setup(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	certPath, keyPath := cfg.CertFile, cfg.KeyFile
	if certPath == "" || keyPath == "" {
		if cfg.Dir == "" {
			return nil, errors.New("TLS enabled but no valid certificate configuration found")
		}
		certPath = filepath.Join(cfg.Dir, CertName)
		keyPath = filepath.Join(cfg.Dir, KeyName)
		if cfg.AutoGenerate && !exists(certPath, keyPath) {
			if err := generate(cfg); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
	}
	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	// #nosec G402 min version is configurable down to 1.2
	return &tls.Config{
		GetCertificate: certLoader(certPath, keyPath),
		MinVersion:     minVersion(cfg.MinVersion),
	}, nil
}

func exists(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}

func generate(cfg config.TLSConfig) error {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	cn := cfg.CommonName
	if cn == "" {
		cn = "localhost"
	}
	names := cfg.DNSNames
	if len(names) == 0 {
		names = []string{"localhost", "127.0.0.1"}
	}
	days := cfg.ValidDays
	if days <= 0 {
		days = defaultValidDays
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   cn,
		Organization: "vpnr",
		Hosts:        names,
		NotAfter:     time.Now().AddDate(0, 0, days),
		CertPath:     filepath.Join(cfg.Dir, CertName),
		KeyPath:      filepath.Join(cfg.Dir, KeyName),
		CACertPath:   filepath.Join(cfg.Dir, CACertName),
	})
}
