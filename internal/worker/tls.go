package worker

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TLSConfig describes how the worker talks to the report server and the
// detector mirrors.
type TLSConfig struct {
	// CADir is a grid trust directory such as /etc/grid-security/certificates.
	// Every *.pem and *.0 file in it is trusted.
	CADir string
	// CACertPath is a single extra PEM bundle to trust.
	CACertPath string
	// ProxyPath is an X.509 proxy holding certificate and key in one PEM
	// file. When set it is presented as the client certificate.
	ProxyPath string
	// InsecureSkipVerify turns off server verification. Tests only.
	InsecureSkipVerify bool
}

func (c TLSConfig) empty() bool {
	return c == TLSConfig{}
}

// ClientConfig returns the tls.Config for c, or nil when the Go defaults
// apply.
func (c TLSConfig) ClientConfig() (*tls.Config, error) {
	if c.empty() {
		return nil, nil
	}
	out := &tls.Config{InsecureSkipVerify: c.InsecureSkipVerify}

	if c.CADir != "" || c.CACertPath != "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if c.CADir != "" {
			if err := addTrustDir(pool, c.CADir); err != nil {
				return nil, err
			}
		}
		if c.CACertPath != "" {
			if err := addTrustFile(pool, c.CACertPath); err != nil {
				return nil, err
			}
		}
		out.RootCAs = pool
	}

	if c.ProxyPath != "" {
		cert, err := tls.LoadX509KeyPair(c.ProxyPath, c.ProxyPath)
		if err != nil {
			return nil, fmt.Errorf("load proxy %s: %w", c.ProxyPath, err)
		}
		out.Certificates = []tls.Certificate{cert}
	}
	return out, nil
}

func addTrustFile(pool *x509.CertPool, path string) error {
	pem, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read CA bundle: %w", err)
	}
	if !pool.AppendCertsFromPEM(pem) {
		return fmt.Errorf("no certificates in %s", path)
	}
	return nil
}

func addTrustDir(pool *x509.CertPool, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read CA directory: %w", err)
	}
	added := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".pem") || strings.HasSuffix(name, ".0")) {
			continue
		}
		if err := addTrustFile(pool, filepath.Join(dir, name)); err == nil {
			added++
		}
	}
	if added == 0 {
		return fmt.Errorf("no CA certificates in %s", dir)
	}
	return nil
}
