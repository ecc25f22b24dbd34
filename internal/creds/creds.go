// Package creds loads the device certificate, private key and CA blobs
// used for mutual TLS with the broker.
package creds

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrMissing wraps every credential that could not be loaded.
var ErrMissing = errors.New("credential unavailable")

// Default file names as provisioned on the device.
const (
	DefaultCertFile = "cert.der"
	DefaultKeyFile  = "private.der"
	DefaultCAFile   = "ca.der"
)

// Bundle holds whatever credentials loaded. Any field may be nil.
type Bundle struct {
	Cert  *tls.Certificate
	Roots *x509.CertPool
}

// Complete reports whether both the client certificate and the roots loaded.
func (b Bundle) Complete() bool {
	return b.Cert != nil && b.Roots != nil
}

// Load reads the three blobs from dir. Each may be DER or PEM; the key may be
// PKCS#1, PKCS#8 or SEC 1. Failures are logged and joined into the returned
// error, which wraps ErrMissing, and the partial bundle is still returned.
func Load(dir, certFile, keyFile, caFile string) (Bundle, error) {
	var (
		b    Bundle
		errs []error
	)

	leaf, err := readCert(filepath.Join(dir, certFile))
	if err != nil {
		errs = append(errs, err)
	}
	key, err := readKey(filepath.Join(dir, keyFile))
	if err != nil {
		errs = append(errs, err)
	}
	if leaf != nil && key != nil {
		cert, err := pairFromDER(leaf.Raw, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: key pair: %w", ErrMissing, err))
		} else {
			b.Cert = cert
		}
	}

	ca, err := readCert(filepath.Join(dir, caFile))
	if err != nil {
		errs = append(errs, err)
	} else {
		b.Roots = x509.NewCertPool()
		b.Roots.AddCert(ca)
	}

	for _, e := range errs {
		log.Printf("creds: %v", e)
	}
	return b, errors.Join(errs...)
}

// TLSConfig builds a mutual-TLS client config. now supplies the wall clock
// used to check certificate lifetimes; nil means time.Now.
func (b Bundle) TLSConfig(serverName string, now func() time.Time) *tls.Config {
	cfg := &tls.Config{
		ServerName: serverName,
		RootCAs:    b.Roots,
		MinVersion: tls.VersionTLS12,
		Time:       now,
	}
	if b.Cert != nil {
		cfg.Certificates = []tls.Certificate{*b.Cert}
	}
	return cfg
}

// readCert parses a DER or PEM certificate file.
func readCert(path string) (*x509.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrMissing, path, err)
	}
	cert, err := x509.ParseCertificate(unwrapPEM(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrMissing, path, err)
	}
	return cert, nil
}

func readKey(path string) (crypto.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrMissing, path, err)
	}
	key, err := parseKey(unwrapPEM(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrMissing, path, err)
	}
	return key, nil
}

func parseKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errors.New("unsupported private key format")
}

// pairFromDER builds a certificate and checks that key matches it.
func pairFromDER(certDER []byte, key crypto.PrivateKey) (*tls.Certificate, error) {
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	pair, err := tls.X509KeyPair(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}),
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
	)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// unwrapPEM returns the first PEM block's bytes, or raw if it is not PEM.
func unwrapPEM(raw []byte) []byte {
	if block, _ := pem.Decode(raw); block != nil {
		return block.Bytes
	}
	return raw
}
