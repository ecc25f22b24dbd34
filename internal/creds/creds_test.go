package creds

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var (
	notBefore = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	notAfter  = time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
)

// selfSigned returns a self-signed certificate usable as CA, server and client.
func selfSigned(t *testing.T, key any, pub any) []byte {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "localhost"},
		DNSNames:              []string{"localhost"},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return der
}

func ecKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func pemBlock(typ string, der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der})
}

func TestLoadDER(t *testing.T) {
	dir := t.TempDir()
	key := ecKey(t)
	cert := selfSigned(t, key, &key.PublicKey)
	keyDER, _ := x509.MarshalECPrivateKey(key)

	writeFile(t, dir, DefaultCertFile, cert)
	writeFile(t, dir, DefaultKeyFile, keyDER)
	writeFile(t, dir, DefaultCAFile, cert)

	b, err := Load(dir, DefaultCertFile, DefaultKeyFile, DefaultCAFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.Complete() {
		t.Fatalf("expected complete bundle, got %+v", b)
	}
}

func TestLoadPEMAndKeyFormats(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	ec := ecKey(t)

	pkcs8, _ := x509.MarshalPKCS8PrivateKey(ec)
	sec1, _ := x509.MarshalECPrivateKey(ec)

	tests := []struct {
		name string
		cert []byte
		key  []byte
	}{
		{"pkcs1 der", selfSigned(t, rsaKey, &rsaKey.PublicKey), x509.MarshalPKCS1PrivateKey(rsaKey)},
		{"pkcs8 der", selfSigned(t, ec, &ec.PublicKey), pkcs8},
		{"sec1 pem", pemBlock("CERTIFICATE", selfSigned(t, ec, &ec.PublicKey)), pemBlock("EC PRIVATE KEY", sec1)},
		{"pkcs8 pem", pemBlock("CERTIFICATE", selfSigned(t, ec, &ec.PublicKey)), pemBlock("PRIVATE KEY", pkcs8)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "c", tt.cert)
			writeFile(t, dir, "k", tt.key)
			writeFile(t, dir, "ca", tt.cert)

			b, err := Load(dir, "c", "k", "ca")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if b.Cert == nil || b.Cert.Leaf == nil {
				t.Errorf("expected a parsed client certificate")
			}
		})
	}
}

func TestLoadMissingIsPartial(t *testing.T) {
	dir := t.TempDir()
	key := ecKey(t)
	cert := selfSigned(t, key, &key.PublicKey)
	writeFile(t, dir, DefaultCAFile, cert)

	b, err := Load(dir, DefaultCertFile, DefaultKeyFile, DefaultCAFile)
	if !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing, got %v", err)
	}
	if !strings.Contains(err.Error(), DefaultCertFile) || !strings.Contains(err.Error(), DefaultKeyFile) {
		t.Errorf("error should name both missing files: %v", err)
	}
	if b.Roots == nil {
		t.Error("CA should still load")
	}
	if b.Cert != nil || b.Complete() {
		t.Error("client certificate should be absent")
	}
}

func TestLoadGarbage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "c", []byte("not a certificate"))
	writeFile(t, dir, "k", []byte("not a key"))
	writeFile(t, dir, "ca", []byte{0x30, 0x01})

	b, err := Load(dir, "c", "k", "ca")
	if !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing, got %v", err)
	}
	if b.Cert != nil || b.Roots != nil {
		t.Errorf("expected empty bundle, got %+v", b)
	}
}

func TestLoadMismatchedKey(t *testing.T) {
	dir := t.TempDir()
	key := ecKey(t)
	other := ecKey(t)
	cert := selfSigned(t, key, &key.PublicKey)
	otherDER, _ := x509.MarshalECPrivateKey(other)

	writeFile(t, dir, "c", cert)
	writeFile(t, dir, "k", otherDER)
	writeFile(t, dir, "ca", cert)

	b, err := Load(dir, "c", "k", "ca")
	if !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing, got %v", err)
	}
	if b.Cert != nil {
		t.Error("mismatched pair must not produce a certificate")
	}
}

// handshake runs a mutual-TLS handshake over a loopback connection.
func handshake(t *testing.T, b Bundle, clientTime time.Time) error {
	t.Helper()
	serverConf := &tls.Config{
		Certificates: []tls.Certificate{*b.Cert},
		ClientCAs:    b.Roots,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		Time:         func() time.Time { return notBefore.Add(time.Hour) },
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	deadline := time.Now().Add(5 * time.Second)
	errc := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			errc <- err
			return
		}
		defer conn.Close()
		conn.SetDeadline(deadline)
		errc <- tls.Server(conn, serverConf).Handshake()
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.SetDeadline(deadline)
	client := tls.Client(conn, b.TLSConfig("localhost", func() time.Time { return clientTime }))
	defer conn.Close()
	err = client.Handshake()
	if err != nil {
		// Unblocks a server still waiting on the client's flight.
		conn.Close()
	}
	serverErr := <-errc
	if err != nil {
		return err
	}
	return serverErr
}

func TestTLSConfigMutualHandshake(t *testing.T) {
	dir := t.TempDir()
	key := ecKey(t)
	cert := selfSigned(t, key, &key.PublicKey)
	keyDER, _ := x509.MarshalECPrivateKey(key)
	writeFile(t, dir, "c", cert)
	writeFile(t, dir, "k", keyDER)
	writeFile(t, dir, "ca", cert)

	b, err := Load(dir, "c", "k", "ca")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := handshake(t, b, notBefore.Add(time.Hour)); err != nil {
		t.Errorf("handshake within validity failed: %v", err)
	}
	if err := handshake(t, b, notAfter.Add(time.Hour)); err == nil {
		t.Error("handshake should fail when the injected clock is past NotAfter")
	}
}

func TestTLSConfigWithoutCert(t *testing.T) {
	cfg := Bundle{}.TLSConfig("broker.example", nil)
	if cfg.ServerName != "broker.example" {
		t.Errorf("ServerName: got %q", cfg.ServerName)
	}
	if len(cfg.Certificates) != 0 {
		t.Error("expected no client certificates")
	}
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion: got %x", cfg.MinVersion)
	}
}

func TestLoadRootsVerifyLeaf(t *testing.T) {
	dir := t.TempDir()
	key := ecKey(t)
	cert := selfSigned(t, key, &key.PublicKey)
	keyDER, _ := x509.MarshalECPrivateKey(key)
	writeFile(t, dir, "c", cert)
	writeFile(t, dir, "k", keyDER)
	writeFile(t, dir, "ca", pemBlock("CERTIFICATE", cert))

	b, err := Load(dir, "c", "k", "ca")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	leaf, err := x509.ParseCertificate(b.Cert.Certificate[0])
	if err != nil {
		t.Fatalf("parse leaf: %v", err)
	}
	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:       b.Roots,
		CurrentTime: notBefore.Add(time.Hour),
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		t.Errorf("leaf should verify against the loaded CA: %v", err)
	}
}
