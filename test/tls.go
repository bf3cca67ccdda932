package test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// SelfSignedCertificate returns a certificate valid for 127.0.0.1 and
// localhost together with its PEM encodings.
func SelfSignedCertificate(t testing.TB) (tls.Certificate, []byte, []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"loam test"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:              []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}

	keyDer, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshalling key: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDer})

	certificate, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("loading key pair: %v", err)
	}

	return certificate, certPEM, keyPEM
}

// TLSConfigs returns a server config and a matching client config that
// trusts it. Both advertise the given application protocols.
func TLSConfigs(t testing.TB, protocols ...string) (*tls.Config, *tls.Config) {
	t.Helper()

	certificate, certPEM, _ := SelfSignedCertificate(t)

	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(certPEM)

	server := &tls.Config{
		Certificates: []tls.Certificate{certificate},
		NextProtos:   protocols,
	}
	client := &tls.Config{
		RootCAs:    pool,
		ServerName: "localhost",
		NextProtos: protocols,
	}

	return server, client
}

// WriteKeyPair writes a fresh self-signed pair into dir and returns the paths.
func WriteKeyPair(t testing.TB, dir string) (string, string) {
	t.Helper()

	_, certPEM, keyPEM := SelfSignedCertificate(t)

	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")

	if err := os.WriteFile(certFile, certPEM, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		t.Fatal(err)
	}

	return certFile, keyFile
}
