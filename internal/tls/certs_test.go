// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package tls

import (
	cryptotls "crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/holomush/authd/pkg/errutil"
)

func TestGenerateCA(t *testing.T) {
	ca, err := GenerateCA()
	if err != nil {
		t.Fatalf("GenerateCA() error = %v", err)
	}
	if !ca.Certificate.IsCA {
		t.Error("CA certificate should have IsCA = true")
	}
	if ca.Certificate.Subject.CommonName != "authd local CA" {
		t.Errorf("CommonName = %q, want %q", ca.Certificate.Subject.CommonName, "authd local CA")
	}
	if ca.Certificate.KeyUsage&x509.KeyUsageCertSign == 0 {
		t.Error("CA should have KeyUsageCertSign")
	}
}

func TestGenerateServerCert_SANs(t *testing.T) {
	ca, err := GenerateCA()
	if err != nil {
		t.Fatalf("GenerateCA() error = %v", err)
	}

	server, err := GenerateServerCert(ca, []string{"auth.example.com", "10.0.0.5", "localhost"})
	if err != nil {
		t.Fatalf("GenerateServerCert() error = %v", err)
	}

	wantDNS := map[string]bool{"localhost": false, "auth.example.com": false}
	for _, name := range server.Certificate.DNSNames {
		if _, ok := wantDNS[name]; !ok {
			t.Errorf("unexpected DNS SAN %q", name)
		}
		wantDNS[name] = true
	}
	for name, found := range wantDNS {
		if !found {
			t.Errorf("missing DNS SAN %q", name)
		}
	}
	if len(server.Certificate.DNSNames) != 2 {
		t.Errorf("DNSNames = %v, want duplicates removed", server.Certificate.DNSNames)
	}

	wantIPs := []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("10.0.0.5")}
	for _, want := range wantIPs {
		found := false
		for _, ip := range server.Certificate.IPAddresses {
			if ip.Equal(want) {
				found = true
			}
		}
		if !found {
			t.Errorf("missing IP SAN %s", want)
		}
	}

	if len(server.Certificate.ExtKeyUsage) != 1 || server.Certificate.ExtKeyUsage[0] != x509.ExtKeyUsageServerAuth {
		t.Errorf("ExtKeyUsage = %v, want [ServerAuth]", server.Certificate.ExtKeyUsage)
	}
}

func TestGenerateServerCert_VerifiesAgainstCA(t *testing.T) {
	ca, err := GenerateCA()
	if err != nil {
		t.Fatalf("GenerateCA() error = %v", err)
	}
	server, err := GenerateServerCert(ca, nil)
	if err != nil {
		t.Fatalf("GenerateServerCert() error = %v", err)
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca.Certificate)
	if _, err := server.Certificate.Verify(x509.VerifyOptions{DNSName: "localhost", Roots: roots}); err != nil {
		t.Errorf("server certificate did not verify: %v", err)
	}
}

func TestGenerateServerCert_NilCA(t *testing.T) {
	_, err := GenerateServerCert(nil, nil)
	if err == nil {
		t.Fatal("GenerateServerCert(nil) should fail")
	}
	errutil.AssertErrorCode(t, err, "TLS_INVALID_CA")
}

func TestSaveAndLoadCA(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")

	ca, err := GenerateCA()
	if err != nil {
		t.Fatalf("GenerateCA() error = %v", err)
	}
	if err := SaveCertificates(dir, ca, nil); err != nil {
		t.Fatalf("SaveCertificates() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, CAKeyFile))
	if err != nil {
		t.Fatalf("stat CA key: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("CA key permissions = %o, want 600", perm)
	}
	if _, err := os.Stat(filepath.Join(dir, ServerCertFile)); !os.IsNotExist(err) {
		t.Error("server certificate should not be written without a server cert")
	}

	loaded, err := LoadCA(dir)
	if err != nil {
		t.Fatalf("LoadCA() error = %v", err)
	}
	if !loaded.Certificate.Equal(ca.Certificate) {
		t.Error("loaded CA certificate differs from saved one")
	}
	if !loaded.PrivateKey.Equal(ca.PrivateKey) {
		t.Error("loaded CA key differs from saved one")
	}
}

func TestLoadCA_Missing(t *testing.T) {
	_, err := LoadCA(t.TempDir())
	if err == nil {
		t.Fatal("LoadCA() on empty dir should fail")
	}
	errutil.AssertErrorCode(t, err, "TLS_LOAD_FAILED")
}

func TestLoadCA_BadPEM(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, CACertFile), []byte("not pem"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := LoadCA(dir)
	if err == nil {
		t.Fatal("LoadCA() with invalid PEM should fail")
	}
	errutil.AssertErrorCode(t, err, "TLS_LOAD_FAILED")
}

func TestEnsureServerTLS_GeneratesThenReuses(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")

	cfg, err := EnsureServerTLS(dir, []string{"auth.local"})
	if err != nil {
		t.Fatalf("EnsureServerTLS() error = %v", err)
	}
	if cfg.MinVersion != cryptotls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", cfg.MinVersion)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("Certificates = %d, want 1", len(cfg.Certificates))
	}
	first := cfg.Certificates[0].Certificate[0]

	again, err := EnsureServerTLS(dir, nil)
	if err != nil {
		t.Fatalf("second EnsureServerTLS() error = %v", err)
	}
	if string(again.Certificates[0].Certificate[0]) != string(first) {
		t.Error("second call should reuse the existing certificate")
	}
}

func TestEnsureServerTLS_PartialDirFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, CACertFile), []byte("leftover"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := EnsureServerTLS(dir, nil)
	if err == nil {
		t.Fatal("EnsureServerTLS() should not overwrite a partial certs dir")
	}
	errutil.AssertErrorCode(t, err, "TLS_LOAD_FAILED")

	data, readErr := os.ReadFile(filepath.Join(dir, CACertFile))
	if readErr != nil || string(data) != "leftover" {
		t.Error("existing file was modified")
	}
}
