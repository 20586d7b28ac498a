// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package tls provides certificate generation and loading for serving the
// authd API over HTTPS.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io/fs"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
)

// File names inside a certs directory.
const (
	CACertFile     = "root-ca.crt"
	CAKeyFile      = "root-ca.key"
	ServerCertFile = "server.crt"
	ServerKeyFile  = "server.key"
)

// CA holds a certificate authority certificate and private key.
type CA struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// ServerCert holds a server certificate and private key.
type ServerCert struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// GenerateCA creates a local root CA for signing the authd server certificate.
func GenerateCA() (*CA, error) {
	key, serial, err := newKeyAndSerial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"authd"},
			CommonName:   "authd local CA",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}

	cert, err := createCertificate(template, template, &key.PublicKey, key)
	if err != nil {
		return nil, oops.With("operation", "create CA certificate").Wrap(err)
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// GenerateServerCert creates a server certificate signed by ca. Each host
// becomes an IP or DNS SAN; localhost and 127.0.0.1 are always included.
func GenerateServerCert(ca *CA, hosts []string) (*ServerCert, error) {
	if ca == nil {
		return nil, oops.Code("TLS_INVALID_CA").Errorf("CA is required")
	}
	key, serial, err := newKeyAndSerial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"authd"},
			CommonName:   "authd",
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().AddDate(1, 0, 0),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	addSANs(template, append([]string{"localhost", "127.0.0.1"}, hosts...))

	cert, err := createCertificate(template, ca.Certificate, &key.PublicKey, ca.PrivateKey)
	if err != nil {
		return nil, oops.With("operation", "create server certificate").Wrap(err)
	}
	return &ServerCert{Certificate: cert, PrivateKey: key}, nil
}

func addSANs(template *x509.Certificate, hosts []string) {
	seen := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}
}

func newKeyAndSerial() (*ecdsa.PrivateKey, *big.Int, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, oops.Code("TLS_KEY_FAILED").Wrap(err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, oops.Code("TLS_SERIAL_FAILED").Wrap(err)
	}
	return key, serial, nil
}

func createCertificate(template, parent *x509.Certificate, pub *ecdsa.PublicKey, signer *ecdsa.PrivateKey) (*x509.Certificate, error) {
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, signer)
	if err != nil {
		return nil, oops.Code("TLS_CERT_FAILED").Wrap(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, oops.Code("TLS_CERT_FAILED").Wrap(err)
	}
	return cert, nil
}

// SaveCertificates writes the CA and, if given, the server certificate to certsDir.
func SaveCertificates(certsDir string, ca *CA, server *ServerCert) error {
	if err := os.MkdirAll(certsDir, 0o700); err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("dir", certsDir).Wrap(err)
	}

	files := []struct {
		name  string
		write func(string) error
	}{
		{CACertFile, func(p string) error { return saveCert(p, ca.Certificate) }},
		{CAKeyFile, func(p string) error { return saveKey(p, ca.PrivateKey) }},
	}
	if server != nil {
		files = append(files,
			struct {
				name  string
				write func(string) error
			}{ServerCertFile, func(p string) error { return saveCert(p, server.Certificate) }},
			struct {
				name  string
				write func(string) error
			}{ServerKeyFile, func(p string) error { return saveKey(p, server.PrivateKey) }},
		)
	}
	for _, f := range files {
		if err := f.write(filepath.Join(certsDir, f.name)); err != nil {
			return oops.Code("TLS_SAVE_FAILED").With("file", f.name).Wrap(err)
		}
	}
	return nil
}

// LoadCA loads an existing CA from certsDir.
func LoadCA(certsDir string) (*CA, error) {
	cert, err := readCert(filepath.Join(certsDir, CACertFile))
	if err != nil {
		return nil, err
	}
	keyPEM, err := os.ReadFile(filepath.Clean(filepath.Join(certsDir, CAKeyFile)))
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("file", CAKeyFile).Wrap(err)
	}
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("file", CAKeyFile).Errorf("no PEM block in CA key")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("file", CAKeyFile).Wrap(err)
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// LoadServerTLS loads the server key pair from certsDir into a TLS 1.2+ config.
func LoadServerTLS(certsDir string) (*cryptotls.Config, error) {
	pair, err := cryptotls.LoadX509KeyPair(
		filepath.Join(certsDir, ServerCertFile),
		filepath.Join(certsDir, ServerKeyFile),
	)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("dir", certsDir).Wrap(err)
	}
	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{pair},
		MinVersion:   cryptotls.VersionTLS12,
	}, nil
}

// EnsureServerTLS loads the server certificate from certsDir, generating a
// local CA and server certificate first if the directory holds none. Existing
// but unreadable files are an error rather than silently replaced.
func EnsureServerTLS(certsDir string, hosts []string) (*cryptotls.Config, error) {
	for _, name := range []string{CACertFile, CAKeyFile, ServerCertFile, ServerKeyFile} {
		if fileExists(filepath.Join(certsDir, name)) {
			return LoadServerTLS(certsDir)
		}
	}

	ca, err := GenerateCA()
	if err != nil {
		return nil, err
	}
	server, err := GenerateServerCert(ca, hosts)
	if err != nil {
		return nil, err
	}
	if err := SaveCertificates(certsDir, ca, server); err != nil {
		return nil, err
	}
	return LoadServerTLS(certsDir)
}

// fileExists treats permission errors as "exists" to avoid overwriting files
// we cannot read.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

func readCert(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("file", filepath.Base(path)).Wrap(err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("file", filepath.Base(path)).Errorf("no PEM block in certificate")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("file", filepath.Base(path)).Wrap(err)
	}
	return cert, nil
}

func saveCert(path string, cert *x509.Certificate) error {
	return writePEM(path, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

func saveKey(path string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return oops.Wrap(err)
	}
	return writePEM(path, &pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
}

func writePEM(path string, block *pem.Block) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return oops.Wrap(err)
	}
	if err := pem.Encode(f, block); err != nil {
		_ = f.Close()
		return oops.Wrap(err)
	}
	return oops.Wrap(f.Close())
}
