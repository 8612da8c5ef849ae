// Package testutil genera certificados RSA de prueba para los tests de firma.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// Issued es un certificado con su llave privada.
type Issued struct {
	Cert *x509.Certificate
	Key  *rsa.PrivateKey
}

var serial atomic.Int64

func nextSerial() *big.Int {
	return big.NewInt(serial.Add(1))
}

// NewKey genera una llave RSA-2048.
func NewKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generar llave: %v", err)
	}
	return key
}

// SelfSigned crea un certificado autofirmado de firma digital.
func SelfSigned(t *testing.T, cn string) Issued {
	t.Helper()
	key := NewKey(t)
	tmpl := &x509.Certificate{
		SerialNumber: nextSerial(),
		Subject:      pkix.Name{CommonName: cn, Organization: []string{"Banco Teste S.A."}, Country: []string{"BR"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	return create(t, tmpl, tmpl, key, key)
}

// CA crea un certificado de autoridad firmado por parent (o autofirmado si parent es nil).
func CA(t *testing.T, cn string, parent *Issued) Issued {
	t.Helper()
	key := NewKey(t)
	tmpl := &x509.Certificate{
		SerialNumber:          nextSerial(),
		Subject:               pkix.Name{CommonName: cn, Country: []string{"BR"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(48 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	if parent == nil {
		return create(t, tmpl, tmpl, key, key)
	}
	return create(t, tmpl, parent.Cert, key, parent.Key)
}

// Leaf crea un certificado de usuario final emitido por issuer.
func Leaf(t *testing.T, cn string, issuer Issued) Issued {
	t.Helper()
	key := NewKey(t)
	tmpl := &x509.Certificate{
		SerialNumber: nextSerial(),
		Subject:      pkix.Name{CommonName: cn, Country: []string{"BR"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	return create(t, tmpl, issuer.Cert, key, issuer.Key)
}

func create(t *testing.T, tmpl, parent *x509.Certificate, key, parentKey *rsa.PrivateKey) Issued {
	t.Helper()
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, &key.PublicKey, parentKey)
	if err != nil {
		t.Fatalf("crear certificado: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsear certificado: %v", err)
	}
	return Issued{Cert: cert, Key: key}
}

// TLS arma el tls.Certificate con la hoja primero y los candidatos de cadena después.
func TLS(leaf Issued, chain ...Issued) *tls.Certificate {
	out := &tls.Certificate{
		Certificate: [][]byte{leaf.Cert.Raw},
		PrivateKey:  leaf.Key,
		Leaf:        leaf.Cert,
	}
	for _, c := range chain {
		out.Certificate = append(out.Certificate, c.Cert.Raw)
	}
	return out
}

// WritePEM escribe certificado(s) y llave en dir y devuelve las rutas.
func WritePEM(t *testing.T, dir string, leaf Issued, chain ...Issued) (certPath, keyPath string) {
	t.Helper()
	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")

	var certPEM []byte
	for _, c := range append([]Issued{leaf}, chain...) {
		certPEM = append(certPEM, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Cert.Raw})...)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(leaf.Key)
	if err != nil {
		t.Fatalf("serializar llave: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatalf("escribir certificado: %v", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatalf("escribir llave: %v", err)
	}
	return certPath, keyPath
}
