package certificate

import (
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

// Thumbprint devuelve el SHA-1 del certificado en hexadecimal mayúsculas,
// el formato que muestran los almacenes de certificados.
func Thumbprint(c *x509.Certificate) string {
	h := sha1.Sum(c.Raw)
	return strings.ToUpper(hex.EncodeToString(h[:]))
}

// NormalizeThumbprint quita separadores (espacios, ':') y pasa a mayúsculas.
func NormalizeThumbprint(s string) string {
	return strings.ToUpper(strings.NewReplacer(" ", "", ":", "", "-", "").Replace(strings.TrimSpace(s)))
}

// ThumbprintStore busca certificados con llave privada por thumbprint
// (almacén en memoria, token A3 o HSM).
type ThumbprintStore interface {
	Find(thumbprint string) (*tls.Certificate, error)
}

// MemoryStore es un almacén en memoria, seguro para uso concurrente.
type MemoryStore struct {
	mu    sync.RWMutex
	certs map[string]*tls.Certificate
}

// NewMemoryStore crea el almacén con los certificados dados.
func NewMemoryStore(certs ...*tls.Certificate) (*MemoryStore, error) {
	s := &MemoryStore{certs: make(map[string]*tls.Certificate)}
	for _, c := range certs {
		if _, err := s.Add(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add registra el certificado y devuelve su thumbprint.
func (s *MemoryStore) Add(cert *tls.Certificate) (string, error) {
	if cert == nil || len(cert.Certificate) == 0 {
		return "", fmt.Errorf("%w: certificado vacío", efinanceira.ErrCertificateLoad)
	}
	leaf := cert.Leaf
	if leaf == nil {
		var err error
		if leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return "", fmt.Errorf("%w: parsear certificado: %v", efinanceira.ErrCertificateLoad, err)
		}
	}
	tp := Thumbprint(leaf)
	s.mu.Lock()
	s.certs[tp] = cert
	s.mu.Unlock()
	return tp, nil
}

// Find implementa ThumbprintStore.
func (s *MemoryStore) Find(thumbprint string) (*tls.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.certs[NormalizeThumbprint(thumbprint)]
	if !ok {
		return nil, fmt.Errorf("%w: thumbprint %s no encontrado", efinanceira.ErrCertificateLoad, thumbprint)
	}
	return cert, nil
}

var _ ThumbprintStore = (*MemoryStore)(nil)
