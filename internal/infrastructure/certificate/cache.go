package certificate

import (
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

// CachingResolver memoriza los certificados resueltos. En un fallo de caché
// solo una goroutine carga el certificado; las demás esperan su resultado.
// La invalidación es explícita.
type CachingResolver struct {
	next  efinanceira.CertificateResolver
	cache sync.Map // clave -> *tls.Certificate
	group singleflight.Group
}

// NewCachingResolver envuelve next con la caché.
func NewCachingResolver(next efinanceira.CertificateResolver) *CachingResolver {
	return &CachingResolver{next: next}
}

// Resolve implementa efinanceira.CertificateResolver.
func (c *CachingResolver) Resolve(ref efinanceira.CertificateRef) (*tls.Certificate, error) {
	key := cacheKey(ref)
	if v, ok := c.cache.Load(key); ok {
		return v.(*tls.Certificate), nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.cache.Load(key); ok {
			return v, nil
		}
		cert, err := c.next.Resolve(ref)
		if err != nil {
			return nil, err
		}
		c.cache.Store(key, cert)
		return cert, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*tls.Certificate), nil
}

// Invalidate descarta la entrada de la referencia (p. ej. tras renovar el certificado).
func (c *CachingResolver) Invalidate(ref efinanceira.CertificateRef) {
	c.cache.Delete(cacheKey(ref))
}

// Purge vacía la caché.
func (c *CachingResolver) Purge() {
	c.cache.Range(func(k, _ any) bool {
		c.cache.Delete(k)
		return true
	})
}

// cacheKey no guarda la contraseña en claro.
func cacheKey(ref efinanceira.CertificateRef) string {
	if ref.Thumbprint != "" {
		return "tp:" + NormalizeThumbprint(ref.Thumbprint)
	}
	h := sha256.Sum256([]byte(ref.Password))
	return "file:" + ref.Path + "|" + ref.KeyPath + "|" + hex.EncodeToString(h[:8])
}

var _ efinanceira.CertificateResolver = (*CachingResolver)(nil)
