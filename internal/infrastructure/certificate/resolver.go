// Package certificate resuelve el certificado de firma (FromFile / FromStore)
// detrás de efinanceira.CertificateResolver.
package certificate

import (
	"crypto/tls"
	"fmt"

	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

// Resolver resuelve por thumbprint (si hay almacén configurado) o por archivo.
type Resolver struct {
	store ThumbprintStore
}

// NewResolver crea el resolver. store puede ser nil si solo se usan archivos.
func NewResolver(store ThumbprintStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve implementa efinanceira.CertificateResolver.
func (r *Resolver) Resolve(ref efinanceira.CertificateRef) (*tls.Certificate, error) {
	switch {
	case ref.Thumbprint != "":
		if r.store == nil {
			return nil, fmt.Errorf("%w: no hay almacén de certificados configurado", efinanceira.ErrCertificateLoad)
		}
		return r.store.Find(ref.Thumbprint)
	case ref.Path != "":
		return LoadFromFile(ref.Path, ref.KeyPath, ref.Password)
	default:
		return nil, fmt.Errorf("%w: referencia de certificado vacía", efinanceira.ErrCertificateLoad)
	}
}

var _ efinanceira.CertificateResolver = (*Resolver)(nil)
