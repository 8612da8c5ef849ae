// Canonicalización XML (C14N) por URI de algoritmo.

package signer

import (
	"fmt"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

// Canonicalizer produce la forma canónica de un elemento en su contexto:
// los namespaces en alcance se declaran en el ápice, de modo que el resultado
// no depende de si el elemento se canonicaliza en el árbol o tras releerlo.
type Canonicalizer interface {
	Canonicalize(el *etree.Element) ([]byte, error)
	Algorithm() string
}

// NewCanonicalizer devuelve el canonicalizador registrado para la URI.
func NewCanonicalizer(uri string) (Canonicalizer, error) {
	switch uri {
	case efinanceira.AlgC14N:
		return &dsigCanonicalizer{uri: uri, inner: dsig.MakeC14N10RecCanonicalizer(), inclusive: true}, nil
	case efinanceira.AlgC14NWithComments:
		return &dsigCanonicalizer{uri: uri, inner: dsig.MakeC14N10WithCommentsCanonicalizer(), inclusive: true}, nil
	case efinanceira.AlgC14N11:
		return &dsigCanonicalizer{uri: uri, inner: dsig.MakeC14N11Canonicalizer(), inclusive: true}, nil
	case efinanceira.AlgC14N11WithComments:
		return &dsigCanonicalizer{uri: uri, inner: dsig.MakeC14N11WithCommentsCanonicalizer(), inclusive: true}, nil
	case efinanceira.AlgExcC14N:
		return &dsigCanonicalizer{uri: uri, inner: dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")}, nil
	case efinanceira.AlgExcC14NWithComments:
		return &dsigCanonicalizer{uri: uri, inner: dsig.MakeC14N10ExclusiveWithCommentsCanonicalizerWithPrefixList("")}, nil
	}
	return nil, fmt.Errorf("%w: %q", efinanceira.ErrUnsupportedCanonicalization, uri)
}

// IsCanonicalization indica si la URI corresponde a un algoritmo C14N soportado.
func IsCanonicalization(uri string) bool {
	_, err := NewCanonicalizer(uri)
	return err == nil
}

// Canonicalize es un atajo para NewCanonicalizer(uri).Canonicalize(el).
func Canonicalize(el *etree.Element, uri string) ([]byte, error) {
	c, err := NewCanonicalizer(uri)
	if err != nil {
		return nil, err
	}
	return c.Canonicalize(el)
}

// dsigCanonicalizer adapta los canonicalizadores de goxmldsig. Las variantes
// inclusivas conservan en el ápice todas las declaraciones en alcance, se usen o no.
type dsigCanonicalizer struct {
	uri       string
	inner     dsig.Canonicalizer
	inclusive bool
}

func (c *dsigCanonicalizer) Algorithm() string { return c.uri }

func (c *dsigCanonicalizer) Canonicalize(el *etree.Element) ([]byte, error) {
	// El canonicalizador exclusivo modifica su entrada; siempre recibe una copia.
	out, err := c.inner.Canonicalize(detach(el, c.inclusive))
	if err != nil {
		return nil, fmt.Errorf("%w: c14n %s: %v", efinanceira.ErrMalformedDocument, el.Tag, err)
	}
	return out, nil
}

var _ Canonicalizer = (*dsigCanonicalizer)(nil)
