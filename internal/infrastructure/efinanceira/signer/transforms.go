// Cadena de transforms de una Reference (enveloped-signature + C14N).

package signer

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

// applyTransforms devuelve los octetos sobre los que se calcula el digest de la
// Reference. El transform enveloped excluye sig del elemento referenciado; si la
// lista no trae C14N se usa C14N 1.0 inclusivo. El árbol se restaura al salir.
func applyTransforms(target, sig *etree.Element, transforms []string) ([]byte, error) {
	enveloped := false
	c14nURI := efinanceira.AlgC14N
	for _, alg := range transforms {
		switch {
		case alg == efinanceira.TransformEnveloped:
			enveloped = true
		case IsCanonicalization(alg):
			c14nURI = alg
		default:
			return nil, fmt.Errorf("%w: %q", efinanceira.ErrUnsupportedTransform, alg)
		}
	}
	canon, err := NewCanonicalizer(c14nURI)
	if err != nil {
		return nil, err
	}

	if enveloped && sig != nil && isDescendant(sig, target) {
		parent := sig.Parent()
		idx := sig.Index()
		parent.RemoveChildAt(idx)
		defer parent.InsertChildAt(idx, sig)
	}
	return canon.Canonicalize(target)
}

// referenceTransforms lee los Algorithm de <Transforms> de una Reference.
func referenceTransforms(ref *etree.Element) []string {
	var out []string
	transforms := dsChild(ref, tagTransforms)
	if transforms == nil {
		return out
	}
	for _, t := range dsChildren(transforms, tagTransform) {
		out = append(out, t.SelectAttrValue(attrAlgorithm, ""))
	}
	return out
}
