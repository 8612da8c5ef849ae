// Verificación de firmas XML-DSig enveloped.

package signer

import (
	"crypto/hmac"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

// SignatureVerifier implementa efinanceira.Verifier. Los certificados confiables
// solo se usan cuando la firma no trae KeyInfo.
type SignatureVerifier struct {
	trusted []*x509.Certificate
	idAttrs []string
}

// NewSignatureVerifier crea el verificador. Reference URI="#x" se resuelve con los
// atributos Id, id e ID.
func NewSignatureVerifier(trusted ...*x509.Certificate) *SignatureVerifier {
	return &SignatureVerifier{trusted: trusted, idAttrs: referenceIDAttributes}
}

// WithIDAttributes devuelve una copia que además acepta los atributos de ID dados
// (ej. EFIN_ID_ATTRIBUTE), para verificar lo firmado con un IDAttributeName propio.
func (v *SignatureVerifier) WithIDAttributes(names ...string) *SignatureVerifier {
	return &SignatureVerifier{trusted: v.trusted, idAttrs: idAttributes(v.idAttrs, names...)}
}

// Verify devuelve true solo si el digest y la firma de la primera <Signature> son válidos.
func (v *SignatureVerifier) Verify(signedXML []byte) bool {
	return v.VerifyDetailed(signedXML).Valid
}

// VerifyDetailed verifica la primera <Signature> del documento. Nunca entra en pánico:
// cualquier fallo se informa en el Status.
func (v *SignatureVerifier) VerifyDetailed(signedXML []byte) (res efinanceira.VerificationResult) {
	defer func() {
		if r := recover(); r != nil {
			res = failed(efinanceira.StatusMalformedInput, fmt.Sprintf("pánico al verificar: %v", r))
		}
	}()

	doc, err := parseDocument(signedXML)
	if err != nil {
		return failed(efinanceira.StatusMalformedInput, err.Error())
	}
	sig := findSignature(doc.Root())
	if sig == nil {
		return failed(efinanceira.StatusSignatureNotFound, "el documento no contiene <Signature>")
	}
	signedInfo := dsChild(sig, tagSignedInfo)
	if signedInfo == nil {
		return failed(efinanceira.StatusMalformedInput, "<Signature> sin SignedInfo")
	}
	c14nURI := algorithmOf(dsChild(signedInfo, tagCanonicalizationMethod))
	signatureURI := algorithmOf(dsChild(signedInfo, tagSignatureMethod))
	if c14nURI == "" || signatureURI == "" {
		return failed(efinanceira.StatusMalformedInput, "SignedInfo sin CanonicalizationMethod o SignatureMethod")
	}

	// 1) Digests de cada Reference
	refs := dsChildren(signedInfo, tagReference)
	if len(refs) == 0 {
		return failed(efinanceira.StatusMalformedInput, "SignedInfo sin Reference")
	}
	for _, ref := range refs {
		if r, ok := v.checkReference(doc, sig, ref); !ok {
			return r
		}
	}

	// 2) SignatureValue sobre SignedInfo canónico
	hash, err := SignatureHash(signatureURI)
	if err != nil {
		return failed(efinanceira.StatusUnsupportedAlgorithm, err.Error())
	}
	signedInfoC14N, err := Canonicalize(signedInfo, c14nURI)
	if err != nil {
		return fromError(err)
	}
	sigValueEl := dsChild(sig, tagSignatureValue)
	if sigValueEl == nil {
		return failed(efinanceira.StatusMalformedInput, "<Signature> sin SignatureValue")
	}
	signatureValue, err := decodeBase64(sigValueEl.Text())
	if err != nil {
		return failed(efinanceira.StatusMalformedInput, "SignatureValue no es Base64 válido")
	}

	keys := keyInfoCertificates(sig)
	if len(keys) == 0 {
		keys = v.trusted
	}
	if len(keys) == 0 {
		return failed(efinanceira.StatusKeyNotFound, "sin KeyInfo ni certificados confiables")
	}
	hashed := sum(hash, signedInfoC14N)
	for _, c := range keys {
		pub, ok := c.PublicKey.(*rsa.PublicKey)
		if !ok {
			continue
		}
		if rsa.VerifyPKCS1v15(pub, hash, hashed, signatureValue) == nil {
			return efinanceira.VerificationResult{Valid: true, Status: efinanceira.StatusValid, Signer: c}
		}
	}
	return failed(efinanceira.StatusSignatureMismatch, "SignatureValue no corresponde a SignedInfo")
}

func (v *SignatureVerifier) checkReference(doc *etree.Document, sig, ref *etree.Element) (efinanceira.VerificationResult, bool) {
	uri := ref.SelectAttrValue(attrURI, "")
	target, res, ok := resolveReference(doc.Root(), uri, v.idAttrs)
	if !ok {
		return res, false
	}
	digestURI := algorithmOf(dsChild(ref, tagDigestMethod))
	digestEl := dsChild(ref, tagDigestValue)
	if digestURI == "" || digestEl == nil {
		return failed(efinanceira.StatusMalformedInput, "Reference sin DigestMethod o DigestValue"), false
	}
	expected, err := decodeBase64(digestEl.Text())
	if err != nil {
		return failed(efinanceira.StatusMalformedInput, "DigestValue no es Base64 válido"), false
	}
	canonical, err := applyTransforms(target, sig, referenceTransforms(ref))
	if err != nil {
		return fromError(err), false
	}
	computed, err := Digest(canonical, digestURI)
	if err != nil {
		return fromError(err), false
	}
	if !hmac.Equal(expected, computed) {
		return failed(efinanceira.StatusDigestMismatch, fmt.Sprintf("digest de la Reference %q no coincide", uri)), false
	}
	return efinanceira.VerificationResult{}, true
}

// resolveReference resuelve "" (documento) o "#id" con los atributos de ID del verificador.
func resolveReference(root *etree.Element, uri string, idAttrs []string) (*etree.Element, efinanceira.VerificationResult, bool) {
	if uri == "" {
		return root, efinanceira.VerificationResult{}, true
	}
	if !strings.HasPrefix(uri, "#") || len(uri) == 1 {
		return nil, failed(efinanceira.StatusElementNotFound, fmt.Sprintf("Reference URI %q no soportada", uri)), false
	}
	matches := findElementsByID(root, "", idAttrs, uri[1:])
	switch len(matches) {
	case 0:
		return nil, failed(efinanceira.StatusElementNotFound, fmt.Sprintf("no existe el elemento %s", uri)), false
	case 1:
		return matches[0], efinanceira.VerificationResult{}, true
	default:
		return nil, failed(efinanceira.StatusAmbiguousReference, fmt.Sprintf("%d elementos con ID %s", len(matches), uri)), false
	}
}

func algorithmOf(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return el.SelectAttrValue(attrAlgorithm, "")
}

func failed(status efinanceira.VerificationStatus, detail string) efinanceira.VerificationResult {
	return efinanceira.VerificationResult{Status: status, Detail: detail}
}

func fromError(err error) efinanceira.VerificationResult {
	if errors.Is(err, efinanceira.ErrUnsupportedAlgorithm) {
		return failed(efinanceira.StatusUnsupportedAlgorithm, err.Error())
	}
	return failed(efinanceira.StatusMalformedInput, err.Error())
}

var _ efinanceira.Verifier = (*SignatureVerifier)(nil)
