// Servicio de firma XML-DSig enveloped para documentos e-Financeira.
// Inserta <Signature xmlns="http://www.w3.org/2000/09/xmldsig#"> en el elemento
// referenciado por ID (o en su padre, según SignOptions.Placement).

package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/beevik/etree"

	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

// DigitalSignatureService implementa efinanceira.Signer. No guarda estado entre
// llamadas; es seguro para uso concurrente.
type DigitalSignatureService struct {
	resolver efinanceira.CertificateResolver
}

// NewDigitalSignatureService crea el servicio. resolver puede ser nil si siempre
// se entrega SignOptions.Certificate.
func NewDigitalSignatureService(resolver efinanceira.CertificateResolver) *DigitalSignatureService {
	return &DigitalSignatureService{resolver: resolver}
}

// Sign firma el elemento indicado y devuelve el documento con la firma insertada.
func (s *DigitalSignatureService) Sign(xmlBytes []byte, opts efinanceira.SignOptions) ([]byte, error) {
	res, err := s.SignDetailed(xmlBytes, opts)
	if err != nil {
		return nil, err
	}
	return res.SignedXML, nil
}

// SignDetailed firma y devuelve además DigestValue, SignatureValue y los
// certificados incluidos en KeyInfo.
func (s *DigitalSignatureService) SignDetailed(xmlBytes []byte, opts efinanceira.SignOptions) (*efinanceira.SignatureResult, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	canon, err := NewCanonicalizer(opts.CanonicalizationMethod)
	if err != nil {
		return nil, err
	}
	if _, err := DigestHash(opts.DigestMethod); err != nil {
		return nil, err
	}
	signHash, err := SignatureHash(opts.SignatureMethod)
	if err != nil {
		return nil, err
	}

	cert, err := s.resolveCertificate(opts)
	if err != nil {
		return nil, err
	}
	key, leaf, err := signingMaterial(cert)
	if err != nil {
		return nil, err
	}

	// 1) Documento y elemento referenciado
	doc, err := parseDocument(xmlBytes)
	if err != nil {
		return nil, err
	}
	target, err := findTarget(doc.Root(), opts)
	if err != nil {
		return nil, err
	}
	container := target
	if opts.Placement == efinanceira.PlacementParent {
		container = parentElement(target)
		if container == nil {
			return nil, fmt.Errorf("%w: el elemento %s es la raíz y no tiene padre para la firma", efinanceira.ErrInvalidSignOptions, opts.ElementToSignName)
		}
	}
	// Una firma previa se reemplaza: el digest nunca cubre una firma anterior.
	removeSignatures(container)

	// 2) Digest de la Reference (enveloped + C14N)
	canonical, err := applyTransforms(target, nil, []string{efinanceira.TransformEnveloped, opts.CanonicalizationMethod})
	if err != nil {
		return nil, err
	}
	digestValue, err := Digest(canonical, opts.DigestMethod)
	if err != nil {
		return nil, err
	}

	// 3) <Signature> en su posición final; SignedInfo se canonicaliza ahí.
	sig := buildSignature(opts, digestValue)
	container.AddChild(sig)
	signedInfoC14N, err := canon.Canonicalize(dsChild(sig, tagSignedInfo))
	if err != nil {
		return nil, err
	}
	signatureValue, err := key.Sign(rand.Reader, sum(signHash, signedInfoC14N), signHash)
	if err != nil {
		return nil, fmt.Errorf("%w: firmar SignedInfo: %v", efinanceira.ErrSignatureComputation, err)
	}
	dsChild(sig, tagSignatureValue).SetText(base64.StdEncoding.EncodeToString(signatureValue))

	// 4) KeyInfo (no forma parte de lo firmado)
	var certs []*x509.Certificate
	if opts.IncludeCertificate || opts.IncludeCertificateChain {
		certs = certificateChain(leaf, cert, opts.IncludeCertificateChain)
		sig.AddChild(buildKeyInfo(certs))
	}

	out, err := serialize(doc)
	if err != nil {
		return nil, err
	}
	return &efinanceira.SignatureResult{
		SignedXML:      out,
		DigestValue:    digestValue,
		SignatureValue: signatureValue,
		Certificates:   certs,
		Signer:         leaf,
	}, nil
}

func (s *DigitalSignatureService) resolveCertificate(opts efinanceira.SignOptions) (*tls.Certificate, error) {
	if opts.Certificate != nil {
		return opts.Certificate, nil
	}
	if s.resolver == nil {
		return nil, fmt.Errorf("%w: no hay resolver de certificados configurado", efinanceira.ErrCertificateLoad)
	}
	cert, err := s.resolver.Resolve(opts.Ref())
	if err != nil {
		if errors.Is(err, efinanceira.ErrCertificateLoad) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", efinanceira.ErrCertificateLoad, err)
	}
	return cert, nil
}

// signingMaterial obtiene la llave (crypto.Signer) y el certificado hoja.
// Solo se aceptan llaves RSA que correspondan a la hoja.
func signingMaterial(cert *tls.Certificate) (crypto.Signer, *x509.Certificate, error) {
	if cert == nil || len(cert.Certificate) == 0 {
		return nil, nil, fmt.Errorf("%w: certificado vacío", efinanceira.ErrCertificateLoad)
	}
	leaf := cert.Leaf
	if leaf == nil {
		var err error
		leaf, err = x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: parsear certificado: %v", efinanceira.ErrCertificateLoad, err)
		}
	}
	key, ok := cert.PrivateKey.(crypto.Signer)
	if !ok || key == nil {
		return nil, nil, fmt.Errorf("%w: el certificado debe incluir llave privada", efinanceira.ErrCertificateLoad)
	}
	leafPub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("%w: se requiere un certificado RSA", efinanceira.ErrCertificateLoad)
	}
	if !leafPub.Equal(key.Public()) {
		return nil, nil, fmt.Errorf("%w: la llave privada no corresponde al certificado", efinanceira.ErrCertificateLoad)
	}
	return key, leaf, nil
}

// findTarget localiza el único elemento con el nombre local y el ID pedidos.
func findTarget(root *etree.Element, opts efinanceira.SignOptions) (*etree.Element, error) {
	matches := findElementsByID(root, opts.ElementToSignName, []string{opts.IDAttributeName}, opts.IDValue)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: <%s %s=%q>", efinanceira.ErrElementNotFound, opts.ElementToSignName, opts.IDAttributeName, opts.IDValue)
	}
	if len(matches) > 1 {
		return nil, fmt.Errorf("%w: %d elementos <%s %s=%q>", efinanceira.ErrAmbiguousElementReference,
			len(matches), opts.ElementToSignName, opts.IDAttributeName, opts.IDValue)
	}
	// URI="#id" la resuelve el verificador en cualquier elemento y con cualquier atributo
	// de ID: otro elemento con el mismo valor dejaría la Reference ambigua.
	attrs := idAttributes(referenceIDAttributes, opts.IDAttributeName)
	if all := findElementsByID(root, "", attrs, opts.IDValue); len(all) > 1 {
		return nil, fmt.Errorf("%w: %d elementos con ID %q", efinanceira.ErrAmbiguousElementReference, len(all), opts.IDValue)
	}
	return matches[0], nil
}

// buildSignature arma <Signature> con SignedInfo completo y SignatureValue vacío.
func buildSignature(opts efinanceira.SignOptions, digestValue []byte) *etree.Element {
	sig := etree.NewElement(tagSignature)
	sig.CreateAttr("xmlns", efinanceira.NamespaceDS)

	signedInfo := sig.CreateElement(tagSignedInfo)
	signedInfo.CreateElement(tagCanonicalizationMethod).CreateAttr(attrAlgorithm, opts.CanonicalizationMethod)
	signedInfo.CreateElement(tagSignatureMethod).CreateAttr(attrAlgorithm, opts.SignatureMethod)

	ref := signedInfo.CreateElement(tagReference)
	ref.CreateAttr(attrURI, "#"+opts.IDValue)
	transforms := ref.CreateElement(tagTransforms)
	transforms.CreateElement(tagTransform).CreateAttr(attrAlgorithm, efinanceira.TransformEnveloped)
	transforms.CreateElement(tagTransform).CreateAttr(attrAlgorithm, opts.CanonicalizationMethod)
	ref.CreateElement(tagDigestMethod).CreateAttr(attrAlgorithm, opts.DigestMethod)
	ref.CreateElement(tagDigestValue).SetText(base64.StdEncoding.EncodeToString(digestValue))

	sig.CreateElement(tagSignatureValue)
	return sig
}

var _ efinanceira.Signer = (*DigitalSignatureService)(nil)
