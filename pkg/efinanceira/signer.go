// Package efinanceira define los contratos de firma y verificación XML-DSig
// de los documentos e-Financeira (Receita Federal do Brasil) y su catálogo de esquemas.

package efinanceira

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"strings"
)

// Placement indica dónde se inserta el nodo <Signature>.
type Placement int

const (
	// PlacementTarget agrega la firma como último hijo del elemento firmado.
	PlacementTarget Placement = iota
	// PlacementParent agrega la firma como último hijo del padre del elemento firmado
	// (layout de los eventos e-Financeira: <eFinanceira><evtX id=".."/><Signature/></eFinanceira>).
	PlacementParent
)

// SignOptions describe una solicitud de firma enveloped sobre un elemento identificado por ID.
type SignOptions struct {
	ElementToSignName string // nombre local del elemento (ej. "evtMovOpFin")
	IDAttributeName   string // por defecto "Id"
	IDValue           string

	// Certificado directo (Certificate[0] es la hoja; el resto son candidatos de la cadena).
	Certificate *tls.Certificate
	// Alternativas resueltas por un CertificateResolver.
	CertificatePath       string
	CertificateKeyPath    string
	CertificatePassword   string
	CertificateThumbprint string

	CanonicalizationMethod string
	SignatureMethod        string
	DigestMethod           string

	IncludeCertificate      bool
	IncludeCertificateChain bool
	Placement               Placement
}

// NewSignOptions devuelve opciones con los algoritmos por defecto e IncludeCertificate activo.
func NewSignOptions(elementName, idValue string) SignOptions {
	return SignOptions{
		ElementToSignName:      elementName,
		IDAttributeName:        DefaultIDAttributeName,
		IDValue:                idValue,
		CanonicalizationMethod: DefaultCanonicalizationMethod,
		SignatureMethod:        DefaultSignatureMethod,
		DigestMethod:           DefaultDigestMethod,
		IncludeCertificate:     true,
	}
}

// WithDefaults completa los campos vacíos con los valores por defecto.
func (o SignOptions) WithDefaults() SignOptions {
	if o.IDAttributeName == "" {
		o.IDAttributeName = DefaultIDAttributeName
	}
	if o.CanonicalizationMethod == "" {
		o.CanonicalizationMethod = DefaultCanonicalizationMethod
	}
	if o.SignatureMethod == "" {
		o.SignatureMethod = DefaultSignatureMethod
	}
	if o.DigestMethod == "" {
		o.DigestMethod = DefaultDigestMethod
	}
	return o
}

// Validate comprueba los invariantes de la solicitud.
func (o SignOptions) Validate() error {
	if strings.TrimSpace(o.ElementToSignName) == "" {
		return fmt.Errorf("%w: ElementToSignName es obligatorio", ErrInvalidSignOptions)
	}
	if strings.TrimSpace(o.IDValue) == "" {
		return fmt.Errorf("%w: IDValue es obligatorio", ErrInvalidSignOptions)
	}
	if o.Certificate == nil && o.CertificatePath == "" && o.CertificateThumbprint == "" {
		return fmt.Errorf("%w: se requiere un certificado, una ruta o un thumbprint", ErrInvalidSignOptions)
	}
	if o.Certificate != nil && len(o.Certificate.Certificate) == 0 {
		return fmt.Errorf("%w: el certificado no contiene la hoja X.509", ErrInvalidSignOptions)
	}
	if o.Placement != PlacementTarget && o.Placement != PlacementParent {
		return fmt.Errorf("%w: placement %d desconocido", ErrInvalidSignOptions, o.Placement)
	}
	return nil
}

// CertificateRef identifica un certificado a resolver (archivo o almacén).
type CertificateRef struct {
	Path       string
	KeyPath    string
	Password   string
	Thumbprint string
}

// Ref extrae la referencia de certificado de las opciones.
func (o SignOptions) Ref() CertificateRef {
	return CertificateRef{
		Path:       o.CertificatePath,
		KeyPath:    o.CertificateKeyPath,
		Password:   o.CertificatePassword,
		Thumbprint: o.CertificateThumbprint,
	}
}

// CertificateResolver obtiene certificado + llave privada (crypto.Signer) por ruta o thumbprint.
type CertificateResolver interface {
	Resolve(ref CertificateRef) (*tls.Certificate, error)
}

// SignatureResult es el resultado de una firma. Se calcula una sola vez por llamada.
type SignatureResult struct {
	SignedXML      []byte
	DigestValue    []byte
	SignatureValue []byte
	Certificates   []*x509.Certificate // contenido de KeyInfo, hoja primero
	Signer         *x509.Certificate   // certificado de la llave usada, aunque no haya KeyInfo
}

// Signer firma un elemento del documento e inserta <Signature> (enveloped).
type Signer interface {
	Sign(xmlBytes []byte, opts SignOptions) ([]byte, error)
	SignDetailed(xmlBytes []byte, opts SignOptions) (*SignatureResult, error)
}

// VerificationStatus clasifica el resultado de una verificación.
type VerificationStatus string

const (
	StatusValid                VerificationStatus = "valid"
	StatusSignatureNotFound    VerificationStatus = "signature_not_found"
	StatusMalformedInput       VerificationStatus = "malformed_input"
	StatusElementNotFound      VerificationStatus = "element_not_found"
	StatusAmbiguousReference   VerificationStatus = "ambiguous_reference"
	StatusDigestMismatch       VerificationStatus = "digest_mismatch"
	StatusSignatureMismatch    VerificationStatus = "signature_mismatch"
	StatusUnsupportedAlgorithm VerificationStatus = "unsupported_algorithm"
	StatusKeyNotFound          VerificationStatus = "key_not_found"
)

// VerificationResult detalla el resultado de Verify.
type VerificationResult struct {
	Valid  bool
	Status VerificationStatus
	Detail string
	Signer *x509.Certificate // certificado usado para verificar, si se encontró
}

// Verifier valida firmas enveloped.
type Verifier interface {
	Verify(signedXML []byte) bool
	VerifyDetailed(signedXML []byte) VerificationResult
}
