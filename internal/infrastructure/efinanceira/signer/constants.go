// Nombres de los nodos XML-DSig usados al construir y verificar <Signature>.

package signer

// Elementos del namespace http://www.w3.org/2000/09/xmldsig#.
const (
	tagSignature              = "Signature"
	tagSignedInfo             = "SignedInfo"
	tagCanonicalizationMethod = "CanonicalizationMethod"
	tagSignatureMethod        = "SignatureMethod"
	tagReference              = "Reference"
	tagTransforms             = "Transforms"
	tagTransform              = "Transform"
	tagDigestMethod           = "DigestMethod"
	tagDigestValue            = "DigestValue"
	tagSignatureValue         = "SignatureValue"
	tagKeyInfo                = "KeyInfo"
	tagX509Data               = "X509Data"
	tagX509Certificate        = "X509Certificate"

	attrAlgorithm = "Algorithm"
	attrURI       = "URI"
)

// referenceIDAttributes atributos de ID aceptados al resolver Reference URI="#id".
var referenceIDAttributes = []string{"Id", "id", "ID"}
