// KeyInfo: certificado hoja y cadena resoluble en X509Data.

package signer

import (
	"bytes"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"strings"

	"github.com/beevik/etree"
)

// certificateChain devuelve la hoja y, con includeChain, los emisores que se
// pueden resolver entre los certificados que acompañan a la llave. La búsqueda
// se detiene sin error en el primer emisor que no se encuentra.
func certificateChain(leaf *x509.Certificate, cert *tls.Certificate, includeChain bool) []*x509.Certificate {
	chain := []*x509.Certificate{leaf}
	if !includeChain || cert == nil || len(cert.Certificate) < 2 {
		return chain
	}
	candidates := make([]*x509.Certificate, 0, len(cert.Certificate)-1)
	for _, der := range cert.Certificate[1:] {
		c, err := x509.ParseCertificate(der)
		if err != nil {
			continue
		}
		candidates = append(candidates, c)
	}

	seen := map[[sha1.Size]byte]bool{sha1.Sum(leaf.Raw): true}
	current := leaf
	for !isSelfSigned(current) {
		issuer := findIssuer(current, candidates)
		if issuer == nil {
			break
		}
		fp := sha1.Sum(issuer.Raw)
		if seen[fp] {
			break
		}
		seen[fp] = true
		chain = append(chain, issuer)
		current = issuer
	}
	return chain
}

func findIssuer(child *x509.Certificate, candidates []*x509.Certificate) *x509.Certificate {
	for _, c := range candidates {
		if !bytes.Equal(c.RawSubject, child.RawIssuer) {
			continue
		}
		if child.CheckSignatureFrom(c) == nil {
			return c
		}
	}
	return nil
}

func isSelfSigned(c *x509.Certificate) bool {
	return bytes.Equal(c.RawSubject, c.RawIssuer) && c.CheckSignatureFrom(c) == nil
}

// buildKeyInfo arma <KeyInfo><X509Data> con un X509Certificate por certificado.
func buildKeyInfo(certs []*x509.Certificate) *etree.Element {
	keyInfo := etree.NewElement(tagKeyInfo)
	data := keyInfo.CreateElement(tagX509Data)
	for _, c := range certs {
		data.CreateElement(tagX509Certificate).SetText(base64.StdEncoding.EncodeToString(c.Raw))
	}
	return keyInfo
}

// keyInfoCertificates extrae los certificados de KeyInfo/X509Data, en orden.
// Los que no se pueden decodificar se ignoran.
func keyInfoCertificates(sig *etree.Element) []*x509.Certificate {
	keyInfo := dsChild(sig, tagKeyInfo)
	if keyInfo == nil {
		return nil
	}
	var out []*x509.Certificate
	for _, data := range dsChildren(keyInfo, tagX509Data) {
		for _, el := range dsChildren(data, tagX509Certificate) {
			der, err := decodeBase64(el.Text())
			if err != nil {
				continue
			}
			c, err := x509.ParseCertificate(der)
			if err != nil {
				continue
			}
			out = append(out, c)
		}
	}
	return out
}

// decodeBase64 decodifica ignorando saltos de línea y espacios.
func decodeBase64(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
	return base64.StdEncoding.DecodeString(clean)
}
