// Carga de certificado desde .p12/.pfx (PKCS#12) o par PEM.

package certificate

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

// LoadFromP12 carga certificado y llave privada desde un archivo .p12/.pfx.
// El password puede ser vacío si el archivo no está protegido. Los certificados
// adicionales del archivo (cadena ICP-Brasil) quedan después de la hoja.
func LoadFromP12(path, password string) (*tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: leer p12: %v", efinanceira.ErrCertificateLoad, err)
	}
	return DecodeP12(data, password)
}

// DecodeP12 decodifica el contenido de un PKCS#12.
func DecodeP12(data []byte, password string) (*tls.Certificate, error) {
	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return nil, fmt.Errorf("%w: decodificar p12: %v", efinanceira.ErrCertificateLoad, err)
	}
	var (
		key   crypto.Signer
		certs []*x509.Certificate
	)
	for _, b := range blocks {
		switch b.Type {
		case "CERTIFICATE":
			c, err := x509.ParseCertificate(b.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: certificado del p12: %v", efinanceira.ErrCertificateLoad, err)
			}
			certs = append(certs, c)
		case "PRIVATE KEY":
			if key != nil {
				continue
			}
			if key, err = parsePrivateKey(b.Bytes); err != nil {
				return nil, fmt.Errorf("%w: llave del p12: %v", efinanceira.ErrCertificateLoad, err)
			}
		}
	}
	if key == nil {
		return nil, fmt.Errorf("%w: el p12 no contiene llave privada", efinanceira.ErrCertificateLoad)
	}
	return assemble(key, certs)
}

// LoadFromPEM carga certificado y llave desde archivos PEM (por separado o combinados).
// El archivo de certificado puede traer la cadena después de la hoja.
func LoadFromPEM(certPath, keyPath string) (*tls.Certificate, error) {
	if certPath == "" {
		return nil, fmt.Errorf("%w: ruta del certificado vacía", efinanceira.ErrCertificateLoad)
	}
	if keyPath == "" {
		keyPath = certPath
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: cargar PEM: %v", efinanceira.ErrCertificateLoad, err)
	}
	if cert.Leaf == nil {
		if cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return nil, fmt.Errorf("%w: parsear certificado: %v", efinanceira.ErrCertificateLoad, err)
		}
	}
	return &cert, nil
}

// LoadFromFile elige el formato por extensión: .p12/.pfx como PKCS#12, lo demás como PEM.
func LoadFromFile(path, keyPath, password string) (*tls.Certificate, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".p12", ".pfx":
		return LoadFromP12(path, password)
	default:
		return LoadFromPEM(path, keyPath)
	}
}

func parsePrivateKey(der []byte) (crypto.Signer, error) {
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParseECPrivateKey(der); err == nil {
		return k, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	signer, ok := k.(crypto.Signer)
	if !ok {
		return nil, errors.New("tipo de llave no soportado")
	}
	return signer, nil
}

// assemble ordena la hoja (la que corresponde a la llave) primero.
func assemble(key crypto.Signer, certs []*x509.Certificate) (*tls.Certificate, error) {
	leafIdx := -1
	for i, c := range certs {
		if publicKeyMatches(c.PublicKey, key.Public()) {
			leafIdx = i
			break
		}
	}
	if leafIdx < 0 {
		return nil, fmt.Errorf("%w: ningún certificado corresponde a la llave privada", efinanceira.ErrCertificateLoad)
	}
	out := &tls.Certificate{
		Certificate: [][]byte{certs[leafIdx].Raw},
		PrivateKey:  key,
		Leaf:        certs[leafIdx],
	}
	for i, c := range certs {
		if i != leafIdx {
			out.Certificate = append(out.Certificate, c.Raw)
		}
	}
	return out, nil
}

func publicKeyMatches(certKey, key crypto.PublicKey) bool {
	switch pub := certKey.(type) {
	case *rsa.PublicKey:
		return pub.Equal(key)
	case *ecdsa.PublicKey:
		return pub.Equal(key)
	}
	return false
}

// PEMBlocks decodifica todos los bloques de un archivo PEM (útil para cargar cadenas).
func PEMBlocks(data []byte) []*pem.Block {
	var out []*pem.Block
	for {
		var b *pem.Block
		b, data = pem.Decode(data)
		if b == nil {
			return out
		}
		out = append(out, b)
	}
}

// LoadCertificates lee certificados X.509 de un archivo PEM (por ejemplo, ACs confiables).
func LoadCertificates(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: leer %s: %v", efinanceira.ErrCertificateLoad, path, err)
	}
	var out []*x509.Certificate
	for _, b := range PEMBlocks(data) {
		if b.Type != "CERTIFICATE" {
			continue
		}
		c, err := x509.ParseCertificate(b.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", efinanceira.ErrCertificateLoad, path, err)
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s no contiene certificados", efinanceira.ErrCertificateLoad, path)
	}
	return out, nil
}
