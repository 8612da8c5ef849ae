// Motor de digest: registro de funciones hash por URI de algoritmo.

package signer

import (
	"crypto"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"sync"

	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

var (
	registryMu sync.RWMutex

	digestMethods = map[string]crypto.Hash{
		efinanceira.AlgSHA1:   crypto.SHA1,
		efinanceira.AlgSHA256: crypto.SHA256,
		efinanceira.AlgSHA384: crypto.SHA384,
		efinanceira.AlgSHA512: crypto.SHA512,
	}

	// Métodos de firma RSA PKCS#1 v1.5 y su hash.
	signatureMethods = map[string]crypto.Hash{
		efinanceira.AlgRSASHA1:   crypto.SHA1,
		efinanceira.AlgRSASHA256: crypto.SHA256,
		efinanceira.AlgRSASHA384: crypto.SHA384,
		efinanceira.AlgRSASHA512: crypto.SHA512,
	}
)

// RegisterDigestMethod agrega (o reemplaza) un algoritmo de digest.
func RegisterDigestMethod(uri string, h crypto.Hash) {
	registryMu.Lock()
	defer registryMu.Unlock()
	digestMethods[uri] = h
}

// DigestHash devuelve la función hash registrada para la URI de digest.
func DigestHash(uri string) (crypto.Hash, error) {
	registryMu.RLock()
	h, ok := digestMethods[uri]
	registryMu.RUnlock()
	if !ok || !h.Available() {
		return 0, fmt.Errorf("%w: %q", efinanceira.ErrUnsupportedDigestAlgorithm, uri)
	}
	return h, nil
}

// SignatureHash devuelve el hash asociado a un método de firma RSA.
func SignatureHash(uri string) (crypto.Hash, error) {
	registryMu.RLock()
	h, ok := signatureMethods[uri]
	registryMu.RUnlock()
	if !ok || !h.Available() {
		return 0, fmt.Errorf("%w: %q", efinanceira.ErrUnsupportedSignatureAlgorithm, uri)
	}
	return h, nil
}

// Digest calcula el digest de la forma canónica con el algoritmo indicado.
func Digest(canonical []byte, uri string) ([]byte, error) {
	h, err := DigestHash(uri)
	if err != nil {
		return nil, err
	}
	return sum(h, canonical), nil
}

func sum(h crypto.Hash, data []byte) []byte {
	hh := h.New()
	hh.Write(data)
	return hh.Sum(nil)
}
