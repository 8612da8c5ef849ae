package certificate

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/miekg/pkcs11"

	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

// PKCS11Config configura el acceso a un token A3 / HSM.
type PKCS11Config struct {
	Library    string // ruta del módulo (ej. /usr/lib/libeToken.so)
	PIN        string
	TokenLabel string // vacío = primer slot con token
}

// PKCS11Store busca certificados en un token PKCS#11. La llave privada nunca
// sale del token: el tls.Certificate devuelto trae un crypto.Signer que firma
// con CKM_RSA_PKCS. Una sola sesión serializa todas las operaciones.
type PKCS11Store struct {
	ctx     *pkcs11.Ctx
	session pkcs11.SessionHandle
	mu      sync.Mutex
}

// OpenPKCS11Store carga el módulo, abre sesión e inicia sesión con el PIN.
func OpenPKCS11Store(cfg PKCS11Config) (*PKCS11Store, error) {
	if cfg.Library == "" {
		return nil, fmt.Errorf("%w: módulo PKCS#11 no configurado", efinanceira.ErrCertificateLoad)
	}
	ctx := pkcs11.New(cfg.Library)
	if ctx == nil {
		return nil, fmt.Errorf("%w: no se pudo cargar el módulo PKCS#11 %s", efinanceira.ErrCertificateLoad, cfg.Library)
	}
	if err := ctx.Initialize(); err != nil {
		ctx.Destroy()
		return nil, fmt.Errorf("%w: inicializar PKCS#11: %v", efinanceira.ErrCertificateLoad, err)
	}
	fail := func(err error) (*PKCS11Store, error) {
		ctx.Finalize()
		ctx.Destroy()
		return nil, err
	}

	slots, err := ctx.GetSlotList(true)
	if err != nil {
		return fail(fmt.Errorf("%w: listar slots: %v", efinanceira.ErrCertificateLoad, err))
	}
	slot, ok := selectSlot(ctx, slots, cfg.TokenLabel)
	if !ok {
		return fail(fmt.Errorf("%w: no se encontró el token %q", efinanceira.ErrCertificateLoad, cfg.TokenLabel))
	}
	session, err := ctx.OpenSession(slot, pkcs11.CKF_SERIAL_SESSION)
	if err != nil {
		return fail(fmt.Errorf("%w: abrir sesión: %v", efinanceira.ErrCertificateLoad, err))
	}
	if err := ctx.Login(session, pkcs11.CKU_USER, cfg.PIN); err != nil {
		ctx.CloseSession(session)
		return fail(fmt.Errorf("%w: login en el token: %v", efinanceira.ErrCertificateLoad, err))
	}
	return &PKCS11Store{ctx: ctx, session: session}, nil
}

func selectSlot(ctx *pkcs11.Ctx, slots []uint, label string) (uint, bool) {
	for _, slot := range slots {
		if label == "" {
			return slot, true
		}
		info, err := ctx.GetTokenInfo(slot)
		if err != nil {
			continue
		}
		if strings.TrimSpace(info.Label) == label {
			return slot, true
		}
	}
	return 0, false
}

// Find implementa ThumbprintStore.
func (s *PKCS11Store) Find(thumbprint string) (*tls.Certificate, error) {
	want := NormalizeThumbprint(thumbprint)

	s.mu.Lock()
	defer s.mu.Unlock()

	objs, err := s.findObjects([]*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_CERTIFICATE),
	})
	if err != nil {
		return nil, err
	}
	var (
		leaf  *x509.Certificate
		keyID []byte
		chain [][]byte
	)
	for _, obj := range objs {
		attrs, err := s.ctx.GetAttributeValue(s.session, obj, []*pkcs11.Attribute{
			pkcs11.NewAttribute(pkcs11.CKA_VALUE, nil),
			pkcs11.NewAttribute(pkcs11.CKA_ID, nil),
		})
		if err != nil || len(attrs) < 2 {
			continue
		}
		c, err := x509.ParseCertificate(attrs[0].Value)
		if err != nil {
			continue
		}
		if leaf == nil && Thumbprint(c) == want {
			leaf, keyID = c, attrs[1].Value
			continue
		}
		chain = append(chain, c.Raw)
	}
	if leaf == nil {
		return nil, fmt.Errorf("%w: thumbprint %s no encontrado en el token", efinanceira.ErrCertificateLoad, thumbprint)
	}
	pub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: el certificado del token no es RSA", efinanceira.ErrCertificateLoad)
	}

	keys, err := s.findObjects([]*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_ID, keyID),
	})
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: el token no tiene la llave privada del certificado %s", efinanceira.ErrCertificateLoad, thumbprint)
	}

	return &tls.Certificate{
		Certificate: append([][]byte{leaf.Raw}, chain...),
		PrivateKey:  &tokenKey{token: s, handle: keys[0], pub: pub},
		Leaf:        leaf,
	}, nil
}

func (s *PKCS11Store) findObjects(template []*pkcs11.Attribute) ([]pkcs11.ObjectHandle, error) {
	if err := s.ctx.FindObjectsInit(s.session, template); err != nil {
		return nil, fmt.Errorf("%w: buscar objetos: %v", efinanceira.ErrCertificateLoad, err)
	}
	var out []pkcs11.ObjectHandle
	for {
		objs, _, err := s.ctx.FindObjects(s.session, 32)
		if err != nil {
			s.ctx.FindObjectsFinal(s.session)
			return nil, fmt.Errorf("%w: buscar objetos: %v", efinanceira.ErrCertificateLoad, err)
		}
		if len(objs) == 0 {
			break
		}
		out = append(out, objs...)
	}
	if err := s.ctx.FindObjectsFinal(s.session); err != nil {
		return nil, fmt.Errorf("%w: buscar objetos: %v", efinanceira.ErrCertificateLoad, err)
	}
	return out, nil
}

// signRSA firma data (DigestInfo ya armado) con CKM_RSA_PKCS.
func (s *PKCS11Store) signRSA(key pkcs11.ObjectHandle, data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)}
	if err := s.ctx.SignInit(s.session, mech, key); err != nil {
		return nil, fmt.Errorf("pkcs11 SignInit: %w", err)
	}
	sig, err := s.ctx.Sign(s.session, data)
	if err != nil {
		return nil, fmt.Errorf("pkcs11 Sign: %w", err)
	}
	return sig, nil
}

// Close cierra la sesión y descarga el módulo.
func (s *PKCS11Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := errors.Join(s.ctx.Logout(s.session), s.ctx.CloseSession(s.session), s.ctx.Finalize())
	s.ctx.Destroy()
	return err
}

// rsaToken es la operación de firma cruda del token.
type rsaToken interface {
	signRSA(key pkcs11.ObjectHandle, data []byte) ([]byte, error)
}

// tokenKey es un crypto.Signer respaldado por una llave RSA del token.
type tokenKey struct {
	token  rsaToken
	handle pkcs11.ObjectHandle
	pub    *rsa.PublicKey
}

func (k *tokenKey) Public() crypto.PublicKey { return k.pub }

// Sign recibe el hash ya calculado y lo envuelve en DigestInfo (PKCS#1 v1.5).
func (k *tokenKey) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	if _, ok := opts.(*rsa.PSSOptions); ok {
		return nil, errors.New("pkcs11: RSA-PSS no soportado")
	}
	data, err := wrapDigestInfo(opts.HashFunc(), digest)
	if err != nil {
		return nil, err
	}
	return k.token.signRSA(k.handle, data)
}

var digestOIDs = map[crypto.Hash]asn1.ObjectIdentifier{
	crypto.SHA1:   {1, 3, 14, 3, 2, 26},
	crypto.SHA224: {2, 16, 840, 1, 101, 3, 4, 2, 4},
	crypto.SHA256: {2, 16, 840, 1, 101, 3, 4, 2, 1},
	crypto.SHA384: {2, 16, 840, 1, 101, 3, 4, 2, 2},
	crypto.SHA512: {2, 16, 840, 1, 101, 3, 4, 2, 3},
}

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type digestInfo struct {
	DigestAlgorithm algorithmIdentifier
	Digest          []byte
}

// wrapDigestInfo arma la estructura DigestInfo de PKCS#1 para el hash dado.
func wrapDigestInfo(h crypto.Hash, digest []byte) ([]byte, error) {
	oid, ok := digestOIDs[h]
	if !ok {
		return nil, fmt.Errorf("pkcs11: hash %v no soportado", h)
	}
	if len(digest) != h.Size() {
		return nil, fmt.Errorf("pkcs11: digest de %d bytes, se esperaban %d", len(digest), h.Size())
	}
	return asn1.Marshal(digestInfo{
		DigestAlgorithm: algorithmIdentifier{Algorithm: oid, Parameters: asn1.RawValue{Tag: asn1.TagNull}},
		Digest:          bytes.Clone(digest),
	})
}

var (
	_ ThumbprintStore = (*PKCS11Store)(nil)
	_ crypto.Signer   = (*tokenKey)(nil)
	_ rsaToken        = (*PKCS11Store)(nil)
)
