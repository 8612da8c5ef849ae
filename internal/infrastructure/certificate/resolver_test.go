package certificate_test

import (
	"crypto/tls"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/efinanceira-api/internal/infrastructure/certificate"
	"github.com/jhoicas/efinanceira-api/internal/testutil"
	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

// ──────────────────────────────────────────────────────────────────────────────
// MemoryStore y thumbprints
// ──────────────────────────────────────────────────────────────────────────────

func TestMemoryStore_FindPorThumbprint(t *testing.T) {
	id := testutil.SelfSigned(t, "Declarante")
	store, err := certificate.NewMemoryStore(testutil.TLS(id))
	require.NoError(t, err)

	tp := certificate.Thumbprint(id.Cert)
	assert.Len(t, tp, 40)

	cert, err := store.Find(tp)
	require.NoError(t, err)
	assert.Equal(t, id.Cert.Raw, cert.Certificate[0])

	// Formato con separadores y minúsculas, como se copia del almacén de Windows.
	spaced := ""
	for i := 0; i < len(tp); i += 2 {
		spaced += strings.ToLower(tp[i:i+2]) + " "
	}
	_, err = store.Find(spaced)
	assert.NoError(t, err)

	_, err = store.Find("00")
	assert.ErrorIs(t, err, efinanceira.ErrCertificateLoad)
}

func TestMemoryStore_AddCertificadoVacio(t *testing.T) {
	_, err := certificate.NewMemoryStore(&tls.Certificate{})
	assert.ErrorIs(t, err, efinanceira.ErrCertificateLoad)
}

func TestNormalizeThumbprint(t *testing.T) {
	assert.Equal(t, "AB12CD", certificate.NormalizeThumbprint(" ab:12 cd "))
}

// ──────────────────────────────────────────────────────────────────────────────
// Resolver (FromFile / FromStore)
// ──────────────────────────────────────────────────────────────────────────────

func TestResolver_Dispatch(t *testing.T) {
	id := testutil.SelfSigned(t, "Declarante")
	certPath, keyPath := testutil.WritePEM(t, t.TempDir(), id)
	store, err := certificate.NewMemoryStore(testutil.TLS(id))
	require.NoError(t, err)

	r := certificate.NewResolver(store)

	fromFile, err := r.Resolve(efinanceira.CertificateRef{Path: certPath, KeyPath: keyPath})
	require.NoError(t, err)
	assert.Equal(t, id.Cert.Raw, fromFile.Certificate[0])

	fromStore, err := r.Resolve(efinanceira.CertificateRef{Thumbprint: certificate.Thumbprint(id.Cert)})
	require.NoError(t, err)
	assert.Equal(t, id.Cert.Raw, fromStore.Certificate[0])

	_, err = r.Resolve(efinanceira.CertificateRef{})
	assert.ErrorIs(t, err, efinanceira.ErrCertificateLoad)

	_, err = certificate.NewResolver(nil).Resolve(efinanceira.CertificateRef{Thumbprint: "AB"})
	assert.ErrorIs(t, err, efinanceira.ErrCertificateLoad)
}

// ──────────────────────────────────────────────────────────────────────────────
// CachingResolver
// ──────────────────────────────────────────────────────────────────────────────

type countingResolver struct {
	calls atomic.Int32
	cert  *tls.Certificate
	err   error
}

func (r *countingResolver) Resolve(efinanceira.CertificateRef) (*tls.Certificate, error) {
	r.calls.Add(1)
	return r.cert, r.err
}

func TestCachingResolver_CargaUnaVez(t *testing.T) {
	next := &countingResolver{cert: &tls.Certificate{Certificate: [][]byte{{1}}}}
	c := certificate.NewCachingResolver(next)
	ref := efinanceira.CertificateRef{Path: "/certs/a.p12", Password: "x"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cert, err := c.Resolve(ref)
			assert.NoError(t, err)
			assert.Same(t, next.cert, cert)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), next.calls.Load(), "una sola carga para accesos concurrentes")

	_, err := c.Resolve(ref)
	require.NoError(t, err)
	assert.Equal(t, int32(1), next.calls.Load(), "una entrada cacheada no vuelve a cargarse")
}

func TestCachingResolver_ClaveIncluyePassword(t *testing.T) {
	next := &countingResolver{cert: &tls.Certificate{}}
	c := certificate.NewCachingResolver(next)

	_, _ = c.Resolve(efinanceira.CertificateRef{Path: "/certs/a.p12", Password: "x"})
	_, _ = c.Resolve(efinanceira.CertificateRef{Path: "/certs/a.p12", Password: "y"})
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestCachingResolver_InvalidateYPurge(t *testing.T) {
	next := &countingResolver{cert: &tls.Certificate{}}
	c := certificate.NewCachingResolver(next)
	ref := efinanceira.CertificateRef{Thumbprint: "ab"}

	_, _ = c.Resolve(ref)
	_, _ = c.Resolve(efinanceira.CertificateRef{Thumbprint: "AB"})
	assert.Equal(t, int32(1), next.calls.Load(), "el thumbprint se normaliza en la clave")

	c.Invalidate(ref)
	_, _ = c.Resolve(ref)
	assert.Equal(t, int32(2), next.calls.Load())

	c.Purge()
	_, _ = c.Resolve(ref)
	assert.Equal(t, int32(3), next.calls.Load())
}

func TestCachingResolver_NoCacheaErrores(t *testing.T) {
	next := &countingResolver{err: errors.New("token ausente")}
	c := certificate.NewCachingResolver(next)
	ref := efinanceira.CertificateRef{Thumbprint: "AB"}

	_, err := c.Resolve(ref)
	require.Error(t, err)
	_, err = c.Resolve(ref)
	require.Error(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}
