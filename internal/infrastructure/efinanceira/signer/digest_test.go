package signer_test

import (
	"crypto"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/efinanceira-api/internal/infrastructure/efinanceira/signer"
	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

func TestDigest_VectoresConocidos(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{efinanceira.AlgSHA1, "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{efinanceira.AlgSHA256, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	}
	for _, tt := range tests {
		got, err := signer.Digest([]byte("abc"), tt.uri)
		require.NoError(t, err, tt.uri)
		assert.Equal(t, tt.want, hex.EncodeToString(got), tt.uri)
	}
}

func TestDigest_Longitudes(t *testing.T) {
	for uri, size := range map[string]int{
		efinanceira.AlgSHA384: 48,
		efinanceira.AlgSHA512: 64,
	} {
		got, err := signer.Digest([]byte("abc"), uri)
		require.NoError(t, err)
		assert.Len(t, got, size, uri)
	}
}

func TestDigest_AlgoritmoNoSoportado(t *testing.T) {
	_, err := signer.Digest([]byte("abc"), "http://www.w3.org/2001/04/xmldsig-more#md5")
	require.Error(t, err)
	assert.ErrorIs(t, err, efinanceira.ErrUnsupportedDigestAlgorithm)
}

func TestRegisterDigestMethod(t *testing.T) {
	const uri = "http://www.w3.org/2001/04/xmldsig-more#sha224"
	signer.RegisterDigestMethod(uri, crypto.SHA224)

	got, err := signer.Digest([]byte("abc"), uri)
	require.NoError(t, err)
	assert.Len(t, got, 28)
}

func TestSignatureHash(t *testing.T) {
	h, err := signer.SignatureHash(efinanceira.AlgRSASHA256)
	require.NoError(t, err)
	assert.Equal(t, crypto.SHA256, h)

	_, err = signer.SignatureHash("http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha256")
	assert.ErrorIs(t, err, efinanceira.ErrUnsupportedSignatureAlgorithm)
}
