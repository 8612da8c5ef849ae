package signing_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/efinanceira-api/internal/application/signing"
	"github.com/jhoicas/efinanceira-api/internal/domain"
	"github.com/jhoicas/efinanceira-api/internal/infrastructure/efinanceira/signer"
	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

type fakeSubmitter struct {
	result  *signing.SubmitResult
	err     error
	payload []byte
	env     string
}

func (s *fakeSubmitter) SubmitLote(_ context.Context, signedLote []byte, env string) (*signing.SubmitResult, error) {
	s.payload = signedLote
	s.env = env
	return s.result, s.err
}

func buildLote(t *testing.T, ids ...string) []byte {
	t.Helper()
	events := make([][]byte, len(ids))
	for i, id := range ids {
		events[i] = evento(id)
	}
	lote, err := signing.BuildLote(cnpjDeclarante, events)
	require.NoError(t, err)
	return lote
}

// eventDocuments extrae cada <eFinanceira> de evento como documento independiente.
func eventDocuments(t *testing.T, lote []byte) [][]byte {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(lote))
	var out [][]byte
	for _, ev := range doc.FindElements("./eFinanceira/loteEventos/evento/eFinanceira") {
		d := etree.NewDocument()
		d.SetRoot(ev.Copy())
		b, err := d.WriteToBytes()
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// BuildLote
// ──────────────────────────────────────────────────────────────────────────────

func TestBuildLote(t *testing.T) {
	lote := buildLote(t, "ID0001", "ID0002")

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(lote))
	root := doc.Root()
	assert.Equal(t, efinanceira.NamespaceEnvioLote, root.SelectAttrValue("xmlns", ""))
	eventos := root.FindElements("./loteEventos/evento")
	require.Len(t, eventos, 2)
	assert.Equal(t, "ID1", eventos[0].SelectAttrValue("id", ""))
	assert.NotNil(t, eventos[1].FindElement("./eFinanceira/evtMovOpFin[@id='ID0002']"))
}

func TestBuildLote_Errores(t *testing.T) {
	tests := []struct {
		name   string
		cnpj   string
		events [][]byte
	}{
		{"cnpj inválido", "11222333000180", [][]byte{evento("ID0001")}},
		{"sin eventos", cnpjDeclarante, nil},
		{"id repetido", cnpjDeclarante, [][]byte{evento("ID0001"), evento("ID0001")}},
		{"id que choca con <evento>", cnpjDeclarante, [][]byte{evento("ID1")}},
		{"otro declarante", "11.444.777/0001-61", [][]byte{evento("ID0001")}},
		{"xml inválido", cnpjDeclarante, [][]byte{[]byte("<eFinanceira>")}},
		{"evento sin id", cnpjDeclarante, [][]byte{[]byte(`<eFinanceira><evtMovOpFin/></eFinanceira>`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := signing.BuildLote(tt.cnpj, tt.events)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestBuildLote_Maximo(t *testing.T) {
	events := make([][]byte, signing.MaxEventsPerLote+1)
	for i := range events {
		events[i] = evento(fmt.Sprintf("ID%019d", i))
	}
	_, err := signing.BuildLote(cnpjDeclarante, events)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// latin1 agrega al evento un texto en ISO-8859-1 ("Conceição") y declara esa codificación.
func latin1(xml []byte) []byte {
	body := strings.Replace(string(xml), `<?xml version="1.0" encoding="UTF-8"?>`, "", 1)
	body = strings.ReplaceAll(body, "<tpAmb>2</tpAmb>", "<tpAmb>2</tpAmb><nmDeclarante>Concei\xe7\xe3o</nmDeclarante>")
	return []byte(`<?xml version="1.0" encoding="ISO-8859-1"?>` + "\n" + strings.TrimLeft(body, "\n"))
}

func TestBuildLote_EventoEnISO88591(t *testing.T) {
	lote, err := signing.BuildLote(cnpjDeclarante, [][]byte{latin1(evento("ID0001"))})
	require.NoError(t, err)

	assert.Contains(t, string(lote), "<nmDeclarante>Conceição</nmDeclarante>")
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(lote), "el lote armado queda en UTF-8")
}

// ──────────────────────────────────────────────────────────────────────────────
// SignLote
// ──────────────────────────────────────────────────────────────────────────────

func TestSignLote_FirmaCadaEvento(t *testing.T) {
	f := newFixture(t, nil)
	uc := signing.NewLoteUseCase(f.uc, f.audit, nil, nil, efinanceira.EnvironmentDev, 2)

	res, err := uc.SignLote(context.Background(), buildLote(t, "ID0001", "ID0002", "ID0003"), "user-1")
	require.NoError(t, err)
	require.Len(t, res.Events, 3)
	assert.Equal(t, "ID0002", res.Events[1].ID)
	assert.Equal(t, "evtMovOpFin", res.Events[1].Name)

	verifier := signer.NewSignatureVerifier()
	docs := eventDocuments(t, res.SignedXML)
	require.Len(t, docs, 3)
	for i, d := range docs {
		r := verifier.VerifyDetailed(d)
		assert.True(t, r.Valid, "evento %d: %s", i, r.Detail)
	}
	assert.True(t, verifier.Verify(res.SignedXML), "la primera firma verifica dentro del lote")

	require.Len(t, f.audit.records, 3)
	assert.Equal(t, 1, f.audit.txs, "los registros del lote van en una sola transacción")
	for _, rec := range f.audit.records {
		assert.Equal(t, res.LoteID, rec.LoteID)
		assert.Equal(t, "user-1", rec.UserID)
	}
	assert.Equal(t, 3, f.metrics.loteOK)
	assert.Equal(t, 3, f.metrics.signOK)
}

func TestSignLote_NamespacesDelLote(t *testing.T) {
	f := newFixture(t, nil)
	uc := signing.NewLoteUseCase(f.uc, nil, nil, nil, efinanceira.EnvironmentDev, 1)

	lote := strings.Replace(string(buildLote(t, "ID0001")),
		`<eFinanceira xmlns="`+efinanceira.NamespaceEnvioLote+`">`,
		`<eFinanceira xmlns="`+efinanceira.NamespaceEnvioLote+`" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">`, 1)
	require.Contains(t, lote, "xmlns:xsi")

	res, err := uc.SignLote(context.Background(), []byte(lote), "")
	require.NoError(t, err)
	r := signer.NewSignatureVerifier().VerifyDetailed(res.SignedXML)
	assert.True(t, r.Valid, r.Detail)
}

func TestSignLote_LoteEnISO88591(t *testing.T) {
	f := newFixture(t, nil)
	uc := signing.NewLoteUseCase(f.uc, nil, nil, nil, efinanceira.EnvironmentDev, 2)

	lote := latin1(buildLote(t, "ID0001", "ID0002"))
	require.Contains(t, string(lote), `encoding="ISO-8859-1"`)

	res, err := uc.SignLote(context.Background(), lote, "")
	require.NoError(t, err)
	assert.Contains(t, string(res.SignedXML), `encoding="UTF-8"`)
	assert.NotContains(t, string(res.SignedXML), "ISO-8859-1")
	assert.Contains(t, string(res.SignedXML), "Conceição")

	verifier := signer.NewSignatureVerifier()
	for i, d := range eventDocuments(t, res.SignedXML) {
		r := verifier.VerifyDetailed(d)
		assert.True(t, r.Valid, "evento %d: %s", i, r.Detail)
	}
}

func TestSignLote_Errores(t *testing.T) {
	f := newFixture(t, nil)
	uc := signing.NewLoteUseCase(f.uc, nil, nil, nil, efinanceira.EnvironmentDev, 4)
	ctx := context.Background()

	tests := []struct {
		name string
		lote string
	}{
		{"xml inválido", "<eFinanceira"},
		{"raíz incorrecta", "<lote/>"},
		{"sin loteEventos", "<eFinanceira/>"},
		{"lote vacío", "<eFinanceira><loteEventos/></eFinanceira>"},
		{"evento sin documento", `<eFinanceira><loteEventos><evento id="ID1"/></loteEventos></eFinanceira>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.SignLote(ctx, []byte(tt.lote), "")
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestSignLote_FallaDeUnEventoAbortaElLote(t *testing.T) {
	f := newFixture(t, errors.New("token ausente"))
	uc := signing.NewLoteUseCase(f.uc, f.audit, nil, nil, efinanceira.EnvironmentDev, 2)

	_, err := uc.SignLote(context.Background(), buildLote(t, "ID0001", "ID0002"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, efinanceira.ErrCertificateLoad)
	assert.Contains(t, err.Error(), "evtMovOpFin")
	assert.Empty(t, f.audit.records)
	assert.Equal(t, 2, f.metrics.loteFail)
}

func TestSignLote_ContextoCancelado(t *testing.T) {
	f := newFixture(t, nil)
	uc := signing.NewLoteUseCase(f.uc, nil, nil, nil, efinanceira.EnvironmentDev, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := uc.SignLote(ctx, buildLote(t, "ID0001", "ID0002"), "")
	assert.ErrorIs(t, err, context.Canceled)
}

// ──────────────────────────────────────────────────────────────────────────────
// SendLote
// ──────────────────────────────────────────────────────────────────────────────

func TestSendLote_DevNoTransmite(t *testing.T) {
	f := newFixture(t, nil)
	sub := &fakeSubmitter{}
	uc := signing.NewLoteUseCase(f.uc, nil, sub, nil, efinanceira.EnvironmentDev, 2)

	res, err := uc.SendLote(context.Background(), buildLote(t, "ID0001"), "", true)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.True(t, strings.HasPrefix(res.Protocol, "DEV-"))
	assert.Nil(t, sub.payload, "en dev no se llama al WS")
}

func TestSendLote_Homologacao(t *testing.T) {
	f := newFixture(t, nil)
	sub := &fakeSubmitter{result: &signing.SubmitResult{Protocol: "1.2.201905.0000000000000001", Accepted: true, Code: 1}}
	uc := signing.NewLoteUseCase(f.uc, nil, sub, nil, efinanceira.EnvironmentHomologacao, 2)

	res, err := uc.SendLote(context.Background(), buildLote(t, "ID0001"), "", true)
	require.NoError(t, err)
	assert.Equal(t, "1.2.201905.0000000000000001", res.Protocol)
	assert.Equal(t, efinanceira.EnvironmentHomologacao, sub.env)
	assert.True(t, signer.NewSignatureVerifier().Verify(sub.payload), "se transmite el lote firmado")
}

func TestSendLote_Rechazado(t *testing.T) {
	f := newFixture(t, nil)
	sub := &fakeSubmitter{result: &signing.SubmitResult{Accepted: false, Code: 7, Description: "Lote com erros"}}
	uc := signing.NewLoteUseCase(f.uc, nil, sub, nil, efinanceira.EnvironmentProducao, 2)

	res, err := uc.SendLote(context.Background(), buildLote(t, "ID0001"), "", true)
	assert.ErrorIs(t, err, domain.ErrLoteRejected)
	require.NotNil(t, res)
	assert.Equal(t, 7, res.Code)
}

func TestSendLote_FallaDeTransmision(t *testing.T) {
	f := newFixture(t, nil)
	sub := &fakeSubmitter{err: errors.New("connection refused")}
	uc := signing.NewLoteUseCase(f.uc, nil, sub, nil, efinanceira.EnvironmentProducao, 2)

	_, err := uc.SendLote(context.Background(), buildLote(t, "ID0001"), "", false)
	assert.ErrorIs(t, err, domain.ErrTransmission)
	assert.NotNil(t, sub.payload, "sin firmar se transmite tal cual")
}
