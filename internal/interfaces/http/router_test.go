package http_test

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/efinanceira-api/internal/application/dto"
	"github.com/jhoicas/efinanceira-api/internal/application/signing"
	"github.com/jhoicas/efinanceira-api/internal/domain/entity"
	"github.com/jhoicas/efinanceira-api/internal/domain/repository"
	"github.com/jhoicas/efinanceira-api/internal/infrastructure/certificate"
	"github.com/jhoicas/efinanceira-api/internal/infrastructure/efinanceira/signer"
	"github.com/jhoicas/efinanceira-api/internal/infrastructure/metrics"
	apphttp "github.com/jhoicas/efinanceira-api/internal/interfaces/http"
	"github.com/jhoicas/efinanceira-api/internal/testutil"
	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
	pkgjwt "github.com/jhoicas/efinanceira-api/pkg/jwt"
)

// ──────────────────────────────────────────────────────────────────────────────
// Dobles de test
// ──────────────────────────────────────────────────────────────────────────────

type fixedResolver struct{ cert *tls.Certificate }

func (r fixedResolver) Resolve(efinanceira.CertificateRef) (*tls.Certificate, error) {
	return r.cert, nil
}

type memoryAudit struct {
	mu      sync.Mutex
	records []*entity.SignatureRecord
}

func (a *memoryAudit) Create(_ context.Context, rec *entity.SignatureRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec.ID = fmt.Sprintf("rec-%d", len(a.records)+1)
	a.records = append(a.records, rec)
	return nil
}

func (a *memoryAudit) GetByID(_ context.Context, id string) (*entity.SignatureRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (a *memoryAudit) ListByReference(context.Context, string) ([]*entity.SignatureRecord, error) {
	return nil, nil
}

func (a *memoryAudit) RunAudit(_ context.Context, fn func(repo repository.SignatureRecordRepository) error) error {
	return fn(a)
}

type fakeSubmitter struct {
	result *signing.SubmitResult
}

func (s *fakeSubmitter) SubmitLote(context.Context, []byte, string) (*signing.SubmitResult, error) {
	return s.result, nil
}

const eventoTmpl = `<eFinanceira xmlns="http://www.eFinanceira.gov.br/schemas/evtMovOpFin/v1_2_1"><evtMovOpFin id="%s"><ideDeclarante><cnpjDeclarante>%s</cnpjDeclarante></ideDeclarante></evtMovOpFin></eFinanceira>`

func evento(id string) string { return fmt.Sprintf(eventoTmpl, id, testCNPJ) }

type apiFixture struct {
	app       *fiber.App
	id        testutil.Issued
	audit     *memoryAudit
	submitter *fakeSubmitter
}

func newAPI(t *testing.T, env string) *apiFixture {
	t.Helper()
	id := testutil.SelfSigned(t, "Declarante Teste")
	audit := &memoryAudit{}
	submitter := &fakeSubmitter{result: &signing.SubmitResult{Protocol: "1.2.202610.0000001", Accepted: true, Code: 1, Description: "OK"}}
	reg := prometheus.NewRegistry()

	svc := signer.NewDigitalSignatureService(fixedResolver{cert: testutil.TLS(id)})
	signingUC := signing.NewSigningUseCase(svc, signer.NewSignatureVerifier(), audit,
		metrics.NewPrometheusRecorderWithRegistry(reg), nil,
		signing.Defaults{
			Certificate:        efinanceira.CertificateRef{Thumbprint: certificate.Thumbprint(id.Cert)},
			IDAttributeName:    "id",
			IncludeCertificate: true,
		})
	loteUC := signing.NewLoteUseCase(signingUC, audit, submitter, nil, env, 2)

	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{
		SigningUC:   signingUC,
		LoteUC:      loteUC,
		JWTSecret:   testJWTSecret,
		ServiceName: "efinanceira-api",
		Environment: env,
		Metrics:     reg,
	})
	return &apiFixture{app: app, id: id, audit: audit, submitter: submitter}
}

func (f *apiFixture) do(t *testing.T, method, path, role string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", tokenForRole(t, role))
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

// ──────────────────────────────────────────────────────────────────────────────
// Health y métricas
// ──────────────────────────────────────────────────────────────────────────────

func TestRouter_Health(t *testing.T) {
	f := newAPI(t, efinanceira.EnvironmentDev)
	resp, body := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var h dto.HealthResponse
	require.NoError(t, json.Unmarshal(body, &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "dev", h.Environment)
}

func TestRouter_MetricsExponeContadoresDeFirma(t *testing.T) {
	f := newAPI(t, efinanceira.EnvironmentDev)
	resp, _ := f.do(t, http.MethodPost, "/api/v1/sign", pkgjwt.RoleOperador, dto.SignRequest{
		XML: evento("ID0001"), ElementName: "evtMovOpFin", IDValue: "ID0001", Placement: "parent",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `efinanceira_sign_total{result="success"} 1`)
}

// ──────────────────────────────────────────────────────────────────────────────
// Firma y verificación
// ──────────────────────────────────────────────────────────────────────────────

func TestSigningHandler_SignVerifyYRegistro(t *testing.T) {
	f := newAPI(t, efinanceira.EnvironmentDev)

	resp, body := f.do(t, http.MethodPost, "/api/v1/sign", pkgjwt.RoleOperador, dto.SignRequest{
		XML: evento("ID0001"), ElementName: "evtMovOpFin", IDValue: "ID0001", Placement: "parent",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var signed dto.SignResponse
	require.NoError(t, json.Unmarshal(body, &signed))
	assert.Contains(t, signed.SignedXML, "<Signature xmlns=\"http://www.w3.org/2000/09/xmldsig#\">")
	assert.Equal(t, certificate.Thumbprint(f.id.Cert), signed.CertThumbprint)
	require.Equal(t, "rec-1", signed.RecordID)

	resp, body = f.do(t, http.MethodPost, "/api/v1/verify", pkgjwt.RoleAuditor, dto.VerifyRequest{XML: signed.SignedXML})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var verified dto.VerifyResponse
	require.NoError(t, json.Unmarshal(body, &verified))
	assert.True(t, verified.Valid)
	assert.Equal(t, string(efinanceira.StatusValid), verified.Status)
	assert.Contains(t, verified.SignerSubject, "Declarante Teste")

	resp, body = f.do(t, http.MethodGet, "/api/v1/signatures/rec-1", pkgjwt.RoleAuditor, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec dto.SignatureRecordResponse
	require.NoError(t, json.Unmarshal(body, &rec))
	assert.Equal(t, "ID0001", rec.ReferenceID)
	assert.Equal(t, signed.DigestValue, rec.DigestValue)
	assert.Equal(t, testUserID, rec.UserID)
}

func TestSigningHandler_VerifyFirmaAlterada(t *testing.T) {
	f := newAPI(t, efinanceira.EnvironmentDev)
	_, body := f.do(t, http.MethodPost, "/api/v1/sign", pkgjwt.RoleAdmin, dto.SignRequest{
		XML: evento("ID0001"), ElementName: "evtMovOpFin", IDValue: "ID0001",
	})
	var signed dto.SignResponse
	require.NoError(t, json.Unmarshal(body, &signed))
	tampered := bytes.Replace([]byte(signed.SignedXML), []byte(testCNPJ), []byte("99888777000166"), 1)

	resp, body := f.do(t, http.MethodPost, "/api/v1/verify", pkgjwt.RoleAuditor, dto.VerifyRequest{XML: string(tampered)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var verified dto.VerifyResponse
	require.NoError(t, json.Unmarshal(body, &verified))
	assert.False(t, verified.Valid)
	assert.Equal(t, string(efinanceira.StatusDigestMismatch), verified.Status)
}

func TestSigningHandler_Errores(t *testing.T) {
	f := newAPI(t, efinanceira.EnvironmentDev)

	tests := []struct {
		name   string
		req    dto.SignRequest
		status int
		code   string
	}{
		{"xml vacío", dto.SignRequest{ElementName: "evtMovOpFin", IDValue: "ID0001"}, http.StatusBadRequest, "VALIDATION"},
		{"placement inválido", dto.SignRequest{XML: evento("ID0001"), ElementName: "evtMovOpFin", IDValue: "ID0001", Placement: "sibling"}, http.StatusBadRequest, "VALIDATION"},
		{"elemento inexistente", dto.SignRequest{XML: evento("ID0001"), ElementName: "evtMovOpFin", IDValue: "ID9999"}, http.StatusNotFound, "ELEMENT_NOT_FOUND"},
		{"xml mal formado", dto.SignRequest{XML: "<eFinanceira>", ElementName: "evtMovOpFin", IDValue: "ID0001"}, http.StatusBadRequest, "MALFORMED_XML"},
		{"digest no soportado", dto.SignRequest{XML: evento("ID0001"), ElementName: "evtMovOpFin", IDValue: "ID0001", DigestMethod: "urn:digest:md5"}, http.StatusBadRequest, "UNSUPPORTED_ALGORITHM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, "/api/v1/sign", pkgjwt.RoleAdmin, tt.req)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			var e dto.ErrorResponse
			require.NoError(t, json.Unmarshal(body, &e))
			assert.Equal(t, tt.code, e.Code)
		})
	}
}

func TestSigningHandler_AuditorNoPuedeFirmar(t *testing.T) {
	f := newAPI(t, efinanceira.EnvironmentDev)
	resp, _ := f.do(t, http.MethodPost, "/api/v1/sign", pkgjwt.RoleAuditor, dto.SignRequest{
		XML: evento("ID0001"), ElementName: "evtMovOpFin", IDValue: "ID0001",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSigningHandler_RegistroInexistente(t *testing.T) {
	f := newAPI(t, efinanceira.EnvironmentDev)
	resp, _ := f.do(t, http.MethodGet, "/api/v1/signatures/no-existe", pkgjwt.RoleAdmin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// ──────────────────────────────────────────────────────────────────────────────
// Lotes
// ──────────────────────────────────────────────────────────────────────────────

func buildLote(t *testing.T, f *apiFixture, ids ...string) string {
	t.Helper()
	events := make([]string, len(ids))
	for i, id := range ids {
		events[i] = evento(id)
	}
	resp, body := f.do(t, http.MethodPost, "/api/v1/lotes/build", pkgjwt.RoleOperador, dto.BuildLoteRequest{Events: events})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out dto.BuildLoteResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, len(ids), out.Events)
	return out.XML
}

func TestLoteHandler_BuildYSign(t *testing.T) {
	f := newAPI(t, efinanceira.EnvironmentDev)
	lote := buildLote(t, f, "ID0001", "ID0002")

	resp, body := f.do(t, http.MethodPost, "/api/v1/lotes/sign", pkgjwt.RoleOperador, dto.LoteRequest{XML: lote})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out dto.LoteSignResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.NotEmpty(t, out.LoteID)
	require.Len(t, out.Events, 2)
	assert.Equal(t, "evtMovOpFin", out.Events[0].Name)
	assert.Equal(t, "ID0002", out.Events[1].ID)
	assert.Equal(t, 2, bytes.Count([]byte(out.SignedXML), []byte("<SignatureValue>")))
	assert.Len(t, f.audit.records, 2)
}

func TestLoteHandler_BuildRechazaDeclaranteAjeno(t *testing.T) {
	f := newAPI(t, efinanceira.EnvironmentDev)
	other := fmt.Sprintf(eventoTmpl, "ID0001", "11444777000161")
	resp, body := f.do(t, http.MethodPost, "/api/v1/lotes/build", pkgjwt.RoleOperador, dto.BuildLoteRequest{Events: []string{other}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
}

func TestLoteHandler_BuildSinCNPJEnToken(t *testing.T) {
	f := newAPI(t, efinanceira.EnvironmentDev)
	tok, err := pkgjwt.Generate(testJWTSecret, testUserID, "", pkgjwt.RoleOperador, testIssuer, testExpMin)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/lotes/build", bytes.NewReader([]byte(`{"events":[]}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "MISSING_CNPJ")
}

func TestLoteHandler_SendEnDevDevuelveProtocoloSimulado(t *testing.T) {
	f := newAPI(t, efinanceira.EnvironmentDev)
	lote := buildLote(t, f, "ID0001")

	resp, body := f.do(t, http.MethodPost, "/api/v1/lotes/send", pkgjwt.RoleOperador, dto.LoteRequest{XML: lote})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out dto.LoteSendResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.True(t, out.Accepted)
	assert.Contains(t, out.Protocol, "DEV-")
}

func TestLoteHandler_SendRechazado422(t *testing.T) {
	f := newAPI(t, efinanceira.EnvironmentHomologacao)
	f.submitter.result = &signing.SubmitResult{
		Accepted:    false,
		Code:        7,
		Description: "Lote rechazado",
		Occurrences: []signing.Occurrence{{Code: "MS0030", Description: "Assinatura inválida", Type: "1"}},
	}
	lote := buildLote(t, f, "ID0001")

	resp, body := f.do(t, http.MethodPost, "/api/v1/lotes/send", pkgjwt.RoleOperador, dto.LoteRequest{XML: lote})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))
	var out dto.LoteSendResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.False(t, out.Accepted)
	assert.Equal(t, 7, out.Code)
	require.Len(t, out.Occurrences, 1)
	assert.Equal(t, "MS0030", out.Occurrences[0].Code)
}

func TestLoteHandler_SendHomologacaoAceptado(t *testing.T) {
	f := newAPI(t, efinanceira.EnvironmentHomologacao)
	lote := buildLote(t, f, "ID0001")

	resp, body := f.do(t, http.MethodPost, "/api/v1/lotes/send", pkgjwt.RoleAdmin, dto.LoteRequest{XML: lote})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out dto.LoteSendResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "1.2.202610.0000001", out.Protocol)
}
