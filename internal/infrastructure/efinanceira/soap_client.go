// Package efinanceira transmite lotes de eventos al servicio WsRecepcao de la Receita Federal.
package efinanceira

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jhoicas/efinanceira-api/internal/application/signing"
	"github.com/jhoicas/efinanceira-api/internal/domain"
	efin "github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

// ── Constantes SOAP ───────────────────────────────────────────────────────────

const (
	soapNS     = "http://schemas.xmlsoap.org/soap/envelope/"
	soapNSSped = "http://sped.fazenda.gov.br/"
	soapAction = soapNSSped + "ReceberLoteEvento"

	// cdRetorno 1 = lote recibido con éxito.
	cdRetornoSucesso = 1
)

// ── Implementación SOAP ────────────────────────────────────────────────────────

// SOAPClient implementa signing.LoteSubmitter sobre el WsRecepcao (SOAP 1.1).
// La conexión usa TLS mutuo con el certificado del transmisor.
type SOAPClient struct {
	httpClient *http.Client
	endpoints  map[string]string
}

// NewSOAPClient construye el cliente. cert puede ser nil (sin TLS mutuo, solo para pruebas).
// El WsRecepcao puede tardar varios segundos en responder lotes grandes.
func NewSOAPClient(cert *tls.Certificate, timeout time.Duration) *SOAPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if cert != nil {
		tlsCfg.Certificates = []tls.Certificate{*cert}
	}
	return &SOAPClient{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{TLSClientConfig: tlsCfg, Proxy: http.ProxyFromEnvironment},
		},
		endpoints: map[string]string{
			efin.EnvironmentHomologacao: efin.URLRecepcaoHomologacao,
			efin.EnvironmentProducao:    efin.URLRecepcaoProducao,
		},
	}
}

// WithEndpoint sobrescribe la URL de un ambiente (proxies internos, tests).
func (c *SOAPClient) WithEndpoint(env, url string) *SOAPClient {
	c.endpoints[env] = url
	return c
}

// WithHTTPClient reemplaza el cliente HTTP.
func (c *SOAPClient) WithHTTPClient(hc *http.Client) *SOAPClient {
	c.httpClient = hc
	return c
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName   xml.Name `xml:"soapenv:Envelope"`
	XmlnsSoap string   `xml:"xmlns:soapenv,attr"`
	XmlnsSped string   `xml:"xmlns:sped,attr"`
	Header    struct{} `xml:"soapenv:Header"`
	Body      soapBody `xml:"soapenv:Body"`
}

type soapBody struct {
	Receber receberLoteEvento `xml:"sped:ReceberLoteEvento"`
}

type receberLoteEvento struct {
	LoteEventos loteEventosParam `xml:"sped:loteEventos"`
}

// loteEventosParam lleva el lote firmado sin re-serializar: cualquier cambio
// invalidaría las firmas.
type loteEventosParam struct {
	Inner []byte `xml:",innerxml"`
}

// ── Estructuras de respuesta SOAP ─────────────────────────────────────────────

type soapResponseEnvelope struct {
	Body soapResponseBody `xml:"Body"`
}

type soapResponseBody struct {
	Response *receberLoteEventoResponse `xml:"ReceberLoteEventoResponse"`
	Fault    *soapFault                 `xml:"Fault"`
}

type receberLoteEventoResponse struct {
	Result struct {
		EFinanceira retornoEFinanceira `xml:"eFinanceira"`
	} `xml:"ReceberLoteEventoResult"`
}

type retornoEFinanceira struct {
	Status struct {
		CdRetorno   int          `xml:"cdRetorno"`
		DescRetorno string       `xml:"descRetorno"`
		Ocorrencias []ocorrencia `xml:"dadosRegistroOcorrenciaLote>ocorrencias"`
	} `xml:"retornoLoteEventos>status"`
	ProtocoloEnvio string `xml:"retornoLoteEventos>dadosRecepcaoLote>protocoloEnvio"`
}

type ocorrencia struct {
	Codigo    string `xml:"codigo"`
	Descricao string `xml:"descricao"`
	Tipo      string `xml:"tipo"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// ── SubmitLote ────────────────────────────────────────────────────────────────

// SubmitLote envía el lote firmado al WsRecepcao del ambiente.
func (c *SOAPClient) SubmitLote(ctx context.Context, signedLote []byte, env string) (*signing.SubmitResult, error) {
	url, ok := c.endpoints[env]
	if !ok || url == "" {
		return nil, fmt.Errorf("%w: ambiente sin endpoint %q (usar 'homologacao' o 'producao')", domain.ErrTransmission, env)
	}

	payload, err := buildEnvelope(signedLote)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("soap: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapAction)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: timeout o cancelación: %v", domain.ErrTransmission, ctx.Err())
		}
		return nil, fmt.Errorf("%w: llamada HTTP fallida: %v", domain.ErrTransmission, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: leer respuesta: %v", domain.ErrTransmission, err)
	}
	return parseResponse(resp.StatusCode, rawBody)
}

// buildEnvelope arma el sobre SOAP con el lote (sin su declaración XML).
func buildEnvelope(signedLote []byte) ([]byte, error) {
	env := soapEnvelope{
		XmlnsSoap: soapNS,
		XmlnsSped: soapNSSped,
		Body: soapBody{Receber: receberLoteEvento{
			LoteEventos: loteEventosParam{Inner: stripDeclaration(signedLote)},
		}},
	}
	out, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("soap: serializar envelope: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func stripDeclaration(b []byte) []byte {
	b = bytes.TrimSpace(b)
	if bytes.HasPrefix(b, []byte("<?xml")) {
		if end := bytes.Index(b, []byte("?>")); end >= 0 {
			b = bytes.TrimSpace(b[end+2:])
		}
	}
	return b
}

// parseResponse desempaqueta el retornoLoteEventos o el Fault.
func parseResponse(status int, rawBody []byte) (*signing.SubmitResult, error) {
	var envResp soapResponseEnvelope
	if err := xml.Unmarshal(rawBody, &envResp); err != nil {
		return nil, fmt.Errorf("%w: HTTP %d, respuesta no es SOAP: %s", domain.ErrTransmission, status, truncate(rawBody, 200))
	}

	// SOAP Fault (error de protocolo, certificado rechazado, etc.)
	if f := envResp.Body.Fault; f != nil {
		return &signing.SubmitResult{
			Accepted:    false,
			Description: fmt.Sprintf("SOAP Fault [%s]: %s", f.FaultCode, strings.TrimSpace(f.FaultString)),
		}, nil
	}
	if status/100 != 2 || envResp.Body.Response == nil {
		return nil, fmt.Errorf("%w: HTTP %d, respuesta vacía o inesperada", domain.ErrTransmission, status)
	}

	ret := envResp.Body.Response.Result.EFinanceira
	res := &signing.SubmitResult{
		Protocol:    strings.TrimSpace(ret.ProtocoloEnvio),
		Accepted:    ret.Status.CdRetorno == cdRetornoSucesso,
		Code:        ret.Status.CdRetorno,
		Description: strings.TrimSpace(ret.Status.DescRetorno),
	}
	for _, o := range ret.Status.Ocorrencias {
		res.Occurrences = append(res.Occurrences, signing.Occurrence{
			Code:        strings.TrimSpace(o.Codigo),
			Description: strings.TrimSpace(o.Descricao),
			Type:        strings.TrimSpace(o.Tipo),
		})
	}
	return res, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

var _ signing.LoteSubmitter = (*SOAPClient)(nil)
