package dto

import "time"

// SignRequest petición de firma. El XML viaja como texto para no alterar sus bytes.
type SignRequest struct {
	XML         string `json:"xml"`
	ElementName string `json:"element_name"`
	IDValue     string `json:"id_value"`
	IDAttribute string `json:"id_attribute,omitempty"`
	// Placement: "target" (firma hija del elemento, por defecto) o "parent" (hermana).
	Placement              string `json:"placement,omitempty"`
	CanonicalizationMethod string `json:"canonicalization_method,omitempty"`
	SignatureMethod        string `json:"signature_method,omitempty"`
	DigestMethod           string `json:"digest_method,omitempty"`
}

// SignResponse documento firmado y datos de la firma.
type SignResponse struct {
	SignedXML      string `json:"signed_xml"`
	DigestValue    string `json:"digest_value"`
	SignatureValue string `json:"signature_value"`
	CertSubject    string `json:"cert_subject"`
	CertThumbprint string `json:"cert_thumbprint"`
	RecordID       string `json:"record_id,omitempty"`
}

// VerifyRequest petición de verificación.
type VerifyRequest struct {
	XML string `json:"xml"`
}

// VerifyResponse resultado de la verificación.
type VerifyResponse struct {
	Valid          bool   `json:"valid"`
	Status         string `json:"status"`
	Detail         string `json:"detail,omitempty"`
	SignerSubject  string `json:"signer_subject,omitempty"`
	SignerNotAfter string `json:"signer_not_after,omitempty"`
}

// LoteRequest lote envioLoteEventos.
type LoteRequest struct {
	XML string `json:"xml"`
	// Sign indica si el lote debe firmarse antes de transmitir (solo /lotes/send).
	Sign *bool `json:"sign,omitempty"`
}

// SignedEventResponse resumen de un evento firmado del lote.
type SignedEventResponse struct {
	Name           string `json:"name"`
	ID             string `json:"id"`
	DigestValue    string `json:"digest_value"`
	CertThumbprint string `json:"cert_thumbprint"`
}

// LoteSignResponse lote firmado.
type LoteSignResponse struct {
	LoteID    string                `json:"lote_id"`
	SignedXML string                `json:"signed_xml"`
	Events    []SignedEventResponse `json:"events"`
}

// OccurrenceResponse ocurrencia del retorno del lote.
type OccurrenceResponse struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// LoteSendResponse retorno del WsRecepcao.
type LoteSendResponse struct {
	Protocol    string               `json:"protocol,omitempty"`
	Accepted    bool                 `json:"accepted"`
	Code        int                  `json:"code"`
	Description string               `json:"description"`
	Occurrences []OccurrenceResponse `json:"occurrences,omitempty"`
}

// SignatureRecordResponse registro de auditoría de una firma.
type SignatureRecordResponse struct {
	ID             string    `json:"id"`
	Element        string    `json:"element"`
	ReferenceID    string    `json:"reference_id"`
	DigestValue    string    `json:"digest_value"`
	DigestMethod   string    `json:"digest_method"`
	CertSubject    string    `json:"cert_subject"`
	CertThumbprint string    `json:"cert_thumbprint"`
	LoteID         string    `json:"lote_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	SignedAt       time.Time `json:"signed_at"`
}

// BuildLoteRequest eventos (documentos <eFinanceira>) a agrupar en un lote.
type BuildLoteRequest struct {
	Events []string `json:"events"`
}

// BuildLoteResponse lote armado, sin firmar.
type BuildLoteResponse struct {
	XML    string `json:"xml"`
	Events int    `json:"events"`
}
