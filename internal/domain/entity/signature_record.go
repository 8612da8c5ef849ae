package entity

import "time"

// SignatureRecord registro de auditoría de una firma generada por el servicio.
type SignatureRecord struct {
	ID             string
	Element        string // nombre local del elemento firmado (ej. evtMovOpFin)
	ReferenceID    string // valor del atributo id referenciado por la firma
	DigestValue    string // base64
	DigestMethod   string // URI
	CertSubject    string
	CertThumbprint string // SHA-1 hex mayúsculas
	LoteID         string // vacío si la firma no pertenece a un lote
	UserID         string
	SignedAt       time.Time
}
