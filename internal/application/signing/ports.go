package signing

import (
	"context"
	"time"

	"github.com/jhoicas/efinanceira-api/internal/domain/repository"
)

// MetricsRecorder recibe los contadores del servicio (Prometheus o no-op).
type MetricsRecorder interface {
	RecordSign(success bool, d time.Duration)
	RecordVerify(status string)
	RecordLoteEvents(success bool, n int)
	RecordCertificateLoad(source string, success bool)
}

// AuditTxRunner ejecuta fn dentro de una transacción con el repo de auditoría.
type AuditTxRunner interface {
	RunAudit(ctx context.Context, fn func(repo repository.SignatureRecordRepository) error) error
}

// Occurrence ocurrencia devuelta por la Receita en el retorno del lote.
type Occurrence struct {
	Code        string
	Description string
	Type        string // 1 = error, 2 = alerta
}

// SubmitResult resultado de la entrega del lote al WsRecepcao.
type SubmitResult struct {
	Protocol    string // protocoloEnvio; vacío si el lote no fue recibido
	Accepted    bool   // cdRetorno == 1
	Code        int    // cdRetorno
	Description string // descRetorno
	Occurrences []Occurrence
}

// LoteSubmitter define el puerto de salida para la transmisión de lotes.
// La implementación concreta usa SOAP; para tests se puede inyectar un mock.
type LoteSubmitter interface {
	// SubmitLote envía el lote firmado. env debe ser "homologacao" o "producao".
	SubmitLote(ctx context.Context, signedLote []byte, env string) (*SubmitResult, error)
}
