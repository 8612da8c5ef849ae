package signing

import (
	"context"
	"time"

	"github.com/jhoicas/efinanceira-api/internal/domain/entity"
	"github.com/jhoicas/efinanceira-api/internal/domain/repository"
)

// NoopAudit descarta los registros de firma (AUDIT_ENABLED=false).
type NoopAudit struct{}

func (NoopAudit) Create(context.Context, *entity.SignatureRecord) error { return nil }

func (NoopAudit) GetByID(context.Context, string) (*entity.SignatureRecord, error) { return nil, nil }

func (NoopAudit) ListByReference(context.Context, string) ([]*entity.SignatureRecord, error) {
	return nil, nil
}

// RunAudit ejecuta fn sin transacción.
func (n NoopAudit) RunAudit(ctx context.Context, fn func(repo repository.SignatureRecordRepository) error) error {
	return fn(n)
}

// noopMetrics se usa cuando el caso de uso se construye sin métricas.
type noopMetrics struct{}

func (noopMetrics) RecordSign(bool, time.Duration)     {}
func (noopMetrics) RecordVerify(string)                {}
func (noopMetrics) RecordLoteEvents(bool, int)         {}
func (noopMetrics) RecordCertificateLoad(string, bool) {}

var (
	_ repository.SignatureRecordRepository = NoopAudit{}
	_ AuditTxRunner                        = NoopAudit{}
	_ MetricsRecorder                      = noopMetrics{}
)
