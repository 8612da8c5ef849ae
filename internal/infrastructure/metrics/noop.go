package metrics

import (
	"time"

	"github.com/jhoicas/efinanceira-api/internal/application/signing"
)

// NoopRecorder descarta todas las métricas (METRICS_ENABLED=false).
type NoopRecorder struct{}

// NewNoopRecorder crea el recorder sin efecto.
func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (NoopRecorder) RecordSign(bool, time.Duration)     {}
func (NoopRecorder) RecordVerify(string)                {}
func (NoopRecorder) RecordLoteEvents(bool, int)         {}
func (NoopRecorder) RecordCertificateLoad(string, bool) {}

var _ signing.MetricsRecorder = (*NoopRecorder)(nil)
