// Package metrics implementa signing.MetricsRecorder con Prometheus o sin efecto.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jhoicas/efinanceira-api/internal/application/signing"
)

// PrometheusRecorder registra contadores de firma, verificación y lotes.
type PrometheusRecorder struct {
	signTotal     *prometheus.CounterVec
	signDuration  prometheus.Histogram
	verifyTotal   *prometheus.CounterVec
	loteEvents    *prometheus.CounterVec
	certLoadTotal *prometheus.CounterVec
}

// NewPrometheusRecorder usa el registry por defecto de Prometheus.
func NewPrometheusRecorder() *PrometheusRecorder {
	return NewPrometheusRecorderWithRegistry(prometheus.DefaultRegisterer)
}

// NewPrometheusRecorderWithRegistry registra las métricas en reg (tests usan un registry propio).
func NewPrometheusRecorderWithRegistry(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		signTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "efinanceira_sign_total",
			Help: "Firmas XML-DSig generadas por resultado",
		}, []string{"result"}),
		signDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "efinanceira_sign_duration_seconds",
			Help:    "Duración de la firma de un documento",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		verifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "efinanceira_verify_total",
			Help: "Verificaciones de firma por estado",
		}, []string{"status"}),
		loteEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "efinanceira_lote_events_total",
			Help: "Eventos procesados dentro de lotes por resultado",
		}, []string{"result"}),
		certLoadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "efinanceira_certificate_load_total",
			Help: "Cargas de certificado por origen y resultado",
		}, []string{"source", "result"}),
	}
	reg.MustRegister(r.signTotal, r.signDuration, r.verifyTotal, r.loteEvents, r.certLoadTotal)
	return r
}

// RecordSign registra una firma y su duración.
func (p *PrometheusRecorder) RecordSign(success bool, d time.Duration) {
	p.signTotal.WithLabelValues(result(success)).Inc()
	p.signDuration.Observe(d.Seconds())
}

// RecordVerify registra el estado de una verificación.
func (p *PrometheusRecorder) RecordVerify(status string) {
	p.verifyTotal.WithLabelValues(status).Inc()
}

// RecordLoteEvents suma n eventos de un lote.
func (p *PrometheusRecorder) RecordLoteEvents(success bool, n int) {
	p.loteEvents.WithLabelValues(result(success)).Add(float64(n))
}

// RecordCertificateLoad registra una resolución de certificado (file, store).
func (p *PrometheusRecorder) RecordCertificateLoad(source string, success bool) {
	p.certLoadTotal.WithLabelValues(source, result(success)).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

var _ signing.MetricsRecorder = (*PrometheusRecorder)(nil)
