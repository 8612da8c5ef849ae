// Package signing orquesta la firma y verificación de documentos e-Financeira:
// opciones por defecto del ambiente, métricas, registro de auditoría y lotes.
package signing

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/efinanceira-api/internal/domain"
	"github.com/jhoicas/efinanceira-api/internal/domain/entity"
	"github.com/jhoicas/efinanceira-api/internal/domain/repository"
	"github.com/jhoicas/efinanceira-api/internal/infrastructure/certificate"
	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
	"github.com/jhoicas/efinanceira-api/pkg/logger"
)

// Defaults opciones de firma configuradas para el ambiente (EFIN_*).
type Defaults struct {
	Certificate            efinanceira.CertificateRef
	CanonicalizationMethod string
	SignatureMethod        string
	DigestMethod           string
	IDAttributeName        string
	IncludeCertificate     bool
	IncludeChain           bool
}

// options arma SignOptions para el elemento; los campos vacíos toman los defaults del paquete.
func (d Defaults) options(element, id string) efinanceira.SignOptions {
	opts := efinanceira.NewSignOptions(element, id)
	opts.CertificatePath = d.Certificate.Path
	opts.CertificateKeyPath = d.Certificate.KeyPath
	opts.CertificatePassword = d.Certificate.Password
	opts.CertificateThumbprint = d.Certificate.Thumbprint
	opts.CanonicalizationMethod = d.CanonicalizationMethod
	opts.SignatureMethod = d.SignatureMethod
	opts.DigestMethod = d.DigestMethod
	opts.IDAttributeName = d.IDAttributeName
	opts.IncludeCertificate = d.IncludeCertificate
	opts.IncludeCertificateChain = d.IncludeChain
	return opts.WithDefaults()
}

// SignInput petición de firma de un documento.
type SignInput struct {
	XML         []byte
	ElementName string
	IDValue     string
	IDAttribute string // vacío = default del ambiente
	Placement   efinanceira.Placement

	// Sobrescriben los algoritmos del ambiente si no están vacíos.
	CanonicalizationMethod string
	SignatureMethod        string
	DigestMethod           string

	UserID string
}

// SignOutput documento firmado y datos de la firma.
type SignOutput struct {
	SignedXML      []byte
	DigestValue    string // base64
	SignatureValue string // base64
	CertSubject    string
	CertThumbprint string
	RecordID       string // vacío si la auditoría está deshabilitada
}

// SigningUseCase firma y verifica documentos con las opciones del ambiente.
type SigningUseCase struct {
	signer   efinanceira.Signer
	verifier efinanceira.Verifier
	audit    repository.SignatureRecordRepository
	metrics  MetricsRecorder
	log      *logger.Logger
	defaults Defaults
	now      func() time.Time
}

// NewSigningUseCase construye el caso de uso. audit, metrics y log pueden ser nil.
func NewSigningUseCase(
	signer efinanceira.Signer,
	verifier efinanceira.Verifier,
	audit repository.SignatureRecordRepository,
	metrics MetricsRecorder,
	log *logger.Logger,
	defaults Defaults,
) *SigningUseCase {
	if audit == nil {
		audit = NoopAudit{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SigningUseCase{
		signer:   signer,
		verifier: verifier,
		audit:    audit,
		metrics:  metrics,
		log:      log.Named("signing"),
		defaults: defaults,
		now:      time.Now,
	}
}

// Sign firma el elemento indicado y registra la firma en auditoría.
// Un fallo al auditar se registra en el log pero no invalida la firma ya generada.
func (uc *SigningUseCase) Sign(ctx context.Context, in SignInput) (*SignOutput, error) {
	if len(in.XML) == 0 {
		return nil, fmt.Errorf("%w: xml vacío", domain.ErrInvalidInput)
	}
	opts := uc.defaults.options(in.ElementName, in.IDValue)
	if in.IDAttribute != "" {
		opts.IDAttributeName = in.IDAttribute
	}
	opts.Placement = in.Placement
	if in.CanonicalizationMethod != "" {
		opts.CanonicalizationMethod = in.CanonicalizationMethod
	}
	if in.SignatureMethod != "" {
		opts.SignatureMethod = in.SignatureMethod
	}
	if in.DigestMethod != "" {
		opts.DigestMethod = in.DigestMethod
	}

	res, err := uc.sign(in.XML, opts)
	if err != nil {
		return nil, err
	}

	out := newSignOutput(res)
	rec := uc.record(in.ElementName, in.IDValue, opts.DigestMethod, out, in.UserID, "")
	if err := uc.audit.Create(ctx, rec); err != nil {
		uc.log.Error().Err(err).Str("id", in.IDValue).Msg("no se pudo registrar la firma en auditoría")
	} else if rec.ID != "" {
		out.RecordID = rec.ID
	}
	return out, nil
}

// sign ejecuta la firma con métricas y log; lo usan la firma simple y los lotes.
func (uc *SigningUseCase) sign(xmlBytes []byte, opts efinanceira.SignOptions) (*efinanceira.SignatureResult, error) {
	start := uc.now()
	res, err := uc.signer.SignDetailed(xmlBytes, opts)
	elapsed := time.Since(start)
	uc.metrics.RecordSign(err == nil, elapsed)
	if err == nil || errors.Is(err, efinanceira.ErrCertificateLoad) {
		uc.metrics.RecordCertificateLoad(certificateSource(opts), err == nil)
	}
	if err != nil {
		uc.log.Warn().Err(err).
			Str("element", opts.ElementToSignName).
			Str("id", opts.IDValue).
			Msg("firma rechazada")
		return nil, err
	}
	uc.log.Info().
		Str("element", opts.ElementToSignName).
		Str("id", opts.IDValue).
		Str("digest", base64.StdEncoding.EncodeToString(res.DigestValue)).
		Int64("duration_ms", elapsed.Milliseconds()).
		Msg("documento firmado")
	return res, nil
}

// Verify verifica la primera firma del documento.
func (uc *SigningUseCase) Verify(_ context.Context, signedXML []byte) efinanceira.VerificationResult {
	res := uc.verifier.VerifyDetailed(signedXML)
	uc.metrics.RecordVerify(string(res.Status))
	ev := uc.log.Info()
	if !res.Valid {
		ev = uc.log.Warn()
	}
	ev.Str("status", string(res.Status)).Str("detail", res.Detail).Msg("verificación de firma")
	return res
}

// GetRecord devuelve un registro de auditoría; domain.ErrNotFound si no existe.
func (uc *SigningUseCase) GetRecord(ctx context.Context, id string) (*entity.SignatureRecord, error) {
	rec, err := uc.audit.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

func (uc *SigningUseCase) record(element, id, digestMethod string, out *SignOutput, userID, loteID string) *entity.SignatureRecord {
	return &entity.SignatureRecord{
		Element:        element,
		ReferenceID:    id,
		DigestValue:    out.DigestValue,
		DigestMethod:   digestMethod,
		CertSubject:    out.CertSubject,
		CertThumbprint: out.CertThumbprint,
		LoteID:         loteID,
		UserID:         userID,
		SignedAt:       uc.now().UTC(),
	}
}

func newSignOutput(res *efinanceira.SignatureResult) *SignOutput {
	out := &SignOutput{
		SignedXML:      res.SignedXML,
		DigestValue:    base64.StdEncoding.EncodeToString(res.DigestValue),
		SignatureValue: base64.StdEncoding.EncodeToString(res.SignatureValue),
	}
	if res.Signer != nil {
		out.CertSubject = res.Signer.Subject.String()
		out.CertThumbprint = certificate.Thumbprint(res.Signer)
	}
	return out
}

func certificateSource(opts efinanceira.SignOptions) string {
	switch {
	case opts.Certificate != nil:
		return "direct"
	case opts.CertificateThumbprint != "":
		return "store"
	default:
		return "file"
	}
}
