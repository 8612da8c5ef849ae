package signing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/efinanceira-api/internal/domain"
	"github.com/jhoicas/efinanceira-api/internal/domain/entity"
	"github.com/jhoicas/efinanceira-api/internal/domain/repository"
	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
	"github.com/jhoicas/efinanceira-api/pkg/logger"
)

// LoteResult lote con todos sus eventos firmados.
type LoteResult struct {
	LoteID    string
	SignedXML []byte
	Events    []SignedEvent
}

// SignedEvent resumen de la firma de un evento del lote.
type SignedEvent struct {
	Name           string
	ID             string
	DigestValue    string
	CertThumbprint string
}

// LoteUseCase firma lotes de eventos y los transmite al WsRecepcao.
//
// Modos de operación (EFIN_ENVIRONMENT):
//   - "dev"         → firma pero NO transmite; devuelve un protocolo simulado.
//   - "homologacao" → transmite al ambiente de pre-producción.
//   - "producao"    → transmite al ambiente de producción.
type LoteUseCase struct {
	signing   *SigningUseCase
	audit     AuditTxRunner
	submitter LoteSubmitter // nil en dev
	log       *logger.Logger
	env       string
	workers   int
}

// NewLoteUseCase construye el caso de uso. workers limita las firmas concurrentes.
func NewLoteUseCase(signing *SigningUseCase, audit AuditTxRunner, submitter LoteSubmitter, log *logger.Logger, env string, workers int) *LoteUseCase {
	if audit == nil {
		audit = NoopAudit{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if workers < 1 {
		workers = 1
	}
	return &LoteUseCase{
		signing:   signing,
		audit:     audit,
		submitter: submitter,
		log:       log.Named("lote"),
		env:       env,
		workers:   workers,
	}
}

// SignLote firma cada evento del lote como documento independiente, con la firma
// como hija del <eFinanceira> del evento. Si un evento falla se aborta el lote.
func (uc *LoteUseCase) SignLote(ctx context.Context, loteXML []byte, userID string) (*LoteResult, error) {
	doc, events, err := parseLote(loteXML)
	if err != nil {
		return nil, err
	}

	raws := make([][]byte, len(events))
	for i, ev := range events {
		if raws[i], err = standalone(ev.document); err != nil {
			return nil, fmt.Errorf("serializar evento %s: %w", ev.id, err)
		}
	}

	outputs := make([]*SignOutput, len(events))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.workers)
	for i, ev := range events {
		i, ev := i, ev
		raw := raws[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			opts := uc.signing.defaults.options(ev.name, ev.id)
			opts.IDAttributeName = efinanceira.EventIDAttribute
			opts.Placement = efinanceira.PlacementParent
			res, err := uc.signing.sign(raw, opts)
			if err != nil {
				return fmt.Errorf("evento %s (%s): %w", ev.id, ev.name, err)
			}
			outputs[i] = newSignOutput(res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		uc.signing.metrics.RecordLoteEvents(false, len(events))
		return nil, err
	}

	result := &LoteResult{LoteID: uuid.New().String(), Events: make([]SignedEvent, len(events))}
	records := make([]*entity.SignatureRecord, len(events))
	for i, ev := range events {
		if err := replaceDocument(ev, outputs[i].SignedXML); err != nil {
			return nil, err
		}
		result.Events[i] = SignedEvent{
			Name:           ev.name,
			ID:             ev.id,
			DigestValue:    outputs[i].DigestValue,
			CertThumbprint: outputs[i].CertThumbprint,
		}
		records[i] = uc.signing.record(ev.name, ev.id, uc.signing.defaults.options(ev.name, ev.id).DigestMethod,
			outputs[i], userID, result.LoteID)
	}
	if result.SignedXML, err = doc.WriteToBytes(); err != nil {
		return nil, fmt.Errorf("serializar lote: %w", err)
	}
	uc.signing.metrics.RecordLoteEvents(true, len(events))

	err = uc.audit.RunAudit(ctx, func(repo repository.SignatureRecordRepository) error {
		for _, rec := range records {
			if err := repo.Create(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		uc.log.Error().Err(err).Str("lote_id", result.LoteID).Msg("no se pudo registrar el lote en auditoría")
	}

	uc.log.Info().Str("lote_id", result.LoteID).Int("events", len(events)).Msg("lote firmado")
	return result, nil
}

// SendLote firma el lote (si sign es true) y lo transmite. Un lote no aceptado
// devuelve el resultado junto con domain.ErrLoteRejected.
func (uc *LoteUseCase) SendLote(ctx context.Context, loteXML []byte, userID string, sign bool) (*SubmitResult, error) {
	payload := loteXML
	if sign {
		signed, err := uc.SignLote(ctx, loteXML, userID)
		if err != nil {
			return nil, err
		}
		payload = signed.SignedXML
	} else if _, _, err := parseLote(loteXML); err != nil {
		return nil, err
	}

	if uc.env == efinanceira.EnvironmentDev || uc.submitter == nil {
		uc.log.Info().Str("env", uc.env).Msg("lote no transmitido (modo dev)")
		return &SubmitResult{
			Protocol:    "DEV-" + uuid.New().String(),
			Accepted:    true,
			Code:        1,
			Description: "ambiente dev: lote no transmitido",
		}, nil
	}

	start := time.Now()
	res, err := uc.submitter.SubmitLote(ctx, payload, uc.env)
	if err != nil {
		if !errors.Is(err, domain.ErrTransmission) {
			err = fmt.Errorf("%w: %v", domain.ErrTransmission, err)
		}
		uc.log.Error().Err(err).Str("env", uc.env).Msg("falla al transmitir el lote")
		return nil, err
	}
	uc.log.Info().
		Str("env", uc.env).
		Str("protocol", res.Protocol).
		Int("cd_retorno", res.Code).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("lote transmitido")
	if !res.Accepted {
		return res, fmt.Errorf("%w: cdRetorno %d: %s", domain.ErrLoteRejected, res.Code, res.Description)
	}
	return res, nil
}
