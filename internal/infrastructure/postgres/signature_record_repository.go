package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/efinanceira-api/internal/domain"
	"github.com/jhoicas/efinanceira-api/internal/domain/entity"
	"github.com/jhoicas/efinanceira-api/internal/domain/repository"
)

var _ repository.SignatureRecordRepository = (*SignatureRecordRepo)(nil)

// SignatureRecordRepo implementación de SignatureRecordRepository (usable con pool o tx).
type SignatureRecordRepo struct {
	q Querier
}

// NewSignatureRecordRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSignatureRecordRepository(q Querier) *SignatureRecordRepo {
	return &SignatureRecordRepo{q: q}
}

const signatureRecordColumns = `id, element, reference_id, digest_value, digest_method,
		       cert_subject, cert_thumbprint, lote_id, user_id, signed_at`

// Create persiste el registro; genera ID y SignedAt si vienen vacíos.
func (r *SignatureRecordRepo) Create(ctx context.Context, rec *entity.SignatureRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.SignedAt.IsZero() {
		rec.SignedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO signature_records (` + signatureRecordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.q.Exec(ctx, query,
		rec.ID, rec.Element, rec.ReferenceID, rec.DigestValue, rec.DigestMethod,
		rec.CertSubject, rec.CertThumbprint, nullIfEmpty(rec.LoteID), nullIfEmpty(rec.UserID), rec.SignedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: registro de firma %s duplicado", domain.ErrInvalidInput, rec.ID)
		}
		return fmt.Errorf("insert signature record: %w", err)
	}
	return nil
}

// GetByID obtiene un registro por ID; nil, nil si no existe.
func (r *SignatureRecordRepo) GetByID(ctx context.Context, id string) (*entity.SignatureRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	query := `SELECT ` + signatureRecordColumns + ` FROM signature_records WHERE id = $1`
	rec, err := scanSignatureRecord(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get signature record: %w", err)
	}
	return rec, nil
}

// ListByReference lista las firmas de un id de evento, más reciente primero.
func (r *SignatureRecordRepo) ListByReference(ctx context.Context, referenceID string) ([]*entity.SignatureRecord, error) {
	query := `SELECT ` + signatureRecordColumns + `
		FROM signature_records WHERE reference_id = $1 ORDER BY signed_at DESC`
	rows, err := r.q.Query(ctx, query, referenceID)
	if err != nil {
		return nil, fmt.Errorf("list signature records: %w", err)
	}
	defer rows.Close()

	var out []*entity.SignatureRecord
	for rows.Next() {
		rec, err := scanSignatureRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signature record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanSignatureRecord(row pgx.Row) (*entity.SignatureRecord, error) {
	var rec entity.SignatureRecord
	var loteID, userID *string
	err := row.Scan(
		&rec.ID, &rec.Element, &rec.ReferenceID, &rec.DigestValue, &rec.DigestMethod,
		&rec.CertSubject, &rec.CertThumbprint, &loteID, &userID, &rec.SignedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.LoteID = derefStr(loteID)
	rec.UserID = derefStr(userID)
	return &rec, nil
}
