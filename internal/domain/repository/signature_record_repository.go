package repository

import (
	"context"

	"github.com/jhoicas/efinanceira-api/internal/domain/entity"
)

// SignatureRecordRepository define el puerto de persistencia del registro de firmas.
type SignatureRecordRepository interface {
	Create(ctx context.Context, rec *entity.SignatureRecord) error
	// GetByID devuelve nil, nil si no existe.
	GetByID(ctx context.Context, id string) (*entity.SignatureRecord, error)
	// ListByReference devuelve las firmas de un mismo id de evento, más reciente primero.
	ListByReference(ctx context.Context, referenceID string) ([]*entity.SignatureRecord, error)
}
