package repository

import (
	"context"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
)

// CertificateRepository consulta os certificados do emitente.
// GetActive devolve nil, nil quando não há certificado ativo cadastrado.
type CertificateRepository interface {
	GetActive(ctx context.Context) (*entity.CertificateRecord, error)
	Create(ctx context.Context, rec *entity.CertificateRecord) error
	Deactivate(ctx context.Context, id string) error
}
