package repository

import (
	"context"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
)

// TaxProfileRepository é a consulta somente-leitura de perfis tributários,
// chaveada pelo tipo de grão. GetByGrainType devolve nil, nil quando o tipo
// não tem cadastro (o chamador decide o fallback).
type TaxProfileRepository interface {
	GetByGrainType(ctx context.Context, grainType string) (*entity.TaxProfile, error)
	List(ctx context.Context) ([]*entity.TaxProfile, error)
}
