package repository

import (
	"context"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
)

// EmitterRepository dá acesso ao registro do emitente e à autoridade de
// numeração. ReserveNextNumber é a única mutação concorrente do sistema:
// devolve o próximo nNF e avança o contador como unidade atômica — duas
// emissões simultâneas nunca recebem o mesmo número.
type EmitterRepository interface {
	Get(ctx context.Context) (*entity.EmitterConfig, error)
	ReserveNextNumber(ctx context.Context) (int64, error)
	Update(ctx context.Context, cfg *entity.EmitterConfig) error
}
