// Package memory traz implementações em memória dos repositórios, usadas em
// testes e no modo de desenvolvimento sem banco.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
	"github.com/cleiltonsr/prograos-fiscal/internal/domain/repository"
)

// EmitterRepo guarda o emitente em memória. A reserva de numeração segue a
// mesma garantia da versão Postgres: números consecutivos, nunca repetidos.
type EmitterRepo struct {
	mu  sync.Mutex
	cfg *entity.EmitterConfig
}

var _ repository.EmitterRepository = (*EmitterRepo)(nil)

func NewEmitterRepo(cfg *entity.EmitterConfig) *EmitterRepo {
	return &EmitterRepo{cfg: cfg}
}

func (r *EmitterRepo) Get(ctx context.Context) (*entity.EmitterConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg == nil {
		return nil, nil
	}
	copia := *r.cfg
	return &copia, nil
}

func (r *EmitterRepo) ReserveNextNumber(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg == nil {
		return 0, fmt.Errorf("reservar número: emitente não configurado")
	}
	numero := r.cfg.ProximoNumero
	r.cfg.ProximoNumero++
	return numero, nil
}

func (r *EmitterRepo) Update(ctx context.Context, cfg *entity.EmitterConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg == nil || r.cfg.ID != cfg.ID {
		return fmt.Errorf("atualizar emitente: registro %s não encontrado", cfg.ID)
	}
	numero := r.cfg.ProximoNumero
	copia := *cfg
	copia.ProximoNumero = numero // o contador só avança via ReserveNextNumber
	r.cfg = &copia
	return nil
}
