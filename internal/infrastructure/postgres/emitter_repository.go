package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
	"github.com/cleiltonsr/prograos-fiscal/internal/domain/repository"
)

// EmitterRepo implementa repository.EmitterRepository sobre a tabela
// emitter_config (linha única).
type EmitterRepo struct {
	pool *pgxpool.Pool
}

var _ repository.EmitterRepository = (*EmitterRepo)(nil)

func NewEmitterRepo(pool *pgxpool.Pool) *EmitterRepo {
	return &EmitterRepo{pool: pool}
}

func (r *EmitterRepo) Get(ctx context.Context) (*entity.EmitterConfig, error) {
	const q = `
		SELECT id, razao_social, nome_fantasia, cnpj, ie,
		       logradouro, numero, complemento, bairro,
		       codigo_municipio, municipio, uf, codigo_uf, cep,
		       regime_tributario, serie_nfe, proximo_numero,
		       ambiente, production_enabled, created_at, updated_at
		FROM emitter_config
		LIMIT 1`

	var e entity.EmitterConfig
	err := r.pool.QueryRow(ctx, q).Scan(
		&e.ID, &e.RazaoSocial, &e.NomeFantasia, &e.CNPJ, &e.IE,
		&e.Logradouro, &e.Numero, &e.Complemento, &e.Bairro,
		&e.CodigoMunicipio, &e.Municipio, &e.UF, &e.CodigoUF, &e.CEP,
		&e.RegimeTributario, &e.SerieNFe, &e.ProximoNumero,
		&e.Ambiente, &e.ProductionEnabled, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("buscar emitente: %w", err)
	}
	return &e, nil
}

// ReserveNextNumber avança o contador e devolve o número reservado em uma
// única instrução: duas emissões simultâneas recebem números distintos sem
// lock explícito.
func (r *EmitterRepo) ReserveNextNumber(ctx context.Context) (int64, error) {
	const q = `
		UPDATE emitter_config
		SET proximo_numero = proximo_numero + 1,
		    updated_at = now()
		RETURNING proximo_numero - 1`

	var numero int64
	if err := r.pool.QueryRow(ctx, q).Scan(&numero); err != nil {
		if isNoRows(err) {
			return 0, fmt.Errorf("reservar número: emitente não configurado")
		}
		return 0, fmt.Errorf("reservar número: %w", err)
	}
	return numero, nil
}

func (r *EmitterRepo) Update(ctx context.Context, cfg *entity.EmitterConfig) error {
	const q = `
		UPDATE emitter_config
		SET razao_social = $2, nome_fantasia = $3, cnpj = $4, ie = $5,
		    logradouro = $6, numero = $7, complemento = $8, bairro = $9,
		    codigo_municipio = $10, municipio = $11, uf = $12, codigo_uf = $13,
		    cep = $14, regime_tributario = $15, serie_nfe = $16,
		    ambiente = $17, production_enabled = $18, updated_at = now()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, q,
		cfg.ID, cfg.RazaoSocial, cfg.NomeFantasia, cfg.CNPJ, cfg.IE,
		cfg.Logradouro, cfg.Numero, cfg.Complemento, cfg.Bairro,
		cfg.CodigoMunicipio, cfg.Municipio, cfg.UF, cfg.CodigoUF,
		cfg.CEP, cfg.RegimeTributario, cfg.SerieNFe,
		cfg.Ambiente, cfg.ProductionEnabled,
	)
	if err != nil {
		return fmt.Errorf("atualizar emitente: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("atualizar emitente: registro %s não encontrado", cfg.ID)
	}
	return nil
}
