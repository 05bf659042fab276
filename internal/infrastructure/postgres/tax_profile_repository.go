package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
	"github.com/cleiltonsr/prograos-fiscal/internal/domain/repository"
)

// TaxProfileRepo implementa repository.TaxProfileRepository (somente-leitura).
type TaxProfileRepo struct {
	pool *pgxpool.Pool
}

var _ repository.TaxProfileRepository = (*TaxProfileRepo)(nil)

func NewTaxProfileRepo(pool *pgxpool.Pool) *TaxProfileRepo {
	return &TaxProfileRepo{pool: pool}
}

func (r *TaxProfileRepo) GetByGrainType(ctx context.Context, grainType string) (*entity.TaxProfile, error) {
	const q = `
		SELECT id, grain_type, description, ncm,
		       cfop_inside_state, cfop_outside_state, csosn, unit_com
		FROM tax_profiles
		WHERE grain_type = $1`

	var p entity.TaxProfile
	err := r.pool.QueryRow(ctx, q, grainType).Scan(
		&p.ID, &p.GrainType, &p.Description, &p.NCM,
		&p.CFOPInsideState, &p.CFOPOutsideState, &p.CSOSN, &p.UnitCom,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("buscar perfil tributário de %s: %w", grainType, err)
	}
	return &p, nil
}

func (r *TaxProfileRepo) List(ctx context.Context) ([]*entity.TaxProfile, error) {
	const q = `
		SELECT id, grain_type, description, ncm,
		       cfop_inside_state, cfop_outside_state, csosn, unit_com
		FROM tax_profiles
		ORDER BY grain_type`

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listar perfis tributários: %w", err)
	}
	defer rows.Close()

	var profiles []*entity.TaxProfile
	for rows.Next() {
		var p entity.TaxProfile
		if err := rows.Scan(
			&p.ID, &p.GrainType, &p.Description, &p.NCM,
			&p.CFOPInsideState, &p.CFOPOutsideState, &p.CSOSN, &p.UnitCom,
		); err != nil {
			return nil, fmt.Errorf("ler perfil tributário: %w", err)
		}
		profiles = append(profiles, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listar perfis tributários: %w", err)
	}
	return profiles, nil
}
