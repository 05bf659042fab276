package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
	"github.com/cleiltonsr/prograos-fiscal/internal/domain/repository"
)

// CertificateRepo implementa repository.CertificateRepository. A tabela pode
// guardar vários certificados (renovação anual), mas só um fica ativo.
type CertificateRepo struct {
	pool *pgxpool.Pool
}

var _ repository.CertificateRepository = (*CertificateRepo)(nil)

func NewCertificateRepo(pool *pgxpool.Pool) *CertificateRepo {
	return &CertificateRepo{pool: pool}
}

func (r *CertificateRepo) GetActive(ctx context.Context) (*entity.CertificateRecord, error) {
	const q = `
		SELECT id, name, path, key_path, password,
		       valid_from, valid_to, active, created_at, updated_at
		FROM certificates
		WHERE active = true
		ORDER BY created_at DESC
		LIMIT 1`

	var c entity.CertificateRecord
	err := r.pool.QueryRow(ctx, q).Scan(
		&c.ID, &c.Name, &c.Path, &c.KeyPath, &c.Password,
		&c.ValidFrom, &c.ValidTo, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("buscar certificado ativo: %w", err)
	}
	return &c, nil
}

func (r *CertificateRepo) Create(ctx context.Context, rec *entity.CertificateRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO certificates
			(id, name, path, key_path, password, valid_from, valid_to, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())`

	_, err := r.pool.Exec(ctx, q,
		rec.ID, rec.Name, rec.Path, rec.KeyPath, rec.Password,
		rec.ValidFrom, rec.ValidTo, rec.Active,
	)
	if err != nil {
		return fmt.Errorf("criar certificado: %w", err)
	}
	return nil
}

func (r *CertificateRepo) Deactivate(ctx context.Context, id string) error {
	const q = `UPDATE certificates SET active = false, updated_at = now() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("desativar certificado: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("desativar certificado: registro %s não encontrado", id)
	}
	return nil
}
