package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
	"github.com/cleiltonsr/prograos-fiscal/internal/domain/repository"
)

// FiscalDocumentRepo implementa repository.FiscalDocumentRepository.
// Documentos em fiscal_documents, eventos em fiscal_events (append-only,
// nunca UPDATE nem DELETE de evento).
type FiscalDocumentRepo struct {
	pool *pgxpool.Pool
}

var _ repository.FiscalDocumentRepository = (*FiscalDocumentRepo)(nil)

func NewFiscalDocumentRepo(pool *pgxpool.Pool) *FiscalDocumentRepo {
	return &FiscalDocumentRepo{pool: pool}
}

const docColumns = `
	id, invoice_id, access_key, serie, numero, xml_signed,
	protocol, status, status_code, motivo, ambiente, receipt_num,
	authorized_at, created_at, updated_at`

func (r *FiscalDocumentRepo) Create(ctx context.Context, doc *entity.FiscalDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO fiscal_documents
			(id, invoice_id, access_key, serie, numero, xml_signed,
			 protocol, status, status_code, motivo, ambiente, receipt_num,
			 authorized_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())`

	_, err := r.pool.Exec(ctx, q,
		doc.ID, doc.InvoiceID, doc.AccessKey, doc.Serie, doc.Numero, doc.XMLSigned,
		doc.Protocol, doc.Status, doc.StatusCode, doc.Motivo, doc.Ambiente, doc.ReceiptNum,
		doc.AuthorizedAt,
	)
	if err != nil {
		return fmt.Errorf("criar documento fiscal: %w", err)
	}
	return nil
}

func (r *FiscalDocumentRepo) GetByID(ctx context.Context, id string) (*entity.FiscalDocument, error) {
	q := `SELECT` + docColumns + ` FROM fiscal_documents WHERE id = $1`
	return r.getOne(ctx, q, id)
}

func (r *FiscalDocumentRepo) GetByAccessKey(ctx context.Context, accessKey string) (*entity.FiscalDocument, error) {
	q := `SELECT` + docColumns + ` FROM fiscal_documents WHERE access_key = $1`
	return r.getOne(ctx, q, accessKey)
}

func (r *FiscalDocumentRepo) GetByInvoiceID(ctx context.Context, invoiceID string) (*entity.FiscalDocument, error) {
	q := `SELECT` + docColumns + ` FROM fiscal_documents WHERE invoice_id = $1 ORDER BY created_at DESC LIMIT 1`
	return r.getOne(ctx, q, invoiceID)
}

func (r *FiscalDocumentRepo) getOne(ctx context.Context, q string, arg any) (*entity.FiscalDocument, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx, q, arg))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("buscar documento fiscal: %w", err)
	}

	events, err := r.ListEvents(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		doc.Events = append(doc.Events, *ev)
	}
	return doc, nil
}

func (r *FiscalDocumentRepo) Update(ctx context.Context, doc *entity.FiscalDocument) error {
	const q = `
		UPDATE fiscal_documents
		SET xml_signed = $2, protocol = $3, status = $4, status_code = $5,
		    motivo = $6, receipt_num = $7, authorized_at = $8, updated_at = now()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, q,
		doc.ID, doc.XMLSigned, doc.Protocol, doc.Status, doc.StatusCode,
		doc.Motivo, doc.ReceiptNum, doc.AuthorizedAt,
	)
	if err != nil {
		return fmt.Errorf("atualizar documento fiscal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("atualizar documento fiscal: registro %s não encontrado", doc.ID)
	}
	return nil
}

func (r *FiscalDocumentRepo) AppendEvent(ctx context.Context, ev *entity.FiscalEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO fiscal_events
			(id, document_id, tipo_evento, sequencia, texto,
			 protocol, status, status_code, motivo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`

	_, err := r.pool.Exec(ctx, q,
		ev.ID, ev.DocumentID, ev.TipoEvento, ev.Sequencia, ev.Texto,
		ev.Protocol, ev.Status, ev.StatusCode, ev.Motivo,
	)
	if err != nil {
		return fmt.Errorf("registrar evento fiscal: %w", err)
	}
	return nil
}

func (r *FiscalDocumentRepo) ListEvents(ctx context.Context, documentID string) ([]*entity.FiscalEvent, error) {
	const q = `
		SELECT id, document_id, tipo_evento, sequencia, texto,
		       protocol, status, status_code, motivo, created_at
		FROM fiscal_events
		WHERE document_id = $1
		ORDER BY sequencia, created_at`

	rows, err := r.pool.Query(ctx, q, documentID)
	if err != nil {
		return nil, fmt.Errorf("listar eventos fiscais: %w", err)
	}
	defer rows.Close()

	var events []*entity.FiscalEvent
	for rows.Next() {
		var ev entity.FiscalEvent
		if err := rows.Scan(
			&ev.ID, &ev.DocumentID, &ev.TipoEvento, &ev.Sequencia, &ev.Texto,
			&ev.Protocol, &ev.Status, &ev.StatusCode, &ev.Motivo, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ler evento fiscal: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listar eventos fiscais: %w", err)
	}
	return events, nil
}

func scanDocument(row pgx.Row) (*entity.FiscalDocument, error) {
	var d entity.FiscalDocument
	err := row.Scan(
		&d.ID, &d.InvoiceID, &d.AccessKey, &d.Serie, &d.Numero, &d.XMLSigned,
		&d.Protocol, &d.Status, &d.StatusCode, &d.Motivo, &d.Ambiente, &d.ReceiptNum,
		&d.AuthorizedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
