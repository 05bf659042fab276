package fiscal

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain"
	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
	"github.com/cleiltonsr/prograos-fiscal/internal/domain/repository"
	"github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/nfe"
	"github.com/cleiltonsr/prograos-fiscal/pkg/logger"
)

// IssueUseCase conduz a emissão de ponta a ponta: venda fresca do banco,
// perfil tributário, reserva de número, montagem, assinatura, envio e
// persistência do resultado.
type IssueUseCase struct {
	invoices  repository.InvoiceRepository
	emitters  repository.EmitterRepository
	documents repository.FiscalDocumentRepository
	profiles  repository.TaxProfileRepository

	certs   CertValidator
	builder DocumentBuilder
	signer  DocumentSigner
	client  SefazClient

	appEnv string // "dev" assina mas não transmite
	log    *logger.Logger

	// newPollBackoff produz a política de espera da consulta de recibo.
	// Substituível nos testes.
	newPollBackoff func() backoff.BackOff
}

// NewIssueUseCase monta o caso de uso. appEnv "dev" pula o envio ao
// webservice; a nota fica assinada e PENDENTE.
func NewIssueUseCase(
	invoices repository.InvoiceRepository,
	emitters repository.EmitterRepository,
	documents repository.FiscalDocumentRepository,
	profiles repository.TaxProfileRepository,
	certs CertValidator,
	builder DocumentBuilder,
	signer DocumentSigner,
	client SefazClient,
	appEnv string,
	log *logger.Logger,
) *IssueUseCase {
	return &IssueUseCase{
		invoices:  invoices,
		emitters:  emitters,
		documents: documents,
		profiles:  profiles,
		certs:     certs,
		builder:   builder,
		signer:    signer,
		client:    client,
		appEnv:    appEnv,
		log:       log,
		newPollBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Second
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
	}
}

// Issue emite a NF-e da venda indicada. O documento fiscal resultante é
// persistido com o desfecho, inclusive em recusa: o xMotivo da SEFAZ tem
// valor legal e nunca é descartado.
func (uc *IssueUseCase) Issue(ctx context.Context, invoiceID string) (*entity.FiscalDocument, error) {
	inv, err := uc.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("venda %s: %w", invoiceID, domain.ErrNotFound)
	}

	if existing, err := uc.documents.GetByInvoiceID(ctx, invoiceID); err != nil {
		return nil, err
	} else if existing != nil && existing.Status != entity.NFeStatusDenegada {
		return nil, fmt.Errorf("venda %s já tem documento %s (%s): %w",
			invoiceID, existing.AccessKey, existing.Status, domain.ErrConflict)
	}

	em, err := uc.emitters.Get(ctx)
	if err != nil {
		return nil, err
	}
	if em == nil {
		return nil, fmt.Errorf("emitente não configurado: %w", domain.ErrNotFound)
	}

	if warn, err := uc.certs.Validate(time.Now()); err != nil {
		return nil, err
	} else if warn != "" {
		uc.log.Warn().Str("invoice_id", invoiceID).Msg(warn)
	}

	profile, err := uc.resolveProfile(ctx, inv)
	if err != nil {
		return nil, err
	}

	numero, err := uc.emitters.ReserveNextNumber(ctx)
	if err != nil {
		return nil, err
	}

	xml, accessKey, err := uc.builder.Build(nfe.BuildInput{
		Invoice:    inv,
		Emitter:    em,
		TaxProfile: profile,
		Numero:     numero,
	})
	if err != nil {
		return nil, err
	}

	signed, err := uc.signer.Sign(xml)
	if err != nil {
		return nil, err
	}

	doc := &entity.FiscalDocument{
		InvoiceID: invoiceID,
		AccessKey: accessKey,
		Serie:     em.SerieNFe,
		Numero:    numero,
		XMLSigned: signed,
		Status:    entity.NFeStatusPendente,
		Ambiente:  em.Ambiente,
	}

	log := uc.log.With().Str("invoice_id", invoiceID).Str("chave", accessKey).Logger()

	switch {
	case uc.appEnv == "dev":
		// Modo desenvolvimento: assina e guarda, sem tocar a rede.
		log.Info().Msg("modo dev: nota assinada e não transmitida")
	case em.Ambiente == entity.AmbienteProducao && !em.ProductionEnabled:
		return nil, fmt.Errorf("envio em produção desabilitado para o emitente: %w", domain.ErrConflict)
	default:
		res := uc.client.Authorize(ctx, signed)
		if res.StatusCode == nfe.CStatLoteRecebido && res.Receipt != "" {
			res = uc.pollUntilProcessed(ctx, res)
		}
		applySubmitResult(doc, res)
		log.Info().
			Str("cstat", doc.StatusCode).
			Str("status", doc.Status).
			Str("protocolo", doc.Protocol).
			Msg("resultado da autorização")
	}

	if err := uc.documents.Create(ctx, doc); err != nil {
		return nil, err
	}
	if doc.Status == entity.NFeStatusAutorizada {
		if err := uc.invoices.UpdateStatus(ctx, invoiceID, entity.InvoiceStatusIssued); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// ResumePending retoma um documento que ficou em fila (cStat 103) consultando
// o recibo novamente.
func (uc *IssueUseCase) ResumePending(ctx context.Context, documentID string) (*entity.FiscalDocument, error) {
	doc, err := uc.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("documento %s: %w", documentID, domain.ErrNotFound)
	}
	if doc.Status != entity.NFeStatusPendente || doc.ReceiptNum == "" {
		return nil, fmt.Errorf("documento %s não tem recibo pendente: %w", documentID, domain.ErrConflict)
	}

	res := uc.pollUntilProcessed(ctx, nfe.Result{StatusCode: nfe.CStatLoteRecebido, Receipt: doc.ReceiptNum})
	applySubmitResult(doc, res)
	if err := uc.documents.Update(ctx, doc); err != nil {
		return nil, err
	}
	if doc.Status == entity.NFeStatusAutorizada {
		if err := uc.invoices.UpdateStatus(ctx, doc.InvoiceID, entity.InvoiceStatusIssued); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// ServiceStatus consulta a disponibilidade do ambiente de autorização.
func (uc *IssueUseCase) ServiceStatus(ctx context.Context) nfe.Result {
	return uc.client.QueryServiceStatus(ctx)
}

// resolveProfile busca o perfil do grão e cai no perfil de MILHO quando o tipo
// não tem cadastro. Sem nenhum dos dois a emissão é abortada.
func (uc *IssueUseCase) resolveProfile(ctx context.Context, inv *entity.Invoice) (*entity.TaxProfile, error) {
	if inv.Weighing == nil {
		return nil, &domain.ValidationError{Field: "weighing", Cause: "venda sem pesagem vinculada"}
	}
	grain := inv.Weighing.TipoGrao

	byType, err := uc.profiles.GetByGrainType(ctx, grain)
	if err != nil {
		return nil, err
	}
	var fallback *entity.TaxProfile
	if byType == nil && grain != entity.GraoMilho {
		if fallback, err = uc.profiles.GetByGrainType(ctx, entity.GraoMilho); err != nil {
			return nil, err
		}
	}

	profile := uc.builder.ResolveTaxProfile(grain, byType, fallback)
	if profile == nil {
		return nil, &domain.ValidationError{Field: "tax_profile", Cause: "nenhum perfil tributário cadastrado para " + grain}
	}
	return profile, nil
}

// pollUntilProcessed consulta o recibo com backoff até o lote sair de 105.
// Esgotado o prazo, devolve o último resultado: a nota fica PENDENTE com o
// recibo guardado para retomada posterior.
func (uc *IssueUseCase) pollUntilProcessed(ctx context.Context, queued nfe.Result) nfe.Result {
	receipt := queued.Receipt
	last := queued

	op := func() error {
		last = uc.client.PollReceipt(ctx, receipt)
		if last.StatusCode == nfe.CStatLoteEmProcesso {
			return fmt.Errorf("lote em processamento")
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(uc.newPollBackoff(), ctx)); err != nil {
		uc.log.Warn().Str("recibo", receipt).Msg("lote ainda em processamento após o prazo de consulta")
	}
	// Enquanto o lote não foi processado o recibo é o único caminho de volta:
	// falha de transporte (cStat vazio) ou 105 nunca podem perdê-lo.
	if last.StatusCode == "" || last.StatusCode == nfe.CStatLoteEmProcesso {
		last.Receipt = receipt
	}
	return last
}

// applySubmitResult traduz o Result da SEFAZ para o estado do documento.
// Falha de transporte e lote em fila deixam a nota PENDENTE; recusa explícita
// vira DENEGADA com cStat e xMotivo intactos.
func applySubmitResult(doc *entity.FiscalDocument, res nfe.Result) {
	doc.StatusCode = res.StatusCode
	doc.Motivo = res.Message
	// Falha de transporte (cStat vazio) não apaga um recibo já conhecido.
	if res.StatusCode != "" || res.Receipt != "" {
		doc.ReceiptNum = res.Receipt
	}
	if res.Protocol != "" {
		doc.Protocol = res.Protocol
	}
	if res.AuthorizedAt != nil {
		doc.AuthorizedAt = res.AuthorizedAt
	}

	switch {
	case res.Success:
		doc.Status = entity.NFeStatusAutorizada
	case res.StatusCode == "",
		res.StatusCode == nfe.CStatLoteRecebido,
		res.StatusCode == nfe.CStatLoteEmProcesso:
		doc.Status = entity.NFeStatusPendente
	default:
		doc.Status = entity.NFeStatusDenegada
	}
}
