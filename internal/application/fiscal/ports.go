// Package fiscal orquestra o ciclo de vida da NF-e: emissão, eventos
// (cancelamento e carta de correção) e geração do recibo em PDF.
package fiscal

import (
	"context"
	"time"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
	"github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/nfe"
	"github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/pdf"
)

// DocumentBuilder monta o XML da NF-e e devolve a chave de acesso.
type DocumentBuilder interface {
	Build(in nfe.BuildInput) (xml string, accessKey string, err error)
	ResolveTaxProfile(grainType string, byType, fallback *entity.TaxProfile) *entity.TaxProfile
}

// DocumentSigner aplica a assinatura XML-DSig. Obrigatória: sem assinatura a
// nota não sai do processo.
type DocumentSigner interface {
	Sign(xml string) (string, error)
}

// ReceiptSigner assina o PDF do recibo. Melhor esforço: em falha o chamador
// entrega o PDF sem assinatura.
type ReceiptSigner interface {
	Sign(pdf []byte) ([]byte, error)
}

// DANFERenderer gera o PDF do DANFE simplificado.
type DANFERenderer interface {
	Generate(in pdf.DANFEInput) ([]byte, error)
}

// CertValidator checa a validade do certificado antes de assinar.
type CertValidator interface {
	Validate(now time.Time) (warn string, err error)
}

// SefazClient é a visão da orquestração sobre os webservices da SEFAZ. Toda
// operação devolve um Result normalizado, nunca erro de transporte.
type SefazClient interface {
	QueryServiceStatus(ctx context.Context) nfe.Result
	Authorize(ctx context.Context, signedXML string) nfe.Result
	PollReceipt(ctx context.Context, receipt string) nfe.Result
	Cancel(ctx context.Context, accessKey, protocol, justificativa string) nfe.Result
	SendCorrectionLetter(ctx context.Context, accessKey string, sequencia int, correcao string) nfe.Result
}
