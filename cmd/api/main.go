package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/cleiltonsr/prograos-fiscal/internal/application/fiscal"
	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
	infracert "github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/cert"
	infranfe "github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/nfe"
	infrapdf "github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/pdf"
	"github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/postgres"
	httpRouter "github.com/cleiltonsr/prograos-fiscal/internal/interfaces/http"
	"github.com/cleiltonsr/prograos-fiscal/pkg/config"
	"github.com/cleiltonsr/prograos-fiscal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("carregar configuração: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicação")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexão ao PostgreSQL")
	}
	defer pool.Close()

	invoiceRepo := postgres.NewInvoiceRepo(pool)
	emitterRepo := postgres.NewEmitterRepo(pool)
	documentRepo := postgres.NewFiscalDocumentRepo(pool)
	profileRepo := postgres.NewTaxProfileRepo(pool)
	certRepo := postgres.NewCertificateRepo(pool)

	emitter, err := emitterRepo.Get(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("carregar emitente")
	}
	if emitter == nil {
		log.Fatal().Msg("nenhum emitente configurado no banco")
	}

	// Certificado: registro ativo do banco; na falta, os caminhos da config.
	certRecord, err := certRepo.GetActive(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("carregar certificado ativo")
	}
	if certRecord == nil && cfg.SEFAZ.CertPath != "" {
		certRecord = &entity.CertificateRecord{
			Name:     "certificado da configuração",
			Path:     cfg.SEFAZ.CertPath,
			KeyPath:  cfg.SEFAZ.CertKeyPath,
			Password: cfg.SEFAZ.CertPassword,
			Active:   true,
		}
	}
	certProvider := infracert.NewProvider(certRecord)
	if warn, err := certProvider.Validate(time.Now()); err != nil {
		log.Fatal().Err(err).Msg("certificado inválido")
	} else if warn != "" {
		log.Warn().Msg(warn)
	}

	algorithms := infranfe.AlgorithmSet{
		Digest:    cfg.SEFAZ.DigestAlg,
		Signature: cfg.SEFAZ.SignatureAlg,
	}
	xmlSigner := infranfe.NewSigner(certProvider, algorithms)
	builder := infranfe.NewBuilder(log)

	soapClient, err := infranfe.NewSOAPClient(emitter, certProvider, xmlSigner, cfg.SEFAZ.SOAPTimeout, log)
	if err != nil {
		log.Fatal().Err(err).Msg("montar cliente SEFAZ")
	}

	danfeGenerator := infrapdf.NewDANFEGenerator()
	pdfSigner := infrapdf.NewSigner(certProvider)
	receiptSigner := receiptSignerAdapter{signer: pdfSigner, emitter: emitter}

	issueUC := fiscal.NewIssueUseCase(
		invoiceRepo, emitterRepo, documentRepo, profileRepo,
		certProvider, builder, xmlSigner, soapClient,
		cfg.SEFAZ.AppEnv, log,
	)
	eventUC := fiscal.NewEventUseCase(documentRepo, invoiceRepo, soapClient, log)
	receiptUC := fiscal.NewReceiptUseCase(documentRepo, invoiceRepo, emitterRepo, danfeGenerator, receiptSigner, log)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Issuer:   issueUC,
		Events:   eventUC,
		Receipts: receiptUC,
		Docs:     documentRepo,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("sinal de desligamento recebido, encerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("encerramento do servidor")
	}

	log.Info().Msg("aplicação encerrada")
}

// receiptSignerAdapter fixa os parâmetros visuais da assinatura do recibo.
type receiptSignerAdapter struct {
	signer  *infrapdf.Signer
	emitter *entity.EmitterConfig
}

func (a receiptSignerAdapter) Sign(pdf []byte) ([]byte, error) {
	return a.signer.Sign(pdf, infrapdf.SignOptions{
		Reason:   "Recibo de emissao de NF-e",
		Location: a.emitter.Municipio + " - " + a.emitter.UF,
		VisibleY: 20,
	})
}
