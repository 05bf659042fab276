package fiscal

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain"
	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
	"github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/nfe"
	"github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/pdf"
	"github.com/cleiltonsr/prograos-fiscal/pkg/logger"
)

// --- dublês ---

type fakeInvoiceRepo struct {
	invoices map[string]*entity.Invoice
	statuses map[string]string
}

func (r *fakeInvoiceRepo) GetByID(_ context.Context, id string) (*entity.Invoice, error) {
	return r.invoices[id], nil
}

func (r *fakeInvoiceRepo) UpdateStatus(_ context.Context, id, status string) error {
	if r.statuses == nil {
		r.statuses = map[string]string{}
	}
	r.statuses[id] = status
	return nil
}

type fakeEmitterRepo struct {
	cfg     *entity.EmitterConfig
	proximo int64
}

func (r *fakeEmitterRepo) Get(context.Context) (*entity.EmitterConfig, error) { return r.cfg, nil }

func (r *fakeEmitterRepo) ReserveNextNumber(context.Context) (int64, error) {
	n := r.proximo
	r.proximo++
	return n, nil
}

func (r *fakeEmitterRepo) Update(context.Context, *entity.EmitterConfig) error { return nil }

type fakeDocRepo struct {
	docs   []*entity.FiscalDocument
	events []*entity.FiscalEvent
}

func (r *fakeDocRepo) Create(_ context.Context, doc *entity.FiscalDocument) error {
	if doc.ID == "" {
		doc.ID = "doc-1"
	}
	r.docs = append(r.docs, doc)
	return nil
}

func (r *fakeDocRepo) GetByID(_ context.Context, id string) (*entity.FiscalDocument, error) {
	for _, d := range r.docs {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, nil
}

func (r *fakeDocRepo) GetByAccessKey(_ context.Context, chave string) (*entity.FiscalDocument, error) {
	for _, d := range r.docs {
		if d.AccessKey == chave {
			return d, nil
		}
	}
	return nil, nil
}

func (r *fakeDocRepo) GetByInvoiceID(_ context.Context, invoiceID string) (*entity.FiscalDocument, error) {
	for _, d := range r.docs {
		if d.InvoiceID == invoiceID {
			return d, nil
		}
	}
	return nil, nil
}

func (r *fakeDocRepo) Update(context.Context, *entity.FiscalDocument) error { return nil }

func (r *fakeDocRepo) AppendEvent(_ context.Context, ev *entity.FiscalEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeDocRepo) ListEvents(context.Context, string) ([]*entity.FiscalEvent, error) {
	return r.events, nil
}

type fakeProfileRepo struct {
	byType map[string]*entity.TaxProfile
}

func (r *fakeProfileRepo) GetByGrainType(_ context.Context, grain string) (*entity.TaxProfile, error) {
	return r.byType[grain], nil
}

func (r *fakeProfileRepo) List(context.Context) ([]*entity.TaxProfile, error) { return nil, nil }

type fakeCertValidator struct {
	warn string
	err  error
}

func (v fakeCertValidator) Validate(time.Time) (string, error) { return v.warn, v.err }

type fakeSigner struct{}

func (fakeSigner) Sign(xml string) (string, error) { return xml + "<!--assinado-->", nil }

// fakeClient devolve respostas roteirizadas e conta as chamadas.
type fakeClient struct {
	statusRes    nfe.Result
	authorizeRes nfe.Result
	pollResults  []nfe.Result
	cancelRes    nfe.Result
	cceRes       nfe.Result

	authorizeCalls int
	pollCalls      int
	cancelCalls    int
}

func (c *fakeClient) QueryServiceStatus(context.Context) nfe.Result { return c.statusRes }

func (c *fakeClient) Authorize(context.Context, string) nfe.Result {
	c.authorizeCalls++
	return c.authorizeRes
}

func (c *fakeClient) PollReceipt(context.Context, string) nfe.Result {
	res := c.pollResults[0]
	if len(c.pollResults) > 1 {
		c.pollResults = c.pollResults[1:]
	}
	c.pollCalls++
	return res
}

func (c *fakeClient) Cancel(context.Context, string, string, string) nfe.Result {
	c.cancelCalls++
	return c.cancelRes
}

func (c *fakeClient) SendCorrectionLetter(context.Context, string, int, string) nfe.Result {
	return c.cceRes
}

// --- cenário padrão ---

func testEmitterConfig() *entity.EmitterConfig {
	return &entity.EmitterConfig{
		ID:               "em-1",
		RazaoSocial:      "Graos do Maranhao LTDA",
		CNPJ:             "04951010000163",
		IE:               "123456789",
		Logradouro:       "Rod MA-006",
		Numero:           "km 12",
		Bairro:           "Zona Rural",
		CodigoMunicipio:  "2103000",
		Municipio:        "Balsas",
		UF:               "MA",
		CodigoUF:         "21",
		CEP:              "65800000",
		RegimeTributario: "1",
		SerieNFe:         1,
		Ambiente:         entity.AmbienteHomologacao,
	}
}

func testScenario() (*IssueUseCase, *fakeInvoiceRepo, *fakeEmitterRepo, *fakeDocRepo, *fakeClient) {
	log := logger.New(logger.Config{Env: "test", Level: "error"})

	invoices := &fakeInvoiceRepo{invoices: map[string]*entity.Invoice{
		"inv-1": {
			ID:               "inv-1",
			CustomerName:     "Comercio de Racoes Sao Jose",
			CustomerDocument: "12345678000195",
			TotalAmount:      decimal.RequireFromString("28500.00"),
			IssueDate:        time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
			Status:           entity.InvoiceStatusReady,
			Weighing: &entity.Weighing{
				ID:            "pes-1",
				Placa:         "HPX1A23",
				Motorista:     "Jose Ribamar",
				TipoGrao:      entity.GraoMilho,
				Tara:          decimal.RequireFromString("14500"),
				PesoCarregado: decimal.RequireFromString("52500"),
				PesoLiquido:   decimal.RequireFromString("38000"),
			},
		},
	}}
	emitters := &fakeEmitterRepo{cfg: testEmitterConfig(), proximo: 42}
	docs := &fakeDocRepo{}
	profiles := &fakeProfileRepo{byType: map[string]*entity.TaxProfile{
		entity.GraoMilho: {
			ID: "tp-1", GrainType: entity.GraoMilho, Description: "Milho em graos a granel",
			NCM: "10059010", CFOPInsideState: "5102", CFOPOutsideState: "6102",
			CSOSN: "101", UnitCom: "KG",
		},
	}}
	client := &fakeClient{}

	uc := &IssueUseCase{
		invoices:  invoices,
		emitters:  emitters,
		documents: docs,
		profiles:  profiles,
		certs:     fakeCertValidator{},
		builder:   nfe.NewBuilder(log),
		signer:    fakeSigner{},
		client:    client,
		appEnv:    "prod",
		log:       log,
		newPollBackoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 5)
		},
	}
	return uc, invoices, emitters, docs, client
}

func autorizado(protocol string) nfe.Result {
	ts := time.Date(2026, 3, 10, 14, 31, 2, 0, time.UTC)
	return nfe.Result{
		Success:      true,
		StatusCode:   nfe.CStatAutorizado,
		Message:      "Autorizado o uso da NF-e",
		Protocol:     protocol,
		AuthorizedAt: &ts,
	}
}

// --- emissão ---

func TestIssue_Autorizada(t *testing.T) {
	uc, invoices, _, docs, client := testScenario()
	client.authorizeRes = autorizado("321260000012345")

	doc, err := uc.Issue(context.Background(), "inv-1")
	require.NoError(t, err)

	assert.Equal(t, entity.NFeStatusAutorizada, doc.Status)
	assert.Equal(t, "321260000012345", doc.Protocol)
	assert.Equal(t, int64(42), doc.Numero)
	assert.Len(t, doc.AccessKey, 44)
	assert.Contains(t, doc.XMLSigned, "<!--assinado-->")
	require.NotNil(t, doc.AuthorizedAt)

	require.Len(t, docs.docs, 1)
	assert.Equal(t, entity.InvoiceStatusIssued, invoices.statuses["inv-1"])
}

func TestIssue_Denegada(t *testing.T) {
	uc, invoices, _, docs, client := testScenario()
	client.authorizeRes = nfe.Result{
		StatusCode: "539",
		Message:    "Duplicidade de NF-e com diferenca na chave de acesso",
	}

	doc, err := uc.Issue(context.Background(), "inv-1")
	require.NoError(t, err)

	assert.Equal(t, entity.NFeStatusDenegada, doc.Status)
	assert.Equal(t, "539", doc.StatusCode)
	assert.Equal(t, "Duplicidade de NF-e com diferenca na chave de acesso", doc.Motivo)
	require.Len(t, docs.docs, 1)
	assert.Empty(t, invoices.statuses, "recusa não mexe no status da venda")
}

func TestIssue_ModoDev(t *testing.T) {
	uc, _, _, docs, client := testScenario()
	uc.appEnv = "dev"

	doc, err := uc.Issue(context.Background(), "inv-1")
	require.NoError(t, err)

	assert.Equal(t, entity.NFeStatusPendente, doc.Status)
	assert.Contains(t, doc.XMLSigned, "<!--assinado-->")
	assert.Zero(t, client.authorizeCalls, "modo dev não chama o webservice")
	require.Len(t, docs.docs, 1)
}

func TestIssue_LoteEmFilaComPolling(t *testing.T) {
	uc, _, _, _, client := testScenario()
	client.authorizeRes = nfe.Result{
		StatusCode: nfe.CStatLoteRecebido,
		Message:    "Lote recebido com sucesso",
		Receipt:    "211000012345678",
	}
	client.pollResults = []nfe.Result{
		{StatusCode: nfe.CStatLoteEmProcesso, Message: "Lote em processamento", Receipt: "211000012345678"},
		autorizado("321260000099999"),
	}

	doc, err := uc.Issue(context.Background(), "inv-1")
	require.NoError(t, err)

	assert.Equal(t, entity.NFeStatusAutorizada, doc.Status)
	assert.Equal(t, "321260000099999", doc.Protocol)
	assert.Equal(t, 2, client.pollCalls)
}

func TestIssue_LoteNuncaProcessadoFicaPendente(t *testing.T) {
	uc, _, _, _, client := testScenario()
	client.authorizeRes = nfe.Result{
		StatusCode: nfe.CStatLoteRecebido,
		Receipt:    "211000012345678",
	}
	client.pollResults = []nfe.Result{
		{StatusCode: nfe.CStatLoteEmProcesso, Message: "Lote em processamento"},
	}

	doc, err := uc.Issue(context.Background(), "inv-1")
	require.NoError(t, err)

	assert.Equal(t, entity.NFeStatusPendente, doc.Status)
	assert.Equal(t, "211000012345678", doc.ReceiptNum, "o recibo fica guardado para retomada")
}

func TestIssue_FalhaDeTransporteNoPollingPreservaRecibo(t *testing.T) {
	uc, _, _, docs, client := testScenario()
	client.authorizeRes = nfe.Result{
		StatusCode: nfe.CStatLoteRecebido,
		Receipt:    "211000012345678",
	}
	client.pollResults = []nfe.Result{
		{Message: "falha de comunicação com a SEFAZ: timeout"},
	}

	doc, err := uc.Issue(context.Background(), "inv-1")
	require.NoError(t, err)

	assert.Equal(t, entity.NFeStatusPendente, doc.Status)
	assert.Equal(t, "211000012345678", doc.ReceiptNum,
		"queda de rede durante a consulta não pode perder o recibo")
	require.Len(t, docs.docs, 1)
	assert.Equal(t, "211000012345678", docs.docs[0].ReceiptNum)
}

func TestResumePending_FalhaDeTransportePreservaRecibo(t *testing.T) {
	uc, _, _, docs, client := testScenario()
	docs.docs = append(docs.docs, &entity.FiscalDocument{
		ID:         "doc-1",
		InvoiceID:  "inv-1",
		Status:     entity.NFeStatusPendente,
		ReceiptNum: "211000012345678",
	})
	client.pollResults = []nfe.Result{
		{Message: "falha de comunicação com a SEFAZ: connection refused"},
	}

	doc, err := uc.ResumePending(context.Background(), "doc-1")
	require.NoError(t, err)

	assert.Equal(t, entity.NFeStatusPendente, doc.Status)
	assert.Equal(t, "211000012345678", doc.ReceiptNum,
		"retomada durante indisponibilidade da SEFAZ mantém o recibo para nova tentativa")
}

func TestResumePending_Autorizada(t *testing.T) {
	uc, invoices, _, docs, client := testScenario()
	docs.docs = append(docs.docs, &entity.FiscalDocument{
		ID:         "doc-1",
		InvoiceID:  "inv-1",
		Status:     entity.NFeStatusPendente,
		ReceiptNum: "211000012345678",
	})
	client.pollResults = []nfe.Result{autorizado("321260000099999")}

	doc, err := uc.ResumePending(context.Background(), "doc-1")
	require.NoError(t, err)

	assert.Equal(t, entity.NFeStatusAutorizada, doc.Status)
	assert.Equal(t, "321260000099999", doc.Protocol)
	assert.Equal(t, entity.InvoiceStatusIssued, invoices.statuses["inv-1"])
}

func TestIssue_FalhaDeTransporteFicaPendente(t *testing.T) {
	uc, _, _, _, client := testScenario()
	client.authorizeRes = nfe.Result{Message: "falha de comunicação com a SEFAZ: connection refused"}

	doc, err := uc.Issue(context.Background(), "inv-1")
	require.NoError(t, err)

	assert.Equal(t, entity.NFeStatusPendente, doc.Status)
	assert.Empty(t, doc.StatusCode)
}

func TestIssue_VendaInexistente(t *testing.T) {
	uc, _, _, _, _ := testScenario()

	_, err := uc.Issue(context.Background(), "inv-999")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIssue_DocumentoJaEmitido(t *testing.T) {
	uc, _, _, docs, _ := testScenario()
	docs.docs = append(docs.docs, &entity.FiscalDocument{
		ID: "doc-0", InvoiceID: "inv-1", Status: entity.NFeStatusAutorizada,
	})

	_, err := uc.Issue(context.Background(), "inv-1")
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestIssue_TravaDeProducao(t *testing.T) {
	uc, _, emitters, _, client := testScenario()
	emitters.cfg.Ambiente = entity.AmbienteProducao
	emitters.cfg.ProductionEnabled = false

	_, err := uc.Issue(context.Background(), "inv-1")
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Zero(t, client.authorizeCalls)
}

func TestIssue_CertificadoInvalido(t *testing.T) {
	uc, _, _, _, _ := testScenario()
	uc.certs = fakeCertValidator{err: &domain.CertificateError{Cause: "certificado expirado"}}

	_, err := uc.Issue(context.Background(), "inv-1")
	var cerr *domain.CertificateError
	require.ErrorAs(t, err, &cerr)
}

func TestIssue_NumerosConsecutivos(t *testing.T) {
	uc, invoices, _, _, client := testScenario()
	client.authorizeRes = autorizado("321260000012345")

	first, err := uc.Issue(context.Background(), "inv-1")
	require.NoError(t, err)

	inv2 := *invoices.invoices["inv-1"]
	inv2.ID = "inv-2"
	invoices.invoices["inv-2"] = &inv2

	second, err := uc.Issue(context.Background(), "inv-2")
	require.NoError(t, err)

	assert.Equal(t, first.Numero+1, second.Numero)
	assert.NotEqual(t, first.AccessKey, second.AccessKey)
}

func TestServiceStatus(t *testing.T) {
	uc, _, _, _, client := testScenario()
	client.statusRes = nfe.Result{Success: true, StatusCode: "107", Message: "Servico em Operacao"}

	res := uc.ServiceStatus(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, "107", res.StatusCode)
}

// --- eventos ---

func testEventScenario() (*EventUseCase, *fakeInvoiceRepo, *fakeDocRepo, *fakeClient) {
	log := logger.New(logger.Config{Env: "test", Level: "error"})
	invoices := &fakeInvoiceRepo{invoices: map[string]*entity.Invoice{}}
	docs := &fakeDocRepo{docs: []*entity.FiscalDocument{{
		ID:        "doc-1",
		InvoiceID: "inv-1",
		AccessKey: "21240304951010000163550010000000421123456788",
		Protocol:  "321260000012345",
		Status:    entity.NFeStatusAutorizada,
	}}}
	client := &fakeClient{}
	return NewEventUseCase(docs, invoices, client, log), invoices, docs, client
}

func TestCancel_Vinculado(t *testing.T) {
	uc, invoices, docs, client := testEventScenario()
	client.cancelRes = nfe.Result{
		Success:    true,
		StatusCode: nfe.CStatEventoVinculado,
		Message:    "Evento registrado e vinculado a NF-e",
		Protocol:   "321260000054321",
	}

	ev, err := uc.Cancel(context.Background(), docs.docs[0].AccessKey, "Erro na identificacao do destinatario")
	require.NoError(t, err)

	assert.Equal(t, entity.EventoStatusVinculado, ev.Status)
	assert.Equal(t, entity.EventoCancelamento, ev.TipoEvento)
	assert.Equal(t, "321260000054321", ev.Protocol)
	assert.Equal(t, entity.NFeStatusCancelada, docs.docs[0].Status)
	assert.Equal(t, entity.InvoiceStatusCancelled, invoices.statuses["inv-1"])
	require.Len(t, docs.events, 1)
}

func TestCancel_JustificativaCurta(t *testing.T) {
	uc, _, docs, client := testEventScenario()

	_, err := uc.Cancel(context.Background(), docs.docs[0].AccessKey, "curta demais")
	require.Error(t, err)
	assert.Zero(t, client.cancelCalls, "justificativa curta não chega à rede")
	assert.Empty(t, docs.events)
}

func TestCancel_Rejeitado(t *testing.T) {
	uc, invoices, docs, client := testEventScenario()
	client.cancelRes = nfe.Result{
		StatusCode: "220",
		Message:    "Rejeicao: prazo de cancelamento superior ao previsto",
	}

	ev, err := uc.Cancel(context.Background(), docs.docs[0].AccessKey, "Erro na identificacao do destinatario")
	require.NoError(t, err)

	assert.Equal(t, entity.EventoStatusRejeitado, ev.Status)
	assert.Equal(t, entity.NFeStatusAutorizada, docs.docs[0].Status, "rejeição não cancela a nota")
	assert.Empty(t, invoices.statuses)
	require.Len(t, docs.events, 1, "a tentativa rejeitada fica registrada")
}

func TestCancel_NotaNaoAutorizada(t *testing.T) {
	uc, _, docs, _ := testEventScenario()
	docs.docs[0].Status = entity.NFeStatusCancelada

	_, err := uc.Cancel(context.Background(), docs.docs[0].AccessKey, "Erro na identificacao do destinatario")
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestCancel_FalhaDeTransporte(t *testing.T) {
	uc, _, docs, client := testEventScenario()
	client.cancelRes = nfe.Result{Message: "falha de comunicação com a SEFAZ: timeout"}

	_, err := uc.Cancel(context.Background(), docs.docs[0].AccessKey, "Erro na identificacao do destinatario")
	var aerr *domain.AuthorityError
	require.ErrorAs(t, err, &aerr)
	assert.Empty(t, docs.events, "sem resposta da SEFAZ nada é registrado")
}

func TestCorrectionLetter_SequenciaIncrementa(t *testing.T) {
	uc, _, docs, client := testEventScenario()
	docs.events = append(docs.events, &entity.FiscalEvent{
		DocumentID: "doc-1", TipoEvento: entity.EventoCartaCorrecao, Sequencia: 1,
		Status: entity.EventoStatusVinculado,
	})
	docs.docs[0].Events = []entity.FiscalEvent{*docs.events[0]}
	client.cceRes = nfe.Result{
		Success:    true,
		StatusCode: nfe.CStatEventoVinculado,
		Message:    "Evento registrado e vinculado a NF-e",
		Protocol:   "321260000077777",
	}

	ev, err := uc.CorrectionLetter(context.Background(), docs.docs[0].AccessKey, "Corrigir a placa do veiculo para HPX1B23")
	require.NoError(t, err)

	assert.Equal(t, 2, ev.Sequencia, "cada CCe usa a próxima sequência")
	assert.Equal(t, entity.EventoStatusVinculado, ev.Status)
	assert.Equal(t, entity.NFeStatusAutorizada, docs.docs[0].Status, "CCe não muda o status da nota")
}

func TestCorrectionLetter_TextoCurto(t *testing.T) {
	uc, _, docs, _ := testEventScenario()

	_, err := uc.CorrectionLetter(context.Background(), docs.docs[0].AccessKey, "curto")
	require.Error(t, err)
	assert.Empty(t, docs.events)
}

// --- recibo ---

type fakeRenderer struct{ out []byte }

func (r fakeRenderer) Generate(pdf.DANFEInput) ([]byte, error) { return r.out, nil }

type fakeReceiptSigner struct {
	out []byte
	err error
}

func (s fakeReceiptSigner) Sign([]byte) ([]byte, error) { return s.out, s.err }

func testReceiptScenario() (*ReceiptUseCase, *fakeDocRepo) {
	log := logger.New(logger.Config{Env: "test", Level: "error"})
	invoices := &fakeInvoiceRepo{invoices: map[string]*entity.Invoice{
		"inv-1": {ID: "inv-1", CustomerName: "Cliente", TotalAmount: decimal.New(100, 0)},
	}}
	docs := &fakeDocRepo{docs: []*entity.FiscalDocument{{
		ID: "doc-1", InvoiceID: "inv-1", Status: entity.NFeStatusAutorizada,
	}}}
	emitters := &fakeEmitterRepo{cfg: testEmitterConfig()}
	uc := NewReceiptUseCase(docs, invoices, emitters,
		fakeRenderer{out: []byte("%PDF-bruto")},
		fakeReceiptSigner{out: []byte("%PDF-assinado")},
		log)
	return uc, docs
}

func TestDANFE_Assinado(t *testing.T) {
	uc, _ := testReceiptScenario()

	out, err := uc.DANFE(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-assinado"), out)
}

func TestDANFE_AssinaturaFalhaEntregaSemAssinatura(t *testing.T) {
	uc, _ := testReceiptScenario()
	uc.signer = fakeReceiptSigner{err: &domain.SigningError{Artifact: "pdf"}}

	out, err := uc.DANFE(context.Background(), "doc-1")
	require.NoError(t, err, "falha de assinatura do recibo é soft fail")
	assert.Equal(t, []byte("%PDF-bruto"), out)
}

func TestDANFE_DocumentoInexistente(t *testing.T) {
	uc, _ := testReceiptScenario()

	_, err := uc.DANFE(context.Background(), "doc-999")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
