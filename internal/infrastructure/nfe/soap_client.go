package nfe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
	domnfe "github.com/cleiltonsr/prograos-fiscal/internal/domain/nfe"
	"github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/cert"
	"github.com/cleiltonsr/prograos-fiscal/pkg/br"
	"github.com/cleiltonsr/prograos-fiscal/pkg/logger"
)

// Códigos cStat relevantes da SEFAZ.
const (
	CStatServicoOperacao = "107" // serviço em operação
	CStatAutorizado      = "100" // uso autorizado
	CStatLoteRecebido    = "103" // lote recebido, consultar recibo
	CStatLoteProcessado  = "104" // lote processado, resultado no protNFe
	CStatLoteEmProcesso  = "105" // lote em processamento, repetir consulta
	CStatEventoVinculado = "135" // evento registrado e vinculado
)

// Texto de condição de uso exigido pela SEFAZ em toda carta de correção.
const condUsoCCe = "A Carta de Correcao e disciplinada pelo paragrafo 1o-A do art. 7o do Convenio S/N, de 15 de dezembro de 1970 e pode ser utilizada para regularizacao de erro ocorrido na emissao de documento fiscal, desde que o erro nao esteja relacionado com: I - as variaveis que determinam o valor do imposto tais como: base de calculo, aliquota, diferenca de preco, quantidade, valor da operacao ou da prestacao; II - a correcao de dados cadastrais que implique mudanca do remetente ou do destinatario; III - a data de emissao ou de saida."

// Result é a resposta normalizada de qualquer operação contra a SEFAZ. Falha
// de transporte nunca escapa como erro Go: vira Success=false com a mensagem.
type Result struct {
	Success      bool
	StatusCode   string // cStat; vazio em falha de transporte
	Message      string // xMotivo verbatim
	Protocol     string // nProt quando autorizado ou evento vinculado
	AccessKey    string // chNFe do protocolo
	Receipt      string // nRec quando o lote ficou em fila (cStat 103)
	AuthorizedAt *time.Time
}

// EventSigner assina o XML de evento antes do envio. Satisfeito pelo Signer
// deste pacote.
type EventSigner interface {
	Sign(xml string) (string, error)
}

// SOAPClient fala com os webservices da NF-e 4.00 usando SOAP 1.2 sobre TLS
// mútuo (o mesmo certificado A1 que assina autentica o transporte).
type SOAPClient struct {
	cUF       string
	cnpj      string
	ambiente  string
	endpoints map[Service]string
	http      *http.Client
	signer    EventSigner
	log       *logger.Logger
}

// NewSOAPClient monta o cliente para a UF/ambiente do emitente. O provider de
// certificado pode ser nil (testes locais), caso em que o transporte não usa
// TLS de cliente.
func NewSOAPClient(em *entity.EmitterConfig, certs *cert.Provider, signer EventSigner, timeout time.Duration, log *logger.Logger) (*SOAPClient, error) {
	table, err := EndpointsFor(em.UF, em.Ambiente)
	if err != nil {
		return nil, err
	}
	// Cópia própria: OverrideEndpoint não pode vazar para a tabela global.
	eps := make(map[Service]string, len(table))
	for svc, url := range table {
		eps[svc] = url
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}
	if certs != nil {
		tlsCert, err := certs.TLSCertificate()
		if err != nil {
			return nil, err
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{tlsCert},
				MinVersion:   tls.VersionTLS12,
			},
		}
	}

	return &SOAPClient{
		cUF:       em.CodigoUF,
		cnpj:      br.PadCNPJ(em.CNPJ),
		ambiente:  em.Ambiente,
		endpoints: eps,
		http:      httpClient,
		signer:    signer,
		log:       log,
	}, nil
}

// OverrideEndpoint troca a URL de um serviço. Usado nos testes para apontar
// para um servidor local.
func (c *SOAPClient) OverrideEndpoint(svc Service, url string) {
	c.endpoints[svc] = url
}

// QueryServiceStatus consulta a disponibilidade do ambiente de autorização.
// Só cStat 107 conta como operacional; qualquer outro código vai verbatim na
// mensagem.
func (c *SOAPClient) QueryServiceStatus(ctx context.Context) Result {
	payload := fmt.Sprintf(`<consStatServ xmlns="%s" versao="4.00"><tpAmb>%s</tpAmb><cUF>%s</cUF><xServ>STATUS</xServ></consStatServ>`,
		NsNFe, c.ambiente, c.cUF)

	resp, err := c.post(ctx, ServiceStatusServico, payload)
	if err != nil {
		return transportFailure(err)
	}
	ret := findByLocalName(resp, "retConsStatServ")
	if ret == nil {
		return Result{Message: "resposta da SEFAZ sem retConsStatServ"}
	}
	cStat := strings.TrimSpace(textOfDescendant(ret, "cStat"))
	return Result{
		Success:    cStat == CStatServicoOperacao,
		StatusCode: cStat,
		Message:    strings.TrimSpace(textOfDescendant(ret, "xMotivo")),
	}
}

// Authorize envia o XML assinado num lote síncrono (indSinc 1). cStat 100/104
// com protocolo 100 autoriza; 103 devolve o recibo para consulta posterior;
// qualquer outro código é recusa com o xMotivo intacto.
func (c *SOAPClient) Authorize(ctx context.Context, signedXML string) Result {
	idLote := fmt.Sprintf("%d", time.Now().UnixMilli())
	payload := fmt.Sprintf(`<enviNFe xmlns="%s" versao="4.00"><idLote>%s</idLote><indSinc>1</indSinc>%s</enviNFe>`,
		NsNFe, idLote, stripXMLDecl(signedXML))

	resp, err := c.post(ctx, ServiceAutorizacao, payload)
	if err != nil {
		return transportFailure(err)
	}
	ret := findByLocalName(resp, "retEnviNFe")
	if ret == nil {
		return Result{Message: "resposta da SEFAZ sem retEnviNFe"}
	}

	cStat := strings.TrimSpace(textOfDescendant(ret, "cStat"))
	motivo := strings.TrimSpace(textOfDescendant(ret, "xMotivo"))

	switch cStat {
	case CStatAutorizado, CStatLoteProcessado:
		return resultFromProtocol(ret, cStat, motivo)
	case CStatLoteRecebido:
		return Result{
			Success:    false,
			StatusCode: cStat,
			Message:    motivo,
			Receipt:    strings.TrimSpace(textOfDescendant(ret, "nRec")),
		}
	}
	return Result{StatusCode: cStat, Message: motivo}
}

// PollReceipt consulta o resultado de um lote enfileirado (cStat 103). Com o
// lote ainda em processamento (105) devolve Success=false mantendo o recibo;
// o chamador repete com backoff.
func (c *SOAPClient) PollReceipt(ctx context.Context, receipt string) Result {
	payload := fmt.Sprintf(`<consReciNFe xmlns="%s" versao="4.00"><tpAmb>%s</tpAmb><nRec>%s</nRec></consReciNFe>`,
		NsNFe, c.ambiente, receipt)

	resp, err := c.post(ctx, ServiceRetAutorizacao, payload)
	if err != nil {
		return transportFailure(err)
	}
	ret := findByLocalName(resp, "retConsReciNFe")
	if ret == nil {
		return Result{Message: "resposta da SEFAZ sem retConsReciNFe"}
	}

	cStat := strings.TrimSpace(textOfDescendant(ret, "cStat"))
	motivo := strings.TrimSpace(textOfDescendant(ret, "xMotivo"))
	if cStat == CStatLoteEmProcesso {
		return Result{StatusCode: cStat, Message: motivo, Receipt: receipt}
	}
	if cStat == CStatLoteProcessado {
		return resultFromProtocol(ret, cStat, motivo)
	}
	return Result{StatusCode: cStat, Message: motivo}
}

// Cancel registra o evento de cancelamento. A justificativa curta é barrada
// localmente, antes de qualquer rede; o evento é assinado como o documento.
func (c *SOAPClient) Cancel(ctx context.Context, accessKey, protocol, justificativa string) Result {
	if err := domnfe.ValidateJustificativa(justificativa); err != nil {
		return Result{Message: err.Error()}
	}
	if err := domnfe.ValidateAccessKey(accessKey); err != nil {
		return Result{Message: err.Error()}
	}
	det := fmt.Sprintf(`<detEvento versao="1.00"><descEvento>Cancelamento</descEvento><nProt>%s</nProt><xJust>%s</xJust></detEvento>`,
		protocol, xmlEscape(strings.TrimSpace(justificativa)))
	return c.sendEvent(ctx, accessKey, entity.EventoCancelamento, 1, det)
}

// SendCorrectionLetter registra uma carta de correção eletrônica com a
// sequência indicada (cada CCe substitui a anterior).
func (c *SOAPClient) SendCorrectionLetter(ctx context.Context, accessKey string, sequencia int, correcao string) Result {
	if err := domnfe.ValidateCorrecao(correcao); err != nil {
		return Result{Message: err.Error()}
	}
	if err := domnfe.ValidateAccessKey(accessKey); err != nil {
		return Result{Message: err.Error()}
	}
	if sequencia < 1 {
		sequencia = 1
	}
	det := fmt.Sprintf(`<detEvento versao="1.00"><descEvento>Carta de Correcao</descEvento><xCorrecao>%s</xCorrecao><xCondUso>%s</xCondUso></detEvento>`,
		xmlEscape(strings.TrimSpace(correcao)), condUsoCCe)
	return c.sendEvent(ctx, accessKey, entity.EventoCartaCorrecao, sequencia, det)
}

// sendEvent monta, assina e transmite um envEvento. cStat 135 no infEvento de
// retorno vincula o evento.
func (c *SOAPClient) sendEvent(ctx context.Context, accessKey, tpEvento string, sequencia int, detEvento string) Result {
	dhEvento := time.Now().Format("2006-01-02T15:04:05-07:00")
	infID := fmt.Sprintf("ID%s%s%02d", tpEvento, accessKey, sequencia)

	evento := fmt.Sprintf(`<evento xmlns="%s" versao="1.00"><infEvento Id="%s">`+
		`<cOrgao>%s</cOrgao><tpAmb>%s</tpAmb><CNPJ>%s</CNPJ><chNFe>%s</chNFe>`+
		`<dhEvento>%s</dhEvento><tpEvento>%s</tpEvento><nSeqEvento>%d</nSeqEvento>`+
		`<verEvento>1.00</verEvento>%s</infEvento></evento>`,
		NsNFe, infID, c.cUF, c.ambiente, c.cnpj, accessKey, dhEvento, tpEvento, sequencia, detEvento)

	signed, err := c.signer.Sign(evento)
	if err != nil {
		return Result{Message: fmt.Sprintf("assinar evento: %v", err)}
	}

	payload := fmt.Sprintf(`<envEvento xmlns="%s" versao="1.00"><idLote>%d</idLote>%s</envEvento>`,
		NsNFe, time.Now().UnixMilli(), stripXMLDecl(signed))

	resp, err := c.post(ctx, ServiceRecepcaoEvento, payload)
	if err != nil {
		return transportFailure(err)
	}
	inf := findByLocalName(resp, "retEvento")
	if inf == nil {
		return Result{Message: "resposta da SEFAZ sem retEvento"}
	}
	cStat := strings.TrimSpace(textOfDescendant(inf, "cStat"))
	return Result{
		Success:    cStat == CStatEventoVinculado,
		StatusCode: cStat,
		Message:    strings.TrimSpace(textOfDescendant(inf, "xMotivo")),
		Protocol:   strings.TrimSpace(textOfDescendant(inf, "nProt")),
		AccessKey:  accessKey,
	}
}

// post embrulha o payload no envelope SOAP 1.2 e devolve a raiz da resposta.
func (c *SOAPClient) post(ctx context.Context, svc Service, payload string) (*etree.Element, error) {
	url, ok := c.endpoints[svc]
	if !ok {
		return nil, fmt.Errorf("nfe: serviço %s sem endpoint", svc)
	}
	wsdlNS := "http://www.portalfiscal.inf.br/nfe/wsdl/" + string(svc)

	envelope := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>`+
		`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope" xmlns:nfe="%s">`+
		`<soap:Header/><soap:Body><nfe:nfeDadosMsg>%s</nfe:nfeDadosMsg></soap:Body></soap:Envelope>`,
		wsdlNS, payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("criar request: %w", err)
	}
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("SOAPAction", wsdlNS)

	c.log.Debug().Str("servico", string(svc)).Str("url", url).Msg("chamando webservice SEFAZ")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("timeout ou cancelamento: %w", ctx.Err())
		}
		return nil, fmt.Errorf("chamada HTTP: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("ler resposta: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, firstLine(raw))
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("parsear resposta SOAP: %w", err)
	}
	return doc.Root(), nil
}

// resultFromProtocol extrai o protNFe de um retorno de lote. Com o protocolo
// autorizado (cStat 100) a nota está aceita; senão o resultado carrega a
// recusa do documento.
func resultFromProtocol(ret *etree.Element, loteCStat, loteMotivo string) Result {
	prot := findByLocalName(ret, "infProt")
	if prot == nil {
		return Result{StatusCode: loteCStat, Message: loteMotivo}
	}
	cStat := strings.TrimSpace(textOfDescendant(prot, "cStat"))
	res := Result{
		Success:    cStat == CStatAutorizado,
		StatusCode: cStat,
		Message:    strings.TrimSpace(textOfDescendant(prot, "xMotivo")),
		Protocol:   strings.TrimSpace(textOfDescendant(prot, "nProt")),
		AccessKey:  strings.TrimSpace(textOfDescendant(prot, "chNFe")),
	}
	if dh := strings.TrimSpace(textOfDescendant(prot, "dhRecbto")); dh != "" {
		if ts, err := time.Parse("2006-01-02T15:04:05-07:00", dh); err == nil {
			res.AuthorizedAt = &ts
		}
	}
	return res
}

func transportFailure(err error) Result {
	return Result{Success: false, Message: "falha de comunicação com a SEFAZ: " + err.Error()}
}

func stripXMLDecl(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<?xml") {
		if idx := strings.Index(s, "?>"); idx >= 0 {
			s = strings.TrimSpace(s[idx+2:])
		}
	}
	return s
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

func firstLine(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
