// Package cert carrega o certificado digital A1 do emitente (.pfx/.p12 ou par
// PEM) e expõe o material em forma neutra para assinatura (PEM) e para TLS
// mútuo. O contêiner é decodificado uma única vez por processo: a senha é
// segredo de vida curta e o decode do PKCS#12 é caro.
package cert

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain"
	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
)

// ExpiryWarningWindow é a antecedência com que o provider começa a avisar
// sobre expiração do certificado.
const ExpiryWarningWindow = 30 * 24 * time.Hour

// Provider carrega e memoiza o material criptográfico de um CertificateRecord.
type Provider struct {
	rec *entity.CertificateRecord

	once    sync.Once
	key     *rsa.PrivateKey
	cert    *x509.Certificate
	chain   []*x509.Certificate
	loadErr error
}

// NewProvider cria o provider para um registro de certificado. Nada é lido do
// disco até a primeira chamada de Load.
func NewProvider(rec *entity.CertificateRecord) *Provider {
	return &Provider{rec: rec}
}

// Load decodifica o contêiner (uma única vez) e devolve chave privada,
// certificado folha e cadeia. Senha errada ou contêiner corrompido viram
// *domain.CertificateError.
func (p *Provider) Load() (*rsa.PrivateKey, *x509.Certificate, []*x509.Certificate, error) {
	p.once.Do(func() {
		p.key, p.cert, p.chain, p.loadErr = p.load()
	})
	return p.key, p.cert, p.chain, p.loadErr
}

func (p *Provider) load() (*rsa.PrivateKey, *x509.Certificate, []*x509.Certificate, error) {
	if p.rec == nil || p.rec.Path == "" {
		return nil, nil, nil, &domain.CertificateError{Cause: "nenhum certificado ativo configurado"}
	}
	lower := strings.ToLower(p.rec.Path)
	if strings.HasSuffix(lower, ".p12") || strings.HasSuffix(lower, ".pfx") {
		return loadFromP12(p.rec.Path, p.rec.Password)
	}
	return loadFromPEM(p.rec.Path, p.rec.KeyPath)
}

// loadFromP12 decodifica um contêiner PKCS#12. pkcs12.Decode devolve um único
// certificado; para o WS da SEFAZ o certificado folha basta.
func loadFromP12(path, password string) (*rsa.PrivateKey, *x509.Certificate, []*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, &domain.CertificateError{Cause: "ler contêiner " + path, Err: err}
	}
	priv, crt, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, nil, nil, &domain.CertificateError{Cause: "decodificar PKCS#12 (senha errada ou arquivo corrompido)", Err: err}
	}
	rsaKey, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, nil, &domain.CertificateError{Cause: fmt.Sprintf("chave privada %T não é RSA", priv)}
	}
	return rsaKey, crt, nil, nil
}

// loadFromPEM carrega certificado e chave de arquivos PEM (separados ou
// combinados no mesmo arquivo).
func loadFromPEM(certPath, keyPath string) (*rsa.PrivateKey, *x509.Certificate, []*x509.Certificate, error) {
	if keyPath == "" {
		keyPath = certPath
	}
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, nil, nil, &domain.CertificateError{Cause: "carregar par PEM", Err: err}
	}
	rsaKey, ok := pair.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, nil, &domain.CertificateError{Cause: fmt.Sprintf("chave privada %T não é RSA", pair.PrivateKey)}
	}
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, nil, nil, &domain.CertificateError{Cause: "parsear certificado", Err: err}
	}
	var chain []*x509.Certificate
	for _, raw := range pair.Certificate[1:] {
		c, err := x509.ParseCertificate(raw)
		if err != nil {
			continue
		}
		chain = append(chain, c)
	}
	return rsaKey, leaf, chain, nil
}

// Validate verifica se now está dentro da janela de validade do certificado.
// Devolve um aviso não vazio quando faltam menos de 30 dias para expirar;
// fora da janela devolve *domain.CertificateError.
func (p *Provider) Validate(now time.Time) (warn string, err error) {
	_, crt, _, err := p.Load()
	if err != nil {
		return "", err
	}
	if now.Before(crt.NotBefore) {
		return "", &domain.CertificateError{
			Cause: fmt.Sprintf("certificado ainda não vigente: válido a partir de %s", crt.NotBefore.Format(time.RFC3339)),
		}
	}
	if now.After(crt.NotAfter) {
		return "", &domain.CertificateError{
			Cause: fmt.Sprintf("certificado expirado em %s", crt.NotAfter.Format(time.RFC3339)),
		}
	}
	if remaining := crt.NotAfter.Sub(now); remaining < ExpiryWarningWindow {
		days := int(remaining.Hours() / 24)
		warn = fmt.Sprintf("certificado expira em %d dias (%s)", days, crt.NotAfter.Format("2006-01-02"))
	}
	return warn, nil
}

// CertPEM devolve o certificado folha codificado em PEM.
func (p *Provider) CertPEM() ([]byte, error) {
	_, crt, _, err := p.Load()
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: crt.Raw}), nil
}

// KeyPEM devolve a chave privada codificada em PEM (PKCS#1, sem cifra).
func (p *Provider) KeyPEM() ([]byte, error) {
	key, _, _, err := p.Load()
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), nil
}

// TLSCertificate devolve o par em formato tls.Certificate para o TLS mútuo do
// WS da SEFAZ (o mesmo certificado assina e autentica).
func (p *Provider) TLSCertificate() (tls.Certificate, error) {
	key, crt, chain, err := p.Load()
	if err != nil {
		return tls.Certificate{}, err
	}
	raw := [][]byte{crt.Raw}
	for _, c := range chain {
		raw = append(raw, c.Raw)
	}
	return tls.Certificate{Certificate: raw, PrivateKey: key, Leaf: crt}, nil
}

// CommonName devolve o CN do titular, usado no carimbo visível do PDF.
func (p *Provider) CommonName() (string, error) {
	_, crt, _, err := p.Load()
	if err != nil {
		return "", err
	}
	if cn := crt.Subject.CommonName; cn != "" {
		return cn, nil
	}
	return crt.Subject.String(), nil
}
