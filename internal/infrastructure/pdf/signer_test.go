package pdf_test

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mozilla.org/pkcs7"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain"
	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
	"github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/cert"
	"github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/pdf"
)

func newTestProvider(t *testing.T) *cert.Provider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "GRAOS DO MARANHAO LTDA"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), 0o600))

	return cert.NewProvider(&entity.CertificateRecord{Path: certPath, KeyPath: keyPath, Active: true})
}

func testDANFEInput() pdf.DANFEInput {
	authorized := time.Date(2026, 3, 10, 14, 31, 2, 0, time.FixedZone("-03", -3*3600))
	return pdf.DANFEInput{
		Emitter: &entity.EmitterConfig{
			RazaoSocial: "Graos do Maranhao LTDA",
			CNPJ:        "04951010000163",
			IE:          "123456789",
		},
		Invoice: &entity.Invoice{
			CustomerName:     "Comercio de Racoes Sao Jose",
			CustomerDocument: "12345678000195",
			TotalAmount:      decimal.RequireFromString("28500.00"),
			IssueDate:        authorized.Add(-time.Minute),
			Weighing: &entity.Weighing{
				TipoGrao:      entity.GraoMilho,
				Placa:         "HPX1A23",
				Motorista:     "Jose Ribamar",
				Tara:          decimal.RequireFromString("14500"),
				PesoCarregado: decimal.RequireFromString("52500"),
				PesoLiquido:   decimal.RequireFromString("38000"),
			},
		},
		Document: &entity.FiscalDocument{
			AccessKey:    "21240304951010000163550010000000421123456788",
			Serie:        1,
			Numero:       42,
			Protocol:     "321260000012345",
			Status:       entity.NFeStatusAutorizada,
			Ambiente:     entity.AmbienteHomologacao,
			AuthorizedAt: &authorized,
		},
	}
}

func TestDANFEGenerator(t *testing.T) {
	out, err := pdf.NewDANFEGenerator().Generate(testDANFEInput())
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestDANFEGenerator_EntradaIncompleta(t *testing.T) {
	_, err := pdf.NewDANFEGenerator().Generate(pdf.DANFEInput{})
	require.Error(t, err)
}

func TestPDFSigner_AtualizacaoIncremental(t *testing.T) {
	original, err := pdf.NewDANFEGenerator().Generate(testDANFEInput())
	require.NoError(t, err)

	signer := pdf.NewSigner(newTestProvider(t))
	signed, err := signer.Sign(original, pdf.SignOptions{Reason: "Recibo de emissao", VisibleY: 30})
	require.NoError(t, err)

	// Atualização incremental: o original é prefixo byte a byte do assinado.
	require.Greater(t, len(signed), len(original))
	assert.True(t, bytes.HasPrefix(signed, original), "os bytes originais devem permanecer intactos")

	suffix := signed[len(original):]
	assert.Contains(t, string(suffix), "/SubFilter /adbe.pkcs7.detached")
	assert.Contains(t, string(suffix), "/ByteRange")
	assert.Contains(t, string(suffix), "Assinado digitalmente por")
	assert.Contains(t, string(suffix), "GRAOS DO MARANHAO LTDA")
	assert.True(t, bytes.HasSuffix(bytes.TrimSpace(signed), []byte("%%EOF")))
}

func TestPDFSigner_CMSVerificavel(t *testing.T) {
	original, err := pdf.NewDANFEGenerator().Generate(testDANFEInput())
	require.NoError(t, err)

	signer := pdf.NewSigner(newTestProvider(t))
	signed, err := signer.Sign(original, pdf.SignOptions{})
	require.NoError(t, err)

	// Extrai o ByteRange e a string /Contents.
	reBR := regexp.MustCompile(`/ByteRange \[0 (\d+) (\d+) (\d+)\]`)
	m := reBR.FindSubmatch(signed)
	require.NotNil(t, m)
	a, _ := strconv.Atoi(string(m[1]))
	b, _ := strconv.Atoi(string(m[2]))
	c, _ := strconv.Atoi(string(m[3]))
	require.Equal(t, len(signed), b+c, "ByteRange deve cobrir o arquivo inteiro fora de /Contents")

	hexContents := signed[a+1 : b-1]
	raw := make([]byte, hex.DecodedLen(len(hexContents)))
	_, err = hex.Decode(raw, hexContents)
	require.NoError(t, err)

	// O DER é autodelimitado; o resto da reserva é zero.
	der := trimDER(t, raw)
	p7, err := pkcs7.Parse(der)
	require.NoError(t, err)

	// Assinatura destacada: o conteúdo é o arquivo menos a string /Contents.
	content := append([]byte{}, signed[:a]...)
	content = append(content, signed[b:]...)
	p7.Content = content
	require.NoError(t, p7.Verify())
}

// trimDER corta o buffer no tamanho declarado pelo cabeçalho ASN.1.
func trimDER(t *testing.T, raw []byte) []byte {
	t.Helper()
	require.NotEmpty(t, raw)
	require.Equal(t, byte(0x30), raw[0])
	require.Greater(t, len(raw), 2)
	if raw[1] < 0x80 {
		return raw[:2+int(raw[1])]
	}
	n := int(raw[1] & 0x7f)
	require.Greater(t, len(raw), 2+n)
	length := 0
	for i := 0; i < n; i++ {
		length = length<<8 | int(raw[2+i])
	}
	return raw[:2+n+length]
}

func TestPDFSigner_EntradaInvalida(t *testing.T) {
	signer := pdf.NewSigner(newTestProvider(t))
	_, err := signer.Sign([]byte("nao e um pdf"), pdf.SignOptions{})
	var serr *domain.SigningError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "pdf", serr.Artifact)
}

func TestPDFSigner_Certificacao(t *testing.T) {
	original, err := pdf.NewDANFEGenerator().Generate(testDANFEInput())
	require.NoError(t, err)

	signer := pdf.NewSigner(newTestProvider(t))
	signed, err := signer.Sign(original, pdf.SignOptions{Certify: true})
	require.NoError(t, err)

	suffix := string(signed[len(original):])
	assert.Contains(t, suffix, "/DocMDP")
	assert.Contains(t, suffix, "/TransformMethod /DocMDP")
}
