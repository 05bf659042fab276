// Package nfe implementa as regras puras da NF-e 4.00: chave de acesso,
// dígito verificador módulo 11 e validações locais que antecedem qualquer
// chamada de rede. Nenhuma função aqui tem efeito colateral.
package nfe

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// ModeloNFe é o código de modelo do documento (mod): 55 = NF-e.
const ModeloNFe = "55"

// KeyParams reúne os campos que compõem a chave de acesso, na ordem do layout:
// cUF(2) + AAMM(4) + CNPJ(14) + mod(2) + serie(3) + nNF(9) + tpEmis(1) + cNF(8) + cDV(1).
type KeyParams struct {
	UF         string    // cUF IBGE, 2 dígitos (21 = MA)
	CNPJ       string    // CNPJ do emitente, 14 dígitos
	Modelo     string    // "55"
	Serie      int       // série do documento (0-999)
	Numero     int64     // nNF (1-999999999)
	TipoEmissao string   // tpEmis ("1" = normal)
	CodigoNum  string    // cNF, 8 dígitos aleatórios/opacos
	Emissao    time.Time // usado para o AAMM
}

// AccessKey monta a chave de acesso de 44 dígitos: payload de 43 dígitos de
// largura fixa mais o dígito verificador módulo 11.
func AccessKey(p KeyParams) (string, error) {
	payload, err := keyPayload(p)
	if err != nil {
		return "", err
	}
	dv, err := CheckDigit(payload)
	if err != nil {
		return "", err
	}
	return payload + dv, nil
}

func keyPayload(p KeyParams) (string, error) {
	if len(p.UF) != 2 {
		return "", fmt.Errorf("nfe: cUF deve ter 2 dígitos, veio %q", p.UF)
	}
	if len(p.CNPJ) != 14 {
		return "", fmt.Errorf("nfe: CNPJ deve ter 14 dígitos, veio %d", len(p.CNPJ))
	}
	if len(p.CodigoNum) != 8 {
		return "", fmt.Errorf("nfe: cNF deve ter 8 dígitos, veio %q", p.CodigoNum)
	}
	if p.Serie < 0 || p.Serie > 999 {
		return "", fmt.Errorf("nfe: série deve estar entre 0 e 999, veio %d", p.Serie)
	}
	if p.Numero < 1 || p.Numero > 999999999 {
		return "", fmt.Errorf("nfe: nNF deve estar entre 1 e 999999999, veio %d", p.Numero)
	}
	modelo := p.Modelo
	if modelo == "" {
		modelo = ModeloNFe
	}
	tpEmis := p.TipoEmissao
	if tpEmis == "" {
		tpEmis = "1"
	}
	return fmt.Sprintf("%s%s%s%s%03d%09d%s%s",
		p.UF,
		p.Emissao.Format("0601"), // AAMM
		p.CNPJ,
		modelo,
		p.Serie,
		p.Numero,
		tpEmis,
		p.CodigoNum,
	), nil
}

// CheckDigit calcula o dígito verificador módulo 11 sobre os 43 dígitos do
// payload. Pesos 2..9 repetindo ciclicamente a partir do dígito mais à direita;
// resto 0 ou 1 vira '0', senão 11 − resto.
func CheckDigit(payload string) (string, error) {
	if len(payload) != 43 {
		return "", fmt.Errorf("nfe: payload da chave deve ter 43 dígitos, veio %d", len(payload))
	}
	sum := 0
	weight := 2
	for i := len(payload) - 1; i >= 0; i-- {
		d := payload[i]
		if d < '0' || d > '9' {
			return "", fmt.Errorf("nfe: payload contém caractere não numérico %q", d)
		}
		sum += int(d-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	rem := sum % 11
	if rem == 0 || rem == 1 {
		return "0", nil
	}
	return fmt.Sprintf("%d", 11-rem), nil
}

// RandomCode gera o cNF: 8 dígitos de crypto/rand. O código é opaco; a única
// exigência é não colidir com o nNF, o que 8 dígitos aleatórios garantem na
// prática.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100000000))
	if err != nil {
		return "", fmt.Errorf("nfe: gerar cNF: %w", err)
	}
	return fmt.Sprintf("%08d", n.Int64()), nil
}
