package nfe

import (
	"fmt"
	"strings"
)

// Limites dos textos de evento fiscal (schema da SEFAZ).
const (
	MinJustificativa = 15
	MaxJustificativa = 255
	MinCorrecao      = 15
	MaxCorrecao      = 1000
)

// ValidateJustificativa valida localmente a justificativa de cancelamento.
// Portão rígido anterior a qualquer chamada de rede: menos de 15 caracteres
// nem chega ao WS.
func ValidateJustificativa(texto string) error {
	t := strings.TrimSpace(texto)
	if len([]rune(t)) < MinJustificativa {
		return fmt.Errorf("nfe: justificativa deve ter no mínimo %d caracteres, veio %d", MinJustificativa, len([]rune(t)))
	}
	if len([]rune(t)) > MaxJustificativa {
		return fmt.Errorf("nfe: justificativa deve ter no máximo %d caracteres", MaxJustificativa)
	}
	return nil
}

// ValidateCorrecao valida o texto de uma carta de correção eletrônica.
func ValidateCorrecao(texto string) error {
	t := strings.TrimSpace(texto)
	if len([]rune(t)) < MinCorrecao {
		return fmt.Errorf("nfe: texto de correção deve ter no mínimo %d caracteres", MinCorrecao)
	}
	if len([]rune(t)) > MaxCorrecao {
		return fmt.Errorf("nfe: texto de correção deve ter no máximo %d caracteres", MaxCorrecao)
	}
	return nil
}

// ValidateAccessKey confere forma da chave: 44 dígitos ASCII e dígito
// verificador consistente.
func ValidateAccessKey(chave string) error {
	if len(chave) != 44 {
		return fmt.Errorf("nfe: chave de acesso deve ter 44 dígitos, veio %d", len(chave))
	}
	dv, err := CheckDigit(chave[:43])
	if err != nil {
		return err
	}
	if dv != chave[43:] {
		return fmt.Errorf("nfe: dígito verificador inválido: esperado %s, veio %s", dv, chave[43:])
	}
	return nil
}
