package domain

import (
	"errors"
	"fmt"
)

// Erros de domínio (sem dependências externas). Cada categoria tem um tipo
// próprio porque o tratamento difere: erro de certificado bloqueia a assinatura,
// erro de autoridade vira recusa estruturada, conflito de sequência exige nova
// reserva.

// Sentinelas genéricas.
var (
	ErrNotFound     = errors.New("recurso não encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrConflict     = errors.New("conflito com o estado atual")
)

// CertificateError indica contêiner ilegível, senha errada ou certificado fora
// da validade. Fatal: o chamador não deve prosseguir para a assinatura.
type CertificateError struct {
	Cause string
	Err   error
}

func (e *CertificateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("certificado: %s: %v", e.Cause, e.Err)
	}
	return "certificado: " + e.Cause
}

func (e *CertificateError) Unwrap() error { return e.Err }

// ValidationError indica entrada malformada na montagem do documento.
// Campos obrigatórios do schema ausentes rejeitam; lacunas toleradas
// (perfil fiscal ausente com default configurado) degradam com log.
type ValidationError struct {
	Field string
	Cause string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validação: campo %s: %s", e.Field, e.Cause)
	}
	return "validação: " + e.Cause
}

// SigningError indica falha criptográfica ou estrutural na assinatura.
// Fatal para o XML de envio; soft-fail para o PDF do recibo.
type SigningError struct {
	Artifact string // "xml" ou "pdf"
	Err      error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("assinatura %s: %v", e.Artifact, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// AuthorityError indica falha de transporte ou recusa da SEFAZ. Nunca propaga
// como exceção de transporte: o cliente normaliza em resultado estruturado e
// este tipo só aparece quando o chamador precisa de um erro Go.
type AuthorityError struct {
	StatusCode string // cStat da SEFAZ, vazio em falha de transporte
	Message    string // xMotivo verbatim (legalmente significativo)
}

func (e *AuthorityError) Error() string {
	if e.StatusCode != "" {
		return fmt.Sprintf("sefaz [%s]: %s", e.StatusCode, e.Message)
	}
	return "sefaz: " + e.Message
}

// SequenceConflict indica colisão de reserva de numeração entre emissões
// concorrentes. O chamador deve repetir com uma reserva nova, nunca reutilizar.
type SequenceConflict struct {
	Emitter string
	Number  int64
}

func (e *SequenceConflict) Error() string {
	return fmt.Sprintf("sequência: número %d do emitente %s já reservado", e.Number, e.Emitter)
}
