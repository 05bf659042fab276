package entity

import "time"

// CertificateRecord descreve um certificado digital A1 do emitente.
// Pode haver vários registros, mas apenas um ativo; consultado somente-leitura
// por toda operação de assinatura e expira naturalmente em ValidTo.
type CertificateRecord struct {
	ID        string
	Name      string
	Path      string // caminho do contêiner .pfx/.p12 (ou .pem)
	KeyPath   string // chave .pem separada, quando Path não é .pfx
	Password  string // senha do contêiner; segredo de vida curta
	ValidFrom time.Time
	ValidTo   time.Time
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
