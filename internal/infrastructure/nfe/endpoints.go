package nfe

import "fmt"

// Service identifica um webservice da NF-e 4.00.
type Service string

const (
	ServiceAutorizacao    Service = "NFeAutorizacao4"
	ServiceRetAutorizacao Service = "NFeRetAutorizacao4"
	ServiceStatusServico  Service = "NFeStatusServico4"
	ServiceConsulta       Service = "NFeConsultaProtocolo4"
	ServiceRecepcaoEvento Service = "NFeRecepcaoEvento4"
)

// Endpoints da SEFAZ por UF e ambiente. Produção do MA é atendida pela SEFAZ
// estadual; homologação vai para a SVAN (sefazvirtual).
var sefazEndpoints = map[string]map[string]map[Service]string{
	"MA": {
		"1": {
			ServiceAutorizacao:    "https://nfe.sefaz.ma.gov.br/wsnfe2/services/NFeAutorizacao4",
			ServiceRetAutorizacao: "https://nfe.sefaz.ma.gov.br/wsnfe2/services/NFeRetAutorizacao4",
			ServiceStatusServico:  "https://nfe.sefaz.ma.gov.br/wsnfe2/services/NFeStatusServico4",
			ServiceConsulta:       "https://nfe.sefaz.ma.gov.br/wsnfe2/services/NFeConsultaProtocolo4",
			ServiceRecepcaoEvento: "https://nfe.sefaz.ma.gov.br/wsnfe2/services/NFeRecepcaoEvento4",
		},
		"2": {
			ServiceAutorizacao:    "https://hom.sefazvirtual.fazenda.gov.br/NFeAutorizacao4/NFeAutorizacao4.asmx",
			ServiceRetAutorizacao: "https://hom.sefazvirtual.fazenda.gov.br/NFeRetAutorizacao4/NFeRetAutorizacao4.asmx",
			ServiceStatusServico:  "https://hom.sefazvirtual.fazenda.gov.br/NFeStatusServico4/NFeStatusServico4.asmx",
			ServiceConsulta:       "https://hom.sefazvirtual.fazenda.gov.br/NFeConsultaProtocolo4/NFeConsultaProtocolo4.asmx",
			ServiceRecepcaoEvento: "https://hom.sefazvirtual.fazenda.gov.br/NFeRecepcaoEvento4/NFeRecepcaoEvento4.asmx",
		},
	},
}

// EndpointsFor devolve a tabela de serviços de uma UF/ambiente.
func EndpointsFor(uf, ambiente string) (map[Service]string, error) {
	byAmb, ok := sefazEndpoints[uf]
	if !ok {
		return nil, fmt.Errorf("nfe: webservices não configurados para UF %q", uf)
	}
	eps, ok := byAmb[ambiente]
	if !ok {
		return nil, fmt.Errorf("nfe: webservices não configurados para UF %q ambiente %q", uf, ambiente)
	}
	return eps, nil
}
