package efinanceira

import "strings"

// =============================================================================
// Esquemas e-Financeira (Manual de Orientação do Leiaute, Receita Federal)
// =============================================================================

// Namespaces del lote de envío y del retorno.
const (
	NamespaceEnvioLote   = "http://www.eFinanceira.gov.br/schemas/envioLoteEventos/v1_2_0"
	NamespaceRetornoLote = "http://www.eFinanceira.gov.br/schemas/retornoLoteEventos/v1_3_0"
	schemaBase           = "http://www.eFinanceira.gov.br/schemas/"
)

// EventIDAttribute es el atributo de identificación usado por todos los eventos.
const EventIDAttribute = "id"

// Nombres de los eventos (elemento hijo de <eFinanceira>).
const (
	EvtAberturaeFinanceira   = "evtAberturaeFinanceira"
	EvtCadDeclarante         = "evtCadDeclarante"
	EvtCadIntermediario      = "evtCadIntermediario"
	EvtCadPatrocinado        = "evtCadPatrocinado"
	EvtMovOpFin              = "evtMovOpFin"
	EvtMovOpFinAnual         = "evtMovOpFinAnual"
	EvtMovPP                 = "evtMovPP"
	EvtFechamentoeFinanceira = "evtFechamentoeFinanceira"
	EvtExclusaoeFinanceira   = "evtExclusaoeFinanceira"
	EvtExclusao              = "evtExclusao"
	EvtRERCT                 = "evtRERCT"
)

// EventSchemaVersions versión vigente del esquema de cada evento.
var EventSchemaVersions = map[string]string{
	EvtAberturaeFinanceira:   "v1_2_1",
	EvtCadDeclarante:         "v1_2_0",
	EvtCadIntermediario:      "v1_2_0",
	EvtCadPatrocinado:        "v1_2_0",
	EvtMovOpFin:              "v1_2_1",
	EvtMovOpFinAnual:         "v1_2_2",
	EvtMovPP:                 "v1_2_0",
	EvtFechamentoeFinanceira: "v1_2_2",
	EvtExclusaoeFinanceira:   "v1_2_0",
	EvtExclusao:              "v1_2_0",
	EvtRERCT:                 "v1_2_0",
}

// IsKnownEvent indica si el nombre corresponde a un evento del catálogo.
func IsKnownEvent(name string) bool {
	_, ok := EventSchemaVersions[name]
	return ok
}

// EventNamespace devuelve el namespace del evento ("" si no es conocido).
func EventNamespace(name string) string {
	v, ok := EventSchemaVersions[name]
	if !ok {
		return ""
	}
	return schemaBase + name + "/" + v
}

// EventFromNamespace extrae el nombre del evento de un namespace e-Financeira.
func EventFromNamespace(ns string) (string, bool) {
	if !strings.HasPrefix(ns, schemaBase) {
		return "", false
	}
	rest := strings.TrimPrefix(ns, schemaBase)
	name, _, ok := strings.Cut(rest, "/")
	if !ok || !IsKnownEvent(name) {
		return "", false
	}
	return name, true
}

// Ambientes de recepción (tpAmb).
const (
	EnvironmentDev         = "dev"         // no transmite; protocolo simulado
	EnvironmentHomologacao = "homologacao" // pre-producción
	EnvironmentProducao    = "producao"
)

// Endpoints del servicio WsRecepcao.
const (
	URLRecepcaoProducao    = "https://efinanc.receita.fazenda.gov.br/WsEFinanceira/WsRecepcao.asmx"
	URLRecepcaoHomologacao = "https://preprod-efinanc.receita.fazenda.gov.br/WsEFinanceira/WsRecepcao.asmx"
)

// RecepcaoURL devuelve el endpoint del ambiente ("" para dev o desconocido).
func RecepcaoURL(env string) string {
	switch env {
	case EnvironmentProducao:
		return URLRecepcaoProducao
	case EnvironmentHomologacao:
		return URLRecepcaoHomologacao
	default:
		return ""
	}
}
