package signing

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/jhoicas/efinanceira-api/internal/domain"
	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

// MaxEventsPerLote límite de eventos por lote del WsRecepcao.
const MaxEventsPerLote = 100

// loteEvent un <evento> del lote con el documento eFinanceira que contiene.
type loteEvent struct {
	container *etree.Element // <evento>
	document  *etree.Element // <eFinanceira> del evento
	name      string         // nombre local del evento (evtMovOpFin, ...)
	id        string         // atributo id del evento
}

// readXML parsea lotes y eventos con la misma lectura de charsets que el firmador.
// El árbol queda en UTF-8, así que la declaración XML se reescribe a UTF-8.
func readXML(raw []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = efinanceira.CharsetReader
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, err
	}
	for _, tok := range doc.Child {
		if pi, ok := tok.(*etree.ProcInst); ok && pi.Target == "xml" {
			pi.Inst = `version="1.0" encoding="UTF-8"`
		}
	}
	return doc, nil
}

// parseLote lee un envioLoteEventos y localiza sus eventos.
func parseLote(loteXML []byte) (*etree.Document, []loteEvent, error) {
	doc, err := readXML(loteXML)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: lote mal formado: %v", domain.ErrInvalidInput, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "eFinanceira" {
		return nil, nil, fmt.Errorf("%w: el lote debe tener raíz <eFinanceira>", domain.ErrInvalidInput)
	}
	lote := root.SelectElement("loteEventos")
	if lote == nil {
		return nil, nil, fmt.Errorf("%w: falta <loteEventos>", domain.ErrInvalidInput)
	}

	var events []loteEvent
	for _, evento := range lote.SelectElements("evento") {
		document := evento.SelectElement("eFinanceira")
		if document == nil {
			return nil, nil, fmt.Errorf("%w: <evento id=%q> sin <eFinanceira>",
				domain.ErrInvalidInput, evento.SelectAttrValue("id", ""))
		}
		ev, err := eventOf(document)
		if err != nil {
			return nil, nil, err
		}
		ev.container = evento
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil, nil, fmt.Errorf("%w: el lote no contiene eventos", domain.ErrInvalidInput)
	}
	if len(events) > MaxEventsPerLote {
		return nil, nil, fmt.Errorf("%w: el lote tiene %d eventos (máximo %d)",
			domain.ErrInvalidInput, len(events), MaxEventsPerLote)
	}
	return doc, events, nil
}

// eventOf identifica el evento firmable dentro de un documento <eFinanceira>.
func eventOf(document *etree.Element) (loteEvent, error) {
	for _, child := range document.ChildElements() {
		if child.Tag == "Signature" {
			continue
		}
		id := child.SelectAttrValue(efinanceira.EventIDAttribute, "")
		if id == "" {
			return loteEvent{}, fmt.Errorf("%w: el evento <%s> no tiene atributo id", domain.ErrInvalidInput, child.Tag)
		}
		return loteEvent{document: document, name: child.Tag, id: id}, nil
	}
	return loteEvent{}, fmt.Errorf("%w: <eFinanceira> sin evento", domain.ErrInvalidInput)
}

// standalone serializa el documento del evento como XML independiente. Copia las
// declaraciones xmlns de los ancestros para que la forma canónica del evento sea
// la misma dentro y fuera del lote.
func standalone(document *etree.Element) ([]byte, error) {
	el := document.Copy()
	declared := make(map[string]bool)
	for _, a := range el.Attr {
		if isXMLNS(a) {
			declared[a.FullKey()] = true
		}
	}
	for p := document.Parent(); p != nil && p.Tag != ""; p = p.Parent() {
		for _, a := range p.Attr {
			if isXMLNS(a) && !declared[a.FullKey()] {
				declared[a.FullKey()] = true
				el.CreateAttr(a.FullKey(), a.Value)
			}
		}
	}
	doc := etree.NewDocument()
	doc.SetRoot(el)
	return doc.WriteToBytes()
}

func isXMLNS(a etree.Attr) bool {
	return (a.Space == "" && a.Key == "xmlns") || a.Space == "xmlns"
}

// replaceDocument sustituye el <eFinanceira> del evento por su versión firmada.
func replaceDocument(ev loteEvent, signed []byte) error {
	doc, err := readXML(signed)
	if err != nil {
		return fmt.Errorf("releer evento firmado %s: %w", ev.id, err)
	}
	idx := ev.document.Index()
	ev.container.RemoveChildAt(idx)
	ev.container.InsertChildAt(idx, doc.Root())
	return nil
}

// BuildLote arma un envioLoteEventos con los documentos de evento dados (firmados o no).
// transmitterCNPJ debe ser válido y, cuando el evento trae ideDeclarante/cnpjDeclarante,
// coincidir con él.
func BuildLote(transmitterCNPJ string, events [][]byte) ([]byte, error) {
	if err := efinanceira.ValidateCNPJ(transmitterCNPJ); err != nil {
		return nil, fmt.Errorf("%w: CNPJ del transmisor: %v", domain.ErrInvalidInput, err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: el lote no contiene eventos", domain.ErrInvalidInput)
	}
	if len(events) > MaxEventsPerLote {
		return nil, fmt.Errorf("%w: %d eventos (máximo %d)", domain.ErrInvalidInput, len(events), MaxEventsPerLote)
	}
	cnpj := onlyDigits(transmitterCNPJ)

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("eFinanceira")
	root.CreateAttr("xmlns", efinanceira.NamespaceEnvioLote)
	lote := root.CreateElement("loteEventos")

	// El id de <evento> no puede repetir el id de ningún evento: la referencia de la
	// firma quedaría ambigua dentro del lote.
	var (
		seen    = make(map[string]bool, len(events))
		loteIDs = make([]string, 0, len(events))
		docs    = make([]*etree.Element, 0, len(events))
	)
	for i, raw := range events {
		evDoc, err := readXML(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: evento %d mal formado: %v", domain.ErrInvalidInput, i, err)
		}
		document := evDoc.Root()
		if document == nil || document.Tag != "eFinanceira" {
			return nil, fmt.Errorf("%w: evento %d: raíz distinta de <eFinanceira>", domain.ErrInvalidInput, i)
		}
		ev, err := eventOf(document)
		if err != nil {
			return nil, err
		}
		if seen[ev.id] {
			return nil, fmt.Errorf("%w: id de evento repetido %s", domain.ErrInvalidInput, ev.id)
		}
		seen[ev.id] = true
		loteIDs = append(loteIDs, fmt.Sprintf("ID%d", i+1))
		if decl := document.FindElement("./" + ev.name + "/ideDeclarante/cnpjDeclarante"); decl != nil {
			if onlyDigits(decl.Text()) != cnpj {
				return nil, fmt.Errorf("%w: el evento %s pertenece a otro declarante", domain.ErrInvalidInput, ev.id)
			}
		}
		docs = append(docs, document)
	}
	for i, document := range docs {
		if seen[loteIDs[i]] {
			return nil, fmt.Errorf("%w: el id de evento %s choca con el id de <evento>", domain.ErrInvalidInput, loteIDs[i])
		}
		evento := lote.CreateElement("evento")
		evento.CreateAttr("id", loteIDs[i])
		evento.AddChild(document)
	}
	return doc.WriteToBytes()
}

func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
