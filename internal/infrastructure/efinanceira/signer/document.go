// Lectura, búsqueda y serialización del documento con etree.

package signer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

// parseDocument parsea el XML. Acepta declaraciones ISO-8859-1 / Windows-1252;
// el árbol queda en UTF-8 y así se serializa.
func parseDocument(xmlBytes []byte) (*etree.Document, error) {
	if len(bytes.TrimSpace(xmlBytes)) == 0 {
		return nil, fmt.Errorf("%w: XML vacío", efinanceira.ErrMalformedDocument)
	}
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = efinanceira.CharsetReader
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", efinanceira.ErrMalformedDocument, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: documento sin raíz", efinanceira.ErrMalformedDocument)
	}
	return doc, nil
}

// serialize escribe el documento en UTF-8, ajustando la declaración XML si
// el original declaraba otra codificación.
func serialize(doc *etree.Document) ([]byte, error) {
	for _, tok := range doc.Child {
		pi, ok := tok.(*etree.ProcInst)
		if !ok || pi.Target != "xml" {
			continue
		}
		if strings.Contains(strings.ToLower(pi.Inst), "encoding") && !strings.Contains(strings.ToLower(pi.Inst), "utf-8") {
			pi.Inst = `version="1.0" encoding="UTF-8"`
		}
	}
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: serializar: %v", efinanceira.ErrMalformedDocument, err)
	}
	return out, nil
}

// findElementsByID recorre el árbol y devuelve los elementos con nombre local
// name (vacío = cualquiera) cuyo atributo attr vale value.
func findElementsByID(root *etree.Element, name string, attrs []string, value string) []*etree.Element {
	var out []*etree.Element
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		if name == "" || el.Tag == name {
			for _, a := range el.Attr {
				if a.Space == "" && a.Value == value && contains(attrs, a.Key) {
					out = append(out, el)
					break
				}
			}
		}
		for _, child := range el.ChildElements() {
			walk(child)
		}
	}
	walk(root)
	return out
}

// idAttributes une base y extra sin repetidos ni vacíos; base no se modifica.
func idAttributes(base []string, extra ...string) []string {
	out := append([]string(nil), base...)
	for _, name := range extra {
		if name != "" && !contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// isDS indica si el elemento es el nodo XML-DSig con nombre local tag.
func isDS(el *etree.Element, tag string) bool {
	return el.Tag == tag && el.NamespaceURI() == efinanceira.NamespaceDS
}

// dsChild devuelve el primer hijo XML-DSig con nombre local tag.
func dsChild(el *etree.Element, tag string) *etree.Element {
	if el == nil {
		return nil
	}
	for _, child := range el.ChildElements() {
		if isDS(child, tag) {
			return child
		}
	}
	return nil
}

// dsChildren devuelve todos los hijos XML-DSig con nombre local tag.
func dsChildren(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if isDS(child, tag) {
			out = append(out, child)
		}
	}
	return out
}

// findSignature devuelve el primer <Signature> XML-DSig en orden de documento.
func findSignature(root *etree.Element) *etree.Element {
	if isDS(root, tagSignature) {
		return root
	}
	for _, child := range root.ChildElements() {
		if sig := findSignature(child); sig != nil {
			return sig
		}
	}
	return nil
}

// removeSignatures quita los <Signature> hijos directos de el. Devuelve cuántos quitó.
func removeSignatures(el *etree.Element) int {
	var n int
	for _, child := range el.ChildElements() {
		if isDS(child, tagSignature) {
			el.RemoveChild(child)
			n++
		}
	}
	return n
}

// parentElement devuelve el elemento padre; nil para la raíz (cuyo padre en
// etree es el nodo documento, sin tag).
func parentElement(el *etree.Element) *etree.Element {
	p := el.Parent()
	if p == nil || p.Tag == "" {
		return nil
	}
	return p
}

// isDescendant indica si el está contenido (a cualquier profundidad) en ancestor.
func isDescendant(el, ancestor *etree.Element) bool {
	for p := el.Parent(); p != nil; p = p.Parent() {
		if p == ancestor {
			return true
		}
	}
	return false
}

// detach copia el elemento sin padre, declarando en la copia los namespaces
// en alcance (gana el ancestro más cercano). Con inheritXML también copia los
// atributos xml:* heredados, como exige C14N inclusivo.
func detach(el *etree.Element, inheritXML bool) *etree.Element {
	cp := el.Copy()
	seen := make(map[string]bool, len(cp.Attr))
	for _, a := range cp.Attr {
		seen[a.FullKey()] = true
	}
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			key := a.FullKey()
			if seen[key] {
				continue
			}
			if isNamespaceDecl(a) || (inheritXML && a.Space == "xml") {
				seen[key] = true
				cp.CreateAttr(key, a.Value)
			}
		}
	}
	return cp
}

func isNamespaceDecl(a etree.Attr) bool {
	return a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns")
}
