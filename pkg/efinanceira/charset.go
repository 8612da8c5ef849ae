package efinanceira

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// CharsetReader decodifica a UTF-8 los documentos declarados en otra codificación.
// Se instala en etree.ReadSettings.CharsetReader; los lotes de sistemas legados
// suelen venir en ISO-8859-1 o Windows-1252.
func CharsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return input, nil
	case "iso-8859-1", "iso8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("efinanceira: charset %q no soportado", label)
	}
	return enc.NewDecoder().Reader(input), nil
}
