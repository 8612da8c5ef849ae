package efinanceira

import "errors"

// Errores de la firma XML-DSig. Se devuelven envueltos con fmt.Errorf("%w: ...");
// el llamador los distingue con errors.Is.
var (
	ErrInvalidSignOptions        = errors.New("efinanceira: opciones de firma inválidas")
	ErrElementNotFound           = errors.New("efinanceira: elemento a firmar no encontrado")
	ErrAmbiguousElementReference = errors.New("efinanceira: más de un elemento con el mismo ID")
	ErrCertificateLoad           = errors.New("efinanceira: no se pudo cargar el certificado")
	ErrMalformedDocument         = errors.New("efinanceira: documento XML mal formado")
	ErrSignatureComputation      = errors.New("efinanceira: error al calcular la firma")

	ErrUnsupportedAlgorithm = errors.New("efinanceira: algoritmo no soportado")
	// Variantes por tipo de algoritmo; todas cumplen errors.Is(err, ErrUnsupportedAlgorithm).
	ErrUnsupportedDigestAlgorithm    = unsupported("digest")
	ErrUnsupportedSignatureAlgorithm = unsupported("firma")
	ErrUnsupportedCanonicalization   = unsupported("canonicalización")
	ErrUnsupportedTransform          = unsupported("transform")
)

type unsupportedError struct {
	kind string
}

func unsupported(kind string) error { return &unsupportedError{kind: kind} }

func (e *unsupportedError) Error() string {
	return "efinanceira: algoritmo de " + e.kind + " no soportado"
}

func (e *unsupportedError) Unwrap() error { return ErrUnsupportedAlgorithm }
