package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/efinanceira-api/internal/application/dto"
	"github.com/jhoicas/efinanceira-api/internal/domain"
	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

// errorMapping asocia un error de dominio con su respuesta HTTP.
type errorMapping struct {
	target error
	status int
	code   string
}

// El orden importa: los errores más específicos primero.
var errorMappings = []errorMapping{
	{domain.ErrInvalidInput, fiber.StatusBadRequest, "VALIDATION"},
	{domain.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND"},
	{domain.ErrUnauthorized, fiber.StatusUnauthorized, "UNAUTHORIZED"},
	{domain.ErrForbidden, fiber.StatusForbidden, "FORBIDDEN"},
	{domain.ErrLoteRejected, fiber.StatusUnprocessableEntity, "LOTE_REJECTED"},
	{domain.ErrTransmission, fiber.StatusBadGateway, "TRANSMISSION_FAILED"},
	{efinanceira.ErrInvalidSignOptions, fiber.StatusBadRequest, "INVALID_SIGN_OPTIONS"},
	{efinanceira.ErrMalformedDocument, fiber.StatusBadRequest, "MALFORMED_XML"},
	{efinanceira.ErrUnsupportedAlgorithm, fiber.StatusBadRequest, "UNSUPPORTED_ALGORITHM"},
	{efinanceira.ErrElementNotFound, fiber.StatusNotFound, "ELEMENT_NOT_FOUND"},
	{efinanceira.ErrAmbiguousElementReference, fiber.StatusConflict, "AMBIGUOUS_REFERENCE"},
	{efinanceira.ErrCertificateLoad, fiber.StatusInternalServerError, "CERTIFICATE_ERROR"},
	{efinanceira.ErrSignatureComputation, fiber.StatusInternalServerError, "SIGNATURE_ERROR"},
}

// writeError traduce err a la respuesta HTTP correspondiente.
func writeError(c *fiber.Ctx, err error) error {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return c.Status(m.status).JSON(dto.ErrorResponse{Code: m.code, Message: err.Error()})
		}
	}
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
}
