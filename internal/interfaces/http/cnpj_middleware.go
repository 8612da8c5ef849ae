package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/efinanceira-api/internal/application/dto"
	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

// RequireCNPJ exige que el token traiga un CNPJ declarante válido.
// Debe usarse DESPUÉS de AuthMiddleware (necesita LocalCNPJ).
//
// Comportamiento:
//   - 403 Forbidden → token sin CNPJ o con dígitos verificadores inválidos.
func RequireCNPJ() fiber.Handler {
	return func(c *fiber.Ctx) error {
		cnpj := GetCNPJ(c)
		if cnpj == "" {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Code:    "MISSING_CNPJ",
				Message: "el token no tiene CNPJ declarante",
			})
		}
		if err := efinanceira.ValidateCNPJ(cnpj); err != nil {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Code:    "INVALID_CNPJ",
				Message: err.Error(),
			})
		}
		return c.Next()
	}
}
