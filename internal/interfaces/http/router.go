package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/efinanceira-api/internal/application/dto"
	"github.com/jhoicas/efinanceira-api/internal/application/signing"
	"github.com/jhoicas/efinanceira-api/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	SigningUC   *signing.SigningUseCase
	LoteUC      *signing.LoteUseCase
	JWTSecret   string
	ServiceName string
	Environment string
	// Metrics expone /metrics cuando no es nil.
	Metrics prometheus.Gatherer
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(dto.HealthResponse{Status: "ok", Service: deps.ServiceName, Environment: deps.Environment})
	})
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{})))
	}

	// Rutas protegidas (requieren Bearer Token)
	api := app.Group("/api/v1", AuthMiddleware(deps.JWTSecret))
	signers := RequireRole(jwt.RoleAdmin, jwt.RoleOperador)
	readers := RequireRole(jwt.RoleAdmin, jwt.RoleOperador, jwt.RoleAuditor)

	signingHandler := NewSigningHandler(deps.SigningUC)
	api.Post("/sign", signers, signingHandler.Sign)
	api.Post("/verify", readers, signingHandler.Verify)
	api.Get("/signatures/:id", readers, signingHandler.GetRecord)

	lotes := api.Group("/lotes")
	loteHandler := NewLoteHandler(deps.LoteUC)
	lotes.Post("/build", signers, RequireCNPJ(), loteHandler.Build)
	lotes.Post("/sign", signers, loteHandler.Sign)
	lotes.Post("/send", signers, loteHandler.Send)
}
