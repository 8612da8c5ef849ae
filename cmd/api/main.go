package main

import (
	"context"
	"crypto/x509"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jhoicas/efinanceira-api/internal/application/signing"
	"github.com/jhoicas/efinanceira-api/internal/domain/repository"
	"github.com/jhoicas/efinanceira-api/internal/infrastructure/certificate"
	infraefin "github.com/jhoicas/efinanceira-api/internal/infrastructure/efinanceira"
	"github.com/jhoicas/efinanceira-api/internal/infrastructure/efinanceira/signer"
	"github.com/jhoicas/efinanceira-api/internal/infrastructure/metrics"
	"github.com/jhoicas/efinanceira-api/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/efinanceira-api/internal/interfaces/http"
	"github.com/jhoicas/efinanceira-api/pkg/config"
	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
	"github.com/jhoicas/efinanceira-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.Log.Level,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("efin_env", cfg.EFin.Environment).
		Msg("iniciando aplicación")

	ctx := context.Background()

	// Certificados: token PKCS#11 (A3) o almacén en memoria precargado desde archivo (A1).
	var store certificate.ThumbprintStore
	if cfg.EFin.PKCS11Library != "" {
		token, err := certificate.OpenPKCS11Store(certificate.PKCS11Config{
			Library:    cfg.EFin.PKCS11Library,
			PIN:        cfg.EFin.PKCS11PIN,
			TokenLabel: cfg.EFin.PKCS11TokenLabel,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("abrir token PKCS#11")
		}
		defer token.Close()
		store = token
	} else {
		mem, _ := certificate.NewMemoryStore()
		if cfg.EFin.CertPath != "" {
			cert, err := certificate.LoadFromFile(cfg.EFin.CertPath, cfg.EFin.CertKeyPath, cfg.EFin.CertPassword)
			if err != nil {
				log.Fatal().Err(err).Str("path", cfg.EFin.CertPath).Msg("cargar certificado")
			}
			thumb, err := mem.Add(cert)
			if err != nil {
				log.Fatal().Err(err).Msg("registrar certificado")
			}
			log.Info().Str("thumbprint", thumb).Str("subject", cert.Leaf.Subject.String()).
				Time("not_after", cert.Leaf.NotAfter).Msg("certificado cargado")
		}
		store = mem
	}
	resolver := certificate.NewCachingResolver(certificate.NewResolver(store))

	var trusted []*x509.Certificate
	if cfg.EFin.TrustedCAs != "" {
		if trusted, err = certificate.LoadCertificates(cfg.EFin.TrustedCAs); err != nil {
			log.Fatal().Err(err).Str("path", cfg.EFin.TrustedCAs).Msg("cargar ACs de confianza")
		}
	}

	defaults := signing.Defaults{
		Certificate: efinanceira.CertificateRef{
			Path:       cfg.EFin.CertPath,
			KeyPath:    cfg.EFin.CertKeyPath,
			Password:   cfg.EFin.CertPassword,
			Thumbprint: cfg.EFin.CertThumbprint,
		},
		CanonicalizationMethod: cfg.EFin.CanonicalizationMethod,
		SignatureMethod:        cfg.EFin.SignatureMethod,
		DigestMethod:           cfg.EFin.DigestMethod,
		IDAttributeName:        cfg.EFin.IDAttribute,
		IncludeCertificate:     cfg.EFin.IncludeCertificate,
		IncludeChain:           cfg.EFin.IncludeChain,
	}

	// Auditoría: PostgreSQL solo si está habilitada.
	var (
		auditRepo repository.SignatureRecordRepository = signing.NoopAudit{}
		auditTx   signing.AuditTxRunner                = signing.NoopAudit{}
	)
	if cfg.Audit.Enabled {
		pool, err := postgres.NewPool(ctx, cfg.DB, cfg.App.Name)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a PostgreSQL")
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("migraciones de auditoría")
		}
		auditRepo = postgres.NewSignatureRecordRepository(pool)
		auditTx = postgres.NewTxRunner(pool)
	}

	var (
		recorder signing.MetricsRecorder = metrics.NewNoopRecorder()
		gatherer prometheus.Gatherer
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder = metrics.NewPrometheusRecorderWithRegistry(reg)
		gatherer = reg
	}

	// Cliente SOAP WsRecepcao: solo fuera de "dev"; usa el certificado de firma para mTLS.
	var submitter signing.LoteSubmitter
	if cfg.EFin.Environment != efinanceira.EnvironmentDev {
		clientCert, err := resolver.Resolve(defaults.Certificate)
		if err != nil {
			log.Fatal().Err(err).Msg("certificado para mTLS del WsRecepcao")
		}
		submitter = infraefin.NewSOAPClient(clientCert, cfg.EFin.SOAPTimeout)
	}

	signingUC := signing.NewSigningUseCase(
		signer.NewDigitalSignatureService(resolver),
		signer.NewSignatureVerifier(trusted...).WithIDAttributes(cfg.EFin.IDAttribute),
		auditRepo, recorder, log, defaults,
	)
	loteUC := signing.NewLoteUseCase(signingUC, auditTx, submitter, log, cfg.EFin.Environment, cfg.EFin.LoteWorkers)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		BodyLimit:    cfg.HTTP.BodyLimit,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.EFin.SOAPTimeout + 10*time.Second,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "e-Financeira Signing API",
	}))

	httpRouter.Router(app, httpRouter.RouterDeps{
		SigningUC:   signingUC,
		LoteUC:      loteUC,
		JWTSecret:   cfg.JWT.Secret,
		ServiceName: cfg.App.Name,
		Environment: cfg.EFin.Environment,
		Metrics:     gatherer,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
