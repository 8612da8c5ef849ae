package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/efinanceira-api/internal/application/dto"
	"github.com/jhoicas/efinanceira-api/internal/application/signing"
	"github.com/jhoicas/efinanceira-api/internal/domain/entity"
	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

// SigningHandler firma y verifica documentos sueltos (protegido).
type SigningHandler struct {
	uc *signing.SigningUseCase
}

// NewSigningHandler construye el handler.
func NewSigningHandler(uc *signing.SigningUseCase) *SigningHandler {
	return &SigningHandler{uc: uc}
}

// Sign firma el elemento indicado del documento.
// POST /api/v1/sign
func (h *SigningHandler) Sign(c *fiber.Ctx) error {
	var in dto.SignRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if strings.TrimSpace(in.XML) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "xml requerido"})
	}
	placement, ok := parsePlacement(in.Placement)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "placement debe ser target o parent"})
	}
	out, err := h.uc.Sign(c.UserContext(), signing.SignInput{
		XML:                    []byte(in.XML),
		ElementName:            in.ElementName,
		IDValue:                in.IDValue,
		IDAttribute:            in.IDAttribute,
		Placement:              placement,
		CanonicalizationMethod: in.CanonicalizationMethod,
		SignatureMethod:        in.SignatureMethod,
		DigestMethod:           in.DigestMethod,
		UserID:                 GetUserID(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.SignResponse{
		SignedXML:      string(out.SignedXML),
		DigestValue:    out.DigestValue,
		SignatureValue: out.SignatureValue,
		CertSubject:    out.CertSubject,
		CertThumbprint: out.CertThumbprint,
		RecordID:       out.RecordID,
	})
}

// Verify verifica la firma del documento. Una firma inválida responde 200 con valid=false.
// POST /api/v1/verify
func (h *SigningHandler) Verify(c *fiber.Ctx) error {
	var in dto.VerifyRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if strings.TrimSpace(in.XML) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "xml requerido"})
	}
	res := h.uc.Verify(c.UserContext(), []byte(in.XML))
	out := dto.VerifyResponse{Valid: res.Valid, Status: string(res.Status), Detail: res.Detail}
	if res.Signer != nil {
		out.SignerSubject = res.Signer.Subject.String()
		out.SignerNotAfter = res.Signer.NotAfter.UTC().Format("2006-01-02T15:04:05Z")
	}
	return c.JSON(out)
}

// GetRecord devuelve el registro de auditoría de una firma.
// GET /api/v1/signatures/:id
func (h *SigningHandler) GetRecord(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	rec, err := h.uc.GetRecord(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toRecordResponse(rec))
}

func parsePlacement(s string) (efinanceira.Placement, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "target":
		return efinanceira.PlacementTarget, true
	case "parent":
		return efinanceira.PlacementParent, true
	default:
		return 0, false
	}
}

func toRecordResponse(rec *entity.SignatureRecord) dto.SignatureRecordResponse {
	return dto.SignatureRecordResponse{
		ID:             rec.ID,
		Element:        rec.Element,
		ReferenceID:    rec.ReferenceID,
		DigestValue:    rec.DigestValue,
		DigestMethod:   rec.DigestMethod,
		CertSubject:    rec.CertSubject,
		CertThumbprint: rec.CertThumbprint,
		LoteID:         rec.LoteID,
		UserID:         rec.UserID,
		SignedAt:       rec.SignedAt,
	}
}
