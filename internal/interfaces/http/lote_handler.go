package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/efinanceira-api/internal/application/dto"
	"github.com/jhoicas/efinanceira-api/internal/application/signing"
	"github.com/jhoicas/efinanceira-api/internal/domain"
)

// LoteHandler arma, firma y transmite lotes de eventos (protegido).
type LoteHandler struct {
	uc *signing.LoteUseCase
}

// NewLoteHandler construye el handler.
func NewLoteHandler(uc *signing.LoteUseCase) *LoteHandler {
	return &LoteHandler{uc: uc}
}

// Build arma un envioLoteEventos con los eventos dados; el transmisor es el CNPJ del token
// (validado por RequireCNPJ).
// POST /api/v1/lotes/build
func (h *LoteHandler) Build(c *fiber.Ctx) error {
	var in dto.BuildLoteRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	events := make([][]byte, len(in.Events))
	for i, ev := range in.Events {
		events[i] = []byte(ev)
	}
	lote, err := signing.BuildLote(GetCNPJ(c), events)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.BuildLoteResponse{XML: string(lote), Events: len(events)})
}

// Sign firma todos los eventos del lote.
// POST /api/v1/lotes/sign
func (h *LoteHandler) Sign(c *fiber.Ctx) error {
	var in dto.LoteRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if strings.TrimSpace(in.XML) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "xml requerido"})
	}
	res, err := h.uc.SignLote(c.UserContext(), []byte(in.XML), GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	out := dto.LoteSignResponse{
		LoteID:    res.LoteID,
		SignedXML: string(res.SignedXML),
		Events:    make([]dto.SignedEventResponse, len(res.Events)),
	}
	for i, ev := range res.Events {
		out.Events[i] = dto.SignedEventResponse{
			Name:           ev.Name,
			ID:             ev.ID,
			DigestValue:    ev.DigestValue,
			CertThumbprint: ev.CertThumbprint,
		}
	}
	return c.JSON(out)
}

// Send firma (por defecto) y transmite el lote al WsRecepcao.
// Un lote rechazado responde 422 con el retorno completo.
// POST /api/v1/lotes/send
func (h *LoteHandler) Send(c *fiber.Ctx) error {
	var in dto.LoteRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if strings.TrimSpace(in.XML) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "xml requerido"})
	}
	sign := in.Sign == nil || *in.Sign
	res, err := h.uc.SendLote(c.UserContext(), []byte(in.XML), GetUserID(c), sign)
	if err != nil {
		if errors.Is(err, domain.ErrLoteRejected) && res != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(toSendResponse(res))
		}
		return writeError(c, err)
	}
	return c.JSON(toSendResponse(res))
}

func toSendResponse(res *signing.SubmitResult) dto.LoteSendResponse {
	out := dto.LoteSendResponse{
		Protocol:    res.Protocol,
		Accepted:    res.Accepted,
		Code:        res.Code,
		Description: res.Description,
	}
	for _, o := range res.Occurrences {
		out.Occurrences = append(out.Occurrences, dto.OccurrenceResponse{Code: o.Code, Description: o.Description, Type: o.Type})
	}
	return out
}
