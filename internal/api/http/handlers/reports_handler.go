package handlers

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-ticket-service/internal/api/dto"
	"github.com/spec-kit/civic-ticket-service/internal/domain"
	"github.com/spec-kit/civic-ticket-service/internal/evidence"
	"github.com/spec-kit/civic-ticket-service/internal/genai"
	"github.com/spec-kit/civic-ticket-service/internal/pipeline"
	apperrors "github.com/spec-kit/civic-ticket-service/pkg/util"
)

// ReportsHandler runs new reports through analysis before they become tickets.
type ReportsHandler struct {
	pipeline *pipeline.Pipeline
	evidence *evidence.Store
}

// NewReportsHandler constructs handler.
func NewReportsHandler(p *pipeline.Pipeline, store *evidence.Store) *ReportsHandler {
	return &ReportsHandler{pipeline: p, evidence: store}
}

// Analyze POST /reports/analyze. Accepts multipart fields image, text, lat,
// lng and address and returns the reviewable analysis without persisting a
// ticket.
func (h *ReportsHandler) Analyze(c *fiber.Ctx) error {
	sub := pipeline.Submission{
		Text:    strings.TrimSpace(c.FormValue("text")),
		Address: strings.TrimSpace(c.FormValue("address")),
	}

	loc, err := parseLocation(c.FormValue("lat"), c.FormValue("lng"))
	if err != nil {
		return err
	}
	sub.Location = loc

	if header, ferr := c.FormFile("image"); ferr == nil {
		if h.evidence.MaxBytes() > 0 && header.Size > h.evidence.MaxBytes() {
			return apperrors.NewPayloadTooLarge("image exceeds upload limit")
		}
		f, err := header.Open()
		if err != nil {
			return apperrors.NewValidationError("unreadable image", nil)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return apperrors.NewValidationError("unreadable image", nil)
		}
		obj, err := h.evidence.Put(c.UserContext(), data)
		if err != nil {
			return evidenceError(err)
		}
		sub.Image = genai.Image{MediaType: obj.MediaType, Data: data}
		sub.ImageURL = obj.URL()
	}

	if len(sub.Image.Data) == 0 && sub.Text == "" {
		return apperrors.NewValidationError("image or text required", nil)
	}

	analysis, err := h.pipeline.Analyze(c.UserContext(), sub)
	if err != nil {
		if errors.Is(err, pipeline.ErrDraftFailed) {
			return apperrors.NewUpstreamError("draft generation failed", err)
		}
		return err
	}
	return c.JSON(fiber.Map{"data": analysisResponse(analysis)})
}

func parseLocation(latRaw, lngRaw string) (*domain.Coordinates, error) {
	latRaw, lngRaw = strings.TrimSpace(latRaw), strings.TrimSpace(lngRaw)
	if latRaw == "" && lngRaw == "" {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, apperrors.NewValidationError("invalid lat", map[string]any{"lat": latRaw})
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil || lng < -180 || lng > 180 {
		return nil, apperrors.NewValidationError("invalid lng", map[string]any{"lng": lngRaw})
	}
	return &domain.Coordinates{Lat: lat, Lng: lng}, nil
}

func evidenceError(err error) error {
	switch {
	case errors.Is(err, evidence.ErrTooLarge):
		return apperrors.NewPayloadTooLarge("image exceeds upload limit")
	case errors.Is(err, evidence.ErrUnsupportedType):
		return apperrors.NewValidationError("unsupported image type", nil)
	case errors.Is(err, evidence.ErrEmpty):
		return apperrors.NewValidationError("image is empty", nil)
	}
	return err
}

func analysisResponse(a *pipeline.Analysis) dto.AnalysisResponse {
	return dto.AnalysisResponse{
		State:           string(a.State),
		Fallback:        a.Fallback,
		Title:           a.Detection.Title,
		Description:     a.Detection.Description,
		Severity:        a.Detection.Severity,
		AuthorityType:   string(a.Detection.AuthorityType),
		DetectedObjects: a.Detection.DetectedObjects,
		Confidence:      a.Detection.Confidence,
		Reasoning:       a.Detection.Reasoning,
		Authority:       authorityResponse(a.Authority),
		Location:        a.Location,
		Address:         a.Address,
		ImageURL:        a.ImageURL,
		Drafts: dto.DraftsPayload{
			EmailSubject:    a.Drafts.EmailSubject,
			EmailBody:       a.Drafts.EmailBody,
			WhatsappMessage: a.Drafts.WhatsappMessage,
		},
	}
}
