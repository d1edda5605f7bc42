// Package genai is the generative-analysis collaborator: one call per
// pipeline stage, structured output for Detect and Draft, free text for Persona.
package genai

import (
	"context"
	"errors"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
)

// ErrInvalidResponse marks a model reply that failed schema validation.
var ErrInvalidResponse = errors.New("invalid model response")

// Image is the evidence photo sent to the detection stage.
type Image struct {
	MediaType string
	Data      []byte
}

// DetectRequest is the Stage 1 input.
type DetectRequest struct {
	Image Image
	// Context is optional free text from the citizen.
	Context string
	// Categories constrains the returned authorityType.
	Categories []domain.AuthorityCategory
}

// Detection is the Stage 1 output.
type Detection struct {
	Title           string                   `json:"title"`
	Description     string                   `json:"description"`
	Severity        domain.Severity          `json:"severity"`
	AuthorityType   domain.AuthorityCategory `json:"authorityType"`
	DetectedObjects []string                 `json:"detectedObjects"`
	Confidence      float64                  `json:"confidence"`
	Reasoning       string                   `json:"reasoning"`
}

// DraftRequest is the Stage 2 input. It never carries the image.
type DraftRequest struct {
	Detection Detection
	Address   string
}

// PersonaRequest is the Stage 3 input, built from a committed ticket.
type PersonaRequest struct {
	TicketID         string
	Title            string
	Severity         domain.Severity
	ResolutionWindow string
}

// Analyzer runs the three generative stages.
type Analyzer interface {
	Detect(ctx context.Context, req DetectRequest) (Detection, error)
	Draft(ctx context.Context, req DraftRequest) (domain.Drafts, error)
	Persona(ctx context.Context, req PersonaRequest) (string, error)
}
