package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
	"github.com/spec-kit/civic-ticket-service/internal/genai"
	"github.com/spec-kit/civic-ticket-service/internal/observability"
	"github.com/spec-kit/civic-ticket-service/internal/repository"
	"github.com/spec-kit/civic-ticket-service/internal/service"
)

var (
	// ErrDraftFailed wraps a Stage 2 failure. The submission is aborted.
	ErrDraftFailed = errors.New("draft stage failed")
	// ErrPersonaFailed wraps a Stage 3 failure.
	ErrPersonaFailed = errors.New("persona stage failed")
)

// State is a pipeline run's position.
type State string

const (
	StateDetecting State = "detecting"
	StateDrafting  State = "drafting"
	StateReady     State = "ready"
	StateFailed    State = "failed"
)

const (
	unknownLocation   = "Unknown Location"
	fallbackTitle     = "Civic Issue Detected"
	fallbackDesc      = "Unable to analyze details specifically. Please review manually."
	fallbackReasoning = "fallback"
	fallbackObject    = "unknown"
	fallbackScore     = 0.5
)

// ReverseGeocoder turns coordinates into a short address.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, at domain.Coordinates) (string, error)
}

// Submission is one citizen report.
type Submission struct {
	Image    genai.Image
	Text     string
	Location *domain.Coordinates
	// Address, when set, is used as-is instead of reverse geocoding.
	Address  string
	ImageURL string
}

// Analysis is the result of Stages 1 and 2, ready for review and commit.
type Analysis struct {
	State     State
	Detection genai.Detection
	// Fallback is set when Stage 1 failed and Detection holds the stub record.
	Fallback  bool
	Authority domain.Authority
	Location  domain.Coordinates
	Address   string
	Drafts    domain.Drafts
	ImageURL  string
}

// Pipeline runs Detect → Draft for submissions and Persona for committed tickets.
type Pipeline struct {
	analyzer    genai.Analyzer
	authorities repository.AuthorityRegistry
	geocoder    ReverseGeocoder
	windows     ResolutionTable
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// Dependencies bundles the pipeline collaborators. Geocoder is optional.
type Dependencies struct {
	Analyzer    genai.Analyzer
	Authorities repository.AuthorityRegistry
	Geocoder    ReverseGeocoder
	Windows     ResolutionTable
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// New builds a pipeline.
func New(deps Dependencies) *Pipeline {
	return &Pipeline{
		analyzer:    deps.Analyzer,
		authorities: deps.Authorities,
		geocoder:    deps.Geocoder,
		windows:     deps.Windows,
		metrics:     deps.Metrics,
		logger:      observability.OrNop(deps.Logger),
	}
}

// Analyze runs the submission through Detecting and Drafting. A Detect failure
// never aborts the run; a Draft failure returns the Failed analysis and an
// error wrapping ErrDraftFailed.
func (p *Pipeline) Analyze(ctx context.Context, sub Submission) (*Analysis, error) {
	run := &Analysis{State: StateDetecting, ImageURL: sub.ImageURL}
	if sub.Location != nil {
		run.Location = *sub.Location
	}

	for {
		switch run.State {
		case StateDetecting:
			p.detect(ctx, sub, run)
			run.State = StateDrafting
		case StateDrafting:
			run.Address = p.resolveAddress(ctx, sub)
			drafts, err := p.analyzer.Draft(ctx, genai.DraftRequest{Detection: run.Detection, Address: run.Address})
			if err != nil {
				p.metrics.PipelineStage("draft", "error")
				p.logger.Warn("draft stage failed", zap.String("stage", "draft"), zap.Error(err))
				run.State = StateFailed
				return run, fmt.Errorf("%w: %w", ErrDraftFailed, err)
			}
			p.metrics.PipelineStage("draft", "ok")
			run.Drafts = drafts
			run.State = StateReady
		case StateReady:
			return run, nil
		default:
			return run, fmt.Errorf("pipeline in unexpected state %q", run.State)
		}
	}
}

func (p *Pipeline) detect(ctx context.Context, sub Submission, run *Analysis) {
	detection, err := p.analyzer.Detect(ctx, genai.DetectRequest{
		Image:      sub.Image,
		Context:    sub.Text,
		Categories: p.authorities.Categories(),
	})
	if err != nil {
		p.metrics.PipelineStage("detect", "fallback")
		p.metrics.PipelineFallback()
		p.logger.Warn("detect stage failed; using fallback", zap.String("stage", "detect"), zap.Error(err))
		run.Detection = p.fallbackDetection()
		run.Fallback = true
	} else {
		p.metrics.PipelineStage("detect", "ok")
		run.Detection = detection
	}
	run.Authority = p.authorities.Resolve(run.Detection.AuthorityType)
}

// fallbackDetection is the deterministic record used when Stage 1 fails.
func (p *Pipeline) fallbackDetection() genai.Detection {
	return genai.Detection{
		Title:           fallbackTitle,
		Description:     fallbackDesc,
		Severity:        domain.SeverityMedium,
		AuthorityType:   p.authorities.Default().Category,
		DetectedObjects: []string{fallbackObject},
		Confidence:      fallbackScore,
		Reasoning:       fallbackReasoning,
	}
}

func (p *Pipeline) resolveAddress(ctx context.Context, sub Submission) string {
	if addr := strings.TrimSpace(sub.Address); addr != "" {
		return addr
	}
	if sub.Location == nil || sub.Location.IsZero() {
		return unknownLocation
	}
	if p.geocoder != nil {
		addr, err := p.geocoder.Reverse(ctx, *sub.Location)
		if err == nil && strings.TrimSpace(addr) != "" {
			return addr
		}
		if err != nil {
			p.logger.Warn("reverse geocode failed", zap.Error(err))
		}
	}
	return formatCoordinates(*sub.Location)
}

func formatCoordinates(c domain.Coordinates) string {
	return fmt.Sprintf("%.4f, %.4f", c.Lat, c.Lng)
}

// TicketDraft turns a reviewed analysis into the lifecycle API's create input.
// A valid override replaces the stored severity; the detected severity stays in
// the analysis record either way.
func TicketDraft(a Analysis, override domain.Severity) service.TicketDraft {
	severity := a.Detection.Severity
	if override.Valid() {
		severity = override
	}
	return service.TicketDraft{
		Title:       a.Detection.Title,
		Description: a.Detection.Description,
		ImageURL:    a.ImageURL,
		Severity:    severity,
		Location:    a.Location,
		Address:     a.Address,
		AuthorityID: a.Authority.ID,
		AIAnalysis: &domain.AIAnalysis{
			DetectedObjects:  append([]string(nil), a.Detection.DetectedObjects...),
			Confidence:       a.Detection.Confidence,
			Reasoning:        a.Detection.Reasoning,
			DetectedSeverity: a.Detection.Severity,
		},
		Drafts: &domain.Drafts{
			EmailSubject:    a.Drafts.EmailSubject,
			EmailBody:       a.Drafts.EmailBody,
			WhatsappMessage: a.Drafts.WhatsappMessage,
		},
	}
}

// Persona runs Stage 3 for a committed ticket.
func (p *Pipeline) Persona(ctx context.Context, ticket domain.Ticket) (string, error) {
	reply, err := p.analyzer.Persona(ctx, genai.PersonaRequest{
		TicketID:         ticket.ID,
		Title:            ticket.Title,
		Severity:         ticket.Severity,
		ResolutionWindow: p.windows.Window(ticket.Severity),
	})
	if err != nil {
		p.metrics.PipelineStage("persona", "error")
		return "", fmt.Errorf("%w: %w", ErrPersonaFailed, err)
	}
	p.metrics.PipelineStage("persona", "ok")
	return reply, nil
}
