package genai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
)

// StubAnalyzer is a deterministic, no-network analyzer for local runs and
// end-to-end tests. It classifies by keywords in the citizen's text.
type StubAnalyzer struct{}

// NewStubAnalyzer returns a stub analyzer.
func NewStubAnalyzer() *StubAnalyzer { return &StubAnalyzer{} }

type stubRule struct {
	keywords []string
	object   string
	category domain.AuthorityCategory
	severity domain.Severity
}

var stubRules = []stubRule{
	{keywords: []string{"live wire", "sparking", "fire"}, object: "exposed wiring", category: domain.CategoryElectricityBoard, severity: domain.SeverityEmergency},
	{keywords: []string{"streetlight", "street light", "pole", "wire"}, object: "street light", category: domain.CategoryElectricityBoard, severity: domain.SeverityMedium},
	{keywords: []string{"leak", "pipe", "water", "sewage"}, object: "water leak", category: domain.CategoryWaterBoard, severity: domain.SeverityHigh},
	{keywords: []string{"signal", "traffic", "parking"}, object: "traffic signal", category: domain.CategoryTrafficPolice, severity: domain.SeverityMedium},
	{keywords: []string{"garbage", "trash", "litter", "waste"}, object: "garbage", category: domain.CategoryCorporation, severity: domain.SeverityLow},
	{keywords: []string{"pothole", "road", "crack"}, object: "pothole", category: domain.CategoryCorporation, severity: domain.SeverityMedium},
}

func (s *StubAnalyzer) Detect(ctx context.Context, req DetectRequest) (Detection, error) {
	if err := ctx.Err(); err != nil {
		return Detection{}, err
	}
	sum := sha256.Sum256(append([]byte(req.Context), req.Image.Data...))
	short := hex.EncodeToString(sum[:4])

	text := strings.ToLower(req.Context)
	rule := stubRule{object: "civic issue", category: domain.CategoryCorporation, severity: domain.SeverityMedium}
	for _, r := range stubRules {
		if matchesAny(text, r.keywords) {
			rule = r
			break
		}
	}
	if len(req.Categories) > 0 && !containsCategory(req.Categories, rule.category) {
		rule.category = req.Categories[0]
	}

	return Detection{
		Title:           fmt.Sprintf("Reported %s (%s)", rule.object, short),
		Description:     fmt.Sprintf("Stubbed analysis for: %s", truncate(strings.TrimSpace(req.Context), 120)),
		Severity:        rule.severity,
		AuthorityType:   rule.category,
		DetectedObjects: []string{rule.object},
		Confidence:      0.75,
		Reasoning:       "keyword match on citizen description",
	}, nil
}

func (s *StubAnalyzer) Draft(ctx context.Context, req DraftRequest) (domain.Drafts, error) {
	if err := ctx.Err(); err != nil {
		return domain.Drafts{}, err
	}
	d := req.Detection
	return domain.Drafts{
		EmailSubject: fmt.Sprintf("[%s] %s at %s", d.Severity, d.Title, req.Address),
		EmailBody: fmt.Sprintf("Dear Sir/Madam,\n\nI wish to report the following issue at %s.\n\n%s\n\n"+
			"As a resident I request that this %s-severity matter is addressed at the earliest.\n\nSincerely,\nA concerned citizen",
			req.Address, d.Description, strings.ToLower(string(d.Severity))),
		WhatsappMessage: fmt.Sprintf("URGENT: %s at %s. Please act.", d.Title, req.Address),
	}, nil
}

func (s *StubAnalyzer) Persona(ctx context.Context, req PersonaRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Thank you for reporting ticket #%s (%q). It is rated %s and our teams aim to resolve it within %s. We appreciate your patience.",
		req.TicketID, req.Title, req.Severity, req.ResolutionWindow), nil
}

func matchesAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
