package genai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
)

// stripFences removes a surrounding ```json fence if the model added one.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}

// rawDetection uses pointers so a missing key is distinguishable from a zero value.
type rawDetection struct {
	Title           *string   `json:"title"`
	Description     *string   `json:"description"`
	Severity        *string   `json:"severity"`
	AuthorityType   *string   `json:"authorityType"`
	DetectedObjects *[]string `json:"detectedObjects"`
	Confidence      *float64  `json:"confidence"`
	Reasoning       *string   `json:"reasoning"`
}

// ParseDetection validates a Stage 1 reply. Every field is required, enums
// must match, and confidence must lie in [0,1]. When allowed is non-empty the
// authority type must be one of them.
func ParseDetection(text string, allowed []domain.AuthorityCategory) (Detection, error) {
	var raw rawDetection
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return Detection{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	var missing []string
	if raw.Title == nil {
		missing = append(missing, "title")
	}
	if raw.Description == nil {
		missing = append(missing, "description")
	}
	if raw.Severity == nil {
		missing = append(missing, "severity")
	}
	if raw.AuthorityType == nil {
		missing = append(missing, "authorityType")
	}
	if raw.DetectedObjects == nil {
		missing = append(missing, "detectedObjects")
	}
	if raw.Confidence == nil {
		missing = append(missing, "confidence")
	}
	if raw.Reasoning == nil {
		missing = append(missing, "reasoning")
	}
	if len(missing) > 0 {
		return Detection{}, fmt.Errorf("%w: missing %s", ErrInvalidResponse, strings.Join(missing, ", "))
	}

	severity, err := domain.ParseSeverity(*raw.Severity)
	if err != nil {
		return Detection{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	category, err := domain.ParseAuthorityCategory(*raw.AuthorityType)
	if err != nil {
		return Detection{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(allowed) > 0 && !containsCategory(allowed, category) {
		return Detection{}, fmt.Errorf("%w: authority type %q not routable", ErrInvalidResponse, category)
	}
	if *raw.Confidence < 0 || *raw.Confidence > 1 {
		return Detection{}, fmt.Errorf("%w: confidence %v out of range", ErrInvalidResponse, *raw.Confidence)
	}
	if strings.TrimSpace(*raw.Title) == "" {
		return Detection{}, fmt.Errorf("%w: empty title", ErrInvalidResponse)
	}

	return Detection{
		Title:           strings.TrimSpace(*raw.Title),
		Description:     strings.TrimSpace(*raw.Description),
		Severity:        severity,
		AuthorityType:   category,
		DetectedObjects: append([]string(nil), (*raw.DetectedObjects)...),
		Confidence:      *raw.Confidence,
		Reasoning:       strings.TrimSpace(*raw.Reasoning),
	}, nil
}

type rawDrafts struct {
	EmailSubject    *string `json:"emailSubject"`
	EmailBody       *string `json:"emailBody"`
	WhatsappMessage *string `json:"whatsappMessage"`
}

// ParseDrafts validates a Stage 2 reply; all three texts must be present and non-empty.
func ParseDrafts(text string) (domain.Drafts, error) {
	var raw rawDrafts
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return domain.Drafts{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	fields := map[string]*string{
		"emailSubject":    raw.EmailSubject,
		"emailBody":       raw.EmailBody,
		"whatsappMessage": raw.WhatsappMessage,
	}
	for _, name := range []string{"emailSubject", "emailBody", "whatsappMessage"} {
		if v := fields[name]; v == nil || strings.TrimSpace(*v) == "" {
			return domain.Drafts{}, fmt.Errorf("%w: missing %s", ErrInvalidResponse, name)
		}
	}
	return domain.Drafts{
		EmailSubject:    strings.TrimSpace(*raw.EmailSubject),
		EmailBody:       strings.TrimSpace(*raw.EmailBody),
		WhatsappMessage: strings.TrimSpace(*raw.WhatsappMessage),
	}, nil
}

func containsCategory(list []domain.AuthorityCategory, c domain.AuthorityCategory) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

func categoryNames(list []domain.AuthorityCategory) []string {
	if len(list) == 0 {
		list = domain.AuthorityCategories
	}
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = fmt.Sprintf("%q", string(c))
	}
	return out
}
