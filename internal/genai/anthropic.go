package genai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
)

const (
	detectMaxTokens  = 1024
	draftMaxTokens   = 1536
	personaMaxTokens = 100
)

// AnthropicAnalyzer runs the three stages against the Anthropic Messages API.
type AnthropicAnalyzer struct {
	api    *anthropic.Client
	model  anthropic.Model
	logger *zap.Logger
}

// NewAnthropicAnalyzer creates a client with the given API key and model.
// Extra options are passed through to the SDK (base URL, HTTP client).
func NewAnthropicAnalyzer(apiKey, model string, logger *zap.Logger, extra ...option.RequestOption) *AnthropicAnalyzer {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	opts = append(opts, extra...)
	client := anthropic.NewClient(opts...)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnthropicAnalyzer{
		api:    &client,
		model:  anthropic.Model(model),
		logger: logger,
	}
}

func buildDetectPrompt(req DetectRequest) (system string, user string) {
	system = `You are an expert autonomous civic issue detector.
Analyze the image and user description to identify civic infrastructure problems (potholes, garbage, broken lights, water leaks, etc.).
Determine the severity based on public safety impact.
Identify the likely responsible authority type (e.g. Corporation for roads/garbage, Water Board for leaks, Electricity Board for poles).
Return ONLY a JSON object with these fields:
- "title": short title of the issue (e.g. "Severe Pothole on Main St")
- "description": detailed technical description of the damage
- "severity": one of "Low", "Medium", "High", "Emergency"
- "authorityType": one of ` + strings.Join(categoryNames(req.Categories), ", ") + `
- "detectedObjects": array of strings
- "confidence": number between 0.0 and 1.0
- "reasoning": brief explanation of the identification and the chosen severity
All fields are required. Return valid JSON only, no markdown fencing or explanation.`

	if strings.TrimSpace(req.Context) != "" {
		user = "Additional user context: " + strings.TrimSpace(req.Context)
	} else {
		user = "Analyze this civic issue."
	}
	return
}

func buildDraftPrompt(req DraftRequest) (system string, user string) {
	system = `You draft formal civic complaints. Return ONLY a JSON object with exactly three fields:
- "emailSubject": formal, citing severity
- "emailBody": polite, citing citizen rights, requesting immediate action
- "whatsappMessage": short, urgent, includes the location
Return valid JSON only, no markdown fencing or explanation.`

	var sb strings.Builder
	sb.WriteString("Draft a formal complaint for:\n")
	sb.WriteString("Issue: ")
	sb.WriteString(req.Detection.Title)
	sb.WriteString("\nDetails: ")
	sb.WriteString(req.Detection.Description)
	sb.WriteString("\nLocation: ")
	sb.WriteString(req.Address)
	sb.WriteString("\nSeverity: ")
	sb.WriteString(string(req.Detection.Severity))
	sb.WriteString("\n")
	user = sb.String()
	return
}

func buildPersonaPrompt(req PersonaRequest) (system string, user string) {
	system = fmt.Sprintf(`You are the "Virtual Commissioner", an AI representative of the city administration.
Your goal is to reassure the citizen that their ticket (ID: %s) regarding "%s" is being looked into.
Be empathetic but professional. Mention the severity (%s) and that the expected resolution time is %s.
Keep it under 50 words.`, req.TicketID, req.Title, req.Severity, req.ResolutionWindow)
	user = "Generate a status update response."
	return
}

// Detect sends the image, when there is one, and optional context and
// validates the structured reply.
func (a *AnthropicAnalyzer) Detect(ctx context.Context, req DetectRequest) (Detection, error) {
	systemPrompt, userPrompt := buildDetectPrompt(req)
	blocks := make([]anthropic.ContentBlockParamUnion, 0, 2)
	if len(req.Image.Data) > 0 {
		mediaType := req.Image.MediaType
		if mediaType == "" {
			mediaType = "image/jpeg"
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(req.Image.Data)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(userPrompt))

	text, err := a.complete(ctx, systemPrompt, detectMaxTokens, blocks...)
	if err != nil {
		return Detection{}, err
	}
	detection, err := ParseDetection(text, req.Categories)
	if err != nil {
		a.logger.Debug("detect reply rejected", zap.String("raw", text), zap.Error(err))
		return Detection{}, err
	}
	return detection, nil
}

// Draft produces outreach text from the detection and the resolved address.
func (a *AnthropicAnalyzer) Draft(ctx context.Context, req DraftRequest) (domain.Drafts, error) {
	systemPrompt, userPrompt := buildDraftPrompt(req)
	text, err := a.complete(ctx, systemPrompt, draftMaxTokens, anthropic.NewTextBlock(userPrompt))
	if err != nil {
		return domain.Drafts{}, err
	}
	return ParseDrafts(text)
}

// Persona returns the short commissioner status update.
func (a *AnthropicAnalyzer) Persona(ctx context.Context, req PersonaRequest) (string, error) {
	systemPrompt, userPrompt := buildPersonaPrompt(req)
	text, err := a.complete(ctx, systemPrompt, personaMaxTokens, anthropic.NewTextBlock(userPrompt))
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty persona reply", ErrInvalidResponse)
	}
	return text, nil
}

func (a *AnthropicAnalyzer) complete(ctx context.Context, system string, maxTokens int64, blocks ...anthropic.ContentBlockParamUnion) (string, error) {
	msg, err := a.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("%w: no text content in API response", ErrInvalidResponse)
	}
	return text, nil
}
