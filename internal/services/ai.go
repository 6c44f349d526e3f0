package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aravindsuri/dqagent/pkg/logger"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aravindsuri/dqagent/internal/config"
	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
	"gorm.io/gorm"
)

// defaultQuestionPrompt is the built-in template used when no default prompt
// template exists in the database. Placeholders are replaced per run.
const defaultQuestionPrompt = `You are a data quality analyst reviewing the monthly data quality report for {{COUNTRY}} (report date {{REPORT_DATE}}).

Report findings:
{{REPORT_FINDINGS}}

Focus areas: {{FOCUS_AREAS}}

Write follow-up questions for the local market team about these findings. Respond with a JSON array only, no surrounding prose. Each element must have this shape:

{
  "category": "Overview" | "Errors" | "Warnings" | "Writeoffs" | "Additional Information",
  "priority": "critical" | "high" | "medium" | "low",
  "question_text": "the question",
  "context": "which finding prompted it",
  "expected_response_type": "text" | "structured" | "file_upload",
  "validation_rules": ["min_length:50"],
  "related_data": {},
  "follow_up_questions": [],
  "order_sequence": 1,
  "confidence_score": 0.9
}

Ask only about findings present in the report, reference the actual amounts and counts, and order questions by severity.`

// AIService generates question candidates through external LLM providers.
// Providers come from the ai_provider_configs table ordered by priority;
// when a provider fails the next one is tried. The file config seeds the
// table on first start and acts as a fallback when the table is empty.
type AIService struct {
	db     *gorm.DB
	cfg    *config.AIConfig
	sysCfg *SystemConfigService
	usage  *AIUsageService
}

func NewAIService(db *gorm.DB, cfg *config.AIConfig) *AIService {
	return &AIService{
		db:     db,
		cfg:    cfg,
		sysCfg: NewSystemConfigService(db),
		usage:  NewAIUsageService(db),
	}
}

func (s *AIService) Name() string { return "ai" }

// Generate implements CandidateSource. Each provider in priority order gets
// one attempt; a malformed reply counts as a provider failure. An empty but
// well-formed array is returned as-is so the source chain can fall through.
func (s *AIService) Generate(ctx context.Context, req *GenerationRequest, report *models.DQReport) ([]QuestionCandidate, error) {
	if s.sysCfg.GetWithDefault("ai_generation_enabled", "true") != "true" {
		logger.Debug().Msg("AI generation disabled, falling through")
		return nil, nil
	}

	providers := s.orderedProviders()
	if len(providers) == 0 {
		return nil, fmt.Errorf("no AI provider configured")
	}

	prompt := s.buildPrompt(req, report)

	var lastErr error
	for i, provider := range providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logger.Debug().
			Str("provider", provider.Provider).
			Str("model", provider.Model).
			Int("attempt", i+1).
			Int("providers", len(providers)).
			Msg("calling AI provider")

		started := time.Now()
		content, err := s.callProvider(ctx, &provider, prompt)
		latency := time.Since(started).Milliseconds()
		if err != nil {
			lastErr = err
			s.recordUsage(&provider, req, 0, latency, err)
			logger.Warn().Err(err).Str("provider", provider.Name).Msg("AI provider failed, trying next")
			continue
		}

		candidates, err := parseCandidates(content)
		if err != nil {
			lastErr = fmt.Errorf("provider %s returned malformed candidates: %w", provider.Name, err)
			s.recordUsage(&provider, req, 0, latency, err)
			logger.Warn().Err(err).Str("provider", provider.Name).Msg("could not parse AI response")
			continue
		}

		for j := range candidates {
			candidates[j].GeneratedByAI = true
		}
		s.recordUsage(&provider, req, len(candidates), latency, nil)
		logger.Info().
			Str("provider", provider.Name).
			Int("candidates", len(candidates)).
			Msg("AI provider returned candidates")
		return candidates, nil
	}

	return nil, fmt.Errorf("all AI providers failed: %w", lastErr)
}

func (s *AIService) recordUsage(provider *models.AIProviderConfig, req *GenerationRequest, candidates int, latencyMs int64, callErr error) {
	entry := &models.AIUsageLog{
		Provider:   provider.Provider,
		Model:      provider.Model,
		Country:    req.Country,
		ReportDate: req.ReportDate,
		Candidates: candidates,
		LatencyMs:  latencyMs,
		Success:    callErr == nil,
		CreatedAt:  time.Now(),
	}
	if callErr != nil {
		msg := callErr.Error()
		if len(msg) > 500 {
			msg = msg[:500]
		}
		entry.ErrorMessage = msg
	}
	s.usage.Record(entry)
}

// TestProvider sends a short probe prompt through one configured provider so
// admins can verify credentials and connectivity.
func (s *AIService) TestProvider(ctx context.Context, providerID uint) (string, error) {
	var provider models.AIProviderConfig
	if err := s.db.Where("id = ?", providerID).First(&provider).Error; err != nil {
		return "", fmt.Errorf("provider not found: %w", err)
	}
	return s.callProvider(ctx, &provider, "Reply with the single word: ok")
}

func (s *AIService) orderedProviders() []models.AIProviderConfig {
	var providers []models.AIProviderConfig
	s.db.Where("is_active = ?", true).Order("priority ASC, id ASC").Find(&providers)
	if len(providers) > 0 {
		return providers
	}

	if s.cfg == nil {
		return nil
	}
	for _, p := range s.cfg.Providers {
		if !p.Enabled {
			continue
		}
		providers = append(providers, models.AIProviderConfig{
			Name:     p.Provider,
			Provider: p.Provider,
			BaseURL:  p.BaseURL,
			APIKey:   p.APIKey,
			Model:    p.Model,
			Priority: p.Priority,
		})
	}
	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].Priority < providers[j].Priority
	})
	return providers
}

func (s *AIService) buildPrompt(req *GenerationRequest, report *models.DQReport) string {
	prompt := s.promptTemplate()

	focus := strings.Join(req.FocusAreas, ", ")
	if focus == "" {
		focus = "all areas"
	}

	prompt = strings.ReplaceAll(prompt, "{{COUNTRY}}", req.Country)
	prompt = strings.ReplaceAll(prompt, "{{REPORT_DATE}}", req.ReportDate)
	prompt = strings.ReplaceAll(prompt, "{{FOCUS_AREAS}}", focus)
	prompt = strings.ReplaceAll(prompt, "{{REPORT_FINDINGS}}", ReportFindings(report, req.Thresholds))
	return prompt
}

func (s *AIService) promptTemplate() string {
	var tpl models.PromptTemplate
	if err := s.db.Where("is_default = ?", true).First(&tpl).Error; err == nil && tpl.Content != "" {
		logger.Debug().Str("template", tpl.Name).Msg("using default prompt template")
		return tpl.Content
	}
	return defaultQuestionPrompt
}

// parseCandidates extracts the JSON candidate array from an LLM reply,
// tolerating markdown fences and surrounding prose.
func parseCandidates(content string) ([]QuestionCandidate, error) {
	text := strings.TrimSpace(content)

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var candidates []QuestionCandidate
	if err := json.Unmarshal([]byte(text[start:end+1]), &candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}

// callProvider dispatches to the provider-specific call based on the Provider
// field.
func (s *AIService) callProvider(ctx context.Context, provider *models.AIProviderConfig, prompt string) (string, error) {
	switch provider.Provider {
	case "anthropic":
		return s.callAnthropic(ctx, provider, prompt)
	case "ollama":
		return s.callOllama(ctx, provider, prompt)
	case "gemini":
		return s.callGemini(ctx, provider, prompt)
	case "azure":
		return s.callAzure(ctx, provider, prompt)
	default:
		// openai and OpenAI-compatible endpoints
		return s.callOpenAI(ctx, provider, prompt)
	}
}

// callOpenAI handles OpenAI and OpenAI-compatible APIs (including custom
// endpoints).
func (s *AIService) callOpenAI(ctx context.Context, provider *models.AIProviderConfig, prompt string) (string, error) {
	clientConfig := openai.DefaultConfig(provider.APIKey)
	if provider.BaseURL != "" {
		clientConfig.BaseURL = provider.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	temperature := float32(0.3)
	if provider.Temperature > 0 {
		temperature = float32(provider.Temperature)
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: provider.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

// callAnthropic handles the Anthropic Claude API using the native SDK.
func (s *AIService) callAnthropic(ctx context.Context, provider *models.AIProviderConfig, prompt string) (string, error) {
	client := anthropic.NewClient(
		option.WithAPIKey(provider.APIKey),
	)

	maxTokens := int64(provider.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	model := provider.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	return content, nil
}

// callOllama handles the Ollama API using the native SDK.
func (s *AIService) callOllama(ctx context.Context, provider *models.AIProviderConfig, prompt string) (string, error) {
	baseURL := provider.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	client := api.NewClient(u, http.DefaultClient)

	model := provider.Model
	if model == "" {
		model = "llama3"
	}

	var content strings.Builder
	err = client.Chat(ctx, &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{Role: "user", Content: prompt},
		},
		Options: map[string]interface{}{
			"temperature": provider.Temperature,
		},
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("Ollama API error: %w", err)
	}

	return content.String(), nil
}

// callGemini handles the Google Gemini API using the native SDK.
func (s *AIService) callGemini(ctx context.Context, provider *models.AIProviderConfig, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: provider.APIKey,
	})
	if err != nil {
		return "", fmt.Errorf("Gemini client error: %w", err)
	}

	model := provider.Model
	if model == "" {
		model = "gemini-3.0-flash"
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	return resp.Text(), nil
}

// callAzure handles Azure OpenAI. BaseURL must be the resource endpoint and
// the Model field holds the deployment name.
func (s *AIService) callAzure(ctx context.Context, provider *models.AIProviderConfig, prompt string) (string, error) {
	clientConfig := openai.DefaultAzureConfig(provider.APIKey, provider.BaseURL)
	client := openai.NewClientWithConfig(clientConfig)

	temperature := float32(0.3)
	if provider.Temperature > 0 {
		temperature = float32(provider.Temperature)
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: provider.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("Azure OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from Azure OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}
