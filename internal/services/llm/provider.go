package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/adforge/internal/common"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
)

const connectionTestPrompt = "Hello, this is a test. Please respond with 'OK'."

// ContentRequest represents a provider-agnostic content generation request
type ContentRequest struct {
	Prompt            string
	Model             string
	Temperature       float32
	MaxTokens         int
	SystemInstruction string
	// OutputSchema enables structured JSON output on Gemini.
	// Claude receives the same instruction through the prompt only.
	OutputSchema *genai.Schema
}

// ContentResponse represents a provider-agnostic content generation response
type ContentResponse struct {
	Text     string
	Provider ProviderType
	Model    string
}

// ProviderFactory creates and manages AI provider clients.
// Clients are created lazily on first use so the server can start without keys.
type ProviderFactory struct {
	geminiConfig *common.GeminiConfig
	claudeConfig *common.ClaudeConfig
	llmConfig    *common.LLMConfig
	logger       arbor.ILogger
	retryConfig  *GeminiRetryConfig

	mu           sync.Mutex
	geminiClient *genai.Client
	claudeClient anthropic.Client
	claudeAPIKey string
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(
	geminiConfig *common.GeminiConfig,
	claudeConfig *common.ClaudeConfig,
	llmConfig *common.LLMConfig,
	logger arbor.ILogger,
) *ProviderFactory {
	return &ProviderFactory{
		geminiConfig: geminiConfig,
		claudeConfig: claudeConfig,
		llmConfig:    llmConfig,
		logger:       logger,
		retryConfig:  NewDefaultRetryConfig(),
	}
}

// DetectProvider determines the provider type from a model string.
//   - "claude-haiku-4-5" or "claude/..." -> Claude
//   - "gemini-2.5-flash" or "gemini/..." -> Gemini
//   - "" -> llm.default_provider
func (f *ProviderFactory) DetectProvider(model string) ProviderType {
	if model == "" {
		return ProviderType(f.llmConfig.DefaultProvider)
	}

	model = strings.ToLower(model)

	if strings.HasPrefix(model, "claude/") || strings.HasPrefix(model, "anthropic/") || strings.HasPrefix(model, "claude-") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini/") || strings.HasPrefix(model, "google/") || strings.HasPrefix(model, "gemini-") {
		return ProviderGemini
	}

	return ProviderType(f.llmConfig.DefaultProvider)
}

// NormalizeModel removes provider prefix from model name if present
func (f *ProviderFactory) NormalizeModel(model string) string {
	prefixes := []string{"claude/", "anthropic/", "gemini/", "google/"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// DefaultTextModel returns the model used for drafting and reasoning
func (f *ProviderFactory) DefaultTextModel() string {
	if ProviderType(f.llmConfig.DefaultProvider) == ProviderClaude {
		return f.claudeConfig.Model
	}
	return f.geminiConfig.Model
}

// GetGeminiClient returns a Gemini client, creating one if necessary
func (f *ProviderFactory) GetGeminiClient(ctx context.Context) (*genai.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.geminiClient != nil {
		return f.geminiClient, nil
	}

	apiKey, err := common.ResolveAPIKey("gemini_api_key", f.geminiConfig.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Gemini API key: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	f.geminiClient = client
	return client, nil
}

// GetClaudeClient returns a Claude client, creating one if necessary
func (f *ProviderFactory) GetClaudeClient(ctx context.Context) (anthropic.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.claudeAPIKey != "" {
		return f.claudeClient, nil
	}

	apiKey, err := common.ResolveAPIKey("anthropic_api_key", f.claudeConfig.APIKey)
	if err != nil {
		return anthropic.Client{}, fmt.Errorf("failed to resolve Anthropic API key: %w", err)
	}

	f.claudeClient = anthropic.NewClient(option.WithAPIKey(apiKey))
	f.claudeAPIKey = apiKey
	return f.claudeClient, nil
}

// GenerateContent generates content using the appropriate provider based on model.
// The call is bounded by the provider's configured timeout.
func (f *ProviderFactory) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	if request == nil || strings.TrimSpace(request.Prompt) == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	provider := f.DetectProvider(request.Model)
	model := f.NormalizeModel(request.Model)

	f.logger.Debug().
		Str("provider", string(provider)).
		Str("model", model).
		Int("prompt_length", len(request.Prompt)).
		Msg("Generating content with provider")

	switch provider {
	case ProviderClaude:
		ctx, cancel := withTimeout(ctx, f.claudeConfig.Timeout)
		defer cancel()
		return f.generateWithClaude(ctx, request, model)
	default:
		ctx, cancel := withTimeout(ctx, f.geminiConfig.Timeout)
		defer cancel()
		return f.generateWithGemini(ctx, request, model)
	}
}

// GenerateText implements interfaces.TextGenerator with the default text model
func (f *ProviderFactory) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := f.GenerateContent(ctx, &ContentRequest{Prompt: prompt, Model: f.DefaultTextModel()})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// TestConnection asks the default text model for a trivial reply
func (f *ProviderFactory) TestConnection(ctx context.Context) (bool, error) {
	text, err := f.GenerateText(ctx, connectionTestPrompt)
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(text), "ok"), nil
}

// GenerateImages calls the Imagen endpoint through the Gemini client
func (f *ProviderFactory) GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	client, err := f.GetGeminiClient(ctx)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = f.geminiConfig.ImageModel
	}

	ctx, cancel := withTimeout(ctx, f.geminiConfig.Timeout)
	defer cancel()

	var resp *genai.GenerateImagesResponse
	err = f.withRetry(ctx, "Imagen", func() error {
		var callErr error
		resp, callErr = client.Models.GenerateImages(ctx, model, prompt, config)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// generateWithClaude generates content using Claude API
func (f *ProviderFactory) generateWithClaude(ctx context.Context, request *ContentRequest, model string) (*ContentResponse, error) {
	client, err := f.GetClaudeClient(ctx)
	if err != nil {
		return nil, err
	}

	if model == "" || f.DetectProvider(model) != ProviderClaude {
		model = f.claudeConfig.Model
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = f.claudeConfig.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(request.Prompt)),
		},
	}

	temp := request.Temperature
	if temp <= 0 {
		temp = f.claudeConfig.Temperature
	}
	if temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}

	systemText := request.SystemInstruction
	if request.OutputSchema != nil {
		systemText = strings.TrimSpace(systemText + "\nRespond with a single JSON object only. Do not wrap it in markdown.")
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemText}}
	}

	var resp *anthropic.Message
	err = f.withRetry(ctx, "Claude", func() error {
		var callErr error
		resp, callErr = client.Messages.New(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from Claude API")
	}

	return &ContentResponse{
		Text:     text.String(),
		Provider: ProviderClaude,
		Model:    model,
	}, nil
}

// generateWithGemini generates content using Gemini API
func (f *ProviderFactory) generateWithGemini(ctx context.Context, request *ContentRequest, model string) (*ContentResponse, error) {
	client, err := f.GetGeminiClient(ctx)
	if err != nil {
		return nil, err
	}

	if model == "" || f.DetectProvider(model) != ProviderGemini {
		model = f.geminiConfig.Model
	}

	temp := request.Temperature
	if temp <= 0 {
		temp = f.geminiConfig.Temperature
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temp),
	}
	if request.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(request.SystemInstruction, genai.RoleUser)
	}
	if request.OutputSchema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = request.OutputSchema
	}

	var resp *genai.GenerateContentResponse
	err = f.withRetry(ctx, "Gemini", func() error {
		var callErr error
		resp, callErr = client.Models.GenerateContent(ctx, model, genai.Text(request.Prompt), config)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini API")
	}

	responseText := resp.Text()
	if responseText == "" {
		return nil, fmt.Errorf("empty text in Gemini response")
	}

	return &ContentResponse{
		Text:     responseText,
		Provider: ProviderGemini,
		Model:    model,
	}, nil
}

// withRetry retries fn on rate-limit errors only. Any other error is returned at once.
func (f *ProviderFactory) withRetry(ctx context.Context, api string, fn func() error) error {
	var apiErr error
	for attempt := 0; attempt <= f.retryConfig.MaxRetries; attempt++ {
		apiErr = fn()
		if apiErr == nil {
			return nil
		}
		if !IsRateLimitError(apiErr) || attempt == f.retryConfig.MaxRetries {
			break
		}

		backoff := f.retryConfig.CalculateBackoff(attempt, ExtractRetryDelay(apiErr))

		f.logger.Warn().
			Str("api", api).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Rate limited, retrying API call")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("%s API call failed: %w", api, apiErr)
}

// Close drops cached clients
func (f *ProviderFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.geminiClient = nil
	f.claudeClient = anthropic.Client{}
	f.claudeAPIKey = ""
	return nil
}

func withTimeout(ctx context.Context, timeout string) (context.Context, context.CancelFunc) {
	d := common.ParseDurationOr(timeout, 0)
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
