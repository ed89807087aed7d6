package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/adforge/internal/models"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"
)

// contentGenerator is the part of ProviderFactory the script service needs
type contentGenerator interface {
	GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error)
}

// campaignSchema constrains the drafting response to {campaigns:[{audience,script,imagePrompt}]}
var campaignSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"campaigns": {
			Type:        genai.TypeArray,
			Description: "A list of ad campaigns, one for each target audience.",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"audience": {
						Type:        genai.TypeString,
						Description: "The target audience for this ad variant.",
					},
					"script": {
						Type:        genai.TypeString,
						Description: "A short, punchy ad script (1-2 sentences) for the visual.",
					},
					"imagePrompt": {
						Type:        genai.TypeString,
						Description: "A detailed, descriptive prompt for a text-to-image model to create a high-quality, photorealistic ad creative based on the script and audience.",
					},
				},
				Required: []string{"audience", "script", "imagePrompt"},
			},
		},
	},
	Required: []string{"campaigns"},
}

const draftPromptTemplate = `You are a world-class creative director for an advertising agency.
Your task is to generate a set of distinct ad campaign concepts for a product based on a description and a list of target audiences.

Product Description: %q
Target Audiences: %q

For each audience, create one unique campaign concept. Each concept must include:
1. The target audience name.
2. A short, compelling ad script (1-2 sentences) to be used as copy.
3. A detailed text-to-image prompt that describes the scene, subjects, actions, style (e.g., photorealistic, vibrant, cinematic), and mood for an ad image. The prompt should be vivid and specific enough for an AI image generation model to create a high-quality visual.

Return the output in the specified JSON format: {"campaigns":[{"audience":"...","script":"...","imagePrompt":"..."}]}`

// ScriptService drafts one campaign concept per audience with a single structured-output call
type ScriptService struct {
	generator contentGenerator
	model     string
	logger    arbor.ILogger
}

// NewScriptService creates a script service. An empty model uses the provider default.
func NewScriptService(generator contentGenerator, model string, logger arbor.ILogger) *ScriptService {
	return &ScriptService{
		generator: generator,
		model:     model,
		logger:    logger,
	}
}

// GenerateDrafts implements interfaces.ScriptService.
// A well-formed response with no campaigns returns an empty slice and no error.
func (s *ScriptService) GenerateDrafts(ctx context.Context, productDescription, audiences string) ([]models.Draft, error) {
	resp, err := s.generator.GenerateContent(ctx, &ContentRequest{
		Prompt:       fmt.Sprintf(draftPromptTemplate, productDescription, audiences),
		Model:        s.model,
		OutputSchema: campaignSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate ad scripts: %w", err)
	}

	drafts, err := ParseDrafts(resp.Text)
	if err != nil {
		s.logger.Warn().Err(err).Int("response_length", len(resp.Text)).Msg("Unparseable drafting response")
		return nil, fmt.Errorf("failed to generate ad scripts: %w", err)
	}

	s.logger.Debug().
		Str("provider", string(resp.Provider)).
		Str("model", resp.Model).
		Int("drafts", len(drafts)).
		Msg("Drafting response parsed")

	return drafts, nil
}

// ParseDrafts decodes a {"campaigns":[...]} document. Code fences are tolerated.
func ParseDrafts(text string) ([]models.Draft, error) {
	var parsed struct {
		Campaigns []models.Draft `json:"campaigns"`
	}
	body := ExtractJSONBlock(text)
	if body == "" {
		return nil, fmt.Errorf("empty drafting response")
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, fmt.Errorf("invalid drafting response: %w", err)
	}

	drafts := make([]models.Draft, 0, len(parsed.Campaigns))
	for _, d := range parsed.Campaigns {
		drafts = append(drafts, models.Draft{
			Audience:    strings.TrimSpace(d.Audience),
			Script:      strings.TrimSpace(d.Script),
			ImagePrompt: strings.TrimSpace(d.ImagePrompt),
		})
	}
	return drafts, nil
}
