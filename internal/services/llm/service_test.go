package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"
)

type stubContent struct {
	text    string
	err     error
	request *ContentRequest
}

func (s *stubContent) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	s.request = request
	if s.err != nil {
		return nil, s.err
	}
	return &ContentResponse{Text: s.text, Provider: ProviderGemini, Model: "gemini-2.5-flash"}, nil
}

type stubImages struct {
	resp   *genai.GenerateImagesResponse
	err    error
	config *genai.GenerateImagesConfig
}

func (s *stubImages) GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	s.config = config
	return s.resp, s.err
}

func TestScriptService_GenerateDrafts(t *testing.T) {
	stub := &stubContent{text: `{"campaigns":[
		{"audience":"Tech Enthusiasts","script":" Brew smarter. ","imagePrompt":"a sleek mug on a desk"},
		{"audience":"Coffee Lovers","script":"Every sip, perfect.","imagePrompt":"steam over a latte"}
	]}`}
	service := NewScriptService(stub, "", arbor.NewLogger())

	drafts, err := service.GenerateDrafts(context.Background(), "Smart mug", "Tech Enthusiasts, Coffee Lovers")
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, "Tech Enthusiasts", drafts[0].Audience)
	assert.Equal(t, "Brew smarter.", drafts[0].Script)
	assert.Equal(t, "steam over a latte", drafts[1].ImagePrompt)

	require.NotNil(t, stub.request)
	assert.Same(t, campaignSchema, stub.request.OutputSchema)
	assert.Contains(t, stub.request.Prompt, `"Smart mug"`)
}

func TestScriptService_EmptyCampaignsIsNotAnError(t *testing.T) {
	service := NewScriptService(&stubContent{text: `{"campaigns":[]}`}, "", arbor.NewLogger())

	drafts, err := service.GenerateDrafts(context.Background(), "p", "a")
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestScriptService_Failures(t *testing.T) {
	_, err := NewScriptService(&stubContent{err: errors.New("503")}, "", arbor.NewLogger()).
		GenerateDrafts(context.Background(), "p", "a")
	assert.ErrorContains(t, err, "failed to generate ad scripts")

	_, err = NewScriptService(&stubContent{text: "not json"}, "", arbor.NewLogger()).
		GenerateDrafts(context.Background(), "p", "a")
	assert.ErrorContains(t, err, "invalid drafting response")
}

func TestParseDrafts_FencedResponse(t *testing.T) {
	drafts, err := ParseDrafts("Here you go:\n```json\n{\"campaigns\":[{\"audience\":\"A\",\"script\":\"S\",\"imagePrompt\":\"P\"}]}\n```")
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "A", drafts[0].Audience)
}

func TestExtractJSONBlock(t *testing.T) {
	assert.Equal(t, `{"a":1}`, ExtractJSONBlock("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, ExtractJSONBlock("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, ExtractJSONBlock("  {\"a\":1}  "))
	assert.Equal(t, `{"a":1}`, ExtractJSONBlock("```json {\"a\":1}"))
}

func TestImageService_ReturnsDataURL(t *testing.T) {
	stub := &stubImages{resp: &genai.GenerateImagesResponse{
		GeneratedImages: []*genai.GeneratedImage{{Image: &genai.Image{ImageBytes: []byte{0xff, 0xd8, 0xff}}}},
	}}
	service := NewImageService(stub, ImageOptions{AspectRatio: "16:9"}, arbor.NewLogger())

	ref, err := service.GenerateImage(context.Background(), "a mug")
	require.NoError(t, err)
	assert.Equal(t, "data:image/jpeg;base64,/9j/", ref)

	require.NotNil(t, stub.config)
	assert.Equal(t, "16:9", stub.config.AspectRatio)
	assert.Equal(t, "image/jpeg", stub.config.OutputMIMEType)
}

func TestImageService_Failures(t *testing.T) {
	tests := []struct {
		name    string
		stub    *stubImages
		wantErr string
	}{
		{"api error", &stubImages{err: errors.New("quota exceeded")}, "image generation failed: quota exceeded"},
		{"no images", &stubImages{resp: &genai.GenerateImagesResponse{}}, "no image data was returned"},
		{"filtered", &stubImages{resp: &genai.GenerateImagesResponse{
			GeneratedImages: []*genai.GeneratedImage{{RAIFilteredReason: "safety"}},
		}}, "image generation blocked: safety"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewImageService(tt.stub, ImageOptions{}, arbor.NewLogger())
			_, err := service.GenerateImage(context.Background(), "prompt")
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestProviderFactory_DetectProvider(t *testing.T) {
	factory := newTestFactory("gemini")

	assert.Equal(t, ProviderClaude, factory.DetectProvider("claude-haiku-4-5"))
	assert.Equal(t, ProviderClaude, factory.DetectProvider("anthropic/claude-sonnet-4"))
	assert.Equal(t, ProviderGemini, factory.DetectProvider("gemini-2.5-flash"))
	assert.Equal(t, ProviderGemini, factory.DetectProvider(""))
	assert.Equal(t, "claude-sonnet-4", factory.NormalizeModel("anthropic/claude-sonnet-4"))

	assert.Equal(t, ProviderClaude, newTestFactory("claude").DetectProvider("custom-model"))
}

func TestProviderFactory_RejectsEmptyPrompt(t *testing.T) {
	_, err := newTestFactory("gemini").GenerateContent(context.Background(), &ContentRequest{Prompt: "  "})
	assert.Error(t, err)
}
