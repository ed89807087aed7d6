package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// imageGenerator is the part of ProviderFactory the image service needs
type imageGenerator interface {
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// ImageOptions configures the Imagen call
type ImageOptions struct {
	Model       string
	AspectRatio string        // e.g. "16:9"
	MIMEType    string        // e.g. "image/jpeg"
	MinInterval time.Duration // Minimum spacing between requests, 0 = unpaced
}

// ImageService renders one image per prompt and returns it as a data: URI
type ImageService struct {
	generator imageGenerator
	options   ImageOptions
	limiter   *rate.Limiter
	logger    arbor.ILogger
}

// NewImageService creates an image service
func NewImageService(generator imageGenerator, options ImageOptions, logger arbor.ILogger) *ImageService {
	if options.MIMEType == "" {
		options.MIMEType = "image/jpeg"
	}

	s := &ImageService{
		generator: generator,
		options:   options,
		logger:    logger,
	}
	if options.MinInterval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(options.MinInterval), 1)
	}
	return s
}

// GenerateImage implements interfaces.ImageService
func (s *ImageService) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("image generation failed: %w", err)
		}
	}

	start := time.Now()
	resp, err := s.generator.GenerateImages(ctx, s.options.Model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: s.options.MIMEType,
		AspectRatio:    s.options.AspectRatio,
	})
	if err != nil {
		return "", fmt.Errorf("image generation failed: %w", err)
	}

	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0] == nil {
		return "", fmt.Errorf("image generation succeeded, but no image data was returned")
	}

	generated := resp.GeneratedImages[0]
	if generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
		if generated.RAIFilteredReason != "" {
			return "", fmt.Errorf("image generation blocked: %s", generated.RAIFilteredReason)
		}
		return "", fmt.Errorf("image generation succeeded, but no image data was returned")
	}

	mimeType := generated.Image.MIMEType
	if mimeType == "" {
		mimeType = s.options.MIMEType
	}

	s.logger.Debug().
		Int("bytes", len(generated.Image.ImageBytes)).
		Dur("elapsed", time.Since(start)).
		Msg("Image generated")

	return dataURL(mimeType, generated.Image.ImageBytes), nil
}

func dataURL(mime string, b []byte) string {
	enc := base64.StdEncoding.EncodeToString(b)
	return fmt.Sprintf("data:%s;base64,%s", mime, enc)
}
