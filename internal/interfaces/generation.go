package interfaces

import (
	"context"

	"github.com/ternarybob/adforge/internal/models"
)

// ScriptService produces one draft per target audience in a single call.
// An empty slice with a nil error is a valid response.
type ScriptService interface {
	GenerateDrafts(ctx context.Context, productDescription, audiences string) ([]models.Draft, error)
}

// ImageService renders one image for a prompt and returns a reference to it
// (a data: URI for inline images).
type ImageService interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}
