package interfaces

import (
	"context"
)

// TextGenerator produces a single free-text completion for a prompt.
// Used by the agent's reasoning step.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// ConnectionTester verifies the LLM provider is reachable and answering
type ConnectionTester interface {
	TestConnection(ctx context.Context) (bool, error)
}
