package llm

import (
	"github.com/ternarybob/adforge/internal/common"
	"github.com/ternarybob/arbor"
)

func newTestFactory(provider common.LLMProvider) *ProviderFactory {
	config := common.NewDefaultConfig()
	config.LLM.DefaultProvider = provider
	return NewProviderFactory(&config.Gemini, &config.Claude, &config.LLM, arbor.NewLogger())
}
