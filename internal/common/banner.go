package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the effective service endpoints
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.Print("AdForge", GetVersion())

	backend := config.Agent.BackendURL
	if backend == "" {
		backend = "in-process"
	}

	logger.Info().
		Str("version", GetFullVersion()).
		Str("environment", config.Environment).
		Str("api", fmt.Sprintf("http://%s:%d/api", config.Server.Host, config.Server.Port)).
		Str("agent_backend", backend).
		Str("text_provider", string(config.LLM.DefaultProvider)).
		Msg("AdForge starting")
}
