package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/adforge/internal/app"
	"github.com/ternarybob/adforge/internal/common"
)

func main() {
	configPath := os.Getenv("ADFORGE_CONFIG")
	if configPath == "" {
		if _, err := os.Stat("adforge.toml"); err == nil {
			configPath = "adforge.toml"
		}
	}

	config, err := common.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the MCP protocol, so logs only go to file
	config.Logging.Output = []string{"file"}
	logger := common.InitLogger(config)

	application, err := app.New(config, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	mcpServer := server.NewMCPServer(
		"adforge",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Campaign generation
	mcpServer.AddTool(createGenerateCampaignTool(), handleGenerateCampaign(application.Orchestrator, logger))

	// Agent jobs
	mcpServer.AddTool(createStartAgentJobTool(), handleStartAgentJob(application.JobService, logger))
	mcpServer.AddTool(createGetAgentJobStatusTool(), handleGetAgentJobStatus(application.JobService, logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Error().Err(err).Msg("MCP server failed")
	}
}
