package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/adforge/internal/interfaces"
	"github.com/ternarybob/adforge/internal/models"
	"github.com/ternarybob/adforge/internal/services/campaign"
	"github.com/ternarybob/arbor"
)

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// handleGenerateCampaign implements the generate_campaign tool.
// It blocks until every image call of the run has returned.
func handleGenerateCampaign(orchestrator *campaign.Orchestrator, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req := models.GenerateRequest{
			ProductDescription: request.GetString("product_description", ""),
			Audiences:          request.GetString("audiences", ""),
		}
		if err := req.Validate(); err != nil {
			return textResult("Error: " + models.ValidationMessage(err)), nil
		}

		run, err := orchestrator.RunGeneration(ctx, req.ProductDescription, req.Audiences)
		if err != nil {
			logger.Warn().Err(err).Msg("MCP campaign generation failed")
			return textResult(fmt.Sprintf("Generation error: %v", err)), nil
		}

		snapshot, err := run.Wait(ctx)
		if err != nil {
			return textResult(fmt.Sprintf("Generation error: %v", err)), nil
		}

		return textResult(formatRun(snapshot)), nil
	}
}

// handleStartAgentJob implements the start_agent_job tool
func handleStartAgentJob(jobs interfaces.JobService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := jobs.Start(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("MCP agent job start failed")
			return textResult(fmt.Sprintf("Failed to start agent job: %v", err)), nil
		}
		return textResult(fmt.Sprintf("Agent job started: %s\n\nPoll it with get_agent_job_status.", jobID)), nil
	}
}

// handleGetAgentJobStatus implements the get_agent_job_status tool
func handleGetAgentJobStatus(jobs interfaces.JobService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return textResult("Error: job_id parameter is required"), nil
		}
		lastEntries := request.GetInt("last_entries", 0)

		report, err := jobs.GetStatus(ctx, jobID)
		if err != nil {
			if errors.Is(err, interfaces.ErrJobNotFound) {
				return textResult(fmt.Sprintf("Job not found: %s", jobID)), nil
			}
			logger.Error().Err(err).Str("job_id", jobID).Msg("MCP job status failed")
			return textResult(fmt.Sprintf("Status error: %v", err)), nil
		}

		return textResult(formatJobStatus(jobID, report, lastEntries)), nil
	}
}
