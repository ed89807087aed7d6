package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createGenerateCampaignTool returns the generate_campaign tool definition
func createGenerateCampaignTool() mcp.Tool {
	return mcp.NewTool("generate_campaign",
		mcp.WithDescription("Draft one ad campaign (script + image prompt) per target audience and render an image for each"),
		mcp.WithString("product_description",
			mcp.Required(),
			mcp.Description("What is being advertised"),
		),
		mcp.WithString("audiences",
			mcp.Required(),
			mcp.Description("Comma-separated target audiences, e.g. \"Remote Workers, Students\""),
		),
	)
}

// createStartAgentJobTool returns the start_agent_job tool definition
func createStartAgentJobTool() mcp.Tool {
	return mcp.NewTool("start_agent_job",
		mcp.WithDescription("Start a campaign-analysis agent job that walks the dataset through observe/orient/decide/act steps"),
	)
}

// createGetAgentJobStatusTool returns the get_agent_job_status tool definition
func createGetAgentJobStatusTool() mcp.Tool {
	return mcp.NewTool("get_agent_job_status",
		mcp.WithDescription("Get the status, progress and decision log of an agent job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID returned by start_agent_job"),
		),
		mcp.WithNumber("last_entries",
			mcp.Description("Only include the last N log entries (default: all)"),
		),
	)
}
