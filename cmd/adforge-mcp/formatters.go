package main

import (
	"fmt"
	"strings"

	"github.com/ternarybob/adforge/internal/models"
)

// formatRun formats a finished run as markdown. Images are summarised, not inlined.
func formatRun(snapshot models.RunSnapshot) string {
	var sb strings.Builder
	_, ready, failed := snapshot.Counts()
	sb.WriteString(fmt.Sprintf("## Campaigns (%d ready, %d failed)\n\n", ready, failed))

	for i, item := range snapshot.Items {
		sb.WriteString(fmt.Sprintf("### %d. %s\n", i+1, item.Audience))
		sb.WriteString(item.Script)
		sb.WriteString("\n\n")
		sb.WriteString(fmt.Sprintf("**Image prompt:** %s\n", item.ImagePrompt))
		switch item.Image.Status {
		case models.ImageStatusReady:
			sb.WriteString(fmt.Sprintf("**Image:** ready (%d byte data URI)\n", len(item.Image.Ref)))
		case models.ImageStatusFailed:
			sb.WriteString(fmt.Sprintf("**Image:** failed - %s\n", item.Image.Error))
		default:
			sb.WriteString("**Image:** pending\n")
		}
		sb.WriteString("\n---\n\n")
	}

	return sb.String()
}

// formatJobStatus formats a job status report as markdown
func formatJobStatus(jobID string, report *models.JobStatusReport, lastEntries int) string {
	var sb strings.Builder
	info := report.JobInfo
	sb.WriteString(fmt.Sprintf("## Job %s\n", jobID))
	sb.WriteString(fmt.Sprintf("**Status:** %s\n", info.Status))
	sb.WriteString(fmt.Sprintf("**Progress:** %.1f%%\n", info.Progress))
	if info.CreatedAt != "" {
		sb.WriteString(fmt.Sprintf("**Created:** %s\n", info.CreatedAt))
	}
	if info.Error != "" {
		sb.WriteString(fmt.Sprintf("**Error:** %s\n", info.Error))
	}
	if len(info.Result) > 0 {
		sb.WriteString(fmt.Sprintf("**Result:** `%s`\n", string(info.Result)))
	}

	entries := report.LogEntries
	if lastEntries > 0 && len(entries) > lastEntries {
		entries = entries[len(entries)-lastEntries:]
	}
	sb.WriteString(fmt.Sprintf("\n### Log (%d of %d entries)\n\n", len(entries), len(report.LogEntries)))
	for _, entry := range entries {
		step := string(entry.Step)
		if entry.SubStep != "" {
			step += "/" + entry.SubStep
		}
		sb.WriteString(fmt.Sprintf("- `%s` **%s** %s\n", entry.Timestamp, step, entry.Message))
	}

	return sb.String()
}
