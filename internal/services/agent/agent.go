// -----------------------------------------------------------------------
// OODA agent - observes campaign data, consults the LLM, acts, and logs every step
// -----------------------------------------------------------------------

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/adforge/internal/interfaces"
	"github.com/ternarybob/adforge/internal/models"
	"github.com/ternarybob/adforge/internal/services/llm"
	"github.com/ternarybob/arbor"
)

// timestampFormat matches the microsecond ISO format the dashboard expects
const timestampFormat = "2006-01-02T15:04:05.000000"

// promptPreviewLength is how much of the reasoning prompt is copied into the log
const promptPreviewLength = 500

// errNoGenerator is reported when the agent runs without a reasoning provider
var errNoGenerator = errors.New("no AI reasoning provider configured")

const metaPrompt = `
You are AdForge, an expert AI marketing agent. Your sole objective is to maximize product sales by intelligently managing advertising campaigns.

You have the following tools available:
1. ` + "`increase_budget`" + `: Increase budget for high-performing campaigns
2. ` + "`decrease_budget`" + `: Reduce budget for underperforming campaigns
3. ` + "`pause_campaign`" + `: Stop a campaign that's losing money
4. ` + "`optimize_targeting`" + `: Adjust targeting parameters
5. ` + "`continue_monitoring`" + `: Keep current settings and monitor
6. ` + "`request_human_input`" + `: Ask for human guidance on complex decisions

DECISION CRITERIA:
- ROI > 20%: Consider increasing budget
- ROI < -10%: Consider decreasing budget or pausing
- Cost per conversion > $30: Needs optimization
- Click-through rate < 2%: Poor targeting, needs optimization
- High engagement but low conversions: Optimize landing page

Analyze the campaign data below. Provide clear reasoning and choose the single best action.
Your response MUST be valid JSON with this exact structure:
{
  "reasoning": "Your detailed analysis of the current situation",
  "confidence": 0.85,
  "action": {
    "tool_name": "tool_to_execute",
    "parameters": {"key": "value"},
    "expected_outcome": "What you expect this action to achieve"
  }
}
`

// LogSink receives every entry the agent writes, in order
type LogSink func(ctx context.Context, entry models.LogEntry) error

// Agent runs the observe / orient / decide / act loop over a simulated campaign
type Agent struct {
	generator interfaces.TextGenerator
	logger    arbor.ILogger
	stepDelay time.Duration
	now       func() time.Time
}

// NewAgent creates an agent. generator may be nil, in which case every
// decision comes from the keyword fallback.
func NewAgent(generator interfaces.TextGenerator, logger arbor.ILogger, stepDelay time.Duration) *Agent {
	return &Agent{
		generator: generator,
		logger:    logger,
		stepDelay: stepDelay,
		now:       time.Now,
	}
}

// BuildPrompt combines the fixed meta-prompt with one observation
func BuildPrompt(obs Observation) (string, error) {
	state, err := json.MarshalIndent(obs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode observation: %w", err)
	}
	return fmt.Sprintf("\n%s\n\n--- CURRENT CAMPAIGN DATA ---\n%s\n--- END OF DATA ---\n\nProvide your reasoning and next action as JSON:\n", metaPrompt, state), nil
}

// Run drives the simulator to completion, writing each step to sink.
// It returns the final campaign summary.
func (a *Agent) Run(ctx context.Context, sim *Simulator, sink LogSink) (CampaignSummary, error) {
	if err := a.write(ctx, sink, models.LogEntry{
		Step:    models.StepInitialize,
		Message: "AdForge Agent starting campaign analysis",
	}, "campaign_summary", sim.Summary()); err != nil {
		return CampaignSummary{}, err
	}

	for stepNumber := 1; ; stepNumber++ {
		obs, ok := sim.Next()
		if !ok {
			break
		}
		if err := a.runStep(ctx, stepNumber, obs, sink); err != nil {
			return CampaignSummary{}, err
		}
	}

	final := sim.Summary()
	if err := a.write(ctx, sink, models.LogEntry{
		Step:    models.StepComplete,
		Message: "Campaign analysis complete",
	}, "final_summary", final); err != nil {
		return CampaignSummary{}, err
	}

	return final, nil
}

func (a *Agent) runStep(ctx context.Context, stepNumber int, obs Observation, sink LogSink) error {
	// Observe
	if err := a.write(ctx, sink, models.LogEntry{
		Step:       models.StepObserve,
		StepNumber: intPtr(stepNumber),
		SubStep:    models.SubStepDataReceived,
		Message:    fmt.Sprintf("Receiving campaign data for step %d", stepNumber),
	}, "data", obs); err != nil {
		return err
	}

	// Orient
	prompt, err := BuildPrompt(obs)
	if err != nil {
		return err
	}
	if err := a.write(ctx, sink, models.LogEntry{
		Step:       models.StepOrient,
		StepNumber: intPtr(stepNumber),
		SubStep:    models.SubStepPromptConstructed,
		Message:    "Analyzing data and preparing query for AI reasoning engine",
	}, "prompt", previewPrompt(prompt)); err != nil {
		return err
	}

	if err := a.write(ctx, sink, models.LogEntry{
		Step:       models.StepOrient,
		StepNumber: intPtr(stepNumber),
		SubStep:    models.SubStepConsultingAI,
		Message:    "Consulting Gemini AI for strategic analysis...",
	}, "", nil); err != nil {
		return err
	}

	decision, rawResponse, reasonErr := a.reason(ctx, prompt, obs)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	response := models.LogEntry{
		Step:       models.StepOrient,
		StepNumber: intPtr(stepNumber),
		SubStep:    models.SubStepAIResponseReceived,
		Message:    "AI analysis complete",
	}
	var responseValue interface{} = rawResponse
	if reasonErr != nil {
		a.logger.Warn().Err(reasonErr).Int("step", stepNumber).Msg("AI reasoning failed, using fallback decision")
		response.SubStep = models.SubStepAIFallback
		response.Message = fmt.Sprintf("AI service error, using fallback logic: %s", reasonErr)
		responseValue = decision
	}
	if err := a.write(ctx, sink, response, "ai_response", responseValue); err != nil {
		return err
	}

	// Decide
	tool := decision.ToolNameOrUnknown()
	decide := models.LogEntry{
		Step:       models.StepDecide,
		StepNumber: intPtr(stepNumber),
		Message:    fmt.Sprintf("Decision made: %s", tool),
	}
	if err := decide.SetExtra("decision", decision.Action); err != nil {
		return err
	}
	if err := decide.SetExtra("reasoning", decision.Reasoning); err != nil {
		return err
	}
	if err := a.write(ctx, sink, decide, "confidence", decision.ConfidenceOrDefault()); err != nil {
		return err
	}

	// Act
	if err := a.write(ctx, sink, models.LogEntry{
		Step:       models.StepAct,
		StepNumber: intPtr(stepNumber),
		SubStep:    models.SubStepExecuting,
		Message:    fmt.Sprintf("Executing action: %s", tool),
	}, "", nil); err != nil {
		return err
	}

	result := ExecuteAction(decision.Action, a.now())
	completed := models.LogEntry{
		Step:       models.StepAct,
		StepNumber: intPtr(stepNumber),
		SubStep:    models.SubStepCompleted,
		Message:    "Action executed successfully",
	}
	if err := completed.SetExtra("action_taken", decision.Action); err != nil {
		return err
	}
	return a.write(ctx, sink, completed, "result", result)
}

// reason asks the provider for a decision. On failure it returns a fallback
// decision together with the error that caused it.
func (a *Agent) reason(ctx context.Context, prompt string, obs Observation) (Decision, json.RawMessage, error) {
	if a.generator == nil {
		return KeywordFallback(prompt), nil, errNoGenerator
	}

	text, err := a.generator.GenerateText(ctx, prompt)
	if err != nil {
		return KeywordFallback(prompt), nil, err
	}

	raw := json.RawMessage(llm.ExtractJSONBlock(text))
	var decision Decision
	if err := json.Unmarshal(raw, &decision); err != nil {
		return ROIFallback(obs), nil, fmt.Errorf("failed to parse AI response: %w", err)
	}
	return decision, raw, nil
}

// write stamps, optionally decorates, emits and then paces one entry.
// key/value add a single extra field when key is non-empty.
func (a *Agent) write(ctx context.Context, sink LogSink, entry models.LogEntry, key string, value interface{}) error {
	if key != "" {
		if err := entry.SetExtra(key, value); err != nil {
			return err
		}
	}
	entry.Timestamp = a.now().Format(timestampFormat)

	if err := sink(ctx, entry); err != nil {
		return fmt.Errorf("failed to write %s log entry: %w", entry.Step, err)
	}
	a.logger.Debug().
		Str("step", string(entry.Step)).
		Str("sub_step", entry.SubStep).
		Msg(entry.Message)

	return a.pause(ctx)
}

func (a *Agent) pause(ctx context.Context) error {
	if a.stepDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(a.stepDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func previewPrompt(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= promptPreviewLength {
		return prompt
	}
	return string(runes[:promptPreviewLength]) + "..."
}

func intPtr(v int) *int {
	return &v
}
