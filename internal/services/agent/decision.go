package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Tools the agent may choose from
const (
	ToolIncreaseBudget     = "increase_budget"
	ToolDecreaseBudget     = "decrease_budget"
	ToolPauseCampaign      = "pause_campaign"
	ToolOptimizeTargeting  = "optimize_targeting"
	ToolContinueMonitoring = "continue_monitoring"
	ToolRequestHumanInput  = "request_human_input"
)

// defaultConfidence is reported when the model omits a confidence value
const defaultConfidence = 0.5

// Action is the tool call chosen by the reasoning step
type Action struct {
	ToolName        string                 `json:"tool_name"`
	Parameters      map[string]interface{} `json:"parameters"`
	ExpectedOutcome string                 `json:"expected_outcome,omitempty"`
}

// Decision is the structured answer of the reasoning step
type Decision struct {
	Reasoning  string   `json:"reasoning"`
	Confidence *float64 `json:"confidence,omitempty"`
	Action     Action   `json:"action"`
}

// ToolNameOrUnknown returns the chosen tool, or "unknown" when the model named none
func (d Decision) ToolNameOrUnknown() string {
	if d.Action.ToolName == "" {
		return "unknown"
	}
	return d.Action.ToolName
}

// ConfidenceOrDefault returns the reported confidence or 0.5
func (d Decision) ConfidenceOrDefault() float64 {
	if d.Confidence == nil {
		return defaultConfidence
	}
	return *d.Confidence
}

// ActionResult describes the simulated execution of an action
type ActionResult struct {
	ToolExecuted   string                 `json:"tool_executed"`
	ParametersUsed map[string]interface{} `json:"parameters_used"`
	Result         string                 `json:"result"`
	ExecutionTime  string                 `json:"execution_time"`
}

func newDecision(reasoning string, confidence float64, tool string, params map[string]interface{}, outcome string) Decision {
	return Decision{
		Reasoning:  reasoning,
		Confidence: &confidence,
		Action: Action{
			ToolName:        tool,
			Parameters:      params,
			ExpectedOutcome: outcome,
		},
	}
}

// KeywordFallback picks a conservative decision from keywords in the prompt.
// Used when the reasoning provider cannot be reached.
func KeywordFallback(prompt string) Decision {
	lower := strings.ToLower(prompt)

	if strings.Contains(prompt, "ROI") && containsAny(lower, "high", "good", "strong", "positive") {
		return newDecision(
			"Campaign shows promising performance metrics. ROI appears positive and engagement indicators suggest effective targeting. However, without real-time AI analysis, recommending conservative approach.",
			0.70,
			ToolContinueMonitoring,
			map[string]interface{}{"reason": "api_fallback"},
			"Maintain current performance while awaiting full AI analysis",
		)
	}

	if containsAny(lower, "cost", "expensive", "budget", "spend") {
		return newDecision(
			"Cost-related concerns detected in campaign data. Without full AI analysis, recommending budget optimization to minimize risk while maintaining performance.",
			0.65,
			ToolOptimizeTargeting,
			map[string]interface{}{"focus": "cost_efficiency", "reason": "api_fallback"},
			"Improved cost efficiency while maintaining conversion quality",
		)
	}

	return newDecision(
		"Campaign analysis in progress. Current metrics appear stable. Continuing monitoring approach until full AI analysis is available.",
		0.60,
		ToolContinueMonitoring,
		map[string]interface{}{"reason": "api_fallback"},
		"Stable performance maintenance during analysis period",
	)
}

// ROIFallback is used when the model answered but the answer could not be parsed
func ROIFallback(obs Observation) Decision {
	return newDecision(
		fmt.Sprintf("AI service unavailable. Using fallback logic based on ROI: %v%%", obs.ROI),
		0.6,
		ToolContinueMonitoring,
		map[string]interface{}{},
		"Maintain current strategy until AI service is restored",
	)
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// ExecuteAction simulates running the chosen tool
func ExecuteAction(action Action, now time.Time) ActionResult {
	params := action.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}
	tool := action.ToolName
	if tool == "" {
		tool = "unknown"
	}

	var result string
	switch tool {
	case ToolIncreaseBudget:
		result = fmt.Sprintf("Budget increased by %s. Monitoring for improved performance.", paramOr(params, "amount", "20%"))
	case ToolDecreaseBudget:
		result = fmt.Sprintf("Budget decreased by %s. Reducing risk exposure.", paramOr(params, "amount", "15%"))
	case ToolPauseCampaign:
		result = "Campaign paused. No further spend until review."
	case ToolOptimizeTargeting:
		result = fmt.Sprintf("Targeting optimized: %s.", paramOr(params, "changes", "demographic adjustments made"))
	case ToolContinueMonitoring:
		result = "No changes made. Continuing to monitor performance metrics."
	case ToolRequestHumanInput:
		result = fmt.Sprintf("Human input requested: %s", paramOr(params, "question", "Need guidance on next steps"))
	default:
		encoded, _ := json.Marshal(params)
		result = fmt.Sprintf("Executed %s with parameters %s", tool, encoded)
	}

	return ActionResult{
		ToolExecuted:   tool,
		ParametersUsed: params,
		Result:         result,
		ExecutionTime:  now.Format(timestampFormat),
	}
}

func paramOr(params map[string]interface{}, key, fallback string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return fallback
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
