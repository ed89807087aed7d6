package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/adforge/internal/models"
	"github.com/ternarybob/arbor"
)

type stubGenerator struct {
	mu      sync.Mutex
	text    string
	err     error
	prompts []string
}

func (s *stubGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	return s.text, s.err
}

type collector struct {
	mu      sync.Mutex
	entries []models.LogEntry
}

func (c *collector) sink(ctx context.Context, entry models.LogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	return nil
}

const fencedDecision = "Here is my analysis:\n```json\n" + `{
  "reasoning": "ROI is strongly positive",
  "confidence": 0.9,
  "action": {"tool_name": "increase_budget", "parameters": {"amount": "25%"}, "expected_outcome": "More sales"}
}` + "\n```"

func TestAgent_RunWritesFullTrace(t *testing.T) {
	gen := &stubGenerator{text: fencedDecision}
	a := NewAgent(gen, arbor.NewNoOpLogger(), 0)
	c := &collector{}

	summary, err := a.Run(context.Background(), NewSimulator(DemoObservations(3)), c.sink)
	require.NoError(t, err)
	assert.Equal(t, SummaryComplete, summary.Status)
	assert.Len(t, gen.prompts, 3)

	require.Len(t, c.entries, 1+3*7+1)
	assert.Equal(t, models.StepInitialize, c.entries[0].Step)
	assert.Equal(t, models.StepComplete, c.entries[len(c.entries)-1].Step)

	step := c.entries[1:8]
	expected := []struct {
		step    models.Step
		subStep string
	}{
		{models.StepObserve, models.SubStepDataReceived},
		{models.StepOrient, models.SubStepPromptConstructed},
		{models.StepOrient, models.SubStepConsultingAI},
		{models.StepOrient, models.SubStepAIResponseReceived},
		{models.StepDecide, ""},
		{models.StepAct, models.SubStepExecuting},
		{models.StepAct, models.SubStepCompleted},
	}
	for i, want := range expected {
		assert.Equal(t, want.step, step[i].Step, "entry %d", i)
		assert.Equal(t, want.subStep, step[i].SubStep, "entry %d", i)
		require.NotNil(t, step[i].StepNumber)
		assert.Equal(t, 1, *step[i].StepNumber)
		assert.NotEmpty(t, step[i].Timestamp)
	}

	assert.Equal(t, "Decision made: increase_budget", step[4].Message)
	var confidence float64
	found, err := step[4].DecodeExtra("confidence", &confidence)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 0.9, confidence)

	var result ActionResult
	found, err = step[6].DecodeExtra("result", &result)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Budget increased by 25%. Monitoring for improved performance.", result.Result)

	var prompt string
	_, err = step[1].DecodeExtra("prompt", &prompt)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(prompt, "..."))
	assert.Len(t, []rune(prompt), promptPreviewLength+3)
}

func TestAgent_ProviderErrorUsesKeywordFallback(t *testing.T) {
	gen := &stubGenerator{err: errors.New("quota exceeded")}
	a := NewAgent(gen, arbor.NewNoOpLogger(), 0)
	c := &collector{}

	_, err := a.Run(context.Background(), NewSimulator(DemoObservations(1)), c.sink)
	require.NoError(t, err)

	orient := c.entries[4]
	assert.Equal(t, models.SubStepAIFallback, orient.SubStep)
	assert.Contains(t, orient.Message, "quota exceeded")

	var decision Decision
	_, err = orient.DecodeExtra("ai_response", &decision)
	require.NoError(t, err)
	assert.Equal(t, ToolContinueMonitoring, decision.Action.ToolName)
	assert.Equal(t, 0.70, decision.ConfidenceOrDefault())
}

func TestAgent_UnparseableResponseUsesROIFallback(t *testing.T) {
	gen := &stubGenerator{text: "I think you should spend more."}
	a := NewAgent(gen, arbor.NewNoOpLogger(), 0)
	c := &collector{}

	_, err := a.Run(context.Background(), NewSimulator(DemoObservations(1)), c.sink)
	require.NoError(t, err)

	orient := c.entries[4]
	assert.Equal(t, models.SubStepAIFallback, orient.SubStep)

	var decision Decision
	_, err = orient.DecodeExtra("ai_response", &decision)
	require.NoError(t, err)
	assert.Contains(t, decision.Reasoning, "fallback logic based on ROI")
	assert.Equal(t, 0.6, decision.ConfidenceOrDefault())
}

func TestAgent_NoGeneratorStillCompletes(t *testing.T) {
	a := NewAgent(nil, arbor.NewNoOpLogger(), 0)
	c := &collector{}

	summary, err := a.Run(context.Background(), NewSimulator(DemoObservations(2)), c.sink)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.CurrentStep)
	assert.Len(t, c.entries, 1+2*7+1)
}

func TestAgent_CancelledRunStops(t *testing.T) {
	a := NewAgent(nil, arbor.NewNoOpLogger(), time.Hour)
	c := &collector{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := a.Run(ctx, NewSimulator(DemoObservations(3)), c.sink)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop after cancellation")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Len(t, c.entries, 1)
}

func TestAgent_SinkErrorAbortsRun(t *testing.T) {
	a := NewAgent(nil, arbor.NewNoOpLogger(), 0)
	failing := func(ctx context.Context, entry models.LogEntry) error {
		return errors.New("disk full")
	}

	_, err := a.Run(context.Background(), NewSimulator(DemoObservations(1)), failing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestKeywordFallback(t *testing.T) {
	assert.Equal(t, ToolContinueMonitoring, KeywordFallback("ROI looks strong").Action.ToolName)
	assert.Equal(t, ToolOptimizeTargeting, KeywordFallback("ad spend is rising").Action.ToolName)

	neutral := KeywordFallback("nothing to see")
	assert.Equal(t, ToolContinueMonitoring, neutral.Action.ToolName)
	assert.Equal(t, 0.60, neutral.ConfidenceOrDefault())
}

func TestExecuteAction(t *testing.T) {
	now := time.Date(2024, 10, 19, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		action Action
		want   string
	}{
		{Action{ToolName: ToolIncreaseBudget}, "Budget increased by 20%. Monitoring for improved performance."},
		{Action{ToolName: ToolDecreaseBudget, Parameters: map[string]interface{}{"amount": "10%"}}, "Budget decreased by 10%. Reducing risk exposure."},
		{Action{ToolName: ToolPauseCampaign}, "Campaign paused. No further spend until review."},
		{Action{ToolName: ToolOptimizeTargeting}, "Targeting optimized: demographic adjustments made."},
		{Action{ToolName: ToolContinueMonitoring}, "No changes made. Continuing to monitor performance metrics."},
		{Action{ToolName: ToolRequestHumanInput}, "Human input requested: Need guidance on next steps"},
		{Action{ToolName: "launch_rocket", Parameters: map[string]interface{}{"x": 1}}, `Executed launch_rocket with parameters {"x":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.action.ToolName, func(t *testing.T) {
			result := ExecuteAction(tt.action, now)
			assert.Equal(t, tt.want, result.Result)
			assert.Equal(t, tt.action.ToolName, result.ToolExecuted)
			assert.Equal(t, "2024-10-19T10:00:00.000000", result.ExecutionTime)
		})
	}

	assert.Equal(t, "unknown", ExecuteAction(Action{}, now).ToolExecuted)
}
