package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Step is the OODA phase of a job log entry. Unknown values are preserved verbatim.
type Step string

const (
	StepInitialize Step = "INITIALIZE"
	StepObserve    Step = "OBSERVE"
	StepOrient     Step = "ORIENT"
	StepDecide     Step = "DECIDE"
	StepAct        Step = "ACT"
	StepComplete   Step = "COMPLETE"
)

// IsKnown reports whether the step is one of the OODA phases
func (s Step) IsKnown() bool {
	switch s {
	case StepInitialize, StepObserve, StepOrient, StepDecide, StepAct, StepComplete:
		return true
	}
	return false
}

// Sub-steps emitted by the agent
const (
	SubStepDataReceived       = "data_received"
	SubStepPromptConstructed  = "prompt_constructed"
	SubStepConsultingAI       = "consulting_ai"
	SubStepAIResponseReceived = "ai_response_received"
	SubStepAIFallback         = "ai_fallback"
	SubStepExecuting          = "executing"
	SubStepCompleted          = "completed"
)

// LogEntry is one record of a job's decision trace.
//
// Only the fields the watcher and UI inspect are typed. Every other key the backend
// sends (data, prompt, ai_response, decision, reasoning, confidence, action_taken,
// result, campaign_summary, final_summary, ...) is kept untouched in Extra and
// written back out on marshal.
type LogEntry struct {
	Step       Step                       `json:"step"`
	StepNumber *int                       `json:"step_number,omitempty"`
	SubStep    string                     `json:"sub_step,omitempty"`
	Message    string                     `json:"message"`
	Timestamp  string                     `json:"timestamp"`
	Extra      map[string]json.RawMessage `json:"-"`
}

type logEntryFields struct {
	Step       Step   `json:"step"`
	StepNumber *int   `json:"step_number,omitempty"`
	SubStep    string `json:"sub_step,omitempty"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

// UnmarshalJSON decodes the typed fields best-effort and keeps the remaining keys as raw JSON.
// A typed key whose value has an unexpected JSON type (a numeric timestamp, a string
// step_number) stays in Extra unchanged instead of failing the entry.
func (e *LogEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode log entry: %w", err)
	}

	var entry LogEntry
	keep := func(key string, value json.RawMessage) {
		if entry.Extra == nil {
			entry.Extra = make(map[string]json.RawMessage)
		}
		entry.Extra[key] = append(json.RawMessage(nil), value...)
	}

	for key, value := range raw {
		var err error
		switch key {
		case "step":
			err = json.Unmarshal(value, &entry.Step)
		case "step_number":
			err = json.Unmarshal(value, &entry.StepNumber)
		case "sub_step":
			err = json.Unmarshal(value, &entry.SubStep)
		case "message":
			err = json.Unmarshal(value, &entry.Message)
		case "timestamp":
			err = json.Unmarshal(value, &entry.Timestamp)
		default:
			keep(key, value)
			continue
		}
		if err != nil {
			keep(key, value)
		}
	}

	*e = entry
	return nil
}

// MarshalJSON writes the typed fields and the opaque extras as one flat object.
// A raw value kept for a typed key wins over the zero typed field.
func (e LogEntry) MarshalJSON() ([]byte, error) {
	typed, err := json.Marshal(logEntryFields{
		Step:       e.Step,
		StepNumber: e.StepNumber,
		SubStep:    e.SubStep,
		Message:    e.Message,
		Timestamp:  e.Timestamp,
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(e.Extra)+5)
	if err := json.Unmarshal(typed, &out); err != nil {
		return nil, err
	}
	for key, value := range e.Extra {
		out[key] = value
	}

	return json.Marshal(out)
}

// SetExtra marshals v and stores it under key
func (e *LogEntry) SetExtra(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if e.Extra == nil {
		e.Extra = make(map[string]json.RawMessage)
	}
	e.Extra[key] = data
	return nil
}

// DecodeExtra unmarshals the raw value stored under key into v.
// Returns false when the key is absent.
func (e LogEntry) DecodeExtra(key string, v interface{}) (bool, error) {
	raw, ok := e.Extra[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Clone returns a deep copy of the entry
func (e LogEntry) Clone() LogEntry {
	out := e
	if e.StepNumber != nil {
		n := *e.StepNumber
		out.StepNumber = &n
	}
	if e.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(e.Extra))
		for key, value := range e.Extra {
			out.Extra[key] = append(json.RawMessage(nil), value...)
		}
	}
	return out
}

// Equal compares two entries field by field, including the raw extras
func (e LogEntry) Equal(other LogEntry) bool {
	if e.Step != other.Step || e.SubStep != other.SubStep || e.Message != other.Message || e.Timestamp != other.Timestamp {
		return false
	}
	if (e.StepNumber == nil) != (other.StepNumber == nil) {
		return false
	}
	if e.StepNumber != nil && *e.StepNumber != *other.StepNumber {
		return false
	}
	if len(e.Extra) != len(other.Extra) {
		return false
	}
	for key, value := range e.Extra {
		otherValue, ok := other.Extra[key]
		if !ok || !bytes.Equal(value, otherValue) {
			return false
		}
	}
	return true
}

// CloneLogEntries deep-copies a log sequence
func CloneLogEntries(entries []LogEntry) []LogEntry {
	if entries == nil {
		return nil
	}
	out := make([]LogEntry, len(entries))
	for i, entry := range entries {
		out[i] = entry.Clone()
	}
	return out
}

// LogEntriesEqual compares two log sequences element by element
func LogEntriesEqual(a, b []LogEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
