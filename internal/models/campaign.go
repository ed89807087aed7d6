package models

import (
	"time"
)

// Draft is one {audience, script, imagePrompt} concept returned by the drafting phase.
// The JSON names match the structured-output schema sent to the script model.
type Draft struct {
	Audience    string `json:"audience"`
	Script      string `json:"script"`
	ImagePrompt string `json:"imagePrompt"`
}

// ImageStatus is the per-item enrichment state
type ImageStatus string

const (
	ImageStatusPending ImageStatus = "pending"
	ImageStatusReady   ImageStatus = "ready"
	ImageStatusFailed  ImageStatus = "failed"
)

// ImageState holds the outcome of one image call.
// Ref is set only when Ready, Error only when Failed.
type ImageState struct {
	Status ImageStatus `json:"status"`
	Ref    string      `json:"ref,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// IsSettled reports whether the image has left Pending
func (s ImageState) IsSettled() bool {
	return s.Status == ImageStatusReady || s.Status == ImageStatusFailed
}

// CampaignItem is a draft plus its image state. Identity is the index in the run's item list.
type CampaignItem struct {
	Audience    string     `json:"audience"`
	Script      string     `json:"script"`
	ImagePrompt string     `json:"image_prompt"`
	Image       ImageState `json:"image"`
}

// NewCampaignItem creates a pending item from a draft
func NewCampaignItem(d Draft) CampaignItem {
	return CampaignItem{
		Audience:    d.Audience,
		Script:      d.Script,
		ImagePrompt: d.ImagePrompt,
		Image:       ImageState{Status: ImageStatusPending},
	}
}

// RunStatus is the lifecycle of a generation run
type RunStatus string

const (
	RunStatusIdle           RunStatus = "idle"
	RunStatusDrafting       RunStatus = "drafting"
	RunStatusImagesInFlight RunStatus = "images_in_flight"
	RunStatusDone           RunStatus = "done"
	RunStatusFailed         RunStatus = "failed"
)

// IsTerminal returns true for Done and Failed
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusDone || s == RunStatusFailed
}

// RunSnapshot is an immutable view of the current generation run.
// Version increases by one for every publication.
type RunSnapshot struct {
	Token              uint64         `json:"token"`
	Status             RunStatus      `json:"status"`
	Error              string         `json:"error,omitempty"`
	ProductDescription string         `json:"product_description,omitempty"`
	Audiences          string         `json:"audiences,omitempty"`
	Items              []CampaignItem `json:"items"`
	Version            uint64         `json:"version"`
	StartedAt          *time.Time     `json:"started_at,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand to observers
func (r RunSnapshot) Clone() RunSnapshot {
	out := r
	out.Items = make([]CampaignItem, len(r.Items))
	copy(out.Items, r.Items)
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Counts returns the number of pending, ready and failed items
func (r RunSnapshot) Counts() (pending, ready, failed int) {
	for _, item := range r.Items {
		switch item.Image.Status {
		case ImageStatusReady:
			ready++
		case ImageStatusFailed:
			failed++
		default:
			pending++
		}
	}
	return pending, ready, failed
}
