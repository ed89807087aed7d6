package campaign

import (
	"errors"
)

var (
	// ErrInvalidInput is returned when the product description or audiences are blank
	ErrInvalidInput = errors.New("product description and target audiences are required")

	// ErrEmptyResult is returned when drafting succeeded but produced no campaigns
	ErrEmptyResult = errors.New("the AI failed to generate any campaign ideas, please try refining your inputs")

	// ErrRunSuperseded is returned when a newer run replaced the one being waited on
	ErrRunSuperseded = errors.New("generation run was superseded by a newer run")

	// ErrClosed is returned after the orchestrator has been shut down
	ErrClosed = errors.New("orchestrator is closed")
)

// DraftingFailedError reports that the drafting call itself failed
type DraftingFailedError struct {
	Message string
	Err     error
}

func (e *DraftingFailedError) Error() string {
	return "drafting failed: " + e.Message
}

func (e *DraftingFailedError) Unwrap() error {
	return e.Err
}
