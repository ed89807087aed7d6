package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique agent job ID.
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewRequestID generates the X-Request-ID attached to HTTP responses
func NewRequestID() string {
	return uuid.New().String()
}
