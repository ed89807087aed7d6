package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRequest_Validate(t *testing.T) {
	req := GenerateRequest{ProductDescription: "  A smart mug  ", Audiences: " Coffee Lovers "}
	require.NoError(t, req.Validate())
	assert.Equal(t, "A smart mug", req.ProductDescription)
	assert.Equal(t, "Coffee Lovers", req.Audiences)

	blank := GenerateRequest{ProductDescription: "   ", Audiences: "Tech Enthusiasts"}
	err := blank.Validate()
	require.Error(t, err)
	assert.Equal(t, "product_description is required", ValidationMessage(err))

	long := GenerateRequest{ProductDescription: "mug", Audiences: strings.Repeat("a", 2001)}
	err = long.Validate()
	require.Error(t, err)
	assert.Equal(t, "audiences must be at most 2000 characters", ValidationMessage(err))
}
