package models

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// GenerateRequest is the input of a campaign generation run.
// Shared by the HTTP API, the CLI and the MCP tool.
type GenerateRequest struct {
	ProductDescription string `json:"product_description" validate:"required,max=5000"`
	Audiences          string `json:"audiences" validate:"required,max=2000"`
}

// Normalize trims surrounding whitespace so blank input fails validation
func (r *GenerateRequest) Normalize() {
	r.ProductDescription = strings.TrimSpace(r.ProductDescription)
	r.Audiences = strings.TrimSpace(r.Audiences)
}

// Validate normalizes the request and checks it with go-playground/validator
func (r *GenerateRequest) Validate() error {
	r.Normalize()
	validate := validator.New()
	return validate.Struct(r)
}

// ValidationMessage turns validator errors into a short user-facing message
func ValidationMessage(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return err.Error()
	}

	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		field := jsonFieldName(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "max":
			parts = append(parts, field+" must be at most "+fe.Param()+" characters")
		default:
			parts = append(parts, field+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}

func jsonFieldName(field string) string {
	switch field {
	case "ProductDescription":
		return "product_description"
	case "Audiences":
		return "audiences"
	}
	return field
}
