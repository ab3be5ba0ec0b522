package adminapi

import (
	"regexp"
	"strings"
	"time"

	"github.com/veigo-labs/flagward/internal/flag"
)

// flagKeyRegex ensures keys are URL-safe slugs (lowercase letters, digits,
// hyphens, underscores). Compiled once at package initialization.
var flagKeyRegex = regexp.MustCompile(`^[a-z0-9_-]+$`)

// validateFlagKey enforces the format and length rules for the natural key.
func validateFlagKey(key string) *ErrorResponse {
	if key == "" {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Key is required",
		}
	}
	if len(key) < 3 || len(key) > 255 {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Key must be between 3 and 255 characters",
		}
	}
	if !flagKeyRegex.MatchString(key) {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Key must contain only lowercase letters, numbers, hyphens, and underscores",
		}
	}
	return nil
}

// validateEnvironments checks environment names and every targeting rule.
// This is the mutation boundary: evaluation assumes rules stored in the
// flag document have already passed these checks.
func validateEnvironments(envs map[flag.Environment]flag.EnvironmentConfig) *ErrorResponse {
	for env, cfg := range envs {
		if !env.Valid() {
			return &ErrorResponse{
				Code:    "ERR_INVALID_INPUT",
				Message: "Unknown environment: " + string(env),
			}
		}
		for _, rule := range cfg.Targeting {
			if err := rule.Validate(); err != nil {
				return &ErrorResponse{
					Code:    "ERR_INVALID_INPUT",
					Message: "Invalid targeting rule for " + string(env) + ": " + err.Error(),
				}
			}
		}
	}
	return nil
}

// CreateFlagRequest is the payload for POST /flags.
type CreateFlagRequest struct {
	// Key is required and immutable. Slug format.
	Key string `json:"key"`

	// Name is required; Description is optional.
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Active defaults to true when omitted: a freshly created flag is
	// gated by its environment configuration, not the master switch.
	Active *bool `json:"active,omitempty"`

	Status string   `json:"status,omitempty"`
	Tags   []string `json:"tags,omitempty"`

	Environments map[flag.Environment]flag.EnvironmentConfig `json:"environments,omitempty"`

	ScheduledEnableAt  *time.Time `json:"scheduled_enable_at,omitempty"`
	ScheduledDisableAt *time.Time `json:"scheduled_disable_at,omitempty"`

	// CreatedBy is the audit reference of the creating operator. Required.
	CreatedBy string `json:"created_by"`
}

// Sanitize trims whitespace and normalizes the key to lowercase.
func (r *CreateFlagRequest) Sanitize() {
	r.Key = strings.ToLower(strings.TrimSpace(r.Key))
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	r.CreatedBy = strings.TrimSpace(r.CreatedBy)
}

// Validate checks the request against business rules. Returns a structured
// error or nil.
func (r *CreateFlagRequest) Validate() *ErrorResponse {
	if errResp := validateFlagKey(r.Key); errResp != nil {
		return errResp
	}
	if r.Name == "" {
		return &ErrorResponse{Code: "ERR_INVALID_INPUT", Message: "Name is required"}
	}
	if len(r.Name) > 255 {
		return &ErrorResponse{Code: "ERR_INVALID_INPUT", Message: "Name must be less than 255 characters"}
	}
	if r.CreatedBy == "" {
		return &ErrorResponse{Code: "ERR_INVALID_INPUT", Message: "created_by is required"}
	}
	if r.Status != "" && !flag.Status(r.Status).Valid() {
		return &ErrorResponse{Code: "ERR_INVALID_INPUT", Message: "Unknown status: " + r.Status}
	}
	return validateEnvironments(r.Environments)
}

// UpdateFlagRequest is the payload for PUT /flags/{key}. Pointer fields
// distinguish "missing" (leave unchanged) from an explicit zero value.
// The scheduled dates are one-shot triggers, so clearing them is an
// explicit operation rather than a null.
type UpdateFlagRequest struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Active      *bool     `json:"active,omitempty"`
	Status      *string   `json:"status,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`

	Environments *map[flag.Environment]flag.EnvironmentConfig `json:"environments,omitempty"`

	ScheduledEnableAt     *time.Time `json:"scheduled_enable_at,omitempty"`
	ScheduledDisableAt    *time.Time `json:"scheduled_disable_at,omitempty"`
	ClearScheduledEnable  bool       `json:"clear_scheduled_enable,omitempty"`
	ClearScheduledDisable bool       `json:"clear_scheduled_disable,omitempty"`

	// LastModifiedBy is the audit reference of the mutating operator.
	LastModifiedBy string `json:"last_modified_by"`
}

// Validate checks the provided fields against business rules.
func (r *UpdateFlagRequest) Validate() *ErrorResponse {
	if r.Name != nil {
		if *r.Name == "" {
			return &ErrorResponse{Code: "ERR_INVALID_INPUT", Message: "Name cannot be empty"}
		}
		if len(*r.Name) > 255 {
			return &ErrorResponse{Code: "ERR_INVALID_INPUT", Message: "Name must be less than 255 characters"}
		}
	}
	if r.Status != nil && !flag.Status(*r.Status).Valid() {
		return &ErrorResponse{Code: "ERR_INVALID_INPUT", Message: "Unknown status: " + *r.Status}
	}
	if r.Environments != nil {
		if errResp := validateEnvironments(*r.Environments); errResp != nil {
			return errResp
		}
	}
	return nil
}

// EvaluateResponse is the body of GET /flags/{key}/evaluate.
//
// It deliberately carries no reason: callers must not be able to tell a
// disabled flag from an evaluation error, so internal state never leaks.
type EvaluateResponse struct {
	Key     string `json:"key"`
	Enabled bool   `json:"enabled"`
}

// ErrorResponse is the standard structured API error.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "ERR_INVALID_INPUT").
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`
}
