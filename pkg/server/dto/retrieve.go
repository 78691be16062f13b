// Package dto defines the HTTP request and response shapes, with the
// validation that guards the API boundary.
package dto

import (
	"errors"
	"strings"

	"github.com/recallai/recall/pkg/types"
)

// Request limits. These guard the transport only; pipeline-level limits
// live in the user parameters.
const (
	MaxKeyPhrases      = 50
	MaxUserIDLength    = 256
	MaxRawPhraseLength = 4096
)

// Validation errors
var (
	ErrEmptyUserID      = errors.New("user_id cannot be empty")
	ErrUserIDTooLong    = errors.New("user_id exceeds maximum length (256)")
	ErrTooManyPhrases   = errors.New("key_phrases_for_retrieval exceeds maximum count (50)")
	ErrRawPhraseTooLong = errors.New("a key phrase exceeds maximum raw length (4096)")
)

// RetrieveRequest is the POST /api/v1/retrieve body.
type RetrieveRequest struct {
	UserID         string                `json:"user_id" binding:"required"`
	ConversationID string                `json:"conversation_id,omitempty"`
	KeyPhrases     []string              `json:"key_phrases_for_retrieval"`
	Scenario       string                `json:"retrieval_scenario,omitempty"`
	Parameters     *types.UserParameters `json:"user_parameters,omitempty"`
}

// Validate checks transport-level limits. Pipeline parameter ranges are
// validated at the parameter-edit boundary, not here.
func (r *RetrieveRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrEmptyUserID
	}
	if len(r.UserID) > MaxUserIDLength {
		return ErrUserIDTooLong
	}
	if len(r.KeyPhrases) > MaxKeyPhrases {
		return ErrTooManyPhrases
	}
	for _, phrase := range r.KeyPhrases {
		if len(phrase) > MaxRawPhraseLength {
			return ErrRawPhraseTooLong
		}
	}
	return nil
}

// ToRequest maps the DTO onto the pipeline input contract.
func (r *RetrieveRequest) ToRequest() types.RetrievalRequest {
	return types.RetrievalRequest{
		UserID:         strings.TrimSpace(r.UserID),
		ConversationID: r.ConversationID,
		KeyPhrases:     r.KeyPhrases,
		Scenario:       types.ParseScenario(r.Scenario),
		Parameters:     r.Parameters,
	}
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ParametersResponse wraps a user's effective parameters.
type ParametersResponse struct {
	UserID     string               `json:"user_id"`
	Parameters types.UserParameters `json:"parameters"`
}

// PresetsResponse lists the named parameter presets.
type PresetsResponse struct {
	Presets []string `json:"presets"`
}
