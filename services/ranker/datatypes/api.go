// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains request and response types for the HTTP API.
// For graph-side currency types, see elements.go.

package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	// MaxQueryBytes caps retrieval query size. Queries feed the embedder
	// and the reasoner; unbounded input would be paid for twice.
	MaxQueryBytes = 8 * 1024 // 8KB

	// MaxRetrieveLimit caps how many ranked results one query may request.
	MaxRetrieveLimit = 100

	// DefaultRetrieveLimit is used when a request omits the limit.
	DefaultRetrieveLimit = 10
)

// apiValidate is the validator instance for API datatypes.
// Initialized in init() with custom validators.
var apiValidate *validator.Validate

func init() {
	apiValidate = validator.New()
	_ = apiValidate.RegisterValidation("maxbytes", validateMaxQueryBytes)
	_ = apiValidate.RegisterValidation("polarity", validatePolarity)
}

// validateMaxQueryBytes enforces MaxQueryBytes on string fields.
// Checks byte length, not rune count.
func validateMaxQueryBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQueryBytes
}

// validatePolarity accepts only the two known polarity values.
func validatePolarity(fl validator.FieldLevel) bool {
	return Polarity(fl.Field().String()).Valid()
}

// RetrieveRequest is the body of POST /v1/retrieve.
//
// Validation:
//   - Query: required, max 8KB
//   - Limit: 0 (use default) to MaxRetrieveLimit
//   - DesignSystem: optional filter passed through to vector and graph search
type RetrieveRequest struct {
	RequestID    string `json:"request_id" validate:"omitempty,uuid4"`
	Query        string `json:"query" validate:"required,maxbytes"`
	Limit        int    `json:"limit" validate:"gte=0,lte=100"`
	DesignSystem string `json:"design_system" validate:"omitempty,max=128"`
}

// EnsureDefaults fills RequestID and Limit when the client omitted them.
func (r *RetrieveRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.New().String()
	}
	if r.Limit == 0 {
		r.Limit = DefaultRetrieveLimit
	}
}

// Validate checks the request against its constraints.
func (r *RetrieveRequest) Validate() error {
	return apiValidate.Struct(r)
}

// RetrieveResponse is the body returned by POST /v1/retrieve.
type RetrieveResponse struct {
	RequestID string          `json:"request_id"`
	Query     string          `json:"query"`
	Mode      string          `json:"operating_mode"`
	Cached    bool            `json:"cached"`
	Results   []ScoredElement `json:"results"`
	LatencyMs int64           `json:"latency_ms"`
}

// FeedbackRequest is the body of POST /v1/feedback.
//
// Validation:
//   - TargetElement: required UUID of the element the feedback is about
//   - Polarity: required, "positive" or "negative"
//   - QueryContext: optional, max 8KB
type FeedbackRequest struct {
	RequestID     string `json:"request_id" validate:"omitempty,uuid4"`
	TargetElement string `json:"target_element" validate:"required,uuid4"`
	Polarity      string `json:"polarity" validate:"required,polarity"`
	QueryContext  string `json:"query_context" validate:"omitempty,maxbytes"`
}

// EnsureDefaults fills RequestID when the client omitted it.
func (r *FeedbackRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.New().String()
	}
}

// Validate checks the request against its constraints.
func (r *FeedbackRequest) Validate() error {
	return apiValidate.Struct(r)
}

// Event converts a validated request into an immutable FeedbackEvent.
func (r *FeedbackRequest) Event() FeedbackEvent {
	return FeedbackEvent{
		ID:            uuid.New(),
		TargetElement: uuid.MustParse(r.TargetElement),
		Polarity:      Polarity(r.Polarity),
		QueryContext:  r.QueryContext,
		CreatedAt:     time.Now().UTC(),
	}
}

// FeedbackResponse is the body returned by POST /v1/feedback.
type FeedbackResponse struct {
	RequestID   string            `json:"request_id"`
	EventID     string            `json:"event_id"`
	Propagation PropagationResult `json:"propagation"`
	Reward      RewardResult      `json:"reward"`
}

// ModeResponse is the body returned by GET /v1/mode.
type ModeResponse struct {
	Mode     string            `json:"operating_mode"`
	Services map[string]string `json:"services"`
}
